// Package summary renders query results as a short Spanish answer. It never touches the network or
// a database, and always produces some text.
package summary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
)

const previewRows = 5

var (
	countFields  = []string{"count", "total", "cantidad"}
	titleFields  = []string{"title", "titulo", "name", "nombre", "username", "description", "descripcion"}
	statusFields = []string{"status", "estado"}
	emailFields  = []string{"email", "correo"}

	roleLabels = map[string]string{
		query.RoleHeadOfHousehold: "jefe de hogar",
		query.RoleFamilyMember:    "miembro de la familia",
	}
)

// Summarize answers message given the rows returned by target.
func Summarize(message string, rows []map[string]any, target registry.Target) string {
	text := query.Fold(message)

	if len(rows) == 0 {
		if text.MentionsToday() && text.MentionsTasks() {
			return "No tienes tareas para hoy."
		}
		return "No encontré resultados."
	}

	first := rows[0]
	if len(rows) == 1 {
		if _, v, ok := field(first, countFields...); ok {
			if n, ok := toInt(v); ok {
				return fmt.Sprintf("Hay %d %s.", n, noun(text, n))
			}
		}
	}

	if text.IsIdentityIntent() {
		if s, ok := identitySentence(first); ok {
			return s
		}
	}

	if _, _, ok := field(first, titleFields...); ok {
		return preview(rows, target)
	}

	return fallback(rows, target)
}

func noun(text query.Text, n int64) string {
	singular, plural := "resultado", "resultados"
	switch {
	case text.MentionsTasks():
		singular, plural = "tarea", "tareas"
	case text.MentionsPeople():
		singular, plural = "usuario", "usuarios"
	case text.MentionsMoney():
		singular, plural = "gasto", "gastos"
	}
	if n == 1 {
		return singular
	}
	return plural
}

func identitySentence(row map[string]any) (string, bool) {
	name := strings.TrimSpace(stringOf(row["first_name"]) + " " + stringOf(row["last_name"]))
	if name == "" {
		if _, v, ok := field(row, "name", "nombre", "username"); ok {
			name = stringOf(v)
		}
	}
	_, email, hasEmail := field(row, emailFields...)
	if name == "" && !hasEmail {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Eres ")
	switch {
	case name != "" && hasEmail:
		fmt.Fprintf(&b, "%s (%s)", name, stringOf(email))
	case name != "":
		b.WriteString(name)
	default:
		b.WriteString(stringOf(email))
	}
	if _, role, ok := field(row, "role_label", "role", "rol"); ok {
		label := stringOf(role)
		if l, ok := roleLabels[label]; ok {
			label = l
		}
		if label != "" {
			fmt.Fprintf(&b, ", con rol %s", label)
		}
	}
	b.WriteString(".")
	return b.String(), true
}

func preview(rows []map[string]any, target registry.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d %s en %s:", len(rows), plural(len(rows)), target.Name())
	for i, row := range rows {
		if i == previewRows {
			fmt.Fprintf(&b, "\n... y %d más.", len(rows)-previewRows)
			break
		}
		_, title, _ := field(row, titleFields...)
		fmt.Fprintf(&b, "\n%d. %s", i+1, stringOf(title))
		if _, status, ok := field(row, statusFields...); ok && stringOf(status) != "" {
			fmt.Fprintf(&b, " [%s]", stringOf(status))
		}
		if key, date, ok := dateField(row); ok {
			fmt.Fprintf(&b, " (%s: %s)", key, date)
		}
	}
	return b.String()
}

func fallback(rows []map[string]any, target registry.Target) string {
	shown := rows
	if len(shown) > previewRows {
		shown = shown[:previewRows]
	}
	data, err := json.Marshal(shown)
	if err != nil {
		return fmt.Sprintf("Encontré %d %s en %s.", len(rows), plural(len(rows)), target.Name())
	}
	return fmt.Sprintf("Encontré %d %s en %s: %s", len(rows), plural(len(rows)), target.Name(), data)
}

func plural(n int) string {
	if n == 1 {
		return "resultado"
	}
	return "resultados"
}

// field returns the first of names present in row with a non-nil value, matched case-insensitively.
func field(row map[string]any, names ...string) (string, any, bool) {
	for _, name := range names {
		if v, ok := row[name]; ok && v != nil {
			return name, v, true
		}
	}
	keys := sortedKeys(row)
	for _, name := range names {
		for _, k := range keys {
			if strings.EqualFold(k, name) && row[k] != nil {
				return k, row[k], true
			}
		}
	}
	return "", nil, false
}

// dateField picks the first date-like column in key order and renders it as a calendar date.
func dateField(row map[string]any) (string, string, bool) {
	for _, k := range sortedKeys(row) {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "date") && !strings.Contains(lk, "fecha") {
			continue
		}
		switch v := row[k].(type) {
		case time.Time:
			return k, v.Format(time.DateOnly), true
		case string:
			if v == "" {
				continue
			}
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return k, ts.Format(time.DateOnly), true
			}
			return k, v, true
		}
	}
	return "", "", false
}

func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.DateOnly)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
