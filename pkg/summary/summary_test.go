package summary

import (
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/stretchr/testify/require"
)

var target = registry.Target{ID: "default", Kind: registry.KindPostgres, DisplayName: "Casa"}

func TestSummary_Summarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		rows    []map[string]any
		want    string
	}{
		{
			name:    "no tasks today",
			message: "¿Qué tareas tengo hoy?",
			want:    "No tienes tareas para hoy.",
		},
		{
			name:    "no results",
			message: "lista de gastos",
			want:    "No encontré resultados.",
		},
		{
			name:    "count of tasks",
			message: "¿Cuántas tareas pendientes hay?",
			rows:    []map[string]any{{"count": int64(4)}},
			want:    "Hay 4 tareas.",
		},
		{
			name:    "count of one task",
			message: "¿Cuántas tareas tengo para mañana?",
			rows:    []map[string]any{{"cantidad": int64(1)}},
			want:    "Hay 1 tarea.",
		},
		{
			name:    "single total as string",
			message: "how many users",
			rows:    []map[string]any{{"total": "1"}},
			want:    "Hay 1 usuario.",
		},
		{
			name:    "identity with role label",
			message: "¿Quién soy?",
			rows: []map[string]any{{
				"id": int64(2), "first_name": "Ana", "last_name": "Pérez", "email": "ana@example.com",
				"role_label": "family_member",
			}},
			want: "Eres Ana Pérez (ana@example.com), con rol miembro de la familia.",
		},
		{
			name:    "identity by username only",
			message: "who am i",
			rows:    []map[string]any{{"username": "carlos"}},
			want:    "Eres carlos.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Summarize(tt.message, tt.rows, target))
		})
	}
}

func TestSummary_Preview(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	rows := []map[string]any{
		{"title": "Lavar platos", "status": "pending", "due_date": due},
		{"title": "Sacar basura", "status": "done", "due_date": "2025-03-13T08:00:00Z"},
		{"title": "Regar plantas", "status": nil},
	}
	got := Summarize("mis tareas", rows, target)
	require.Equal(t, strings.Join([]string{
		"Encontré 3 resultados en Casa:",
		"1. Lavar platos [pending] (due_date: 2025-03-12)",
		"2. Sacar basura [done] (due_date: 2025-03-13)",
		"3. Regar plantas",
	}, "\n"), got)
}

func TestSummary_PreviewTruncates(t *testing.T) {
	t.Parallel()

	var rows []map[string]any
	for i := range 8 {
		rows = append(rows, map[string]any{"Name": "item", "id": i})
	}
	got := Summarize("items", rows, target)
	require.True(t, strings.HasPrefix(got, "Encontré 8 resultados en Casa:"))
	require.Equal(t, 5, strings.Count(got, ". item"))
	require.True(t, strings.HasSuffix(got, "... y 3 más."))
}

func TestSummary_Fallback(t *testing.T) {
	t.Parallel()

	got := Summarize("amounts", []map[string]any{{"amount": 12.5}}, registry.Target{ID: "finance"})
	require.Equal(t, `Encontré 1 resultado en finance: [{"amount":12.5}]`, got)
}
