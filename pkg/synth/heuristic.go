package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/malbeclabs/querybroker/pkg/guard"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

var (
	identityColumns  = []string{"username", "email", "first_name", "last_name", "family_role_id"}
	taskColumns      = []string{"title", "status", "due_date", "user_id"}
	roleFKColumns    = []string{"family_role_id", "role_id"}
	roleLabelColumns = []string{"name", "label", "role_name", "nombre", "title", "description"}
	dueFields        = []string{"due_date", "dueDate", "fecha_limite", "fecha_vencimiento"}

	pendingStatuses   = []string{"pending", "pendiente"}
	completedStatuses = []string{"completed", "completada", "done"}

	collectionAliases = [][2]string{
		{"tarea", "tasks"},
		{"tareas", "tasks"},
		{"usuario", "users"},
		{"usuarios", "users"},
		{"miembros", "users"},
		{"gastos", "expenses"},
		{"notificaciones", "notifications"},
	}
)

func score(t schema.Table, cols []string) int {
	n := 0
	for _, c := range cols {
		if t.HasColumn(c) {
			n++
		}
	}
	return n
}

func avoidedForIdentity(t schema.Table) bool {
	name := strings.ToLower(t.Name)
	return strings.Contains(name, "preferences") || strings.Contains(name, "session")
}

// pickUsersTable returns the table that looks most like a users table and its score. Ties keep the
// first table, unless it is a preferences or session table and a later one is not.
func pickUsersTable(snap schema.Snapshot) (schema.Table, int) {
	best, bestScore := -1, -1
	for i, t := range snap.Tables {
		sc := score(t, identityColumns)
		switch {
		case sc > bestScore:
			best, bestScore = i, sc
		case sc == bestScore && avoidedForIdentity(snap.Tables[best]) && !avoidedForIdentity(t):
			best = i
		}
	}
	if best < 0 {
		return schema.Table{}, 0
	}
	if bestScore == 0 {
		for _, t := range snap.Tables {
			if strings.Contains(strings.ToLower(t.Name), "user") && !avoidedForIdentity(t) {
				return t, 0
			}
		}
	}
	return snap.Tables[best], bestScore
}

func taskNamePriority(t schema.Table) int {
	name := strings.ToLower(t.Name)
	switch {
	case name == "tasks":
		return 2
	case strings.Contains(name, "tasks"):
		return 1
	}
	return 0
}

// pickTaskTable returns the table that looks most like a task list. Ties prefer a table named
// "tasks", then one whose name contains "tasks", then the first.
func pickTaskTable(snap schema.Snapshot) schema.Table {
	best, bestScore := 0, -1
	for i, t := range snap.Tables {
		sc := score(t, taskColumns)
		if sc > bestScore || (sc == bestScore && taskNamePriority(t) > taskNamePriority(snap.Tables[best])) {
			best, bestScore = i, sc
		}
	}
	return snap.Tables[best]
}

// findAssignmentTable returns a many-to-many table linking tasks to users.
func findAssignmentTable(snap schema.Snapshot, exclude string) (schema.Table, bool) {
	for _, t := range snap.Tables {
		if t.Name == exclude {
			continue
		}
		if strings.Contains(strings.ToLower(t.Name), "assign") && t.HasColumn("task_id") && t.HasColumn("user_id") {
			return t, true
		}
	}
	return schema.Table{}, false
}

// findRolesTable returns a lookup table for role labels and the label column.
func findRolesTable(snap schema.Snapshot, exclude string) (schema.Table, schema.Column, bool) {
	for _, t := range snap.Tables {
		if t.Name == exclude || !strings.Contains(strings.ToLower(t.Name), "role") || !t.HasColumn("id") {
			continue
		}
		for _, name := range roleLabelColumns {
			if c, ok := t.Column(name); ok {
				return t, c, true
			}
		}
	}
	return schema.Table{}, schema.Column{}, false
}

func firstColumn(t schema.Table, names ...string) (schema.Column, bool) {
	for _, n := range names {
		if c, ok := t.Column(n); ok {
			return c, true
		}
	}
	return schema.Column{}, false
}

// recencyColumn returns a timestamp-like column whose name the read-only guard accepts.
func recencyColumn(t schema.Table) (schema.Column, bool) {
	for _, c := range t.Columns {
		typ := strings.ToLower(c.DataType)
		if !strings.Contains(typ, "timestamp") && !strings.Contains(typ, "date") && !strings.Contains(typ, "time") {
			continue
		}
		if guard.ContainsBannedKeyword(c.Name) {
			continue
		}
		return c, true
	}
	return schema.Column{}, false
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ",")
}

func (s *Synthesizer) dayStart(offset int) time.Time {
	now := s.cfg.Clock.Now().In(s.cfg.Location)
	y, m, d := now.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, s.cfg.Location)
}

func (s *Synthesizer) weekStart() time.Time {
	now := s.cfg.Clock.Now().In(s.cfg.Location)
	sinceMonday := (int(now.Weekday()) + 6) % 7
	return s.dayStart(-sinceMonday)
}

func (s *Synthesizer) identityCandidate(d dialect, snap schema.Snapshot, caller query.Caller) query.Candidate {
	users, _ := pickUsersTable(snap)
	u := d.quote(users.Name)
	idCol, hasID := firstColumn(users, "id", "user_id")

	if caller.HasID() && hasID {
		b := &binder{d: d}
		sel := u + ".*"
		from := u
		notes := "heuristic: identity lookup by id on " + users.Name

		roleFK, hasFK := firstColumn(users, roleFKColumns...)
		roles, label, hasRoles := findRolesTable(snap, users.Name)
		switch {
		case hasFK && hasRoles:
			sel += fmt.Sprintf(", %s AS %s", d.column(roles.Name, label.Name), d.quote("role_label"))
			from += fmt.Sprintf(" LEFT JOIN %s ON %s = %s", d.quote(roles.Name), d.column(roles.Name, "id"), d.column(users.Name, roleFK.Name))
			notes += " with role label from " + roles.Name
		case hasFK:
			sel += fmt.Sprintf(", CASE WHEN %s = 1 THEN '%s' ELSE '%s' END AS %s",
				d.column(users.Name, roleFK.Name), query.RoleHeadOfHousehold, query.RoleFamilyMember, d.quote("role_label"))
			notes += " with role label derived from " + roleFK.Name
		}

		sql := d.selectPrefix(1) + sel + " FROM " + from +
			" WHERE " + d.column(users.Name, idCol.Name) + " = " + b.bind(caller.UserID) +
			d.limitSuffix(1) + ";"
		return query.Candidate{SQL: sql, Args: b.args, Notes: notes}
	}

	sql := d.selectPrefix(identityRowLimit) + "* FROM " + u
	notes := "heuristic: identity listing on " + users.Name
	if c, ok := recencyColumn(users); ok {
		sql += " ORDER BY " + d.column(users.Name, c.Name) + " DESC"
		notes += " by most recent " + c.Name
	} else if hasID {
		sql += " ORDER BY " + d.column(users.Name, idCol.Name)
		notes += " by " + idCol.Name
	}
	sql += d.limitSuffix(identityRowLimit) + ";"
	return query.Candidate{SQL: sql, Notes: notes}
}

func (s *Synthesizer) taskCandidate(ctx context.Context, d dialect, text query.Text, snap schema.Snapshot, caller query.Caller) query.Candidate {
	tbl := pickTaskTable(snap)
	b := &binder{d: d}

	var where, notes []string

	due, hasDue := tbl.Column("due_date")
	dueCol := d.column(tbl.Name, due.Name)
	addWindow := func(label string, from, to time.Time) {
		if !hasDue {
			notes = append(notes, label+" ignored without due_date")
			return
		}
		where = append(where, fmt.Sprintf("(%s >= %s AND %s < %s)", dueCol, b.bind(from), dueCol, b.bind(to)))
		notes = append(notes, "due "+label)
	}
	if text.MentionsToday() {
		addWindow("today", s.dayStart(0), s.dayStart(1))
	}
	if text.MentionsTomorrow() {
		addWindow("tomorrow", s.dayStart(1), s.dayStart(2))
	}
	if text.MentionsWeek() {
		start := s.weekStart()
		addWindow("this week", start, start.AddDate(0, 0, 7))
	}

	pending, completed := text.WantsPending(), text.WantsCompleted()
	if status, ok := tbl.Column("status"); ok && pending != completed {
		values, label := pendingStatuses, "pending"
		if completed {
			values, label = completedStatuses, "completed"
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", d.lowerText(d.column(tbl.Name, status.Name)), quotedList(values)))
		notes = append(notes, "status "+label)
	}

	if caller.Role != query.RoleHeadOfHousehold && text.IsPossessive() {
		branches := s.ownershipBranches(ctx, d, b, snap, tbl, caller)
		if len(branches) > 0 {
			where = append(where, "("+strings.Join(branches, " OR ")+")")
			notes = append(notes, "scoped to caller")
		} else {
			notes = append(notes, "caller scoping unavailable")
		}
	}

	var sql strings.Builder
	sql.WriteString(d.selectPrefix(taskRowLimit))
	sql.WriteString("* FROM ")
	sql.WriteString(d.quote(tbl.Name))
	if len(where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(where, " AND "))
	}
	if hasDue {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(d.orderDescNullsLast(dueCol))
	}
	sql.WriteString(d.limitSuffix(taskRowLimit))
	sql.WriteString(";")

	note := "heuristic: task listing on " + tbl.Name
	if len(notes) > 0 {
		note += " (" + strings.Join(notes, ", ") + ")"
	}
	return query.Candidate{SQL: sql.String(), Args: b.args, Notes: note}
}

// ownershipBranches returns the OR branches that restrict tbl to rows owned by or assigned to the
// caller. Placeholders are bound in the order the branches appear in the final SQL.
func (s *Synthesizer) ownershipBranches(ctx context.Context, d dialect, b *binder, snap schema.Snapshot, tbl schema.Table, caller query.Caller) []string {
	assign, hasAssign := findAssignmentTable(snap, tbl.Name)
	taskID, hasTaskID := tbl.Column("id")
	ownerCol, hasOwner := tbl.Column("user_id")

	byID := func(id int64) []string {
		var out []string
		if hasOwner {
			out = append(out, fmt.Sprintf("%s = %s", d.column(tbl.Name, ownerCol.Name), b.bind(id)))
		}
		if hasAssign && hasTaskID {
			out = append(out, fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s AND %s = %s)",
				d.quote(assign.Name), d.column(assign.Name, "task_id"), d.column(tbl.Name, taskID.Name),
				d.column(assign.Name, "user_id"), b.bind(id)))
		}
		return out
	}

	if caller.HasID() {
		return byID(caller.UserID)
	}

	var out []string
	users, usersScore := pickUsersTable(snap)
	usersID, usersHasID := users.Column("id")
	if usersScore > 0 && usersHasID && users.Name != tbl.Name {
		// match binds the caller's lowercased username and email against the users table.
		match := func() string {
			var conds []string
			if c, ok := users.Column("username"); ok && caller.UserName != "" {
				conds = append(conds, fmt.Sprintf("LOWER(%s) = %s", d.column(users.Name, c.Name), b.bind(strings.ToLower(caller.UserName))))
			}
			if c, ok := users.Column("email"); ok && caller.Email != "" {
				conds = append(conds, fmt.Sprintf("LOWER(%s) = %s", d.column(users.Name, c.Name), b.bind(strings.ToLower(caller.Email))))
			}
			if len(conds) == 0 {
				return ""
			}
			return "(" + strings.Join(conds, " OR ") + ")"
		}
		canMatch := (caller.UserName != "" && users.HasColumn("username")) || (caller.Email != "" && users.HasColumn("email"))

		if canMatch && hasOwner {
			out = append(out, fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
				d.column(tbl.Name, ownerCol.Name), d.column(users.Name, usersID.Name), d.quote(users.Name), match()))
		}
		if canMatch && hasAssign && hasTaskID {
			out = append(out, fmt.Sprintf("EXISTS (SELECT 1 FROM %s JOIN %s ON %s = %s WHERE %s = %s AND %s)",
				d.quote(assign.Name), d.quote(users.Name), d.column(users.Name, usersID.Name), d.column(assign.Name, "user_id"),
				d.column(assign.Name, "task_id"), d.column(tbl.Name, taskID.Name), match()))
		}
	}

	if id, ok := s.resolveUserID(ctx, caller); ok {
		out = append(out, byID(id)...)
	}
	return out
}

// resolveUserID asks the identity service for the caller's id by username and by email in
// parallel. Username matches win. Lookup errors are logged and treated as not found.
func (s *Synthesizer) resolveUserID(ctx context.Context, caller query.Caller) (int64, bool) {
	if s.cfg.Users == nil || (caller.UserName == "" && caller.Email == "") {
		return 0, false
	}

	lookup := func(field, value string, fn func(context.Context, string) (int64, bool, error)) func() (int64, error) {
		return func() (int64, error) {
			if value == "" {
				return 0, nil
			}
			id, ok, err := fn(ctx, value)
			if err != nil {
				s.log.Warn("synth: identity lookup failed", "field", field, "error", err)
				return 0, nil
			}
			if !ok {
				return 0, nil
			}
			return id, nil
		}
	}

	group := s.lookupPool.NewGroupContext(ctx)
	group.SubmitErr(
		lookup("username", caller.UserName, s.cfg.Users.UserIDByUsername),
		lookup("email", caller.Email, s.cfg.Users.UserIDByEmail),
	)
	ids, err := group.Wait()
	if err != nil {
		s.log.Warn("synth: identity lookups aborted", "error", err)
		return 0, false
	}
	for _, id := range ids {
		if id > 0 {
			return id, true
		}
	}
	return 0, false
}

func pickCollection(text query.Text, colls []schema.Collection) schema.Collection {
	for _, c := range colls {
		name := strings.ToLower(c.Name)
		if text.Contains(name) {
			return c
		}
		if len(name) > 3 && strings.HasSuffix(name, "s") && text.Has(strings.TrimSuffix(name, "s")) {
			return c
		}
	}
	for _, pair := range collectionAliases {
		if !text.Has(pair[0]) {
			continue
		}
		for _, c := range colls {
			if strings.EqualFold(c.Name, pair[1]) {
				return c
			}
		}
	}
	return colls[0]
}

func dueField(c schema.Collection) (string, bool) {
	for _, f := range dueFields {
		if c.HasField(f) {
			for _, doc := range c.Samples {
				if v, ok := doc[f]; ok {
					_, isString := v.(string)
					return f, isString
				}
			}
		}
	}
	return dueFields[0], false
}

func (s *Synthesizer) documentCandidate(text query.Text, snap schema.Snapshot) (query.Candidate, error) {
	if len(snap.Collections) == 0 {
		return query.Candidate{}, query.NewError(query.KindSynthesis, "the target has no collections to query")
	}

	coll := pickCollection(text, snap.Collections)
	op := &query.DocumentOp{Collection: coll.Name}
	notes := "heuristic: document find on " + coll.Name

	if text.MentionsToday() {
		field, isString := dueField(coll)
		var from, to any = s.dayStart(0), s.dayStart(1)
		if isString {
			from, to = s.dayStart(0).Format(time.DateOnly), s.dayStart(1).Format(time.DateOnly)
		}
		op.Filter = map[string]any{field: map[string]any{"$gte": from, "$lt": to}}
		notes += " (" + field + " today)"
	}

	return query.Candidate{Mongo: op, Notes: notes}, nil
}
