package schema_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/malbeclabs/querybroker/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestSchema_Fold(t *testing.T) {
	t.Parallel()

	rows := []schema.ColumnRow{
		{Schema: "household", Table: "tasks", Column: "id", DataType: "integer"},
		{Schema: "household", Table: "tasks", Column: "title", DataType: "text"},
		{Schema: "household", Table: "users", Column: "id", DataType: "integer"},
		{Schema: "public", Table: "notes", Column: "body", DataType: "text"},
		{Schema: "users", Table: "users", Column: "id", DataType: "bigint"},
		{Schema: "users", Table: "users", Column: "email", DataType: "text"},
	}

	want := schema.Snapshot{
		Tables: []schema.Table{
			{Name: "tasks", Columns: []schema.Column{{Name: "id", DataType: "integer"}, {Name: "title", DataType: "text"}}},
			{Name: "users", Columns: []schema.Column{{Name: "id", DataType: "integer"}}},
			{Name: "notes", Columns: []schema.Column{{Name: "body", DataType: "text"}}},
		},
	}
	if diff := cmp.Diff(want, schema.Fold(rows)); diff != "" {
		t.Fatalf("unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestSchema_Lookups(t *testing.T) {
	t.Parallel()

	snap := schema.Snapshot{Tables: []schema.Table{
		{Name: "Tasks", Columns: []schema.Column{{Name: "Due_Date", DataType: "date"}}},
	}}
	tbl, ok := snap.Table("tasks")
	require.True(t, ok)
	require.True(t, tbl.HasColumn("due_date"))
	require.False(t, tbl.HasColumn("status"))
	require.False(t, snap.IsEmpty())
	require.True(t, schema.Snapshot{}.IsEmpty())

	coll := schema.Collection{Name: "tasks", Samples: []map[string]any{{"title": "x"}, {"due_date": "2026-01-01"}}}
	require.True(t, coll.HasField("due_date"))
	require.False(t, coll.HasField("status"))
}
