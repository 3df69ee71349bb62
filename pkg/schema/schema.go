package schema

import "strings"

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// HasColumn reports whether the table has a column with the given name, case-insensitively.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Collection is a document collection with a few sample documents standing in for a schema.
type Collection struct {
	Name    string           `json:"name"`
	Samples []map[string]any `json:"samples"`
}

// HasField reports whether any sample document has the given top-level field.
func (c Collection) HasField(name string) bool {
	for _, doc := range c.Samples {
		if _, ok := doc[name]; ok {
			return true
		}
	}
	return false
}

// Snapshot is the schema of one target at one point in time. Relational targets fill Tables,
// document targets fill Collections.
type Snapshot struct {
	Tables      []Table      `json:"tables,omitempty"`
	Collections []Collection `json:"collections,omitempty"`
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Tables) == 0 && len(s.Collections) == 0
}

func (s Snapshot) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// ColumnRow is one row of a catalog query.
type ColumnRow struct {
	Schema   string
	Table    string
	Column   string
	DataType string
}

// Fold groups catalog rows into tables, preserving the order in which tables and columns first
// appear. When the same table name exists in several schemas the first schema seen wins.
func Fold(rows []ColumnRow) Snapshot {
	var snap Snapshot
	index := make(map[string]int)
	owner := make(map[string]string)
	for _, r := range rows {
		i, ok := index[r.Table]
		if !ok {
			i = len(snap.Tables)
			index[r.Table] = i
			owner[r.Table] = r.Schema
			snap.Tables = append(snap.Tables, Table{Name: r.Table})
		} else if owner[r.Table] != r.Schema {
			continue
		}
		snap.Tables[i].Columns = append(snap.Tables[i].Columns, Column{Name: r.Column, DataType: r.DataType})
	}
	return snap
}
