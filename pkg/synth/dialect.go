package synth

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/malbeclabs/querybroker/pkg/registry"
)

// dialect renders identifiers, placeholders and row limits for one SQL flavor.
type dialect struct {
	kind registry.Kind
}

func (d dialect) quote(name string) string {
	switch d.kind {
	case registry.KindMySQL, registry.KindClickHouse:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case registry.KindMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return pq.QuoteIdentifier(name)
}

func (d dialect) column(table, column string) string {
	return d.quote(table) + "." + d.quote(column)
}

// lowerText lowercases col for comparison. Postgres and clickhouse need an explicit cast so enum
// columns are accepted.
func (d dialect) lowerText(col string) string {
	switch d.kind {
	case registry.KindPostgres:
		return "LOWER(CAST(" + col + " AS TEXT))"
	case registry.KindClickHouse:
		return "lower(toString(" + col + "))"
	}
	return "LOWER(" + col + ")"
}

func (d dialect) placeholder(n int) string {
	switch d.kind {
	case registry.KindMySQL, registry.KindClickHouse:
		return "?"
	case registry.KindMSSQL:
		return fmt.Sprintf("@p%d", n)
	}
	return fmt.Sprintf("$%d", n)
}

// selectPrefix returns "SELECT " or "SELECT TOP n " depending on how the dialect limits rows.
func (d dialect) selectPrefix(limit int) string {
	if d.kind == registry.KindMSSQL {
		return fmt.Sprintf("SELECT TOP %d ", limit)
	}
	return "SELECT "
}

func (d dialect) limitSuffix(limit int) string {
	if d.kind == registry.KindMSSQL {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func (d dialect) orderDescNullsLast(col string) string {
	switch d.kind {
	case registry.KindPostgres, registry.KindClickHouse:
		return col + " DESC NULLS LAST"
	}
	// NULL sorts lowest here, so DESC already puts it last.
	return col + " DESC"
}

// binder collects bound arguments in placeholder order.
type binder struct {
	d    dialect
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}
