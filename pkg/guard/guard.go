// Package guard decides whether a synthesized query is safe to run. The SQL check is an allow-list
// prefix followed by a keyword deny-list over the comment-stripped text; it is not a parser.
package guard

import (
	"strings"

	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
)

var bannedKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE"}

// Document stages that write their input somewhere.
var writeStages = []string{"$out", "$merge"}

func stripLineComments(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func normalize(sql string) string {
	return strings.TrimSpace(strings.ToUpper(stripLineComments(sql)))
}

// IsReadOnlySQL reports whether sql starts with SELECT or WITH and contains none of the banned
// keywords anywhere outside a line comment.
func IsReadOnlySQL(sql string) bool {
	s := normalize(sql)
	if !strings.HasPrefix(s, "SELECT") && !strings.HasPrefix(s, "WITH") {
		return false
	}
	return !ContainsBannedKeyword(s)
}

// ContainsBannedKeyword reports whether s contains any banned keyword as a case-insensitive
// substring.
func ContainsBannedKeyword(s string) bool {
	upper := strings.ToUpper(s)
	for _, kw := range bannedKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// IsReadOnlyDocumentOp accepts any filter or pipeline shape addressed to a collection. The
// executor only routes these shapes to find and aggregate.
func IsReadOnlyDocumentOp(op *query.DocumentOp) bool {
	return op != nil && strings.TrimSpace(op.Collection) != ""
}

// WriteStage returns the first pipeline stage operator that writes, if any.
func WriteStage(pipeline []map[string]any) (string, bool) {
	for _, stage := range pipeline {
		for _, op := range writeStages {
			if _, ok := stage[op]; ok {
				return op, true
			}
		}
	}
	return "", false
}

// Check validates a candidate for a target kind and returns a guard rejection error describing
// why it cannot run.
func Check(c query.Candidate, kind registry.Kind) error {
	if kind.IsRelational() {
		if c.SQL == "" {
			return query.NewError(query.KindGuardRejection, "no SQL query could be generated for this question")
		}
		if !IsReadOnlySQL(c.SQL) {
			return query.NewError(query.KindGuardRejection, "the generated query is not read-only and was refused")
		}
		return nil
	}

	if !IsReadOnlyDocumentOp(c.Mongo) {
		return query.NewError(query.KindGuardRejection, "no document query could be generated for this question")
	}
	if op, ok := WriteStage(c.Mongo.Pipeline); ok {
		return query.NewError(query.KindGuardRejection, "the generated pipeline writes with "+op+" and was refused")
	}
	return nil
}
