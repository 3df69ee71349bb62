package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

// Envelope is the JSON object the delegate must reply with.
type Envelope struct {
	Dialect string            `json:"dialect" jsonschema:"query language of the target: postgres, mysql, mssql, clickhouse or mongodb"`
	SQL     string            `json:"sql,omitempty" jsonschema:"a single read-only SELECT or WITH statement for relational targets"`
	Mongo   *query.DocumentOp `json:"mongo,omitempty" jsonschema:"a find filter or aggregate pipeline for document targets"`
	Notes   string            `json:"notes,omitempty" jsonschema:"short explanation of the query"`
}

const delegateSystemPrompt = `You translate questions about a household database into a single read-only query.
Never write data. Only SELECT or WITH statements for relational targets, and only find filters or
aggregate pipelines without $out or $merge for document targets.
Reply with one JSON object and nothing else. It must match this JSON schema:
%s`

var envelopeSchema = func() string {
	s, err := jsonschema.For[Envelope](nil)
	if err != nil {
		panic(fmt.Sprintf("failed to build envelope schema: %v", err))
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("failed to marshal envelope schema: %v", err))
	}
	return string(b)
}()

func (s *Synthesizer) delegate(ctx context.Context, message string, snap schema.Snapshot, target registry.Target) query.Candidate {
	schemaJSON, err := json.Marshal(snap)
	if err != nil {
		return query.Candidate{Notes: "delegate: failed to serialize schema"}
	}

	system := fmt.Sprintf(delegateSystemPrompt, envelopeSchema)
	user := fmt.Sprintf("Target dialect: %s\n\nSchema:\n%s\n\nQuestion: %s",
		target.Kind, truncate(string(schemaJSON), s.cfg.MaxSchemaBytes), message)

	reply, err := s.cfg.Delegate.Complete(ctx, system, user)
	if err != nil {
		s.log.Warn("synth: delegate completion failed", "target", target.ID, "error", err)
		return query.Candidate{Notes: "delegate: completion failed"}
	}

	env, ok := parseEnvelope(reply)
	if !ok {
		s.log.Warn("synth: delegate reply was not parseable", "target", target.ID, "reply_len", len(reply))
		return query.Candidate{Notes: "delegate: unparseable reply"}
	}

	c := query.Candidate{Notes: "delegate"}
	if env.Notes != "" {
		c.Notes += ": " + env.Notes
	}
	if target.Kind.IsRelational() {
		c.SQL = strings.TrimSpace(env.SQL)
	} else {
		c.Mongo = env.Mongo
	}
	return c
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

// parseEnvelope decodes the reply as JSON, falling back to the first balanced {...} block.
func parseEnvelope(reply string) (Envelope, bool) {
	reply = strings.TrimSpace(reply)

	var env Envelope
	if err := json.Unmarshal([]byte(reply), &env); err == nil {
		return env, true
	}

	block := firstObject(reply)
	if block == "" {
		return Envelope{}, false
	}
	env = Envelope{}
	if err := json.Unmarshal([]byte(block), &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

// firstObject returns the first balanced {...} block in s, skipping braces inside JSON strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
