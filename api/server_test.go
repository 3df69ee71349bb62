package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/malbeclabs/querybroker/api"
	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeBroker struct {
	mu   sync.Mutex
	reqs []broker.Request
	ids  []string
	resp *broker.Response
	err  error
}

func (b *fakeBroker) Ask(ctx context.Context, req broker.Request) (*broker.Response, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.ids = append(b.ids, broker.RequestID(ctx))
	resp, err := b.resp, b.err
	b.mu.Unlock()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return resp, err
}

func (b *fakeBroker) setResponse(resp *broker.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resp = resp
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newServer(t *testing.T, b *fakeBroker, mutate func(*api.Config)) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(registry.Config{
		Logger: testLogger(t),
		Targets: []registry.Target{
			{ID: "tasks", Kind: registry.KindPostgres, DisplayName: "Tareas", URI: "postgres://app:s3cret@db/household"},
		},
	})
	require.NoError(t, err)

	cfg := api.Config{
		Logger:   testLogger(t),
		Broker:   b,
		Registry: reg,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := api.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func post(t *testing.T, url string, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestAPI_Query_Success(t *testing.T) {
	t.Parallel()

	b := &fakeBroker{resp: &broker.Response{
		Success: true,
		Target:  "tasks",
		Query:   broker.QueryView{SQL: "SELECT * FROM tasks LIMIT 100;"},
		Result:  query.Result{Rows: []map[string]any{{"title": "lavar"}}, Meta: map[string]any{}},
		Summary: "Encontré 1 resultado en Tareas:\n1. lavar",
	}}
	ts, _ := newServer(t, b, nil)

	resp, body := post(t, ts.URL+"/api/query", `{"message":"mis tareas","userId":3,"userRole":"family_member"}`, map[string]string{"X-Request-ID": "abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "abc", resp.Header.Get("X-Request-ID"))
	require.Equal(t, true, body["success"])
	require.Equal(t, "SELECT * FROM tasks LIMIT 100;", body["query"].(map[string]any)["sql"])

	require.Len(t, b.reqs, 1)
	require.Equal(t, int64(3), b.reqs[0].UserID)
	require.Equal(t, "family_member", b.reqs[0].UserRole)
	require.Equal(t, "abc", b.ids[0])
}

func TestAPI_Query_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		production bool
		message    string
		wantStatus int
		wantMsg    string
		wantDetail bool
	}{
		{
			name:       "validation",
			message:    "hi",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request",
		},
		{
			name:       "target not found",
			err:        query.NewError(query.KindTargetNotFound, "no target could be resolved for this question"),
			wantStatus: http.StatusNotFound,
			wantMsg:    "no target could be resolved for this question",
		},
		{
			name:       "guard rejection",
			err:        query.NewError(query.KindGuardRejection, "the generated query is not read-only and was refused"),
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "the generated query is not read-only and was refused",
		},
		{
			name:       "execution in development",
			err:        query.WrapError(query.KindExecution, "failed to run the query on Tareas", errors.New("relation does not exist")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "processing failed",
			wantDetail: true,
		},
		{
			name:       "connection in production",
			err:        query.WrapError(query.KindConnection, "could not connect to Tareas", errors.New("dial tcp: refused")),
			production: true,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "processing failed",
		},
		{
			name:       "timeout",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "processing failed",
			wantDetail: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts, _ := newServer(t, &fakeBroker{err: tt.err}, func(cfg *api.Config) { cfg.Production = tt.production })

			msg := tt.message
			if msg == "" {
				msg = "mis tareas"
			}
			reqBody, err := json.Marshal(broker.Request{Message: msg})
			require.NoError(t, err)

			resp, body := post(t, ts.URL+"/api/query", string(reqBody), nil)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			require.Equal(t, false, body["success"])
			require.Equal(t, tt.wantMsg, body["message"])
			_, hasDetail := body["detail"]
			require.Equal(t, tt.wantDetail, hasDetail)
		})
	}
}

func TestAPI_Query_ValidationErrors(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, &fakeBroker{}, nil)

	resp, body := post(t, ts.URL+"/api/query", `{"message":"ok","limit":1000}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errs := body["errors"].([]any)
	require.Len(t, errs, 2)
	require.Equal(t, "message", errs[0].(map[string]any)["field"])
	require.Equal(t, "limit", errs[1].(map[string]any)["field"])

	resp, body = post(t, ts.URL+"/api/query", `{"message":`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid request body", body["message"])
}

func TestAPI_Connections(t *testing.T) {
	t.Parallel()
	ts, reg := newServer(t, &fakeBroker{}, func(cfg *api.Config) { cfg.AdminToken = "letmein" })

	resp, err := http.Get(ts.URL + "/api/connections")
	require.NoError(t, err)
	var list struct {
		Connections []registry.Target `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Connections, 1)
	require.NotContains(t, list.Connections[0].URI, "s3cret")

	newTarget := `{"id":"docs","type":"mongo","uri":"mongodb://h/household"}`

	resp, _ = post(t, ts.URL+"/api/connections", newTarget, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/connections", newTarget, map[string]string{"X-Admin-Token": "nope"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := post(t, ts.URL+"/api/connections", newTarget, map[string]string{"X-Admin-Token": "letmein"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, body["connections"], 2)
	target, ok := reg.Resolve("docs")
	require.True(t, ok)
	require.Equal(t, registry.KindMongoDB, target.Kind)

	resp, _ = post(t, ts.URL+"/api/connections", newTarget, map[string]string{"X-Admin-Token": "letmein"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = post(t, ts.URL+"/api/connections", `{"id":"x","type":"oracle"}`, map[string]string{"X-Admin-Token": "letmein"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Connections_AdminDisabledInProduction(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, &fakeBroker{}, func(cfg *api.Config) { cfg.Production = true })

	resp, _ := post(t, ts.URL+"/api/connections", `{"id":"docs","type":"mongo"}`, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t, &fakeBroker{}, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ts, _ = newServer(t, &fakeBroker{}, func(cfg *api.Config) { cfg.Pinger = fakePinger{err: errors.New("down")} })
	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts, _ = newServer(t, &fakeBroker{}, func(cfg *api.Config) { cfg.Pinger = fakePinger{} })
	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_MCP_Tools(t *testing.T) {
	t.Parallel()

	// The fake leaves rows and meta nil; the tool fills them before validating its output.
	b := &fakeBroker{resp: &broker.Response{Success: true, Target: "tasks", Summary: "No tienes tareas para hoy."}}
	ts, _ := newServer(t, b, nil)
	ctx := t.Context()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{"ask", "list_connections"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "list_connections", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, textOf(result), `"id":"tasks"`)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "ask", Arguments: map[string]any{"message": "¿qué tareas tengo hoy?"}})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, textOf(result), "No tienes tareas para hoy.")
	require.Contains(t, textOf(result), `"rows":[]`)

	b.setResponse(&broker.Response{
		Success: true,
		Target:  "tasks",
		Query:   broker.QueryView{SQL: "SELECT * FROM tasks LIMIT 100;"},
		Result:  query.Result{Rows: []map[string]any{{"title": "lavar"}}, Meta: map[string]any{"fields": []any{"title"}}},
		Summary: "Encontré 1 resultado en Tareas:\n1. lavar",
	})
	result, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "ask", Arguments: map[string]any{"message": "mis tareas"}})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, textOf(result), `"title":"lavar"`)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "ask", Arguments: map[string]any{"message": "no"}})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func textOf(result *mcp.CallToolResult) string {
	var buf bytes.Buffer
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			buf.WriteString(tc.Text)
		}
	}
	return buf.String()
}
