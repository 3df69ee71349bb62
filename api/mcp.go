package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ListConnectionsInput struct{}

type ListConnectionsOutput struct {
	Connections []ConnectionInfo `json:"connections"`
}

type ConnectionInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

func (s *Server) registerTools() error {
	askIn, err := jsonschema.For[broker.Request](nil)
	if err != nil {
		return fmt.Errorf("failed to create ask input schema: %w", err)
	}
	listIn, err := jsonschema.For[ListConnectionsInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_connections input schema: %w", err)
	}
	listOut, err := jsonschema.For[ListConnectionsOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_connections output schema: %w", err)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ask",
		Description: `Answer a question about the household data (tasks, members, expenses) by generating and
running a read-only query. Questions may be in Spanish or English. Use list_connections to pick a
connectionId, or leave it empty to let the broker choose.`,
		InputSchema: askIn,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req broker.Request) (*mcp.CallToolResult, broker.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		resp, err := s.cfg.Broker.Ask(ctx, req)
		ToolCallsTotal.WithLabelValues("ask", outcomeOf(err)).Inc()
		if err != nil {
			recordAnswer(surfaceMCP, req.ConnectionID, err)
			return nil, broker.Response{}, toolError(err, s.cfg.Production)
		}
		recordAnswer(surfaceMCP, resp.Target, nil)
		return nil, structuredResponse(*resp), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:         "list_connections",
		Description:  "List the data stores the broker can query.",
		InputSchema:  listIn,
		OutputSchema: listOut,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ListConnectionsInput) (*mcp.CallToolResult, ListConnectionsOutput, error) {
		out := ListConnectionsOutput{Connections: []ConnectionInfo{}}
		for _, t := range s.cfg.Registry.List() {
			out.Connections = append(out.Connections, ConnectionInfo{ID: t.ID, Type: string(t.Kind), Name: t.Name()})
		}
		ToolCallsTotal.WithLabelValues("list_connections", outcomeOf(nil)).Inc()
		return nil, out, nil
	})

	return nil
}

// structuredResponse fills nil rows and meta so the output validates against the tool's schema.
func structuredResponse(resp broker.Response) broker.Response {
	if resp.Result.Rows == nil {
		resp.Result.Rows = []map[string]any{}
	}
	if resp.Result.Meta == nil {
		resp.Result.Meta = map[string]any{}
	}
	return resp
}

// toolError keeps caller-facing messages and hides internal detail in production.
func toolError(err error, production bool) error {
	switch query.KindOf(err) {
	case query.KindValidation, query.KindTargetNotFound, query.KindGuardRejection, query.KindSynthesis:
		return err
	}
	if production {
		return errors.New("processing failed")
	}
	return fmt.Errorf("processing failed: %w", err)
}
