package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	surfaceHTTP = "http"
	surfaceMCP  = "mcp"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querybroker_build_info",
			Help: "Build information of the query broker",
		},
		[]string{"version", "commit", "date"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_api_requests_total",
			Help: "Total number of API requests by surface, route and status code",
		},
		[]string{"surface", "method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybroker_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"surface", "route"},
	)

	RequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querybroker_api_requests_in_flight",
			Help: "Number of API requests currently being processed",
		},
		[]string{"surface"},
	)

	// AnswersTotal counts answered questions per target. outcome is "success" or the error kind.
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_api_answers_total",
			Help: "Total number of questions answered through the API by surface, target and outcome",
		},
		[]string{"surface", "target", "outcome"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_mcp_tool_calls_total",
			Help: "Total number of MCP tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	AdminAuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_admin_auth_failures_total",
			Help: "Total number of rejected admin requests",
		},
		[]string{"reason"},
	)
)

// outcomeOf labels a broker result: "success", the error's kind, or "timeout"/"error".
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if kind := query.KindOf(err); kind != "" {
		return string(kind)
	}
	if isTimeout(err) {
		return "timeout"
	}
	return "error"
}

func recordAnswer(surface, target string, err error) {
	if target == "" {
		target = "unresolved"
	}
	AnswersTotal.WithLabelValues(surface, target, outcomeOf(err)).Inc()
}

// instrument records request metrics. Probe routes are not recorded, and MCP traffic is labelled
// separately from the JSON API.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		surface := surfaceHTTP
		if r.URL.Path == "/mcp" {
			surface = surfaceMCP
		}

		start := time.Now()
		inFlight := RequestsInFlight.WithLabelValues(surface)
		inFlight.Inc()
		defer inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		RequestsTotal.WithLabelValues(surface, r.Method, route, strconv.Itoa(ww.Status())).Inc()
		RequestDuration.WithLabelValues(surface, route).Observe(time.Since(start).Seconds())
	})
}
