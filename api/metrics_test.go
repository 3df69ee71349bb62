package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAPI_OutcomeOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", outcomeOf(nil))
	require.Equal(t, "guard_rejection", outcomeOf(query.NewError(query.KindGuardRejection, "refused")))
	require.Equal(t, "execution", outcomeOf(fmt.Errorf("wrapped: %w", query.WrapError(query.KindExecution, "failed", errors.New("boom")))))
	require.Equal(t, "timeout", outcomeOf(fmt.Errorf("ask: %w", context.DeadlineExceeded)))
	require.Equal(t, "error", outcomeOf(errors.New("boom")))
}

func TestAPI_Instrument_LabelsRoutePattern(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(instrument)
	r.Get("/instrumented/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/instrumented/1", "/instrumented/2", "/healthz"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(RequestsTotal.WithLabelValues(surfaceHTTP, http.MethodGet, "/instrumented/{id}", "418")))
	require.Equal(t, 0.0, testutil.ToFloat64(RequestsTotal.WithLabelValues(surfaceHTTP, http.MethodGet, "/healthz", "200")))
}

func TestAPI_RecordAnswer(t *testing.T) {
	t.Parallel()

	recordAnswer(surfaceMCP, "recorded-target", nil)
	recordAnswer(surfaceMCP, "recorded-target", query.NewError(query.KindSynthesis, "no tables"))
	recordAnswer(surfaceMCP, "", query.NewError(query.KindTargetNotFound, "none"))

	require.Equal(t, 1.0, testutil.ToFloat64(AnswersTotal.WithLabelValues(surfaceMCP, "recorded-target", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(AnswersTotal.WithLabelValues(surfaceMCP, "recorded-target", "synthesis")))
	require.GreaterOrEqual(t, testutil.ToFloat64(AnswersTotal.WithLabelValues(surfaceMCP, "unresolved", "target_not_found")), 1.0)
}
