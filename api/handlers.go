package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
)

type errorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Kind    query.Kind          `json:"kind,omitempty"`
	Errors  []broker.FieldError `json:"errors,omitempty"`
	Detail  string              `json:"detail,omitempty"`
}

type connectionsResponse struct {
	Connections []registry.Target `json:"connections"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("api: failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Internal failures only carry detail outside production.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := query.KindOf(err)
	resp := errorResponse{Success: false, Kind: kind, Message: query.MessageOf(err)}

	var status int
	switch kind {
	case query.KindValidation:
		status = http.StatusBadRequest
		var fe broker.FieldErrors
		if errors.As(err, &fe) {
			resp.Errors = fe
		}
	case query.KindTargetNotFound:
		status = http.StatusNotFound
	case query.KindGuardRejection, query.KindSynthesis:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
		}
		resp.Message = "processing failed"
		if !s.cfg.Production {
			resp.Detail = err.Error()
		}
		s.log.Error("api: request failed", "kind", kind, "request_id", broker.RequestID(r.Context()), "error", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("api: failed to write healthz response", "error", err)
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pinger != nil {
		if err := s.cfg.Pinger.Ping(r.Context()); err != nil {
			s.log.Debug("api: readyz ping failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("backend not ready\n")); err != nil {
				s.log.Error("api: failed to write readyz response", "error", err)
			}
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("api: failed to write readyz response", "error", err)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req broker.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "invalid request body",
			Kind:    query.KindValidation,
			Errors:  []broker.FieldError{{Field: "body", Message: err.Error()}},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.cfg.Broker.Ask(ctx, req)
	if err != nil {
		recordAnswer(surfaceHTTP, req.ConnectionID, err)
		s.writeError(w, r, err)
		return
	}
	recordAnswer(surfaceHTTP, resp.Target, nil)
	s.writeJSON(w, http.StatusOK, resp)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (s *Server) redactedTargets() []registry.Target {
	targets := s.cfg.Registry.List()
	for i := range targets {
		targets[i] = targets[i].Redacted()
	}
	return targets
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, connectionsResponse{Connections: s.redactedTargets()})
}

// authorizeAdmin checks the admin token. Without a configured token, writes are only allowed
// outside production.
func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		if s.cfg.Production {
			AdminAuthFailuresTotal.WithLabelValues("disabled").Inc()
			s.writeJSON(w, http.StatusForbidden, errorResponse{Message: "admin endpoints are disabled"})
			return false
		}
		return true
	}
	token := r.Header.Get(adminTokenHeader)
	if token == "" {
		AdminAuthFailuresTotal.WithLabelValues("missing_token").Inc()
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "missing admin token"})
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		AdminAuthFailuresTotal.WithLabelValues("invalid_token").Inc()
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid admin token"})
		return false
	}
	return true
}

func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}

	var t registry.Target
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&t); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "invalid request body",
			Kind:    query.KindValidation,
			Errors:  []broker.FieldError{{Field: "body", Message: err.Error()}},
		})
		return
	}

	if err := s.cfg.Registry.Add(t); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, registry.ErrDuplicateTarget) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, errorResponse{Message: err.Error(), Kind: query.KindValidation})
		return
	}

	s.log.Info("api: connection added", "target", t.ID, "uri", registry.Redact(t.URI))
	s.writeJSON(w, http.StatusCreated, connectionsResponse{Connections: s.redactedTargets()})
}
