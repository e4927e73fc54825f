package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mwrona/receiptor/internal/mailer"
	"github.com/mwrona/receiptor/internal/schema"
	"github.com/mwrona/receiptor/internal/wizard"
)

// TemplateInfo describes one selectable receipt template.
type TemplateInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Stages      int    `json:"stages"`
}

// SelectRequest is the request body for POST /wizard/{userID}/select.
type SelectRequest struct {
	Template string `json:"template"`
}

// SubmitRequest is the request body for the stage submit endpoints.
type SubmitRequest struct {
	Values map[string]string `json:"values"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the error response envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	ids := schema.IDs()
	out := make([]TemplateInfo, 0, len(ids))
	for _, id := range ids {
		sch, err := schema.Lookup(id)
		if err != nil {
			continue
		}
		stages := 2
		if sch.Deferred {
			stages = 3
		}
		out = append(out, TemplateInfo{ID: sch.ID, DisplayName: sch.DisplayName(), Stages: stages})
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Template == "" {
		s.sendError(w, http.StatusBadRequest, "template is required")
		return
	}

	step, err := s.wizard.SelectTemplate(r.Context(), userID, req.Template)
	if err != nil {
		s.sendWizardError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RunsStartedTotal.WithLabelValues(req.Template).Inc()
	}
	s.sendJSON(w, http.StatusOK, step)
}

func (s *Server) handleCurrentStage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	step, err := s.wizard.CurrentStage(r.Context(), userID)
	if err != nil {
		s.sendWizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, step)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	step, err := s.wizard.Submit(r.Context(), userID, req.Values)
	if err != nil {
		s.sendWizardError(w, err)
		return
	}

	if s.metrics != nil && step.Done && step.Summary != nil {
		s.metrics.RunsCompletedTotal.WithLabelValues(step.Summary.Template).Inc()
	}
	s.sendJSON(w, http.StatusOK, step)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.wizard.Abort(userID); err != nil {
		s.sendWizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleSettingsStart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	step, err := s.wizard.StartSettings(r.Context(), userID)
	if err != nil {
		s.sendWizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, step)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	profile := s.wizard.Profile(r.Context(), userID)
	if profile == nil {
		s.sendError(w, http.StatusNotFound, "no profile on record")
		return
	}
	s.sendJSON(w, http.StatusOK, profile)
}

// sendWizardError maps wizard errors to HTTP status codes.
func (s *Server) sendWizardError(w http.ResponseWriter, err error) {
	var (
		ve  *wizard.ValidationError
		ade *wizard.AccessDeniedError
		de  *wizard.DispatchError
		nfe *schema.NotFoundError
	)

	switch {
	case errors.As(err, &ve):
		if s.metrics != nil {
			s.metrics.RunsFailedTotal.WithLabelValues("validation").Inc()
		}
		s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Reason, Field: ve.Field})

	case errors.As(err, &nfe):
		s.sendError(w, http.StatusBadRequest, nfe.Error())

	case errors.As(err, &ade):
		if s.metrics != nil {
			s.metrics.RunsFailedTotal.WithLabelValues("denied").Inc()
		}
		s.sendError(w, http.StatusForbidden, ade.Reason)

	case errors.Is(err, wizard.ErrSessionNotFound):
		s.sendError(w, http.StatusConflict, wizard.ErrSessionNotFound.Error())

	case errors.As(err, &de):
		if s.metrics != nil {
			s.metrics.DispatchFailedTotal.Inc()
		}
		msg := "receipt delivery rejected"
		if mailer.IsTemporaryError(de.Err) {
			msg = "receipt delivery failed, try again later"
		}
		s.sendError(w, http.StatusBadGateway, msg)

	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "processing error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
