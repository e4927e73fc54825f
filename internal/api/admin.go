package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mwrona/receiptor/internal/access"
	"github.com/mwrona/receiptor/internal/store"
)

// LimitRequest is the request body for PUT /admin/limits/{userID}.
type LimitRequest struct {
	Limit int `json:"limit"`
}

// LimitResponse reports a user's remaining-use counter.
type LimitResponse struct {
	UserID string `json:"user_id"`
	// Limit is store.Unlimited when no counter is on record.
	Limit int `json:"limit"`
}

// GrantRequest is the request body for PUT /admin/access/{userID}.
type GrantRequest struct {
	Days int `json:"days"`
}

// AccessResponse reports a user's gate status.
type AccessResponse struct {
	UserID          string     `json:"user_id"`
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason,omitempty"`
	WindowUnlimited bool       `json:"window_unlimited"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysLeft        int        `json:"days_left,omitempty"`
	Remaining       int        `json:"remaining"`
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit < store.Unlimited {
		s.sendError(w, http.StatusBadRequest, "limit must be -1 (unlimited) or non-negative")
		return
	}

	if err := s.store.SetLimit(r.Context(), userID, req.Limit); err != nil {
		s.logger.Error("setting limit failed", "user_id", userID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to set limit")
		return
	}
	s.sendJSON(w, http.StatusOK, LimitResponse{UserID: userID, Limit: req.Limit})
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := s.store.GetLimit(r.Context(), userID)
	s.sendJSON(w, http.StatusOK, LimitResponse{UserID: userID, Limit: limit})
}

func (s *Server) handleResetLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.store.ResetLimit(r.Context(), userID); err != nil {
		s.logger.Error("resetting limit failed", "user_id", userID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to reset limit")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleResetAllLimits(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetAllLimits(r.Context()); err != nil {
		s.logger.Error("resetting all limits failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to reset limits")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Days < 1 {
		s.sendError(w, http.StatusBadRequest, "days must be at least 1")
		return
	}

	expiry := time.Now().Add(time.Duration(req.Days) * 24 * time.Hour)
	if err := s.store.SetAccessExpiry(r.Context(), userID, expiry); err != nil {
		s.logger.Error("granting access failed", "user_id", userID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to grant access")
		return
	}
	s.sendJSON(w, http.StatusOK, AccessResponse{
		UserID:    userID,
		Allowed:   true,
		ExpiresAt: &expiry,
		DaysLeft:  req.Days,
		Remaining: s.store.GetLimit(r.Context(), userID),
	})
}

func (s *Server) handleAccessStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	gate := access.NewGate(s.store, s.store)
	res := gate.Check(r.Context(), userID)

	resp := AccessResponse{
		UserID:          userID,
		Allowed:         res.Allowed,
		Reason:          res.Reason,
		WindowUnlimited: res.WindowUnlimited,
		Remaining:       res.Remaining,
	}
	if !res.WindowUnlimited {
		resp.ExpiresAt = &res.ExpiresAt
		if res.Allowed {
			resp.DaysLeft = gate.DaysLeft(res.ExpiresAt)
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}
