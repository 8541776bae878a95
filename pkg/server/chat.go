package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/relayne/crmagent/agent/contract"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat is the synchronous path: unlike the webhook, auth and input
// failures are reported to the caller directly, and the reply is returned
// inline. The request goroutine carries the agent run; nothing else blocks
// on it.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.bearerKey != "" && !s.bearerAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	if !s.limiter.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := s.responder.Respond(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, contractx.ErrEmptyMessage) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
			return
		}
		// Generic body only: no internals, no credential material.
		log.Error().Err(err).Msg("chat request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, SessionID: sessionID})
}

func (s *Server) bearerAuthorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.bearerKey)) == 1
}
