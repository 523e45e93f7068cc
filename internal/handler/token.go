package handler

import (
	"encoding/json"
	"net/http"

	"github.com/echoboard/echoboard/internal/token"
)

// TokenHandler handles verification token operations.
type TokenHandler struct {
	tokens *token.Store
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(tokens *token.Store) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// CreateTokenRequest is the request body for issuing a token. TargetParts
// identify what the token verifies, e.g. ["email", "user@example.com"].
type CreateTokenRequest struct {
	TargetParts []string `json:"targetParts"`
}

// VerifyTokenRequest is the request body for consuming a token.
type VerifyTokenRequest struct {
	Token       string   `json:"token"`
	TargetParts []string `json:"targetParts"`
}

// Create issues a single-use verification token.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.TargetParts) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "targetParts is required"})
		return
	}

	tok, err := h.tokens.Create(r.Context(), req.TargetParts...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":       tok.Token,
		"targetId":    tok.TargetID,
		"ttlEpochSec": tok.TTL,
	})
}

// Verify consumes a token and reports whether it was valid. The token is
// spent either way.
func (h *TokenHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Token == "" || len(req.TargetParts) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token and targetParts are required"})
		return
	}

	valid, err := h.tokens.Use(r.Context(), req.Token, req.TargetParts...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
