package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
)

const msgBadNonce = "Security check failed. Please refresh the page and try again."

// NonceHandler issues nonces to signed-in pages and checks them on the way
// back in. The other handlers embed a *NonceHandler for the check.
type NonceHandler struct {
	nonces *auth.NonceService
	logger *slog.Logger
}

func NewNonceHandler(nonces *auth.NonceService, logger *slog.Logger) *NonceHandler {
	return &NonceHandler{nonces: nonces, logger: logger}
}

// HandleCreate returns a nonce for the requested action.
//
// HTTP: GET /api/nonce?action=app_event_action
func (h *NonceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, h.logger, r, apperror.Unauthenticated("Authentication required."))
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if action == "" {
		action = auth.ActionAppNonce
	}
	nonce, err := h.nonces.Create(action, userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"nonce": nonce, "action": action})
}

// verify reports whether token is valid for action and the current viewer.
// Failures are logged with whatever ids the caller passes in attrs.
func (h *NonceHandler) verify(r *http.Request, token, action string, attrs ...any) bool {
	return h.verifyFor(r, token, action, viewerID(r), attrs...)
}

// verifyFor checks a nonce bound to an explicit user. Guest RSVP nonces are
// bound to user 0 whoever is signed in.
func (h *NonceHandler) verifyFor(r *http.Request, token, action string, userID int64, attrs ...any) bool {
	if h.nonces.Verify(token, action, userID) {
		return true
	}
	h.logger.Warn("nonce verification failed",
		append([]any{
			slog.String("action", action),
			slog.String("path", r.URL.Path),
			slog.Int64("viewerID", userID),
		}, attrs...)...,
	)
	return false
}

// fresh issues a replacement nonce for responses. An empty string means the
// nonce could not be issued; the response still succeeds.
func (h *NonceHandler) fresh(action string, userID int64) string {
	nonce, err := h.nonces.Create(action, userID)
	if err != nil {
		h.logger.Error("issuing nonce", slog.String("action", action), slog.String("error", err.Error()))
		return ""
	}
	return nonce
}

// nonceFrom finds the nonce in the query string or the X-Nonce header.
// JSON bodies carry their own nonce field.
func nonceFrom(r *http.Request) string {
	if n := r.URL.Query().Get("nonce"); n != "" {
		return n
	}
	return r.Header.Get("X-Nonce")
}
