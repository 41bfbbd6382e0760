package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/service"
)

// AuthHandler manages email/password sign-up, sign-in and the session
// cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account, set the session cookie
//   - HandleLogin    → check credentials, set the session cookie
//   - HandleLogout   → clear the session cookie
//   - HandleMe       → return the signed-in user's profile
//
// The JWT lives in an HttpOnly cookie so page scripts never see it. API
// clients may send the same token as a Bearer header instead.
type AuthHandler struct {
	auth   *service.AuthService
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, tokens *auth.TokenService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"email", "display_name", "username", "password"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	result, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.setSession(w, result.Token)
	writeData(w, http.StatusCreated, map[string]any{"user": result.User, "token": result.Token})
}

// HandleLogin signs a user in.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	result, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.setSession(w, result.Token)
	writeData(w, http.StatusOK, map[string]any{"user": result.User, "token": result.Token})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logging out only deletes the cookie. The
// token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Signed out.", nil)
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, h.logger, r, apperror.Unauthenticated("Authentication required."))
		return
	}
	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
