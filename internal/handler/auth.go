// Package handler is the HTTP edge: it decodes requests, calls services, and
// writes JSON. No business rules live here.
package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/jsedeno/anitrack/internal/auth"
	"github.com/jsedeno/anitrack/internal/service"
)

// tokenCookieTTL matches the access token's own lifetime.
const tokenCookieTTL = 24 * time.Hour

// AuthHandler exposes registration, login, session, and profile endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
	// Avatar is the raw image, base64-encoded. Empty means "keep current".
	Avatar string `json:"avatar"`
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.issueTokenCookie(w, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin authenticates by email and password.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.issueTokenCookie(w, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLogout clears both the session marker and the JWT cookie. POST, not
// GET — it changes state.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me (protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, kept as a guard.
		http.Error(w, `{"error":"not_authenticated"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile changes the token holder's username, bio, and
// optionally their avatar.
//
// HTTP: PUT /api/auth/profile (protected)
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var avatar []byte
	if req.Avatar != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Avatar)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "avatar is not valid base64",
				Field:   "avatar",
			})
			return
		}
		avatar = decoded
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, req.Username, req.Bio, avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDeleteAccount removes the token holder's account and everything it
// owns.
//
// HTTP: DELETE /api/auth/account (protected)
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// issueTokenCookie mints a JWT for the user and sets it as an HttpOnly
// cookie. Secure stays off for local development.
func (h *AuthHandler) issueTokenCookie(w http.ResponseWriter, userID string) error {
	tokenStr, err := h.auth.Token(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    tokenStr,
		Path:     "/",
		MaxAge:   int(tokenCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
