package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/middleware"
	"github.com/nodegate/nodegate/internal/model"
	"github.com/nodegate/nodegate/internal/repository"
)

const minPasswordLength = 8

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	users        UserStore
	keys         KeyLister
	sessions     *auth.Sessions
	revoker      SessionRevoker
	logger       *slog.Logger
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. secureCookie should be true
// in production so the session cookie is HTTPS-only.
func NewAuthHandler(users UserStore, keys KeyLister, sessions *auth.Sessions, revoker SessionRevoker, logger *slog.Logger, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		keys:         keys,
		sessions:     sessions,
		revoker:      revoker,
		logger:       logger,
		secureCookie: secureCookie,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// loginResponse echoes the session and the caller's keys with usage, so
// a returning client sees its credentials without a second round trip.
type loginResponse struct {
	Email string                  `json:"email"`
	Token string                  `json:"token"`
	Keys  []model.KeyWithRequests `json:"keys"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	if err := validateCredentials(email, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	salt, err := auth.GenerateSalt()
	if err != nil {
		h.internalError(w, r, "failed to generate salt", err)
		return
	}

	hash, err := auth.HashPassword(req.Password, salt)
	if err != nil {
		h.internalError(w, r, "failed to hash password", err)
		return
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Salt:         auth.EncodeSalt(salt),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			writeError(w, http.StatusConflict, "CONFLICT", "email already registered")
			return
		}
		h.internalError(w, r, "failed to create user", err)
		return
	}

	token, sess, err := h.sessions.Issue(user)
	if err != nil {
		h.internalError(w, r, "failed to issue session", err)
		return
	}

	h.logger.Info("user_registered",
		"user_id", user.ID,
		"email", user.Email,
	)

	h.setSessionCookie(w, token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{Email: user.Email, Token: token})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown email")
			return
		}
		h.internalError(w, r, "failed to look up user", err)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		h.internalError(w, r, "failed to verify password", err)
		return
	}
	if !ok {
		h.logger.Warn("login_rejected",
			"email", email,
			"reason", "password_mismatch",
		)
		writeError(w, http.StatusForbidden, "FORBIDDEN", "invalid credentials")
		return
	}

	token, sess, err := h.sessions.Issue(user)
	if err != nil {
		h.internalError(w, r, "failed to issue session", err)
		return
	}

	keys, err := h.keys.ListKeysWithRequests(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, "failed to list API keys", err)
		return
	}
	if keys == nil {
		keys = []model.KeyWithRequests{}
	}

	h.logger.Info("user_logged_in",
		"user_id", user.ID,
		"email", user.Email,
	)

	h.setSessionCookie(w, token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{Email: user.Email, Token: token, Keys: keys})
}

// Logout handles POST /logout. Requires an authenticated session; the
// token id is revoked until its natural expiry so the same token cannot
// be replayed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "authentication required")
		return
	}

	ttl := time.Until(sess.ExpiresAt)
	if err := h.revoker.RevokeSession(r.Context(), sess.TokenID, ttl); err != nil {
		h.internalError(w, r, "failed to revoke session", err)
		return
	}

	h.logger.Info("user_logged_out",
		"user_id", sess.UserID,
	)

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"path", r.URL.Path,
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
}

func validateCredentials(email, password string) error {
	if email == "" {
		return errors.New("email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errors.New("email is not valid")
	}
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
