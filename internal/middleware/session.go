package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/model"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "ng_session"

// SessionVerifier validates a session token string.
type SessionVerifier interface {
	Verify(tokenString string) (*model.Session, error)
}

// RevocationChecker reports whether a session token id was revoked.
type RevocationChecker interface {
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger   *slog.Logger
	Sessions SessionVerifier
	Revoked  RevocationChecker
}

// Session returns a middleware that authenticates requests using the
// session cookie or an Authorization bearer token. Requests without a
// valid, unrevoked session are rejected with 403.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractSessionToken(r)
			if token == "" {
				logSessionFailure(cfg.Logger, r, "missing_token")
				writeSessionError(w)
				return
			}

			sess, err := cfg.Sessions.Verify(token)
			if err != nil {
				logSessionFailure(cfg.Logger, r, "invalid_token")
				writeSessionError(w)
				return
			}

			revoked, err := cfg.Revoked.IsSessionRevoked(r.Context(), sess.TokenID)
			if err != nil {
				cfg.Logger.Error("revocation check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeSessionError(w)
				return
			}
			if revoked {
				logSessionFailure(cfg.Logger, r, "revoked_token")
				writeSessionError(w)
				return
			}

			ctx := auth.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionToken pulls the session token from the cookie, falling
// back to a bearer Authorization header.
func extractSessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func logSessionFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("session authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

func writeSessionError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"authentication required"}}`))
}
