package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nodegate/nodegate/internal/model"
)

// Session token errors.
var (
	// ErrInvalidToken indicates the token is malformed, expired, or was
	// signed with a different secret.
	ErrInvalidToken = errors.New("invalid session token")
)

const tokenIssuer = "nodegate"

// Sessions issues and verifies signed session tokens.
// A token is an HS256 JWT carrying the user id (sub), email, and a unique
// token id (jti) so individual sessions can be revoked at logout. There is
// no server-side session table.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions creates a Sessions with the given signing secret and lifetime.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// Issue signs a new session token for the user.
// Returns the compact token string and the session it represents.
func (s *Sessions) Issue(user *model.User) (string, *model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		UserID:    user.ID,
		Email:     user.Email,
		TokenID:   uuid.New().String(),
		ExpiresAt: now.Add(s.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   tokenIssuer,
		"sub":   sess.UserID,
		"email": sess.Email,
		"jti":   sess.TokenID,
		"iat":   now.Unix(),
		"exp":   sess.ExpiresAt.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	return signed, sess, nil
}

// Verify parses and validates a session token string.
// Expiry and signature failures both return ErrInvalidToken; callers do not
// need to distinguish them.
func (s *Sessions) Verify(tokenString string) (*model.Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	jti, _ := claims["jti"].(string)
	if sub == "" || email == "" || jti == "" {
		return nil, ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &model.Session{
		UserID:    sub,
		Email:     email,
		TokenID:   jti,
		ExpiresAt: exp.Time,
	}, nil
}

// TTL returns the configured session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}
