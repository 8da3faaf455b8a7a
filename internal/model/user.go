// Package model defines domain entities for the application.
package model

import "time"

// User represents a registered account that can own API keys.
// PasswordHash is an argon2id digest in PHC string format; Salt is the
// hex-encoded random salt generated once at registration.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Salt         string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session holds the authenticated identity attached to a request.
// It is built from a verified session token by the session middleware.
type Session struct {
	UserID    string
	Email     string
	TokenID   string // jti claim, used for revocation
	ExpiresAt time.Time
}
