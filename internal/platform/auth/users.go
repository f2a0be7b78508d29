package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidCredentials is returned when the username is unknown or the
// password does not match. Callers must not distinguish the two cases.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is a reviewer account.
type User struct {
	ID           string
	Username     string
	Name         string
	Roles        []string
	PasswordHash string // hex-encoded SHA-256
	CreatedAt    time.Time
}

// UserStore looks up reviewer accounts.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// HashPassword returns the hex-encoded SHA-256 digest of the password.
func HashPassword(password string) string {
	h := sha256.Sum256([]byte(password))
	return hex.EncodeToString(h[:])
}

// VerifyPassword checks a plaintext password against a stored hash in
// constant time.
func VerifyPassword(password, storedHash string) bool {
	computed := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
