// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Gate is the shared-password access check. A bridge with no password
// configured is open, matching the origin behavior for trusted LANs.
//
// Clients either resend the password in X-App-Password on every request or
// exchange it once at the login endpoint for a short-lived bearer token.
type Gate struct {
	password  string
	jwtSecret []byte
	expiry    time.Duration
}

// NewGate creates the access gate. The token signing key is derived from the
// password so rotating the password invalidates outstanding tokens.
func NewGate(password string, expiry time.Duration) *Gate {
	secret := sha256.Sum256([]byte("chat-relay-token:" + password))
	return &Gate{
		password:  password,
		jwtSecret: secret[:],
		expiry:    expiry,
	}
}

// Required reports whether a password is configured at all.
func (g *Gate) Required() bool {
	return g.password != ""
}

// Authorize checks a presented password.
func (g *Gate) Authorize(credential string) bool {
	if !g.Required() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(g.password)) == 1
}

// IssueToken mints a bearer token for a client that just authorized.
func (g *Gate) IssueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "chat-relay",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.jwtSecret)
}

func (g *Gate) validToken(tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.jwtSecret, nil
	})
	return err == nil && token.Valid
}

// Middleware rejects unauthenticated requests. Status, login and health
// endpoints are mounted outside this middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Required() {
			next.ServeHTTP(w, r)
			return
		}

		if g.Authorize(r.Header.Get("X-App-Password")) {
			next.ServeHTTP(w, r)
			return
		}

		if auth := r.Header.Get("Authorization"); auth != "" {
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && g.validToken(parts[1]) {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized. Password required."}`))
	})
}
