package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gateProbe(g *Gate, headers ...string) int {
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestGate_OpenWithoutPassword(t *testing.T) {
	g := NewGate("", time.Hour)

	require.False(t, g.Required())
	require.True(t, g.Authorize(""))
	require.True(t, g.Authorize("anything"))
	require.Equal(t, http.StatusNoContent, gateProbe(g))
}

func TestGate_PasswordHeader(t *testing.T) {
	g := NewGate("hunter2", time.Hour)

	require.True(t, g.Required())
	require.Equal(t, http.StatusNoContent, gateProbe(g, "X-App-Password", "hunter2"))
	require.Equal(t, http.StatusUnauthorized, gateProbe(g, "X-App-Password", "wrong"))
	require.Equal(t, http.StatusUnauthorized, gateProbe(g))
}

func TestGate_UnauthorizedBody(t *testing.T) {
	g := NewGate("hunter2", time.Hour)
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"Unauthorized. Password required."}`, w.Body.String())
}

func TestGate_BearerToken(t *testing.T) {
	g := NewGate("hunter2", time.Hour)

	token, err := g.IssueToken()
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, gateProbe(g, "Authorization", "Bearer "+token))
	require.Equal(t, http.StatusNoContent, gateProbe(g, "Authorization", "bearer "+token))
	require.Equal(t, http.StatusUnauthorized, gateProbe(g, "Authorization", "Bearer garbage"))
	require.Equal(t, http.StatusUnauthorized, gateProbe(g, "Authorization", token))
}

func TestGate_ExpiredToken(t *testing.T) {
	g := NewGate("hunter2", -time.Minute)

	token, err := g.IssueToken()
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, gateProbe(g, "Authorization", "Bearer "+token))
}

func TestGate_PasswordRotationInvalidatesTokens(t *testing.T) {
	old := NewGate("hunter2", time.Hour)
	token, err := old.IssueToken()
	require.NoError(t, err)

	rotated := NewGate("correct-horse", time.Hour)
	require.Equal(t, http.StatusUnauthorized, gateProbe(rotated, "Authorization", "Bearer "+token))
}
