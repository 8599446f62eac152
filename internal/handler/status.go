package handler

import (
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/middleware"
	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/internal/store"
	"github.com/pocketllama/chat-relay/pkg/logger"
)

// StatusHandler serves the unauthenticated status, login and health
// endpoints.
type StatusHandler struct {
	provider backend.Provider
	gate     *middleware.Gate
	store    *store.Store
	port     string
	logger   *logger.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(provider backend.Provider, gate *middleware.Gate, st *store.Store, port string, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		provider: provider,
		gate:     gate,
		store:    st,
		port:     port,
		logger:   log,
	}
}

// Status handles GET /api/status. Always public so clients can render the
// connection banner and login prompt before authenticating.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	mode := h.provider.Mode()
	writeJSON(w, http.StatusOK, model.StatusResponse{
		Mode:         string(mode),
		Connected:    mode != backend.ModeNone,
		LanIP:        lanIP(),
		Port:         h.port,
		AuthRequired: h.gate.Required(),
	})
}

// Login handles POST /api/login: the password check. On success the client
// receives a bearer token so it does not have to hold the password in memory.
func (h *StatusHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.gate.Authorize(req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	resp := model.LoginResponse{Success: true}
	if h.gate.Required() {
		token, err := h.gate.IssueToken()
		if err != nil {
			h.logger.Error("failed to issue token", zap.Error(err))
		} else {
			resp.Token = token
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// lanIP returns the first non-loopback IPv4 address, for the status banner
// phones use to find the bridge.
func lanIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
