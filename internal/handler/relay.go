package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/middleware"
	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/internal/service"
	"github.com/pocketllama/chat-relay/pkg/logger"
	"github.com/pocketllama/chat-relay/pkg/metrics"
)

// RelayHandler handles the streaming chat endpoint.
type RelayHandler struct {
	relay  *service.RelayService
	logger *logger.Logger
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(relay *service.RelayService, log *logger.Logger) *RelayHandler {
	return &RelayHandler{relay: relay, logger: log}
}

// Chat handles POST /api/chat. The response is a text/event-stream of
// data-only frames: an optional chat_created notice, then every upstream
// frame verbatim, or a single error object.
func (h *RelayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateChatRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Before the SSE response starts, a missing backend is still a plain
	// HTTP failure.
	if h.relay.Mode() == backend.ModeNone {
		writeError(w, http.StatusServiceUnavailable, "No Ollama connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	emit := func(v any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return sendSSEData(w, flusher, v)
	}

	err := h.relay.Relay(ctx, &req, emit)
	if errors.Is(err, service.ErrNoBackend) {
		// Mode flipped between the check above and dispatch.
		sendSSEData(w, flusher, model.ErrorEvent{Error: "No Ollama connection"})
		return
	}
	if err != nil {
		// Client disconnect mid-stream; upstream teardown already happened.
		h.logger.Info("relay stream ended early", zap.Error(err))
	}
}

// sendSSEData writes one data-only SSE frame. A json.RawMessage payload is
// passed through byte-for-byte.
func sendSSEData(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
