package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/internal/store"
	"github.com/pocketllama/chat-relay/internal/upstream"
	"github.com/pocketllama/chat-relay/pkg/logger"
	"github.com/pocketllama/chat-relay/pkg/metrics"
)

// ErrNoBackend indicates no inference endpoint is reachable.
var ErrNoBackend = errors.New("no backend connection")

// Emitter writes one server-push event to the client. Passing a
// json.RawMessage relays an upstream frame verbatim.
type Emitter func(v any) error

// RelayService orchestrates one chat turn: it ensures the chat exists,
// persists the user turn, dispatches upstream, re-emits each decoded frame
// and commits the accumulated answer.
type RelayService struct {
	store    *store.Store
	chats    *ChatService
	upstream upstream.Client
	backend  backend.Provider
	logger   *logger.Logger
}

// NewRelayService creates a new relay service.
func NewRelayService(
	st *store.Store,
	chats *ChatService,
	client upstream.Client,
	provider backend.Provider,
	log *logger.Logger,
) *RelayService {
	return &RelayService{
		store:    st,
		chats:    chats,
		upstream: client,
		backend:  provider,
		logger:   log,
	}
}

// Mode reports the current backend mode.
func (s *RelayService) Mode() backend.Mode {
	return s.backend.Mode()
}

// Relay runs a full exchange. Validation of the request body happens at the
// boundary before this is called; by the time an error occurs here the SSE
// response has begun, so failures surface as in-band error events and Relay
// itself only returns an error when the client went away.
func (s *RelayService) Relay(ctx context.Context, req *model.ChatRequest, emit Emitter) error {
	mode := s.backend.Mode()
	if mode == backend.ModeNone {
		return ErrNoBackend
	}

	chatID := s.ensureChat(ctx, req, emit)
	s.saveUserTurn(ctx, chatID, req)

	payload := &upstream.ChatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  req.Options,
	}
	if req.Think != "" && req.Think != model.ThinkNone {
		payload.Think = string(req.Think)
	}

	start := time.Now()
	body, err := s.upstream.ChatStream(ctx, mode.Target(), payload)
	if err != nil {
		s.logger.Error("upstream dispatch failed", zap.Error(err))
		metrics.RecordRelay(string(mode), "error", time.Since(start).Seconds())
		return emit(model.ErrorEvent{Error: upstreamErrorMessage(err)})
	}
	defer body.Close()

	return s.pump(ctx, mode, chatID, req.Model, body, emit, start)
}

// pump drives the reframer: re-emit every frame, accumulate the answer, and
// persist it when the upstream signals completion.
func (s *RelayService) pump(
	ctx context.Context,
	mode backend.Mode,
	chatID int64,
	modelName string,
	body io.Reader,
	emit Emitter,
	start time.Time,
) error {
	var (
		content  string
		thinking string
		saved    bool
	)

	reframer := upstream.NewReframer(body)
	for {
		raw, err := reframer.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Mid-stream transport failure: notify the client and drop
			// whatever accumulated. Replayed history only ever contains
			// answers the client saw completed.
			s.logger.Error("upstream stream failed mid-flight", zap.Error(err))
			if !saved && content != "" {
				metrics.RelayPartialDropsTotal.Inc()
			}
			metrics.RecordRelay(string(mode), "error", time.Since(start).Seconds())
			return emit(model.ErrorEvent{Error: err.Error()})
		}

		// Verbatim passthrough, including in-band upstream error objects;
		// the upstream may still send further frames after one.
		if err := emit(raw); err != nil {
			metrics.RecordRelay(string(mode), "disconnected", time.Since(start).Seconds())
			return fmt.Errorf("client write failed: %w", err)
		}
		metrics.RelayFramesTotal.WithLabelValues(string(mode)).Inc()

		frame := upstream.ParseFrame(raw)
		content += frame.Message.Content
		thinking += frame.Message.Thinking

		if frame.Done && !saved && chatID != 0 {
			s.saveAssistantTurn(ctx, chatID, modelName, content, thinking)
			saved = true
		}
	}

	if !saved && content != "" {
		// Stream ended without a done frame.
		metrics.RelayPartialDropsTotal.Inc()
	}
	metrics.RecordRelay(string(mode), "success", time.Since(start).Seconds())
	return nil
}

// ensureChat lazily creates the chat for a brand-new conversation and tells
// the client its identifier before any content flows. Returns 0 when no chat
// is bound (creation failed and none was supplied).
func (s *RelayService) ensureChat(ctx context.Context, req *model.ChatRequest, emit Emitter) int64 {
	if req.ChatID != nil {
		return *req.ChatID
	}

	chat, err := s.chats.Create(ctx, DeriveTitle(req.Messages), req.Model)
	if err != nil {
		// The exchange still proceeds; it just will not be persisted.
		s.logger.Error("failed to auto-create chat", zap.Error(err))
		return 0
	}

	if err := emit(model.NewChatCreatedEvent(chat.ID)); err != nil {
		s.logger.Warn("client went away before chat_created", zap.Error(err))
	}
	return chat.ID
}

// saveUserTurn persists only the newest message of the supplied history, so
// a retried request with the same prior context never duplicates old turns.
// Persistence failure is logged, not fatal: the model call still proceeds.
func (s *RelayService) saveUserTurn(ctx context.Context, chatID int64, req *model.ChatRequest) {
	if chatID == 0 {
		return
	}
	last, ok := req.LastUserMessage()
	if !ok {
		return
	}

	if _, err := s.store.AppendMessage(ctx, chatID, model.RoleUser, last.Content, ""); err != nil {
		s.logger.Error("failed to save user message", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}
	if err := s.store.TouchChat(ctx, chatID, req.Model); err != nil {
		s.logger.Error("failed to touch chat", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
}

// saveAssistantTurn commits the accumulated answer. The response has already
// reached the client, so failures are logged only.
func (s *RelayService) saveAssistantTurn(ctx context.Context, chatID int64, modelName, content, thinking string) {
	if _, err := s.store.AppendMessage(ctx, chatID, model.RoleAssistant, content, thinking); err != nil {
		s.logger.Error("failed to save assistant message", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}
	if err := s.store.TouchChat(ctx, chatID, modelName); err != nil {
		s.logger.Error("failed to touch chat", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
}

// titleLimit is how much of the first user message becomes the chat title.
const titleLimit = 30

// DeriveTitle builds a chat title from the first user message, truncated with
// an ellipsis. Falls back to "New Chat" when the history has no user turn.
func DeriveTitle(messages []model.ChatMessage) string {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) <= titleLimit {
			return m.Content
		}
		return string(runes[:titleLimit]) + "..."
	}
	return "New Chat"
}

func upstreamErrorMessage(err error) string {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Ollama API Error: %s", statusErr.Status)
	}
	return err.Error()
}
