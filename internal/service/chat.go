// Package service provides business logic for the chat bridge.
package service

import (
	"context"

	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/internal/store"
	"github.com/pocketllama/chat-relay/pkg/logger"
	"github.com/pocketllama/chat-relay/pkg/metrics"
)

// ChatService handles chat history operations.
type ChatService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(st *store.Store, log *logger.Logger) *ChatService {
	return &ChatService{store: st, logger: log}
}

// Create creates a new chat.
func (s *ChatService) Create(ctx context.Context, title, modelName string) (*model.Chat, error) {
	if title == "" {
		title = "New Chat"
	}
	chat, err := s.store.CreateChat(ctx, title, modelName)
	if err != nil {
		return nil, err
	}
	metrics.ChatsTotal.Inc()
	return chat, nil
}

// List returns all chats, most recently updated first.
func (s *ChatService) List(ctx context.Context) ([]model.Chat, error) {
	return s.store.ListChats(ctx)
}

// GetWithMessages returns a chat and its decrypted history.
func (s *ChatService) GetWithMessages(ctx context.Context, id int64) (*model.ChatWithMessages, error) {
	chat, err := s.store.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ChatWithMessages{Chat: *chat, Messages: messages}, nil
}

// Delete removes a chat and all of its turns.
func (s *ChatService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteChat(ctx, id)
}
