package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketllama/chat-relay/internal/model"
)

// CreateChat inserts a new chat and returns it with its assigned identifier.
func (s *Store) CreateChat(ctx context.Context, title, modelName string) (*model.Chat, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (title, model, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, modelName, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat id: %w", err)
	}

	return &model.Chat{
		ID:        id,
		Title:     title,
		Model:     modelName,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetChat retrieves a chat by id. Returns ErrNotFound when it does not exist.
func (s *Store) GetChat(ctx context.Context, id int64) (*model.Chat, error) {
	var c model.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &c, nil
}

// ListChats returns all chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM chats ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []model.Chat{}
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and, via the FK cascade, all of its messages.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchChat refreshes a chat's update timestamp and selected model. Called on
// every new turn.
func (s *Store) TouchChat(ctx context.Context, id int64, modelName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ?, model = ? WHERE id = ?`,
		time.Now().UTC(), modelName, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}
