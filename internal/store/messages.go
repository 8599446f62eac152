package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pocketllama/chat-relay/internal/crypto"
	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/pkg/metrics"
)

// AppendMessage persists one turn. Content and thinking are sealed before the
// write; Seal is a no-op on values already in envelope form, so retried writes
// never double-wrap. Referencing a nonexistent chat id fails at the engine via
// the foreign key constraint.
func (s *Store) AppendMessage(ctx context.Context, chatID int64, role model.Role, content, thinking string) (*model.Message, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, thinking, created_at) VALUES (?, ?, ?, ?, ?)`,
		chatID, string(role), s.cipher.Seal(content), s.cipher.Seal(thinking), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	return &model.Message{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Thinking:  thinking,
		CreatedAt: now,
	}, nil
}

// ListMessages returns a chat's turns in creation order, fields decrypted.
// A row that fails to decrypt comes back with the sentinel text rather than
// failing the whole listing.
func (s *Store) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, thinking, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var (
			m        model.Message
			role     string
			thinking sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &thinking, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.Content = s.openField(m.Content)
		if thinking.Valid {
			m.Thinking = s.openField(thinking.String)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// openField decrypts one stored field, counting rows the cipher could not
// recover.
func (s *Store) openField(value string) string {
	opened := s.cipher.Open(value)
	if opened == crypto.DecryptFailedSentinel && value != crypto.DecryptFailedSentinel {
		metrics.DecryptFailuresTotal.Inc()
	}
	return opened
}

// CountMessages returns the number of turns stored for a chat.
func (s *Store) CountMessages(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
