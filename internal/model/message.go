package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents one persisted turn within a chat.
type Message struct {
	ID     int64 `json:"id"`
	ChatID int64 `json:"chat_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Thinking holds the model's reasoning trace, assistant turns only.
	Thinking string `json:"thinking,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is a single entry of the history a client submits. It is also
// the shape forwarded upstream, so the json tags match the Ollama chat API.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ThinkLevel is the reasoning-effort hint forwarded to the model.
type ThinkLevel string

const (
	ThinkNone   ThinkLevel = "none"
	ThinkLow    ThinkLevel = "low"
	ThinkMedium ThinkLevel = "medium"
	ThinkHigh   ThinkLevel = "high"
)

// ChatRequest is the inbound body of the relay endpoint. A nil ChatID asks
// the server to create a chat on demand.
type ChatRequest struct {
	ChatID   *int64         `json:"chatId"`
	Model    string         `json:"model"`
	Messages []ChatMessage  `json:"messages"`
	Options  map[string]any `json:"options,omitempty"`
	Think    ThinkLevel     `json:"think,omitempty"`
}

// LastUserMessage returns the final message of the submitted history when it
// is a user turn. The relay persists only that message.
func (r *ChatRequest) LastUserMessage() (ChatMessage, bool) {
	if len(r.Messages) == 0 {
		return ChatMessage{}, false
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Role != RoleUser {
		return ChatMessage{}, false
	}
	return last, true
}
