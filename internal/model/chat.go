// Package model defines data structures for the chat bridge.
package model

import (
	"time"
)

// Chat represents a conversation thread.
type Chat struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatWithMessages is a chat together with its full decrypted history.
type ChatWithMessages struct {
	Chat
	Messages []Message `json:"messages"`
}

// CreateChatRequest is the request to explicitly create a new chat.
type CreateChatRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}
