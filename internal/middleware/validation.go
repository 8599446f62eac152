package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/pocketllama/chat-relay/internal/model"
)

// maxContentBytes caps a single message body (~100KB).
const maxContentBytes = 100000

// ValidateChatRequest checks the relay request at the boundary. The relay
// persists the final history entry as the new user turn, so that ordering is
// an explicit precondition here, not an assumption downstream.
func ValidateChatRequest(req *model.ChatRequest) error {
	if req.Model == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages cannot be empty")
	}
	if _, ok := req.LastUserMessage(); !ok {
		return errors.New("last message must have role \"user\"")
	}
	for _, m := range req.Messages {
		if err := ValidateMessageContent(m.Content); err != nil {
			return err
		}
	}
	switch req.Think {
	case "", model.ThinkNone, model.ThinkLow, model.ThinkMedium, model.ThinkHigh:
	default:
		return errors.New("think must be one of none, low, medium, high")
	}
	return nil
}

// ValidateMessageContent validates message content. Empty content is allowed;
// clients legitimately send blank turns while composing.
func ValidateMessageContent(content string) error {
	if len(content) > maxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateTitle validates a chat title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
