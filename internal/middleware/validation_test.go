package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pocketllama/chat-relay/internal/model"
)

func validRequest() *model.ChatRequest {
	return &model.ChatRequest{
		Model: "llama3.2",
		Messages: []model.ChatMessage{
			{Role: model.RoleUser, Content: "hello"},
		},
	}
}

func TestValidateChatRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.ChatRequest)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(r *model.ChatRequest) {},
		},
		{
			name:    "missing model",
			mutate:  func(r *model.ChatRequest) { r.Model = "" },
			wantErr: "model is required",
		},
		{
			name:    "no messages",
			mutate:  func(r *model.ChatRequest) { r.Messages = nil },
			wantErr: "messages cannot be empty",
		},
		{
			name: "last message not from user",
			mutate: func(r *model.ChatRequest) {
				r.Messages = append(r.Messages, model.ChatMessage{Role: model.RoleAssistant, Content: "hi"})
			},
			wantErr: "last message",
		},
		{
			name: "oversized content",
			mutate: func(r *model.ChatRequest) {
				r.Messages[0].Content = strings.Repeat("a", maxContentBytes+1)
			},
			wantErr: "maximum length",
		},
		{
			name:    "invalid utf-8",
			mutate:  func(r *model.ChatRequest) { r.Messages[0].Content = string([]byte{0xff, 0xfe}) },
			wantErr: "UTF-8",
		},
		{
			name:   "think none",
			mutate: func(r *model.ChatRequest) { r.Think = model.ThinkNone },
		},
		{
			name:   "think high",
			mutate: func(r *model.ChatRequest) { r.Think = model.ThinkHigh },
		},
		{
			name:    "think unknown",
			mutate:  func(r *model.ChatRequest) { r.Think = "maximum" },
			wantErr: "think must be one of",
		},
		{
			name: "empty content allowed",
			mutate: func(r *model.ChatRequest) {
				r.Messages = []model.ChatMessage{
					{Role: model.RoleAssistant, Content: ""},
					{Role: model.RoleUser, Content: "go on"},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := ValidateChatRequest(req)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	require.NoError(t, ValidateTitle("Trip planning"))
	require.NoError(t, ValidateTitle(""))
	require.ErrorContains(t, ValidateTitle(strings.Repeat("t", 257)), "maximum length")
	require.ErrorContains(t, ValidateTitle(string([]byte{0xff})), "UTF-8")
}
