package model

// ChatCreatedEvent tells the client the identifier of a lazily created chat.
// It is written to the stream before any content frame so the client can bind
// subsequent turns.
type ChatCreatedEvent struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chatId"`
}

// NewChatCreatedEvent builds the out-of-band creation notice.
func NewChatCreatedEvent(chatID int64) ChatCreatedEvent {
	return ChatCreatedEvent{Type: "chat_created", ChatID: chatID}
}

// ErrorEvent is an in-band error notice on the client stream.
type ErrorEvent struct {
	Error string `json:"error"`
}

// StatusResponse is the body of the public status endpoint.
type StatusResponse struct {
	Mode         string `json:"mode"`
	Connected    bool   `json:"connected"`
	LanIP        string `json:"lanIp"`
	Port         string `json:"port"`
	AuthRequired bool   `json:"authRequired"`
}

// LoginRequest is the body of the password check endpoint.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries an optional bearer token for subsequent requests.
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}
