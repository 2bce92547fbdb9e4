package api

import (
	"time"

	"github.com/fitmind/voicecoach/domain/entities"
)

// TokenRequest represents the request payload for issuing a user token.
// UserID is only honoured together with a valid token for that user.
type TokenRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name" validate:"required"`
}

// TokenResponse represents the response payload for a user token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// PersonasResponse lists the built-in coaching personas
type PersonasResponse struct {
	Personas []entities.Persona `json:"personas"`
}

// ConversationsResponse lists the chat histories of the current user
type ConversationsResponse struct {
	Conversations []*entities.Conversation `json:"conversations"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
