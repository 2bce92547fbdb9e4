package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationStatus represents the status of a conversation
type ConversationStatus string

const (
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusExpired ConversationStatus = "expired"
)

// MessageRole represents the role of a chat entry author
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

const conversationTTL = 24 * time.Hour

// ContinuationWindow is the longest pause after which new turns still join
// the previous conversation
const ContinuationWindow = 30 * time.Minute

// ChatEntry is one line of the chat history
type ChatEntry struct {
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Role      MessageRole `json:"role" bson:"role"`
	Text      string      `json:"text" bson:"text"`
}

// ConversationMetadata contains conversation-level metadata
type ConversationMetadata struct {
	PersonaID string `json:"persona_id" bson:"persona_id"`
	Voice     Voice  `json:"voice" bson:"voice"`
}

// Conversation is the persisted chat history of one user with the coach
type Conversation struct {
	ID            primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	UserID        string               `json:"user_id" bson:"user_id"`
	CreatedAt     time.Time            `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time            `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time           `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time            `json:"expires_at" bson:"expires_at"`
	Status        ConversationStatus   `json:"status" bson:"status"`
	Messages      []ChatEntry          `json:"messages" bson:"messages"`
	Metadata      ConversationMetadata `json:"metadata" bson:"metadata"`
}

// NewConversation creates a new conversation for a user
func NewConversation(userID string, metadata ConversationMetadata) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(conversationTTL),
		Status:       ConversationStatusActive,
		Messages:     make([]ChatEntry, 0),
		Metadata:     metadata,
	}
}

// AddMessage appends chat entries in order
func (c *Conversation) AddMessage(entries ...ChatEntry) {
	if len(entries) == 0 {
		return
	}
	c.Messages = append(c.Messages, entries...)
	last := entries[len(entries)-1].Timestamp
	c.LastMessageAt = &last
	c.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (c *Conversation) UpdateLastActive() {
	c.LastActiveAt = time.Now()
	c.ExpiresAt = c.LastActiveAt.Add(conversationTTL)
}

// IsExpired checks if the conversation has expired
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt) || c.Status != ConversationStatusActive
}

// CanContinue reports whether new turns should be appended to this
// conversation instead of a fresh one (last message within 30 minutes).
func (c *Conversation) CanContinue() bool {
	if c == nil || c.IsExpired() {
		return false
	}
	if c.LastMessageAt == nil {
		return true
	}
	return time.Since(*c.LastMessageAt) <= ContinuationWindow
}

// Expire marks the conversation as expired
func (c *Conversation) Expire() {
	c.Status = ConversationStatusExpired
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}

	if c.Status != ConversationStatusActive && c.Status != ConversationStatusExpired {
		return errors.New("invalid conversation status")
	}

	return nil
}
