package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fitmind/voicecoach/domain/entities"
)

// ErrConversationNotFound is returned when a conversation does not exist
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository defines data access methods for chat history
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Conversation, error)
	// GetLastByUserID returns the most recent conversation of the user, or nil when none exists
	GetLastByUserID(ctx context.Context, userID string) (*entities.Conversation, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Conversation, error)
	AppendMessages(ctx context.Context, id primitive.ObjectID, entries ...entities.ChatEntry) error
	ExpireConversations(ctx context.Context) error
}
