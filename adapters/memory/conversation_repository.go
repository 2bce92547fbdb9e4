package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
)

// ConversationRepository is an in-memory implementation of
// repositories.ConversationRepository for development and tests
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[primitive.ObjectID]*entities.Conversation
	byUser        map[string][]primitive.ObjectID
}

// NewConversationRepository creates an empty in-memory repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[primitive.ObjectID]*entities.Conversation),
		byUser:        make(map[string][]primitive.ObjectID),
	}
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// Create stores a copy of the conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}
	if _, exists := r.conversations[conversation.ID]; exists {
		return errors.New("conversation already exists")
	}

	r.conversations[conversation.ID] = clone(conversation)
	r.byUser[conversation.UserID] = append(r.byUser[conversation.UserID], conversation.ID)
	return nil
}

// GetByID returns a copy of the conversation
func (r *ConversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return nil, repositories.ErrConversationNotFound
	}
	return clone(conversation), nil
}

// GetLastByUserID returns the most recently active conversation of the user
func (r *ConversationRepository) GetLastByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	list := r.sorted(userID)
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListByUserID returns conversations of the user, most recent first
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Conversation, error) {
	list := r.sorted(userID)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// AppendMessages adds chat entries to a stored conversation. Expired
// conversations are reported as not found.
func (r *ConversationRepository) AppendMessages(ctx context.Context, id primitive.ObjectID, entries ...entities.ChatEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, exists := r.conversations[id]
	if !exists || conversation.IsExpired() {
		return repositories.ErrConversationNotFound
	}
	conversation.AddMessage(entries...)
	return nil
}

// ExpireConversations marks conversations past their expiration time
func (r *ConversationRepository) ExpireConversations(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, conversation := range r.conversations {
		if conversation.Status == entities.ConversationStatusActive && now.After(conversation.ExpiresAt) {
			conversation.Expire()
		}
	}
	return nil
}

func (r *ConversationRepository) sorted(userID string) []*entities.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	list := make([]*entities.Conversation, 0, len(ids))
	for _, id := range ids {
		list = append(list, clone(r.conversations[id]))
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastActiveAt.After(list[j].LastActiveAt)
	})
	return list
}

func clone(c *entities.Conversation) *entities.Conversation {
	out := *c
	out.Messages = append([]entities.ChatEntry(nil), c.Messages...)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}
