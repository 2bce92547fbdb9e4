package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
)

const conversationTTL = 24 * time.Hour

// ConversationRepository implements repositories.ConversationRepository using MongoDB
type ConversationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database, logger *zap.Logger) *ConversationRepository {
	collection := db.Collection("conversations")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		userIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "last_active_at", Value: -1},
			},
		}

		// for cleanup operations
		statusExpiresIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			},
		}

		// expired conversations are kept for a week before Mongo drops them
		ttlIndex := mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32((7 * 24 * time.Hour).Seconds())),
		}

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			userIndex,
			statusExpiresIndex,
			ttlIndex,
		})
		if err != nil {
			logger.Error("Failed to create conversation indexes", zap.Error(err))
		} else {
			logger.Info("Conversation indexes created successfully")
		}
	}()

	return &ConversationRepository{
		collection: collection,
		logger:     logger,
	}
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}
	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		r.logger.Error("Failed to create conversation", zap.Error(err), zap.String("user_id", conversation.UserID))
		return err
	}

	r.logger.Info("Conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("user_id", conversation.UserID))
	return nil
}

// GetByID retrieves a conversation by its ID
func (r *ConversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Conversation, error) {
	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrConversationNotFound
		}
		r.logger.Error("Failed to get conversation by ID", zap.Error(err), zap.String("conversation_id", id.Hex()))
		return nil, err
	}
	return &conversation, nil
}

// GetLastByUserID retrieves the most recently active conversation of a user
func (r *ConversationRepository) GetLastByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "last_active_at", Value: -1}})

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get last conversation", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	return &conversation, nil
}

// ListByUserID retrieves conversations of a user, most recent first
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_active_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		r.logger.Error("Failed to list conversations", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := make([]*entities.Conversation, 0)
	for cursor.Next(ctx) {
		var conversation entities.Conversation
		if err := cursor.Decode(&conversation); err != nil {
			r.logger.Error("Failed to decode conversation", zap.Error(err))
			continue
		}
		conversations = append(conversations, &conversation)
	}

	if err := cursor.Err(); err != nil {
		r.logger.Error("Cursor error", zap.Error(err))
		return nil, err
	}
	return conversations, nil
}

// AppendMessages pushes chat entries to an active conversation and extends
// its expiry. Expired conversations are reported as not found.
func (r *ConversationRepository) AppendMessages(ctx context.Context, id primitive.ObjectID, entries ...entities.ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now()
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": entries}},
		"$set": bson.M{
			"last_message_at": entries[len(entries)-1].Timestamp,
			"last_active_at":  now,
			"expires_at":      now.Add(conversationTTL),
		},
	}

	filter := bson.M{
		"_id":        id,
		"status":     entities.ConversationStatusActive,
		"expires_at": bson.M{"$gt": now},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to append messages",
			zap.Error(err),
			zap.String("conversation_id", id.Hex()))
		return err
	}
	if result.MatchedCount == 0 {
		return repositories.ErrConversationNotFound
	}

	r.logger.Debug("Messages appended to conversation",
		zap.String("conversation_id", id.Hex()),
		zap.Int("count", len(entries)))
	return nil
}

// ExpireConversations marks conversations past their expiration time
func (r *ConversationRepository) ExpireConversations(ctx context.Context) error {
	filter := bson.M{
		"status":     entities.ConversationStatusActive,
		"expires_at": bson.M{"$lt": time.Now()},
	}
	update := bson.M{
		"$set": bson.M{"status": entities.ConversationStatusExpired},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to expire conversations", zap.Error(err))
		return err
	}

	if result.ModifiedCount > 0 {
		r.logger.Info("Expired conversations", zap.Int64("count", result.ModifiedCount))
	}
	return nil
}
