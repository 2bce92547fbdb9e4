package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/voice"
)

const (
	recorderQueue  = 16
	persistTimeout = 5 * time.Second
)

type turn struct {
	user, assistant entities.ChatEntry
	metadata        entities.ConversationMetadata
}

// TurnRecorder is a voice.Observer that forwards every notification to the
// wrapped observer and persists completed turns in the background.
// Close must be called once the manager is stopped.
type TurnRecorder struct {
	repo     repositories.ConversationRepository
	logger   *zap.Logger
	userID   string
	metadata entities.ConversationMetadata
	next     voice.Observer

	mu     sync.Mutex
	closed bool
	turns  chan turn
	done   chan struct{}

	// owned by run
	conversationID   primitive.ObjectID
	conversationMeta entities.ConversationMetadata
	lastTurnAt       time.Time
}

func newTurnRecorder(repo repositories.ConversationRepository, logger *zap.Logger, userID string, metadata entities.ConversationMetadata, next voice.Observer) *TurnRecorder {
	if next == nil {
		next = voice.NopObserver{}
	}
	r := &TurnRecorder{
		repo:     repo,
		logger:   logger,
		userID:   userID,
		metadata: metadata,
		next:     next,
		turns:    make(chan turn, recorderQueue),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// SetPersona changes the metadata of turns completed from now on. A turn
// under a different persona starts a new conversation.
func (r *TurnRecorder) SetPersona(persona entities.Persona) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata = entities.ConversationMetadata{PersonaID: persona.ID, Voice: persona.Voice}
}

func (r *TurnRecorder) StateChanged(state voice.State) {
	r.next.StateChanged(state)
}

func (r *TurnRecorder) TurnCompleted(user, assistant entities.ChatEntry) {
	r.next.TurnCompleted(user, assistant)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.turns <- turn{user: user, assistant: assistant, metadata: r.metadata}:
	default:
		r.logger.Warn("Chat history queue full, dropping turn", zap.String("user_id", r.userID))
	}
}

func (r *TurnRecorder) SessionEnded(sessionID string, err error) {
	r.next.SessionEnded(sessionID, err)
}

// Close waits until every queued turn is stored
func (r *TurnRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.turns)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *TurnRecorder) run() {
	defer close(r.done)
	for t := range r.turns {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := r.persist(ctx, t); err != nil {
			r.logger.Error("Failed to store chat turn",
				zap.String("user_id", r.userID),
				zap.Error(err))
		}
		cancel()
	}
}

func (r *TurnRecorder) persist(ctx context.Context, t turn) error {
	if !r.conversationID.IsZero() && !r.continues(t) {
		r.conversationID = primitive.NilObjectID
	}
	if r.conversationID.IsZero() {
		if err := r.resolveConversation(ctx, t.metadata); err != nil {
			return err
		}
	}

	err := r.repo.AppendMessages(ctx, r.conversationID, t.user, t.assistant)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		// expired or dropped by the store; start over
		if err := r.createConversation(ctx, t.metadata); err != nil {
			return err
		}
		err = r.repo.AppendMessages(ctx, r.conversationID, t.user, t.assistant)
	}
	if err == nil {
		r.lastTurnAt = t.assistant.Timestamp
	}
	return err
}

// continues reports whether t joins the conversation of the previous turn
func (r *TurnRecorder) continues(t turn) bool {
	if t.metadata != r.conversationMeta {
		return false
	}
	return t.user.Timestamp.Sub(r.lastTurnAt) <= entities.ContinuationWindow
}

func (r *TurnRecorder) resolveConversation(ctx context.Context, metadata entities.ConversationMetadata) error {
	last, err := r.repo.GetLastByUserID(ctx, r.userID)
	if err != nil {
		return err
	}
	if last.CanContinue() && last.Metadata == metadata {
		r.conversationID = last.ID
		r.conversationMeta = last.Metadata
		return nil
	}
	return r.createConversation(ctx, metadata)
}

func (r *TurnRecorder) createConversation(ctx context.Context, metadata entities.ConversationMetadata) error {
	conversation := entities.NewConversation(r.userID, metadata)
	if err := r.repo.Create(ctx, conversation); err != nil {
		return err
	}
	r.conversationID = conversation.ID
	r.conversationMeta = metadata
	r.logger.Info("Started new conversation",
		zap.String("user_id", r.userID),
		zap.String("conversation_id", conversation.ID.Hex()))
	return nil
}
