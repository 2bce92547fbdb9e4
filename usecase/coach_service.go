package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/voice"
)

// ErrInvalidRequest is returned for start requests that cannot be served
var ErrInvalidRequest = errors.New("invalid voice request")

// VoiceStarter starts a voice session, see voice.Manager
type VoiceStarter interface {
	Start(ctx context.Context, config voice.Config) error
}

// StartRequest is what a client sends to begin talking to the coach
type StartRequest struct {
	PersonaID string
	// Voice overrides the persona voice when set
	Voice   string
	Profile entities.UserProfile
	Device  entities.DeviceState
}

// CoachService prepares voice sessions for a persona and keeps the chat history
type CoachService struct {
	conversations repositories.ConversationRepository
	logger        *zap.Logger
}

// NewCoachService creates a new coach service
func NewCoachService(conversations repositories.ConversationRepository, logger *zap.Logger) *CoachService {
	return &CoachService{
		conversations: conversations,
		logger:        logger,
	}
}

// VoiceConfig resolves the persona and voice of a request into a session config
func (s *CoachService) VoiceConfig(req StartRequest) (voice.Config, entities.Persona, error) {
	persona, ok := entities.LookupPersona(req.PersonaID)
	if !ok && req.PersonaID != "" {
		s.logger.Warn("Unknown persona, using default",
			zap.String("persona", req.PersonaID),
			zap.String("default", persona.ID))
	}

	if err := req.Profile.Validate(); err != nil {
		return voice.Config{}, persona, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	v := persona.Voice
	if req.Voice != "" {
		parsed, err := entities.ParseVoice(req.Voice)
		if err != nil {
			return voice.Config{}, persona, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		v = parsed
	}
	persona.Voice = v

	return voice.Config{
		SystemPrompt: persona.SystemInstruction,
		Voice:        v,
		UserContext:  BuildUserContext(req.Profile, req.Device),
	}, persona, nil
}

// StartVoice starts a session on the starter with the persona of the request.
// A non-nil recorder files the session's turns under the resolved persona.
// The returned persona carries the voice actually used.
func (s *CoachService) StartVoice(ctx context.Context, starter VoiceStarter, recorder *TurnRecorder, req StartRequest) (entities.Persona, error) {
	config, persona, err := s.VoiceConfig(req)
	if err != nil {
		return persona, err
	}
	if recorder != nil {
		recorder.SetPersona(persona)
	}

	s.logger.Info("Starting coach voice session",
		zap.String("persona", persona.ID),
		zap.String("voice", string(persona.Voice)),
		zap.String("user", req.Profile.Name))

	if err := starter.Start(ctx, config); err != nil {
		return persona, err
	}
	return persona, nil
}

// History lists the user's past conversations, most recent first
func (s *CoachService) History(ctx context.Context, userID string, limit int) ([]*entities.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	conversations, err := s.conversations.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// NewTurnRecorder wraps next so that every completed turn of the user's
// sessions is stored in the chat history
func (s *CoachService) NewTurnRecorder(userID string, persona entities.Persona, next voice.Observer) *TurnRecorder {
	return newTurnRecorder(s.conversations, s.logger, userID, entities.ConversationMetadata{
		PersonaID: persona.ID,
		Voice:     persona.Voice,
	}, next)
}
