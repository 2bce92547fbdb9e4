package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/internal/voice"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypeSessionStart MessageType = "session_start"
	MessageTypeSessionStop  MessageType = "session_stop"
	MessageTypeAudioFrame   MessageType = "audio_frame"
	MessageTypePing         MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeState      MessageType = "state"
	MessageTypeChat       MessageType = "chat"
	MessageTypeAudioChunk MessageType = "audio_chunk"
	MessageTypeAudioStop  MessageType = "audio_stop"
	MessageTypeError      MessageType = "error"
	MessageTypePong       MessageType = "pong"
)

// Microphone permission values of a session_start message
const (
	MicrophoneGranted = "granted"
	MicrophoneDenied  = "denied"
)

// Error codes sent in error messages
const (
	ErrorCodeInvalidMessage    = "invalid_message"
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodePermissionDenied  = "permission_denied"
	ErrorCodeDeviceUnavailable = "device_unavailable"
	ErrorCodeConnection        = "connection_failed"
	ErrorCodeSession           = "session_failed"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// SessionStartMessage asks the server to open a voice session
type SessionStartMessage struct {
	BaseMessage
	Persona    string               `json:"persona"`
	Voice      string               `json:"voice,omitempty"`
	Microphone string               `json:"microphone,omitempty"`
	Profile    entities.UserProfile `json:"profile"`
	Device     entities.DeviceState `json:"device"`
}

// SessionStopMessage ends the active voice session
type SessionStopMessage struct {
	BaseMessage
}

// AudioFrameMessage carries microphone samples as base64 PCM16LE
type AudioFrameMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StateMessage mirrors the observable voice session state
type StateMessage struct {
	BaseMessage
	State voice.State `json:"state"`
}

// ChatMessage carries the entries of a completed turn
type ChatMessage struct {
	BaseMessage
	Entries []entities.ChatEntry `json:"entries"`
}

// AudioChunkMessage tells the client to play PCM16LE audio at StartAtMs
// on the session playback timeline
type AudioChunkMessage struct {
	BaseMessage
	SourceID   string `json:"source_id"`
	StartAtMs  int64  `json:"start_at_ms"`
	DurationMs int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
	AudioData  string `json:"audio_data"`
}

// AudioStopMessage tells the client to stop a scheduled or playing chunk
type AudioStopMessage struct {
	BaseMessage
	SourceID string `json:"source_id"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming text message and returns the typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeSessionStart:
		var msg SessionStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid session start message: %w", err)
		}
		if err := v.validateSessionStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeSessionStop:
		var msg SessionStopMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid session stop message: %w", err)
		}
		return &msg, nil

	case MessageTypeAudioFrame:
		var msg AudioFrameMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio frame message: %w", err)
		}
		if err := v.validateAudioFrame(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateSessionStart(msg *SessionStartMessage) error {
	if msg.Microphone == "" {
		msg.Microphone = MicrophoneGranted
	}
	if msg.Microphone != MicrophoneGranted && msg.Microphone != MicrophoneDenied {
		return fmt.Errorf("microphone must be one of: granted, denied")
	}
	if msg.Profile.Name == "" {
		return fmt.Errorf("profile.name is required")
	}
	if msg.Voice != "" {
		if _, err := entities.ParseVoice(msg.Voice); err != nil {
			return err
		}
	}
	return nil
}

func (v *MessageValidator) validateAudioFrame(msg *AudioFrameMessage) error {
	if msg.AudioData == "" {
		return fmt.Errorf("audio_data is required")
	}
	if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage wraps a state snapshot
func CreateStateMessage(state voice.State) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       state,
	}
}

// CreateChatMessage wraps the entries of a completed turn
func CreateChatMessage(entries ...entities.ChatEntry) *ChatMessage {
	return &ChatMessage{
		BaseMessage: newBase(MessageTypeChat),
		Entries:     entries,
	}
}
