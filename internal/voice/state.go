package voice

import (
	"fmt"

	"github.com/fitmind/voicecoach/domain/entities"
)

// Phase is the lifecycle state of the manager.
//
//	Idle ──Start──▶ Connecting ──ready──▶ Open
//	  ▲                 │                   │
//	  └──── Closing ◀───┴──stop/error/close─┘
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// MarshalText renders the phase by name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the observable view of the session
type State struct {
	SessionID        string  `json:"session_id,omitempty"`
	Phase            Phase   `json:"phase"`
	InputTranscript  string  `json:"input_transcript"`
	OutputTranscript string  `json:"output_transcript"`
	AssistantTalking bool    `json:"assistant_talking"`
	UserSpeaking     bool    `json:"user_speaking"`
	InputVolume      float64 `json:"input_volume"`
}

// Active reports whether a session is connecting or open
func (s State) Active() bool {
	return s.Phase == PhaseConnecting || s.Phase == PhaseOpen
}

// Observer receives state updates from the manager. Calls are serialized
// and made while the manager holds its lock, so implementations must not
// call back into the Manager synchronously.
type Observer interface {
	StateChanged(state State)
	TurnCompleted(user, assistant entities.ChatEntry)
	// SessionEnded fires after teardown. err is nil for Stop and remote close.
	SessionEnded(sessionID string, err error)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) StateChanged(State)                               {}
func (NopObserver) TurnCompleted(user, assistant entities.ChatEntry) {}
func (NopObserver) SessionEnded(string, error)                       {}
