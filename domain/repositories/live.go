package repositories

import (
	"context"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/entities"
)

// LiveConfig configures a realtime voice connection
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             entities.Voice
	// Transcription requests input and output transcripts alongside audio
	Transcription bool
}

// LiveModel opens realtime bidirectional voice connections
type LiveModel interface {
	Connect(ctx context.Context, config LiveConfig) (LiveConnection, error)
}

// LiveConnection is one open realtime connection.
// Receive blocks until the next server message; it returns an error once the
// connection is unusable. The first message of a healthy connection is domain.Ready.
type LiveConnection interface {
	SendAudio(blob domain.AudioBlob) error
	Receive() (domain.ServerMessage, error)
	Close() error
}
