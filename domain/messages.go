package domain

// ServerMessage is one inbound event from the remote conversational endpoint.
// Exactly one of the concrete types below is carried per value.
type ServerMessage interface {
	serverMessage()
}

// Ready signals that the remote finished the connection handshake
type Ready struct{}

// InputTranscript is an incremental transcript fragment of the user's speech
type InputTranscript struct {
	Text string
}

// OutputTranscript is an incremental transcript fragment of the assistant's speech
type OutputTranscript struct {
	Text string
}

// Audio carries one inline PCM payload of the assistant's spoken response
type Audio struct {
	Data     []byte // raw little-endian PCM16
	MIMEType string // e.g. "audio/pcm;rate=24000"
}

// TurnComplete marks the end of the current turn
type TurnComplete struct{}

// Interrupted means the user barged in while the assistant was talking
type Interrupted struct{}

// MalformedAudio is an inbound audio payload that could not be decoded.
// The connection stays usable.
type MalformedAudio struct {
	Err error
}

// ServerError reports a transport or protocol failure on the remote side
type ServerError struct {
	Err error
}

// Closed is sent when the remote ends the connection normally
type Closed struct {
	Reason string
}

func (Ready) serverMessage()            {}
func (InputTranscript) serverMessage()  {}
func (OutputTranscript) serverMessage() {}
func (Audio) serverMessage()            {}
func (TurnComplete) serverMessage()     {}
func (Interrupted) serverMessage()      {}
func (MalformedAudio) serverMessage()   {}
func (ServerError) serverMessage()      {}
func (Closed) serverMessage()           {}

// AudioBlob is one realtime audio frame sent to the remote endpoint
type AudioBlob struct {
	Data     []byte
	MIMEType string
}
