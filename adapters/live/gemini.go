package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/repositories"
)

// liveSession is the subset of *genai.Session used by Connection
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type dialFunc func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error)

// GeminiLive implements the LiveModel interface using the Gemini Live API
type GeminiLive struct {
	dial   dialFunc
	logger *zap.Logger
}

// NewGeminiLive creates a new Gemini Live client
func NewGeminiLive(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiLive, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	return newGeminiLiveWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, logger)
}

func newGeminiLiveWithConfig(ctx context.Context, cc *genai.ClientConfig, logger *zap.Logger) (*GeminiLive, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiLive(func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		session, err := client.Live.Connect(ctx, model, config)
		if err != nil {
			return nil, err
		}
		return session, nil
	}, logger), nil
}

func newGeminiLive(dial dialFunc, logger *zap.Logger) *GeminiLive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiLive{dial: dial, logger: logger}
}

// Connect opens a live session answering with audio in the configured voice
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveConnection, error) {
	if config.Model == "" {
		return nil, errors.New("live model name is required")
	}

	session, err := g.dialContext(ctx, config.Model, connectConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini Live: %w", err)
	}

	g.logger.Debug("Gemini Live connected",
		zap.String("model", config.Model),
		zap.String("voice", string(config.Voice)))

	return &Connection{session: session, logger: g.logger}, nil
}

type dialResult struct {
	session liveSession
	err     error
}

// dialContext bounds the dial by ctx. The genai dialer ignores the context,
// so a session that arrives after ctx is done is closed in the background.
func (g *GeminiLive) dialContext(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan dialResult, 1)
	go func() {
		session, err := g.dial(ctx, model, config)
		done <- dialResult{session: session, err: err}
	}()

	select {
	case res := <-done:
		return res.session, res.err
	case <-ctx.Done():
		go func() {
			res := <-done
			if res.err == nil && res.session != nil {
				g.logger.Debug("Closing Gemini Live session dialed after cancellation",
					zap.String("model", model))
				res.session.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func connectConfig(config repositories.LiveConfig) *genai.LiveConnectConfig {
	cc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if config.SystemInstruction != "" {
		cc.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}
	if config.Voice != "" {
		cc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: string(config.Voice)},
			},
		}
	}
	if config.Transcription {
		cc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		cc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return cc
}

// Connection is one open Gemini Live session. Receive must be called from a
// single goroutine.
type Connection struct {
	session liveSession
	logger  *zap.Logger

	sendMu sync.Mutex

	pending []domain.ServerMessage

	closeOnce sync.Once
	closeErr  error
}

// SendAudio streams one realtime audio frame
func (c *Connection) SendAudio(blob domain.AudioBlob) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: blob.Data, MIMEType: blob.MIMEType},
	})
}

// Receive returns the next domain event. A single server message can carry
// several events; they are delivered one by one in protocol order.
func (c *Connection) Receive() (domain.ServerMessage, error) {
	for len(c.pending) == 0 {
		msg, err := c.session.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var closeErr *websocket.CloseError
				errors.As(err, &closeErr)
				return domain.Closed{Reason: closeErr.Text}, nil
			}
			if malformed, ok := c.undecodable(err); ok {
				if malformed == nil {
					continue
				}
				return malformed, nil
			}
			return nil, err
		}
		c.pending = c.translate(msg)
	}

	next := c.pending[0]
	c.pending = c.pending[1:]
	return next, nil
}

// undecodable reports whether err came from decoding a message that was read
// intact. The socket stays usable after such a failure. A corrupt audio
// payload surfaces as MalformedAudio; any other undecodable message is
// dropped with a nil event.
func (c *Connection) undecodable(err error) (domain.ServerMessage, bool) {
	var corrupt base64.CorruptInputError
	if errors.As(err, &corrupt) {
		return domain.MalformedAudio{Err: err}, true
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		c.logger.Warn("Dropping undecodable Gemini Live message", zap.Error(err))
		return nil, true
	}
	return nil, false
}

// Close terminates the session
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}

func (c *Connection) translate(msg *genai.LiveServerMessage) []domain.ServerMessage {
	var events []domain.ServerMessage
	if msg == nil {
		return events
	}

	if msg.SetupComplete != nil {
		events = append(events, domain.Ready{})
	}

	if content := msg.ServerContent; content != nil {
		if t := content.OutputTranscription; t != nil && t.Text != "" {
			events = append(events, domain.OutputTranscript{Text: t.Text})
		}
		if t := content.InputTranscription; t != nil && t.Text != "" {
			events = append(events, domain.InputTranscript{Text: t.Text})
		}
		if content.TurnComplete {
			events = append(events, domain.TurnComplete{})
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part == nil || part.InlineData == nil {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				events = append(events, domain.Audio{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
		if content.Interrupted {
			events = append(events, domain.Interrupted{})
		}
	}

	if msg.GoAway != nil {
		// the server closes the socket after TimeLeft; that close ends the session
		c.logger.Info("Gemini Live going away",
			zap.Duration("timeLeft", msg.GoAway.TimeLeft))
	}

	return events
}
