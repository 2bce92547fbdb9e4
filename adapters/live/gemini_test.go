package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
)

type scriptedSession struct {
	messages []*genai.LiveServerMessage
	first    error
	err      error
	sent     []genai.LiveRealtimeInput
	closed   int
}

func (s *scriptedSession) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	s.sent = append(s.sent, input)
	return nil
}

func (s *scriptedSession) Receive() (*genai.LiveServerMessage, error) {
	if err := s.first; err != nil {
		s.first = nil
		return nil, err
	}
	if len(s.messages) == 0 {
		return nil, s.err
	}
	msg := s.messages[0]
	s.messages = s.messages[1:]
	return msg, nil
}

func (s *scriptedSession) Close() error {
	s.closed++
	return nil
}

func connectScripted(t *testing.T, session *scriptedSession) (*Connection, *genai.LiveConnectConfig) {
	t.Helper()
	var got *genai.LiveConnectConfig
	g := newGeminiLive(func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		got = config
		return session, nil
	}, zap.NewNop())

	conn, err := g.Connect(context.Background(), repositories.LiveConfig{
		Model:             "test-model",
		SystemInstruction: "coach",
		Voice:             entities.VoiceFenrir,
		Transcription:     true,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return conn.(*Connection), got
}

func TestConnectConfig(t *testing.T) {
	_, cfg := connectScripted(t, &scriptedSession{})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("Expected audio response modality, got %v", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig == nil || cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Fenrir" {
		t.Errorf("Expected Fenrir voice, got %+v", cfg.SpeechConfig)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "coach" {
		t.Errorf("Expected system instruction, got %+v", cfg.SystemInstruction)
	}
	if cfg.InputAudioTranscription == nil || cfg.OutputAudioTranscription == nil {
		t.Error("Expected both transcriptions enabled")
	}
}

func TestConnectRequiresModel(t *testing.T) {
	g := newGeminiLive(func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		t.Fatal("dial must not be called")
		return nil, nil
	}, nil)
	if _, err := g.Connect(context.Background(), repositories.LiveConfig{}); err == nil {
		t.Error("Expected error for empty model")
	}
}

func TestConnectDialError(t *testing.T) {
	dialErr := errors.New("handshake failed")
	g := newGeminiLive(func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		return nil, dialErr
	}, nil)
	if _, err := g.Connect(context.Background(), repositories.LiveConfig{Model: "m"}); !errors.Is(err, dialErr) {
		t.Errorf("Expected wrapped dial error, got %v", err)
	}
}

func TestReceiveTranslatesInOrder(t *testing.T) {
	pcm := []byte{0, 1, 2, 3}
	session := &scriptedSession{
		messages: []*genai.LiveServerMessage{
			{SetupComplete: &genai.LiveServerSetupComplete{}},
			{ServerContent: &genai.LiveServerContent{
				OutputTranscription: &genai.Transcription{Text: "好的"},
				InputTranscription:  &genai.Transcription{Text: "开始"},
				ModelTurn: &genai.Content{Parts: []*genai.Part{
					{Text: "ignored"},
					{InlineData: &genai.Blob{Data: pcm, MIMEType: "audio/pcm;rate=24000"}},
				}},
			}},
			{ServerContent: &genai.LiveServerContent{Interrupted: true}},
			{GoAway: &genai.LiveServerGoAway{}},
			{ServerContent: &genai.LiveServerContent{TurnComplete: true}},
		},
		err: &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"},
	}
	conn, _ := connectScripted(t, session)

	want := []domain.ServerMessage{
		domain.Ready{},
		domain.OutputTranscript{Text: "好的"},
		domain.InputTranscript{Text: "开始"},
		domain.Audio{Data: pcm, MIMEType: "audio/pcm;rate=24000"},
		domain.Interrupted{},
		domain.TurnComplete{},
		domain.Closed{Reason: "bye"},
	}

	for i, w := range want {
		got, err := conn.Receive()
		if err != nil {
			t.Fatalf("Receive(%d) error = %v", i, err)
		}
		switch w := w.(type) {
		case domain.Audio:
			a, ok := got.(domain.Audio)
			if !ok || a.MIMEType != w.MIMEType || len(a.Data) != len(w.Data) {
				t.Errorf("Receive(%d) = %#v, want %#v", i, got, w)
			}
		default:
			if got != w {
				t.Errorf("Receive(%d) = %#v, want %#v", i, got, w)
			}
		}
	}
}

func TestReceiveAbnormalClose(t *testing.T) {
	transportErr := &websocket.CloseError{Code: websocket.CloseInternalServerErr, Text: "internal"}
	conn, _ := connectScripted(t, &scriptedSession{err: transportErr})

	msg, err := conn.Receive()
	if msg != nil || !errors.Is(err, transportErr) {
		t.Errorf("Expected transport error, got %v, %v", msg, err)
	}
}

func TestSendAudioAndClose(t *testing.T) {
	session := &scriptedSession{}
	conn, _ := connectScripted(t, session)

	if err := conn.SendAudio(domain.AudioBlob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=16000"}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if len(session.sent) != 1 || session.sent[0].Audio == nil || session.sent[0].Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Unexpected realtime input %+v", session.sent)
	}

	conn.Close()
	conn.Close()
	if session.closed != 1 {
		t.Errorf("Expected session closed once, got %d", session.closed)
	}
}

func TestReceiveSkipsCorruptAudio(t *testing.T) {
	frames := []string{
		`{"setupComplete":{}}`,
		`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"!!not-base64!!"}}]}}}`,
		`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAECAw=="}}]}}}`,
	}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// setup message
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		for _, frame := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		ws.ReadMessage()
	}))
	defer server.Close()

	ctx := context.Background()
	g, err := newGeminiLiveWithConfig(ctx, &genai.ClientConfig{
		APIKey:  "test-key",
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    "ws" + strings.TrimPrefix(server.URL, "http") + "/",
			APIVersion: "v1beta",
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("newGeminiLiveWithConfig() error = %v", err)
	}

	lc, err := g.Connect(ctx, repositories.LiveConfig{Model: "test-model"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer lc.Close()

	if msg, err := lc.Receive(); err != nil || msg != (domain.Ready{}) {
		t.Fatalf("Expected Ready, got %#v, %v", msg, err)
	}

	msg, err := lc.Receive()
	if err != nil {
		t.Fatalf("Expected corrupt chunk to be reported as an event, got error %v", err)
	}
	malformed, ok := msg.(domain.MalformedAudio)
	var corrupt base64.CorruptInputError
	if !ok || !errors.As(malformed.Err, &corrupt) {
		t.Fatalf("Expected MalformedAudio with base64 error, got %#v", msg)
	}

	msg, err = lc.Receive()
	if err != nil {
		t.Fatalf("Expected the connection to stay usable, got %v", err)
	}
	if a, ok := msg.(domain.Audio); !ok || len(a.Data) != 4 {
		t.Errorf("Expected 4 byte audio chunk, got %#v", msg)
	}

	if msg, err := lc.Receive(); err != nil || msg != (domain.Closed{Reason: "done"}) {
		t.Errorf("Expected Closed, got %#v, %v", msg, err)
	}
}

func TestReceiveDropsUnparseableMessage(t *testing.T) {
	var syntaxErr *json.SyntaxError
	bad := json.Unmarshal([]byte("{not json"), &map[string]any{})
	if !errors.As(bad, &syntaxErr) {
		t.Fatalf("Expected a syntax error, got %v", bad)
	}

	session := &scriptedSession{
		first:    fmt.Errorf("invalid message format. Error %w", bad),
		messages: []*genai.LiveServerMessage{{SetupComplete: &genai.LiveServerSetupComplete{}}},
	}
	conn, _ := connectScripted(t, session)

	if msg, err := conn.Receive(); err != nil || msg != (domain.Ready{}) {
		t.Errorf("Expected the bad message to be dropped, got %#v, %v", msg, err)
	}
}

func TestConnectHonoursContextDuringDial(t *testing.T) {
	release := make(chan struct{})
	session := &closeSignalSession{closed: make(chan struct{})}
	g := newGeminiLive(func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		<-release
		return session, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Connect(ctx, repositories.LiveConfig{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected Connect to return at the deadline, took %v", elapsed)
	}

	close(release)
	select {
	case <-session.closed:
	case <-time.After(time.Second):
		t.Error("Expected late session to be closed")
	}
}

type closeSignalSession struct {
	scriptedSession
	closed chan struct{}
}

func (s *closeSignalSession) Close() error {
	close(s.closed)
	return nil
}
