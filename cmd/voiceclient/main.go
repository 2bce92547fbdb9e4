// Command voiceclient streams a WAV file to a running voice coach server
// and records the assistant's spoken answer as raw PCM16.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitmind/voicecoach/internal/audio"
	ws "github.com/fitmind/voicecoach/internal/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 2048 samples of 16 kHz PCM16 per message, 128 ms of audio
const (
	chunkSize     = 4096
	chunkInterval = 128 * time.Millisecond
)

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func main() {
	server := flag.String("server", "localhost:8080", "Voice coach server address")
	name := flag.String("name", "Lin", "Display name sent in the profile")
	persona := flag.String("persona", "encouraging", "Coach persona")
	audioFile := flag.String("audio", "sample_audio.wav", "Path to WAV file (16kHz 16-bit mono)")
	outFile := flag.String("out", "response.pcm", "Where to write the assistant audio (raw PCM16 24kHz)")
	flag.Parse()

	pcm, err := readWAV(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}

	token, userID, err := fetchToken(*server, *name)
	if err != nil {
		log.Fatalf("Failed to get token: %v", err)
	}
	log.Printf("Authenticated as %s", userID)

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	out, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer out.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	open := make(chan struct{})
	done := make(chan struct{})
	go handleIncomingMessages(c, out, open, done)

	err = c.WriteJSON(map[string]interface{}{
		"type":       ws.MessageTypeSessionStart,
		"persona":    *persona,
		"microphone": ws.MicrophoneGranted,
		"profile":    map[string]interface{}{"name": *name},
	})
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	select {
	case <-open:
	case <-done:
		return
	case <-time.After(30 * time.Second):
		log.Fatal("Timed out waiting for the session to open")
	}

	log.Printf("Streaming %d bytes of audio", len(pcm))
	for start := 0; start < len(pcm); start += chunkSize {
		end := start + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := c.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			log.Fatalf("Failed to send audio: %v", err)
		}
		time.Sleep(chunkInterval)
	}
	log.Println("Finished streaming, waiting for the answer. Press Ctrl+C to stop.")

	select {
	case <-done:
	case <-interrupt:
		c.WriteJSON(map[string]interface{}{"type": ws.MessageTypeSessionStop})
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func readWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s is not a WAV file", path)
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if channels != 1 || bits != 16 {
		return nil, fmt.Errorf("expected 16-bit mono audio, got %d channels at %d bits", channels, bits)
	}
	if sampleRate != 16000 {
		log.Printf("Warning: sample rate is %d Hz, the server expects 16000 Hz", sampleRate)
	}
	return data[wavHeaderSize:], nil
}

func fetchToken(server, name string) (string, string, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post("http://"+server+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token request failed: %s", string(data))
	}

	var token tokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return "", "", err
	}
	return token.Token, token.UserID, nil
}

type serverMessage struct {
	ws.AudioChunkMessage
	Code    string          `json:"error_code"`
	Message string          `json:"message"`
	Entries json.RawMessage `json:"entries"`
	State   struct {
		Phase            string `json:"phase"`
		InputTranscript  string `json:"input_transcript"`
		OutputTranscript string `json:"output_transcript"`
	} `json:"state"`
}

func handleIncomingMessages(c *websocket.Conn, out io.Writer, open, done chan struct{}) {
	defer close(done)
	opened := false
	lastPhase := ""

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Println("unmarshal error:", err)
			continue
		}

		switch msg.Type {
		case ws.MessageTypeState:
			if msg.State.Phase != lastPhase {
				lastPhase = msg.State.Phase
				log.Printf("Session %s", lastPhase)
			}
			if msg.State.Phase == "open" && !opened {
				opened = true
				close(open)
			}
		case ws.MessageTypeChat:
			log.Printf("Turn: %s", msg.Entries)
		case ws.MessageTypeAudioChunk:
			data, err := audio.DecodeBase64(msg.AudioData)
			if err != nil {
				log.Printf("Bad audio chunk %s: %v", msg.SourceID, err)
				continue
			}
			out.Write(data)
			log.Printf("Audio chunk %s at %dms (%dms)", msg.SourceID, msg.StartAtMs, msg.DurationMs)
		case ws.MessageTypeAudioStop:
			log.Printf("Audio chunk %s stopped", msg.SourceID)
		case ws.MessageTypeError:
			log.Printf("Server error %s: %s", msg.Code, msg.Message)
		}
	}
}
