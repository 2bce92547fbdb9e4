package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
	"github.com/fitmind/voicecoach/internal/voice"
	"github.com/fitmind/voicecoach/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Outbound messages buffered per client; audio chunks are the bulk.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured web origins once the frontend is deployed behind a fixed domain
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected clients. Every client owns one voice
// session manager.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex

	coach   *usecase.CoachService
	live    repositories.LiveModel
	options voice.Options
	metrics *voice.Metrics
	clock   clock.Clock

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	coach *usecase.CoachService,
	live repositories.LiveModel,
	options voice.Options,
	metrics *voice.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		coach:      coach,
		live:       live,
		options:    options,
		metrics:    metrics,
		clock:      clk,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client connection
// is closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client.id)
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))

		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				client.conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and a voice session manager.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	id     string
	userID string

	// Buffered channel of outbound messages.
	send chan WriteData

	ctx    context.Context
	cancel context.CancelFunc

	capture   *remoteCapture
	manager   *voice.Manager
	recorder  *usecase.TurnRecorder
	validator *MessageValidator

	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (h *Hub) newClient(conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:       h,
		conn:      conn,
		id:        uuid.NewString(),
		userID:    userID,
		send:      make(chan WriteData, sendBuffer),
		ctx:       ctx,
		cancel:    cancel,
		capture:   newRemoteCapture(),
		validator: NewMessageValidator(),
	}
	c.logger = h.logger.With(zap.String("clientID", c.id), zap.String("userID", userID))

	persona, _ := entities.LookupPersona(entities.PersonaEncouraging)
	c.recorder = h.coach.NewTurnRecorder(userID, persona, c)
	c.manager = voice.NewManager(
		voice.Devices{Capture: c.capture, Playback: newRemotePlayback(c, h.clock)},
		h.live, c.recorder, h.options, h.metrics, c.logger,
	)
	return c
}

// HandleWebSocket upgrades an authenticated request and serves the voice
// protocol on it
func HandleWebSocket(hub *Hub, c echo.Context, userID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := hub.newClient(conn, userID)
	if !hub.registerClient(client) {
		client.shutdown()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown ends the voice session and releases the client's resources
func (c *Client) shutdown() {
	c.cancel()
	c.manager.Stop()
	c.capture.disconnect()
	c.recorder.Close()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// enqueue marshals msg and queues it for writing. Messages are dropped when
// the client is gone or its buffer is full.
func (c *Client) enqueue(msg interface{}) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return true
	default:
		c.logger.Warn("Client send buffer full, dropping message")
		return false
	}
}

func (c *Client) sendError(code, message, details string) {
	c.enqueue(CreateErrorMessage(code, message, details))
}

// processMessage processes incoming control and audio messages
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "invalid message", err.Error())
		return
	}

	switch msg := msg.(type) {
	case *SessionStartMessage:
		c.capture.setPermission(msg.Microphone == MicrophoneGranted)
		go c.startSession(usecase.StartRequest{
			PersonaID: msg.Persona,
			Voice:     msg.Voice,
			Profile:   msg.Profile,
			Device:    msg.Device,
		})
	case *SessionStopMessage:
		c.manager.Stop()
	case *AudioFrameMessage:
		data, err := audio.DecodeBase64(msg.AudioData)
		if err != nil {
			c.sendError(ErrorCodeInvalidMessage, "invalid audio frame", err.Error())
			return
		}
		c.pushAudio(data, msg.SampleRate)
	case *PingMessage:
		c.enqueue(CreatePongMessage(msg.Data))
	}
}

// processBinaryAudio handles raw PCM16LE microphone samples at the capture rate
func (c *Client) processBinaryAudio(data []byte) {
	c.pushAudio(data, 0)
}

func (c *Client) pushAudio(data []byte, rate int) {
	samples, err := audio.DecodePCM16(data)
	if err != nil {
		c.logger.Debug("Dropping malformed audio", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	if !c.capture.push(samples, rate) {
		c.logger.Debug("Dropping audio outside an open capture stream",
			zap.Int("samples", len(samples)),
			zap.Int("sampleRate", rate))
	}
}

func (c *Client) startSession(req usecase.StartRequest) {
	if c.ctx.Err() != nil {
		return
	}

	persona, err := c.hub.coach.StartVoice(c.ctx, c.manager, c.recorder, req)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidRequest), errors.Is(err, voice.ErrInvalidConfig):
			c.sendError(ErrorCodeInvalidRequest, "invalid session request", err.Error())
		case errors.Is(err, voice.ErrSessionStopped), errors.Is(err, context.Canceled):
		default:
			// failures of a started session are reported through SessionEnded
			c.logger.Debug("Voice session did not start", zap.Error(err))
		}
		return
	}

	c.logger.Info("Voice session started",
		zap.String("persona", persona.ID),
		zap.String("voice", string(persona.Voice)))
}

// StateChanged implements voice.Observer
func (c *Client) StateChanged(state voice.State) {
	c.enqueue(CreateStateMessage(state))
}

// TurnCompleted implements voice.Observer
func (c *Client) TurnCompleted(user, assistant entities.ChatEntry) {
	c.enqueue(CreateChatMessage(user, assistant))
}

// SessionEnded implements voice.Observer
func (c *Client) SessionEnded(sessionID string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	code, message := describeError(err)
	c.sendError(code, message, err.Error())
}

func describeError(err error) (code, message string) {
	var connErr *voice.ConnectionError
	switch {
	case errors.Is(err, voice.ErrPermissionDenied):
		return ErrorCodePermissionDenied, "microphone permission denied"
	case errors.Is(err, voice.ErrDeviceUnavailable):
		return ErrorCodeDeviceUnavailable, "audio device unavailable"
	case errors.As(err, &connErr):
		return ErrorCodeConnection, "voice connection failed"
	default:
		return ErrorCodeSession, "voice session failed"
	}
}
