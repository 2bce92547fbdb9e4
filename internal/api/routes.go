package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/internal/auth"
	"github.com/fitmind/voicecoach/internal/websocket"
	"github.com/fitmind/voicecoach/usecase"
)

const maxNameLength = 64

type handlers struct {
	hub    *websocket.Hub
	coach  *usecase.CoachService
	signer *auth.Signer
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, coach *usecase.CoachService, signer *auth.Signer, gatherer prometheus.Gatherer, logger *zap.Logger) {
	h := &handlers{hub: hub, coach: coach, signer: signer, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "voicecoach",
			"clients": hub.ClientCount(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", h.issueToken)
	v1.GET("/personas", h.listPersonas)
	v1.GET("/conversations", h.listConversations, h.requireUser)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

func (h *handlers) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxNameLength {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "A name of at most 64 bytes is required",
		})
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	} else if !h.ownsUserID(c, req.UserID) {
		// renewing an id needs a still-valid token for it
		h.logger.Warn("Token request rejected: user id without matching token",
			zap.String("user_id", req.UserID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "A valid token for user_id is required to renew it",
		})
	}

	token, expiresAt, err := h.signer.GenerateUserToken(req.UserID, req.Name)
	if err != nil {
		h.logger.Error("Failed to generate user token",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	h.logger.Info("User token issued", zap.String("user_id", req.UserID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    req.UserID,
	})
}

// ownsUserID reports whether the request carries a valid token for userID
func (h *handlers) ownsUserID(c echo.Context, userID string) bool {
	token := bearerToken(c)
	if token == "" {
		return false
	}
	claims, err := h.signer.ValidateToken(token)
	return err == nil && claims.UserID == userID
}

func (h *handlers) listPersonas(c echo.Context) error {
	return c.JSON(http.StatusOK, PersonasResponse{Personas: entities.Personas()})
}

func (h *handlers) listConversations(c echo.Context) error {
	claims := c.Get(claimsKey).(*auth.JWTClaims)

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	conversations, err := h.coach.History(c.Request().Context(), claims.UserID, limit)
	if err != nil {
		h.logger.Error("Failed to list conversations",
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversations",
		})
	}

	return c.JSON(http.StatusOK, ConversationsResponse{Conversations: conversations})
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on websocket requests, so the token may also
// come in the token query parameter.
func (h *handlers) websocketWithAuth(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token parameter",
		})
	}

	claims, err := h.signer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("user_id", claims.UserID))

	return websocket.HandleWebSocket(h.hub, c, claims.UserID)
}
