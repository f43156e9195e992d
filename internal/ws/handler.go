package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/zradj/geets-backend/internal/auth"
	"github.com/zradj/geets-backend/internal/broker"
	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/observability"
	"github.com/zradj/geets-backend/internal/services"
)

// Handler owns the messaging websocket endpoint: it authenticates the
// upgrade, runs the read loop and the idle watchdog, and wires pipeline
// results to the echo reply and the broker.
type Handler struct {
	registry     *Registry
	pipeline     *services.Messaging
	verifier     auth.Verifier
	publisher    broker.Publisher
	idleTimeout  time.Duration
	watchdogTick time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, pipeline *services.Messaging, verifier auth.Verifier, publisher broker.Publisher, idleTimeout, watchdogTick time.Duration) *Handler {
	return &Handler{
		registry:     registry,
		pipeline:     pipeline,
		verifier:     verifier,
		publisher:    publisher,
		idleTimeout:  idleTimeout,
		watchdogTick: watchdogTick,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates and upgrades the connection, then serves it until the
// client leaves, the watchdog fires or the server shuts down.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("geets-backend/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		// Refuse the upgrade entirely; no websocket close codes before a
		// successful handshake.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := NewConn(wsConn)

	h.registry.Register(userID, conn)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	log.Info().
		Str("user_id", userID.String()).
		Str("conn_id", conn.ID()).
		Str("ip", observability.IPFromRequest(c.Request)).
		Str("request_id", observability.RequestIDFromRequest(c.Request)).
		Msg("websocket connected")

	done := make(chan struct{})
	go h.watchdog(conn, done)

	defer func() {
		close(done)
		h.registry.Unregister(userID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = conn.Close()
		log.Info().Str("user_id", userID.String()).Str("conn_id", conn.ID()).Msg("websocket disconnected")
	}()

	h.readLoop(userID, conn)
}

func (h *Handler) authenticate(c *gin.Context) (uuid.UUID, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	} else {
		parts := strings.Split(token, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return uuid.Nil, auth.ErrInvalidToken
		}
		token = parts[1]
	}
	if token == "" {
		return uuid.Nil, auth.ErrInvalidToken
	}
	return h.verifier.Verify(c.Request.Context(), token)
}

// watchdog closes the connection once it has been idle longer than the
// configured timeout. It is cancelled through done at teardown so neither
// goroutine outlives the other.
func (h *Handler) watchdog(conn *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if conn.IdleFor() > h.idleTimeout {
				observability.IncWSEvent("ws_idle_timeout")
				log.Info().Str("conn_id", conn.ID()).Msg("closing idle websocket")
				conn.CloseWith(websocket.CloseGoingAway, "idle timeout")
				return
			}
		}
	}
}

// readLoop processes inbound frames one at a time; operations on other
// connections proceed in parallel.
func (h *Handler) readLoop(userID uuid.UUID, conn *Conn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		conn.Touch()
		h.handleFrame(userID, conn, data)
	}
}

func (h *Handler) handleFrame(userID uuid.UUID, conn *Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("user_id", userID.String()).Msg("frame handler crashed")
			_ = conn.Send(models.ErrorEvent(models.CodeServerError, "internal error in handler", nil))
		}
	}()

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		_ = conn.Send(models.ErrorEvent(models.CodeBadRequest, "invalid JSON frame", nil))
		return
	}

	if frame.Type == "ping" {
		h.handlePing(conn, frame.Payload)
		return
	}

	op, ok := operations[frame.Type]
	if !ok {
		_ = conn.Send(models.ErrorEvent(models.CodeBadRequest, fmt.Sprintf("unknown type: %s", frame.Type), nil))
		return
	}

	// Operations run on a background context: closing the connection must not
	// abort a write already in flight.
	ctx := context.Background()

	result, conversationID, err := op.run(ctx, h.pipeline, userID, frame.Payload)
	if err != nil {
		_ = conn.Send(errorEventFor(err))
		return
	}
	observability.IncWSEvent(frame.Type)

	event := models.Event{Type: frame.Type, Payload: result}
	if err := conn.Send(event); err != nil {
		return
	}

	routingKey := fmt.Sprintf("conversation.%s.%s", conversationID, op.kind)
	if err := h.publisher.Publish(ctx, routingKey, event); err != nil {
		// The write is committed; real-time fan-out was lost for this
		// instant. Report it, keep the connection.
		log.Error().Err(err).Str("routing_key", routingKey).Msg("broker publish failed")
		observability.IncBrokerPublishError()
		_ = conn.Send(models.ErrorEvent(models.CodeBrokerError, "failed to publish event", map[string]any{"type": frame.Type}))
	}
}

func (h *Handler) handlePing(conn *Conn, payload json.RawMessage) {
	var p struct {
		TS any `json:"ts"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &p)
	}
	_ = conn.Send(models.Event{Type: "pong", Payload: gin.H{
		"ts":        p.TS,
		"server_ts": time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func errorEventFor(err error) models.Event {
	switch {
	case errors.Is(err, services.ErrBadRequest):
		return models.ErrorEvent(models.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		return models.ErrorEvent(models.CodeNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrPermissionDenied):
		return models.ErrorEvent(models.CodePermissionDenied, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("operation failed")
		return models.ErrorEvent(models.CodeServerError, "internal error", nil)
	}
}
