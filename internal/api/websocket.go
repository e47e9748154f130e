package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebSocket message types for the event stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "event"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const wsWriteTimeout = 5 * time.Second

// WSMessage is the envelope of every frame on the event stream.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error frame.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// EventHandler pushes dashboard events over a WebSocket so the UI can
// re-read state instead of polling it.
type EventHandler struct {
	dash     Dashboard
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewEventHandler creates a new event stream handler. With no origins only
// same-origin pages may connect; "*" admits any origin.
func NewEventHandler(dash Dashboard, logger *zap.Logger, origins []string) *EventHandler {
	return &EventHandler{
		dash:   dash,
		logger: logging.OrNop(logger).Named("events"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(origins),
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// originChecker returns nil (the upgrader's same-origin check) for an empty list.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(msg)
}

// HandleEvents upgrades the connection and forwards events until either
// side goes away.
func (h *EventHandler) HandleEvents(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	events, unsubscribe := h.dash.Subscribe()
	defer unsubscribe()

	conn := &wsConn{ws: ws}
	connID := logging.ShortID(uuid.NewString())
	h.logger.Debug("client connected", zap.String("conn", connID))

	if err := conn.send(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()}); err != nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(conn, connID)
	}()

	for {
		select {
		case <-done:
			h.logger.Debug("client disconnected", zap.String("conn", connID))
			return nil
		case ev, ok := <-events:
			if !ok {
				conn.mu.Lock()
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				conn.mu.Unlock()
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("encoding event failed", zap.Error(err))
				continue
			}
			msg := WSMessage{Type: MsgTypeEvent, Payload: payload, Timestamp: ev.Timestamp.UnixMilli()}
			if err := conn.send(msg); err != nil {
				h.logger.Debug("send failed", zap.String("conn", connID), zap.Error(err))
				return nil
			}
		}
	}
}

func (h *EventHandler) readLoop(conn *wsConn, connID string) {
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("connection error", zap.String("conn", connID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			payload, _ := json.Marshal(WSErrorResponse{
				Message: "Unknown message type: " + msg.Type,
				Code:    "INVALID_TYPE",
			})
			conn.send(WSMessage{Type: MsgTypeError, Payload: payload, Timestamp: time.Now().UnixMilli()})
		}
	}
}
