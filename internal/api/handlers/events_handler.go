package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeState = "state"
	MsgTypePing  = "ping"
	MsgTypePong  = "pong"
	MsgTypeError = "error"

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WSMessage is the envelope for every frame on the events socket.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// EventsHandler streams orchestrator state transitions over a websocket.
type EventsHandler struct {
	orch     QueryOrchestrator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler builds the handler. allowOrigin nil accepts every origin.
func NewEventsHandler(orch QueryOrchestrator, allowOrigin func(origin string) bool, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		orch: orch,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowOrigin == nil || origin == "" || allowOrigin(origin)
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logger,
	}
}

type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ServeHTTP upgrades the connection and pushes the current state followed by every transition.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn := &wsConn{ws: ws}
	defer ws.Close()

	states, unsubscribe := h.orch.Subscribe()
	defer unsubscribe()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		h.readLoop(conn)
	}()

	h.logger.Debug("events client connected", "remote", r.RemoteAddr)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				_ = conn.send(WSMessage{Type: MsgTypeError, Payload: rawString("query service closed"), Timestamp: nowMillis()})
				return
			}
			payload, err := json.Marshal(st)
			if err != nil {
				h.logger.Error("encode state", "err", err)
				continue
			}
			if err := conn.send(WSMessage{Type: MsgTypeState, Payload: payload, Timestamp: nowMillis()}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-readerDone:
			h.logger.Debug("events client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (h *EventsHandler) readLoop(conn *wsConn) {
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("events connection error", "err", err)
			}
			return
		}
		switch msg.Type {
		case MsgTypePing:
			if err := conn.send(WSMessage{Type: MsgTypePong, Timestamp: nowMillis()}); err != nil {
				return
			}
		default:
			if err := conn.send(WSMessage{Type: MsgTypeError, Payload: rawString("unknown message type: " + msg.Type), Timestamp: nowMillis()}); err != nil {
				return
			}
		}
	}
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func nowMillis() int64 { return time.Now().UnixMilli() }
