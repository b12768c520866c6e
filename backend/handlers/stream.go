// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 32
)

// Frame types pushed to stream clients.
const (
	FrameReady   = "ready"
	FrameMessage = "message"
)

// StreamFrame is one JSON text frame on the stream. A message frame is only a
// hint: clients re-fetch the conversation when they get one.
type StreamFrame struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation"`
	MessageID    int64  `json:"message_id,omitempty"`
}

// Authorizer checks that the caller may read a conversation.
type Authorizer interface {
	Authorize(ctx context.Context, ref models.ConversationRef) (models.Member, models.Conversation, error)
}

// StreamHandler upgrades to a websocket and forwards delivery events for one
// conversation until either side goes away.
type StreamHandler struct {
	access   Authorizer
	channel  delivery.Channel
	upgrader websocket.Upgrader
}

func NewStreamHandler(access Authorizer, channel delivery.Channel, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		access:  access,
		channel: channel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.AllowsOrigin(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// Stream handles GET /api/chat/conversations/{ref}/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ref, err := conversationRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	member, _, err := h.access.Authorize(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		slog.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(member.ID, ws)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:    "comunidade.stream",
		Conversation: ref.String(),
	})

	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "bye")

	// Events wait until the ready frame is queued so it is always first.
	ready := make(chan struct{})
	sub, err := h.channel.Subscribe(ctx, ref, func(ev models.Event) {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		_ = conn.SendJSON(StreamFrame{Type: FrameMessage, Conversation: ref.String(), MessageID: ev.MessageID})
	})
	if err != nil {
		slog.WarnContext(ctx, "stream subscribe failed", "error", err)
		conn.Close(websocket.CloseTryAgainLater, "delivery unavailable")
		return
	}
	defer sub.Unsubscribe()

	slog.DebugContext(ctx, "stream opened", "connection_id", conn.ID)
	_ = conn.SendJSON(StreamFrame{Type: FrameReady, Conversation: ref.String()})
	close(ready)

	// Client frames are ignored; reading keeps pongs and close frames flowing.
	conn.readLoop()
	slog.DebugContext(ctx, "stream closed", "connection_id", conn.ID)
}

// Connection wraps a websocket and coordinates outbound writes via a buffered channel.
// A connection is uniquely identified per member session and is safe for concurrent use.
type Connection struct {
	ID       string
	MemberID string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

// NewConnection constructs a Connection for the given member.
func NewConnection(memberID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		MemberID: memberID,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		close:    make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

func (c *Connection) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Send enqueues payload for delivery. If the client is slow and the buffer is full,
// the connection is closed; the client reconnects and reconciles.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return errors.New("connection closed")
	default:
	}
	select {
	case <-c.close:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) readLoop() {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
