package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"neswara/internal/dashboard"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one admin browser connected to the dashboard feed.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	// send is owned by the hub, which closes it on disconnect.
	send chan Message
	// replies carries answers to the client's own requests.
	replies chan Message
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, 8),
		replies: make(chan Message, 8),
	}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: MessageTypeError, Data: "malformed message"})
			continue
		}
		if err := c.handle(msg); err != nil {
			c.reply(Message{Type: MessageTypeError, Data: err.Error()})
		}
	}
}

func (c *Client) handle(msg inbound) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch msg.Type {
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
		return nil
	case MessageTypeFilter:
		var f dashboard.Filter
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return errBadRequest
		}
		return c.hub.dashboard.SetFilter(ctx, f)
	case MessageTypeRange:
		var r rangeRequest
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			return errBadRequest
		}
		return c.hub.dashboard.SetRange(ctx, r.Days)
	default:
		return errors.New("unknown message type " + msg.Type)
	}
}

func (c *Client) reply(msg Message) {
	select {
	case c.replies <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal websocket message")
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) dashboardSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "live dashboard disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(s.hub, conn)
	if !s.hub.join(r.Context(), c) {
		_ = conn.Close()
		return
	}
	c.start()
}
