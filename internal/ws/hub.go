// Package ws fans live frames out to display clients. Each session is a
// room; displays observe the rotating token and summary updates but
// never drive rotation themselves.
package ws

import (
	"encoding/json"
	"log"
	"time"

	gws "github.com/gorilla/websocket"

	"rollcall/internal/record"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub routes frames to the clients watching each session.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
}

type frame struct {
	sessionID string
	data      []byte
}

// Client is one connected display.
type Client struct {
	hub       *Hub
	conn      *gws.Conn
	sessionID string
	send      chan []byte
}

// NewHub creates an empty hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, 16),
	}
}

// Run owns the room bookkeeping; single goroutine, no locks.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.rooms[client.sessionID] == nil {
				h.rooms[client.sessionID] = make(map[*Client]bool)
			}
			h.rooms[client.sessionID][client] = true
		case client := <-h.unregister:
			if room, ok := h.rooms[client.sessionID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.rooms, client.sessionID)
					}
				}
			}
		case f := <-h.broadcast:
			for client := range h.rooms[f.sessionID] {
				select {
				case client.send <- f.data:
				default:
					close(client.send)
					delete(h.rooms[f.sessionID], client)
				}
			}
		}
	}
}

// PublishToken broadcasts a freshly rotated token to the session's
// displays. Satisfies the rotation engine's Publisher.
func (h *Hub) PublishToken(sessionID, tok string) {
	h.send(sessionID, "token:rotate", map[string]any{"token": tok})
}

// PublishSummary broadcasts a recomputed attendance summary.
func (h *Hub) PublishSummary(sum record.Summary) {
	h.send(sum.SessionID, "summary:update", sum)
}

func (h *Hub) send(sessionID, kind string, payload any) {
	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("ws: marshal %s frame failed: %v", kind, err)
		return
	}
	h.broadcast <- frame{sessionID: sessionID, data: data}
}

// NewClient wraps an upgraded connection watching one session.
func NewClient(hub *Hub, conn *gws.Conn, sessionID string) *Client {
	return &Client{hub: hub, conn: conn, sessionID: sessionID, send: make(chan []byte, 64)}
}

// Register adds the client to its session room.
func (h *Hub) Register(client *Client) { h.register <- client }

// ReadPump drains the connection and unregisters on close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}
	}
}

// WritePump flushes outbound frames and keeps the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
