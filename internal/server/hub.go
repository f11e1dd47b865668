// Package server exposes the dashboard state over HTTP and websocket: JSON
// snapshots for initial render and a push hub streaming state updates to
// connected dashboard clients.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// clientSendBuffer bounds each client's outbound queue; one full queue
	// disconnects that client rather than stalling the broadcast.
	clientSendBuffer = 16

	// writeTimeout bounds a single websocket write to a client.
	writeTimeout = 10 * time.Second
)

// Hub fans dashboard-state messages out to all connected websocket clients.
// A single goroutine owns the client set, so registration, removal and
// broadcast never race.
type Hub struct {
	clients    map[*hubClient]struct{}
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
	// done is closed when Run returns; registrations arriving after that
	// must not block on a loop that is no longer draining the channel.
	done chan struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub; Run must be started for it to serve clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*hubClient]struct{}),
		broadcast:  make(chan []byte, 8),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			close(client.send)
		}
		h.clients = make(map[*hubClient]struct{})
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			log.Info().Int("clients", len(h.clients)).Msg("dashboard client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: drop it instead of blocking everyone.
					delete(h.clients, client)
					close(client.send)
					log.Warn().Msg("dropping slow dashboard client")
				}
			}
		}
	}
}

// Broadcast queues a message for all connected clients. The newest state
// always supersedes older ones, so when the queue is full the message is
// dropped; the next broadcast carries fresher data anyway.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is same-origin or a dev server; origin policy belongs
	// to the deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveWs upgrades the request and attaches the client to the hub.
func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// writePump delivers queued messages to one client until its queue closes.
func (c *hubClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		deadline := time.Now().Add(writeTimeout)
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// readPump consumes (and discards) client messages to detect disconnects.
func (c *hubClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
