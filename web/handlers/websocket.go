package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ProgressHub fans pipeline progress events out to websocket clients. Slow
// clients are disconnected rather than allowed to stall the broadcast loop.
type ProgressHub struct {
	clients    map[progressClient]bool
	broadcast  chan ProgressEvent
	register   chan progressClient
	unregister chan progressClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// progressClient allows for both real connections and test doubles.
type progressClient interface {
	sendChannel() chan []byte
	disconnect()
}

type wsClient struct {
	hub  *ProgressHub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) disconnect() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewProgressHub creates a progress hub. Call Run in a goroutine to start it.
func NewProgressHub() *ProgressHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressHub{
		clients:    make(map[progressClient]bool),
		broadcast:  make(chan ProgressEvent, 64),
		register:   make(chan progressClient),
		unregister: make(chan progressClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *ProgressHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("websocket: client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("websocket: client disconnected (total: %d)", count)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("websocket: failed to marshal progress event: %v", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					// Send buffer full: the client is not keeping up.
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *ProgressHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.disconnect()
	}
	h.clients = make(map[progressClient]bool)
	h.mu.Unlock()
}

// Broadcast queues an event for every connected client. Never blocks; when
// the queue is full the event is dropped with a log line.
func (h *ProgressHub) Broadcast(event ProgressEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("websocket: broadcast queue full, dropping %s/%s", event.Stage, event.Status)
	}
}

// StageListener adapts the hub to the pipeline's stage callback.
func (h *ProgressHub) StageListener() func(stage, status string) {
	return func(stage, status string) {
		h.Broadcast(ProgressEvent{
			Type:   "sync_progress",
			Stage:  stage,
			Status: status,
			Time:   time.Now().UTC(),
		})
	}
}

// ServeHTTP handles websocket upgrade requests on GET /api/ws.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump sends queued events to the connection until the send channel
// closes or a write fails.
func (c *wsClient) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump drains inbound messages to detect disconnects. Clients have
// nothing to say; the feed is one-way.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
