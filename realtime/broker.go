// Package realtime pushes analyst events (new recommendations, applied
// changes, experiment evaluations, refresh completions) to connected
// dashboard clients over WebSocket.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard origins vary per deployment; the API layer already gates
	// access with bearer tokens
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the wire envelope pushed to clients
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// Broker handles WebSocket clients and broadcasting
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	mu         sync.RWMutex
}

// NewBroker creates a new WebSocket broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 1000),
	}
}

// Run starts the broker loop
func (b *Broker) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			log.Printf("WS client connected. Total: %d", len(b.clients))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("WS client disconnected. Total: %d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Skip if client buffer is full to prevent blocking
				}
			}
			b.mu.RUnlock()
		}
	}
}

// ServeHTTP upgrades the connection and streams broadcast events until the
// client goes away
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS upgrade failed: %v", err)
		return
	}

	clientChan := make(chan []byte, 10)
	b.register <- clientChan

	// Reader goroutine drains control frames and detects disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		b.unregister <- clientChan
		conn.Close()
	}()

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Broadcast sends an event to all connected clients
func (b *Broker) Broadcast(event string, payload interface{}) {
	jsonBytes, err := json.Marshal(Event{
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Error marshalling broadcast message: %v", err)
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		// Drop if broadcast buffer full
	}
}
