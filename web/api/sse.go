package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// Stream event types
const (
	EventClock             = "clock"
	EventExecuted          = "event_executed"
	EventTemplatesReloaded = "templates_reloaded"
)

// StreamEvent is pushed to SSE and WebSocket clients
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	clientBuffer    = 16
	broadcastBuffer = 64
)

// Hub fans stream events out to connected clients. Slow clients are
// dropped instead of blocking the publisher.
type Hub struct {
	clients    map[chan StreamEvent]bool
	broadcast  chan StreamEvent
	register   chan chan StreamEvent
	unregister chan chan StreamEvent
	done       chan struct{}
	mu         sync.RWMutex
	dropped    atomic.Int64
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[chan StreamEvent]bool),
		broadcast:  make(chan StreamEvent, broadcastBuffer),
		register:   make(chan chan StreamEvent),
		unregister: make(chan chan StreamEvent),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- event:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for all clients. It reports false when the
// queue is full and the event was dropped.
func (h *Hub) Broadcast(event StreamEvent) bool {
	select {
	case h.broadcast <- event:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribe registers a client; the returned func unregisters it
func (h *Hub) subscribe(ctx context.Context) (chan StreamEvent, func()) {
	client := make(chan StreamEvent, clientBuffer)
	select {
	case h.register <- client:
	case <-h.done:
		close(client)
		return client, func() {}
	case <-ctx.Done():
		close(client)
		return client, func() {}
	}
	return client, func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		client, leave := s.hub.subscribe(r.Context())
		go func() {
			<-r.Context().Done()
			leave()
		}()

		// Current state first so clients need no extra request.
		writeSSE(w, StreamEvent{Type: EventClock, Data: s.Clock.State()})
		flusher.Flush()

		for event := range client {
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event StreamEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
