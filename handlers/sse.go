package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// SSEEvent represents a server-sent progress event
type SSEEvent struct {
	Type       string      `json:"type"`
	RootPlanID string      `json:"rootPlanId,omitempty"`
	Data       interface{} `json:"data"`
}

// SSEHub manages SSE connections
type SSEHub struct {
	mu      sync.RWMutex
	clients map[chan SSEEvent]bool
}

// Global SSE hub
var sseHub = &SSEHub{
	clients: make(map[chan SSEEvent]bool),
}

// Register adds a new SSE client
func (h *SSEHub) Register(client chan SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes an SSE client
func (h *SSEHub) Unregister(client chan SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	close(client)
}

// Broadcast sends an event to all connected clients
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	logger.F("Broadcasting SSE event: type=%s, rootPlanID=%s, clients=%d",
		event.Type, event.RootPlanID, len(h.clients))

	for client := range h.clients {
		select {
		case client <- event:
		default:
			// Client's channel is full, skip
			logger.Log("warn", "SSE client channel full, skipping")
		}
	}
}

// eventsHandler streams progress events to a connected client
func eventsHandler(c rweb.Context) error {
	// Set SSE headers
	c.Response().SetHeader("Content-Type", "text/event-stream")
	c.Response().SetHeader("Cache-Control", "no-cache")
	c.Response().SetHeader("Connection", "keep-alive")
	c.Response().SetHeader("Access-Control-Allow-Origin", "*")

	clientChan := make(chan SSEEvent, 10)
	sseHub.Register(clientChan)

	defer func() {
		sseHub.Unregister(clientChan)
	}()

	// Send initial connection event
	fmt.Fprintf(c.Response(), "event: connected\ndata: {}\n\n")
	if flusher, ok := c.Response().(http.Flusher); ok {
		flusher.Flush()
	}

	for {
		event, ok := <-clientChan
		if !ok {
			// Channel closed, client disconnected
			return nil
		}

		data, err := json.Marshal(event)
		if err != nil {
			logger.LogErr(err, "failed to marshal SSE event")
			continue
		}

		fmt.Fprintf(c.Response(), "data: %s\n\n", string(data))
		if flusher, ok := c.Response().(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

// BroadcastPlanEvent broadcasts a plan progress event
func BroadcastPlanEvent(rootPlanID string, eventType string, data interface{}) {
	sseHub.Broadcast(SSEEvent{
		Type:       eventType,
		RootPlanID: rootPlanID,
		Data:       data,
	})
}
