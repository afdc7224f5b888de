package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/routelens/routelens/pkg/metrics"
)

// SSEBroker fans events out to connected Server-Sent Events clients.
type SSEBroker struct {
	mu          sync.RWMutex
	subscribers map[string]chan SSEEvent
}

// SSEEvent represents an event to send to clients.
type SSEEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	ID    string `json:"id,omitempty"`
}

// NewSSEBroker creates a new SSE broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subscribers: make(map[string]chan SSEEvent)}
}

// Subscribe registers a client and returns its id and event channel.
func (b *SSEBroker) Subscribe() (string, chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan SSEEvent, 10)
	b.subscribers[id] = ch
	metrics.SSEClients.Inc()
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (b *SSEBroker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		metrics.SSEClients.Dec()
	}
}

// Publish sends an event to every subscriber. Slow clients miss events
// rather than block the publisher.
func (b *SSEBroker) Publish(event SSEEvent) {
	if event.ID == "" {
		event.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of connected clients.
func (b *SSEBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Handler streams events to one client until it disconnects. The first
// event is "init" carrying the value returned by initial.
func (b *SSEBroker) Handler(initial func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		id, ch := b.Subscribe()
		defer b.Unsubscribe(id)

		if initial != nil {
			writeSSEEvent(w, SSEEvent{Event: "init", Data: initial(), ID: id})
		}
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				writeSSEEvent(w, event)
				flusher.Flush()
			}
		}
	}
}

// writeSSEEvent writes an event in SSE format.
func writeSSEEvent(w http.ResponseWriter, event SSEEvent) {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	fmt.Fprintf(w, "event: %s\n", event.Event)

	data, _ := json.Marshal(event.Data)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
