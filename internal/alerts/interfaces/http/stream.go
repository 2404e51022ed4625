package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	alertapp "fleet-telemetry/internal/alerts/application"
	"fleet-telemetry/internal/auth"
)

type subscriber struct {
	scope auth.Scope
	ch    chan []byte
}

// SSEBroker fans out alert events to connected clients. Each client only
// receives events for factories its scope allows.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[*subscriber]struct{})}
}

// Notify implements application.Notifier.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.Event) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.broadcast(event.Alert.FactoryID, payload)
}

// subscribe registers a new client for the given scope.
func (b *SSEBroker) subscribe(scope auth.Scope) *subscriber {
	if b == nil {
		return nil
	}
	sub := &subscriber{scope: scope, ch: make(chan []byte, 16)}
	b.mu.Lock()
	b.clients[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// unsubscribe removes a client.
func (b *SSEBroker) unsubscribe(sub *subscriber) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, sub)
	b.mu.Unlock()
	close(sub.ch)
}

func (b *SSEBroker) broadcast(factoryID string, payload []byte) {
	b.mu.Lock()
	targets := make([]chan []byte, 0, len(b.clients))
	for sub := range b.clients {
		if sub.scope.Allows(factoryID) {
			targets = append(targets, sub.ch)
		}
	}
	// slow clients drop events rather than block the publisher
	for _, ch := range targets {
		select {
		case ch <- payload:
		default:
		}
	}
	b.mu.Unlock()
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	caller := auth.CallerFromContext(r.Context())
	sub := b.subscribe(auth.ResolveScope(caller, r.URL.Query().Get("factory_id")))
	defer b.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload := <-sub.ch:
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
