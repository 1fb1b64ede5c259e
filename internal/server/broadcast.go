package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	clientBuffer = 16
	sseHeartbeat = 30 * time.Second
)

// subscriber is one SSE or websocket listener on a session.
type subscriber struct {
	ch    chan []byte
	topic string
}

// Broadcaster fans session state out to subscribers grouped by session ID.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Register adds a subscriber for a session and returns it.
func (b *Broadcaster) Register(topic string) *subscriber {
	s := &subscriber{
		ch:    make(chan []byte, clientBuffer),
		topic: topic,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unregister removes a subscriber and closes its channel.
func (b *Broadcaster) Unregister(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Broadcast sends a message to all subscribers of a session without blocking.
// A subscriber whose buffer is full misses the message.
func (b *Broadcaster) Broadcast(topic string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.topic != topic {
			continue
		}
		select {
		case s.ch <- data:
		default:
			b.logger.Debug("dropping message for slow subscriber", zap.String("session", topic))
		}
	}
}

// CloseTopic disconnects every subscriber of a session.
func (b *Broadcaster) CloseTopic(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for s := range b.subs {
		if s.topic == topic {
			delete(b.subs, s)
			close(s.ch)
			n++
		}
	}
	return n
}

// Count returns the number of subscribers of a session.
func (b *Broadcaster) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for s := range b.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

// ServeSSE streams a session's messages until the client goes away or the
// session is closed. initial, if non-nil, is sent first.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, topic string, initial []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := b.Register(topic)
	defer b.Unregister(s)

	if initial != nil {
		fmt.Fprintf(w, "data: %s\n\n", initial)
	}
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-s.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
