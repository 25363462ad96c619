package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
)

type subscriberSet map[chan<- string]struct{}

// StreamManager handles active SSE connections, keyed by draft id.
// Subscribers registered with SubscribeAll receive the messages of every draft.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]subscriberSet
	all         subscriberSet
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]subscriberSet),
		all:         make(subscriberSet),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for draftID and returns it with its cancel func.
func (sm *StreamManager) Subscribe(draftID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	subs, ok := sm.subscribers[draftID]
	if !ok {
		subs = make(subscriberSet)
		sm.subscribers[draftID] = subs
	}
	return sm.add(subs, func() {
		if len(subs) == 0 {
			delete(sm.subscribers, draftID)
		}
	})
}

// SubscribeAll registers a buffered channel that receives every draft's messages.
func (sm *StreamManager) SubscribeAll() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.add(sm.all, func() {})
}

// add must be called with sm.mu held. cleanup runs under the lock after removal.
func (sm *StreamManager) add(subs subscriberSet, cleanup func()) (<-chan string, func()) {
	ch := make(chan string, 10)
	subs[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		cleanup()
	}
}

// Subscribers returns the number of open streams for draftID.
func (sm *StreamManager) Subscribers(draftID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[draftID])
}

// AllSubscribers returns the number of open streams following every draft.
func (sm *StreamManager) AllSubscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.all)
}

// Broadcast sends msg to every subscriber of draftID and to every SubscribeAll
// subscriber. Slow clients drop messages.
func (sm *StreamManager) Broadcast(draftID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sm.send(sm.subscribers[draftID], draftID, msg)
	sm.send(sm.all, draftID, msg)
}

func (sm *StreamManager) send(subs subscriberSet, draftID, msg string) {
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "draft_id", draftID)
		}
	}
}

// Publish encodes diff and broadcasts it. It has the session.ChangeFunc signature,
// so it can be passed to session.WithOnChange.
func (sm *StreamManager) Publish(_ context.Context, diff *domain.DraftDiff) {
	if diff == nil {
		return
	}
	b, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("SSE: Failed to encode draft diff", "draft_id", diff.DraftID, "err", err)
		return
	}
	sm.Broadcast(diff.DraftID, string(b))
}
