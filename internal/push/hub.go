package push

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Sender is the minimal interface the hub needs from a device connection.
type Sender interface {
	Send(data map[string]string) error
}

// Hub tracks the live connections of every push token. A token may have
// several connections (one device reconnecting, or several tabs).
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[int64]Sender
	nextID int64
	count  int
}

var _ Dispatcher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[int64]Sender)}
}

// Register adds s under token and returns the id to unregister it with.
func (h *Hub) Register(token string, s Sender) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[token]; !ok {
		h.conns[token] = make(map[int64]Sender)
	}
	h.nextID++
	id := h.nextID
	h.conns[token][id] = s
	h.count++
	return id
}

// Unregister removes a connection. Unknown ids are ignored.
func (h *Hub) Unregister(token string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.conns[token]
	if !ok {
		return
	}
	if _, ok := conns[id]; !ok {
		return
	}
	delete(conns, id)
	h.count--
	if len(conns) == 0 {
		delete(h.conns, token)
	}
}

// Connections reports how many connections are registered.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// SendToToken sends data to every connection of token. Connections whose
// send fails are dropped; the first error is returned.
func (h *Hub) SendToToken(token string, data map[string]string) error {
	h.mu.RLock()
	snapshot := make(map[int64]Sender, len(h.conns[token]))
	for id, s := range h.conns[token] {
		snapshot[id] = s
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return errors.Wrapf(ErrNotConnected, "token %.8s", token)
	}

	var firstErr error
	var failed []int64
	for id, s := range snapshot {
		if err := s.Send(data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Unregister(token, id)
	}
	return firstErr
}

// Send implements Dispatcher. It succeeds if at least one connection of any
// token received the message.
func (h *Hub) Send(_ context.Context, tokens []string, data map[string]string) error {
	var firstErr error
	delivered := false
	for _, tok := range tokens {
		if err := h.SendToToken(tok, data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	if firstErr == nil {
		return ErrNotConnected
	}
	return firstErr
}
