package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// Notifier is the in-process implementation of app.Notifier. Payloads are
// JSON-encoded so handlers see the same bytes they would receive from the
// redis-backed notifier.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[string]map[int]func([]byte)
	nextID   int
}

func NewNotifier() *Notifier {
	return &Notifier{handlers: make(map[string]map[int]func([]byte))}
}

func (n *Notifier) Publish(_ context.Context, sessionID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	n.mu.RLock()
	var fns []func([]byte)
	for _, fn := range n.handlers[n.key(sessionID, event)] {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(data)
	}
	return nil
}

func (n *Notifier) Subscribe(_ context.Context, sessionID, event string, handler func([]byte)) (func(), error) {
	key := n.key(sessionID, event)

	n.mu.Lock()
	if n.handlers[key] == nil {
		n.handlers[key] = make(map[int]func([]byte))
	}
	id := n.nextID
	n.nextID++
	n.handlers[key][id] = handler
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if hs, ok := n.handlers[key]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(n.handlers, key)
			}
		}
	}
	return cancel, nil
}

func (n *Notifier) key(sessionID, event string) string {
	return sessionID + ":" + event
}
