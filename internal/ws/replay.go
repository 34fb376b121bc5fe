package ws

import "sync"

// ReplayGate holds live messages back while stored history is written to a
// subscriber, so a stream can register before reading history without
// losing or reordering entries.
type ReplayGate struct {
	mu      sync.Mutex
	next    Subscriber
	pending [][]byte
	open    bool
	skip    func([]byte) bool
}

// NewReplayGate wraps next. Messages are buffered until Release.
func NewReplayGate(next Subscriber) *ReplayGate {
	return &ReplayGate{next: next}
}

// Send forwards payload, or buffers it while the gate is closed.
func (g *ReplayGate) Send(payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.pending = append(g.pending, append([]byte(nil), payload...))
		return nil
	}
	if g.skip != nil && g.skip(payload) {
		return nil
	}
	return g.next.Send(payload)
}

// Release flushes buffered messages and lets later ones through directly.
// Messages skip reports as already delivered are dropped, including ones
// the hub delivers after Release.
func (g *ReplayGate) Release(skip func([]byte) bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.skip = skip
	pending := g.pending
	g.pending = nil
	for _, payload := range pending {
		if skip != nil && skip(payload) {
			continue
		}
		if err := g.next.Send(payload); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the wrapped subscriber.
func (g *ReplayGate) Close() {
	g.next.Close()
}
