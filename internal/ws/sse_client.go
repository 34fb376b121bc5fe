package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams deployment log entries as Server-Sent Events. Each
// event carries a sequence id so browsers can report where they stopped.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	event   string
	seq     int64
	closed  bool
}

// NewSSEClient writes events named event to w.
func NewSSEClient(w io.Writer, flusher http.Flusher, event string, logger *slog.Logger) *SSEClient {
	if logger == nil {
		logger = slog.Default()
	}
	if event == "" {
		event = "message"
	}
	return &SSEClient{writer: w, flusher: flusher, log: logger, event: event}
}

// Open tells the browser how long to wait before reconnecting.
func (c *SSEClient) Open(retry time.Duration) error {
	return c.emit(fmt.Sprintf("retry: %d\n\n", retry.Milliseconds()))
}

// Send emits one event.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	c.seq++
	frame := fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", c.seq, c.event, payload)
	c.mu.Unlock()
	return c.emit(frame)
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	return c.emit(": ping\n\n")
}

func (c *SSEClient) emit(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.closed = true
		c.log.Warn("sse write failed", "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether the stream stopped accepting events.
func (c *SSEClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
