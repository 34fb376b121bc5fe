package logs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/ws"
)

type memoryLogs struct {
	mu      sync.Mutex
	entries []domain.DeploymentLog
	err     error
}

func (m *memoryLogs) AppendLog(_ context.Context, entry domain.DeploymentLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

func (m *memoryLogs) ListLogsByDeployment(_ context.Context, id string, limit, offset int) ([]domain.DeploymentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeploymentLog
	for _, e := range m.entries {
		if e.DeploymentID == id {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type channelSubscriber struct {
	ch chan []byte
}

func (c *channelSubscriber) Send(p []byte) error {
	c.ch <- p
	return nil
}

func (c *channelSubscriber) Close() {}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordPersistsAndBroadcasts(t *testing.T) {
	repo := &memoryLogs{}
	hub := ws.NewHub()
	defer hub.Close()
	sub := &channelSubscriber{ch: make(chan []byte, 1)}
	hub.Register("job-1", sub)

	svc := New(repo, hub, discard())
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)) }
	job := domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1"}
	svc.Record(context.Background(), job, domain.LogInfo, "site prepared", map[string]any{"site_id": "s-1"})

	entries, err := svc.List(context.Background(), "job-1", 10, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d (%v)", len(entries), err)
	}
	if entries[0].Timestamp.Location() != time.UTC || entries[0].ProjectID != "proj-1" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}

	select {
	case raw := <-sub.ch:
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["message"] != "site prepared" || payload["log_level"] != "info" {
			t.Fatalf("unexpected payload %v", payload)
		}
		if payload["id"] != float64(1) || EntryID(raw) != 1 {
			t.Fatalf("expected stored id in payload, got %v", payload["id"])
		}
		if meta, _ := payload["metadata"].(map[string]any); meta["site_id"] != "s-1" {
			t.Fatalf("metadata not forwarded: %v", payload["metadata"])
		}
	case <-time.After(time.Second):
		t.Fatal("entry was not broadcast")
	}
}

func TestRecordSwallowsPersistenceFailure(t *testing.T) {
	repo := &memoryLogs{err: errors.New("db down")}
	svc := New(repo, nil, discard())
	svc.Record(context.Background(), domain.DeploymentJob{ID: "job-1"}, domain.LogError, "boom", nil)

	if err := svc.Append(context.Background(), domain.DeploymentLog{DeploymentID: "job-1"}); err == nil {
		t.Fatal("Append must surface persistence errors")
	}
}
