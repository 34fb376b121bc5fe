package logs

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/repository"
	"github.com/splax/localvercel/sites/internal/ws"
)

// Service handles deployment log persistence and streaming.
type Service struct {
	repo   repository.LogRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a log service. hub may be nil when nothing streams.
func New(repo repository.LogRepository, hub *ws.Hub, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, hub: hub, logger: logger, now: time.Now}
}

// Append stores and broadcasts a log entry.
func (s Service) Append(ctx context.Context, entry domain.DeploymentLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.Level == "" {
		entry.Level = domain.LogInfo
	}
	id, err := s.repo.AppendLog(ctx, entry)
	if err != nil {
		return err
	}
	entry.ID = id
	s.broadcast(entry)
	return nil
}

// Record writes a deployment step entry. Persistence failures are logged and
// swallowed so they never abort the deployment they describe.
func (s Service) Record(ctx context.Context, job domain.DeploymentJob, level, message string, metadata map[string]any) {
	entry := domain.DeploymentLog{
		DeploymentID: job.ID,
		ProjectID:    job.ProjectID,
		Level:        level,
		Message:      message,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Warn("failed to encode log metadata", "job_id", job.ID, "error", err)
		} else {
			entry.Metadata = raw
		}
	}
	if err := s.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to write deployment log", "job_id", job.ID, "project_id", job.ProjectID, "error", err)
	}
}

// List returns logs for a deployment in write order.
func (s Service) List(ctx context.Context, deploymentID string, limit, offset int) ([]domain.DeploymentLog, error) {
	return s.repo.ListLogsByDeployment(ctx, deploymentID, limit, offset)
}

func (s Service) broadcast(entry domain.DeploymentLog) {
	if s.hub == nil {
		return
	}
	data, err := MarshalEntry(entry)
	if err != nil {
		s.logger.Warn("failed to marshal log payload", "error", err)
		return
	}
	s.hub.Broadcast(entry.DeploymentID, data)
}

// Hub returns the websocket hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

// MarshalEntry formats a deployment log for streaming payloads.
func MarshalEntry(entry domain.DeploymentLog) ([]byte, error) {
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = json.RawMessage(entry.Metadata)
	}
	payload := map[string]any{
		"id":            entry.ID,
		"deployment_id": entry.DeploymentID,
		"project_id":    entry.ProjectID,
		"log_level":     entry.Level,
		"message":       entry.Message,
		"metadata":      metadata,
		"timestamp":     entry.Timestamp.Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}

// EntryID reads the id of a payload built by MarshalEntry, zero when absent.
func EntryID(payload []byte) int64 {
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return 0
	}
	return head.ID
}
