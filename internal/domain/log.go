package domain

import (
	"encoding/json"
	"time"
)

// Deployment log levels.
const (
	LogInfo    = "info"
	LogWarning = "warning"
	LogError   = "error"
)

// DeploymentLog is an append-only progress entry for a deployment job.
type DeploymentLog struct {
	ID           int64           `json:"id"`
	DeploymentID string          `json:"deployment_id"`
	ProjectID    string          `json:"project_id"`
	Level        string          `json:"log_level"`
	Message      string          `json:"message"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
