package domain

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a deployment queue entry.
type JobStatus string

// Deployment queue states.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DefaultMaxAttempts applies when a job row carries no positive max_attempts.
const DefaultMaxAttempts = 3

// DeploymentJob is one queued request to publish a project as a static site.
type DeploymentJob struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	CustomerID   *string    `json:"customer_id,omitempty"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Payload      JobPayload `json:"payload"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	LiveURL      *string    `json:"live_url,omitempty"`
	// CreatedAt doubles as the earliest time a retried job may be claimed.
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PayloadErr is set when the stored payload could not be decoded. The
	// rest of the row is intact and Payload is left empty.
	PayloadErr error `json:"-"`
}

// Attempts returns the effective retry ceiling for the job.
func (j DeploymentJob) Attempts() int {
	if j.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return j.MaxAttempts
}

// JobPayload carries either a pre-generated export or enough information for
// the generator to build one.
type JobPayload struct {
	Subdomain        string         `json:"subdomain,omitempty"`
	DeploymentDomain string         `json:"deployment_domain,omitempty"`
	ExportResult     *ExportResult  `json:"exportResult,omitempty"`
	NetlifySiteID    string         `json:"netlify_site_id,omitempty"`
	Netlify          *JobDeployMeta `json:"netlify,omitempty"`
}

// HasExport reports whether the payload embeds a usable export bundle.
func (p JobPayload) HasExport() bool {
	return p.ExportResult != nil && len(p.ExportResult.Pages) > 0
}

// JobDeployMeta records provider details once a deploy went live.
type JobDeployMeta struct {
	SiteID     string    `json:"site_id"`
	SiteName   string    `json:"site_name"`
	DeployID   string    `json:"deploy_id"`
	DeployURL  string    `json:"deploy_url,omitempty"`
	IsNewSite  bool      `json:"is_new_site"`
	DeployedAt time.Time `json:"deployed_at"`
}

// JobUpdate captures mutable fields of a queue entry. Nil fields are left
// untouched; ClearStartedAt resets started_at for requeued jobs.
type JobUpdate struct {
	JobID          string
	Status         JobStatus
	AttemptCount   *int
	ErrorMessage   *string
	CreatedAt      *time.Time
	CompletedAt    *time.Time
	LiveURL        *string
	Payload        json.RawMessage
	ClearStartedAt bool
}
