package repository

import (
	"context"
	"time"

	"github.com/splax/localvercel/sites/internal/domain"
)

// JobRepository persists the deployment queue.
type JobRepository interface {
	// ClaimQueuedJobs atomically moves up to limit eligible queued jobs to
	// processing and returns them ordered by priority desc, created_at asc.
	ClaimQueuedJobs(ctx context.Context, limit int, now time.Time) ([]domain.DeploymentJob, error)
	UpdateJob(ctx context.Context, update domain.JobUpdate) error
	GetJobByID(ctx context.Context, jobID string) (*domain.DeploymentJob, error)
	// RequeueStaleJobs returns processing jobs started before the cutoff to
	// the queue, or fails them when they are out of attempts.
	RequeueStaleJobs(ctx context.Context, startedBefore, now time.Time) ([]domain.DeploymentJob, error)
}

// ProjectRepository reads projects and writes their hosting fields.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	UpdateProjectHosting(ctx context.Context, update domain.ProjectHostingUpdate) error
}

// ContentRepository loads the page-builder content a site is generated from.
type ContentRepository interface {
	// GetSiteStyles returns an empty map when the project has no styles row.
	GetSiteStyles(ctx context.Context, projectID string) (domain.SiteStyles, error)
	ListPublishedPages(ctx context.Context, projectID string) ([]domain.Page, error)
	ListSectionsByPages(ctx context.Context, pageIDs []string) (map[string][]domain.Section, error)
	ListProjectSections(ctx context.Context, projectID string) ([]domain.Section, error)
	// GetSectionTemplate returns ErrNotFound when no template is stored.
	GetSectionTemplate(ctx context.Context, sectionType string) (*domain.SectionTemplate, error)
}

// LogRepository handles deployment log persistence and retrieval.
type LogRepository interface {
	// AppendLog stores an entry and returns its id.
	AppendLog(ctx context.Context, log domain.DeploymentLog) (int64, error)
	ListLogsByDeployment(ctx context.Context, deploymentID string, limit, offset int) ([]domain.DeploymentLog, error)
}
