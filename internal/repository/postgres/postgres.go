package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.JobRepository     = (*Repository)(nil)
	_ repository.ProjectRepository = (*Repository)(nil)
	_ repository.ContentRepository = (*Repository)(nil)
	_ repository.LogRepository     = (*Repository)(nil)
)

const jobColumns = `q.id, q.project_id, q.customer_id, q.status, q.priority, q.payload, q.attempt_count, q.max_attempts,
	q.error_message, q.live_url, q.created_at, q.started_at, q.completed_at`

// ClaimQueuedJobs marks eligible queued jobs as processing in one statement.
// Rows locked by a concurrent claimer are skipped rather than waited on.
func (r *Repository) ClaimQueuedJobs(ctx context.Context, limit int, now time.Time) ([]domain.DeploymentJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `WITH claimable AS (
			SELECT id FROM deployment_queue
			WHERE status = 'queued' AND created_at <= $2
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE deployment_queue q
		SET status = 'processing', started_at = $2
		FROM claimable c
		WHERE q.id = c.id
		RETURNING ` + jobColumns
	rows, err := r.pool.Query(ctx, query, limit, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.DeploymentJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// UpdateJob applies a partial update to a queue entry.
func (r *Repository) UpdateJob(ctx context.Context, update domain.JobUpdate) error {
	const query = `UPDATE deployment_queue SET
			status = COALESCE(NULLIF($2, ''), status),
			attempt_count = COALESCE($3, attempt_count),
			error_message = COALESCE($4, error_message),
			created_at = COALESCE($5, created_at),
			completed_at = COALESCE($6, completed_at),
			live_url = COALESCE($7, live_url),
			payload = COALESCE($8::jsonb, payload),
			started_at = CASE WHEN $9 THEN NULL ELSE started_at END
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		update.JobID,
		string(update.Status),
		update.AttemptCount,
		update.ErrorMessage,
		update.CreatedAt,
		update.CompletedAt,
		update.LiveURL,
		bytesToNil(update.Payload),
		update.ClearStartedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetJobByID fetches a single queue entry.
func (r *Repository) GetJobByID(ctx context.Context, jobID string) (*domain.DeploymentJob, error) {
	if !validUUID(jobID) {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + jobColumns + ` FROM deployment_queue q WHERE q.id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// RequeueStaleJobs reclaims jobs a crashed worker left in processing.
func (r *Repository) RequeueStaleJobs(ctx context.Context, startedBefore, now time.Time) ([]domain.DeploymentJob, error) {
	const query = `UPDATE deployment_queue SET
			status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
			attempt_count = attempt_count + 1,
			error_message = 'processing timed out before the job finished',
			completed_at = CASE WHEN attempt_count + 1 >= max_attempts THEN $2 ELSE NULL END,
			created_at = CASE WHEN attempt_count + 1 >= max_attempts THEN created_at ELSE $2 END,
			started_at = NULL
		WHERE status = 'processing' AND started_at < $1
		RETURNING id, project_id, status, attempt_count, max_attempts`
	rows, err := r.pool.Query(ctx, query, startedBefore, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.DeploymentJob, 0)
	for rows.Next() {
		var job domain.DeploymentJob
		var status string
		if err := rows.Scan(&job.ID, &job.ProjectID, &status, &job.AttemptCount, &job.MaxAttempts); err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// validUUID reports whether id can be compared against a uuid column.
// Anything else makes Postgres fail the whole statement.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.DeploymentJob, error) {
	var (
		job     domain.DeploymentJob
		status  string
		payload []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.CustomerID,
		&status,
		&job.Priority,
		&payload,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.ErrorMessage,
		&job.LiveURL,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return domain.DeploymentJob{}, err
	}
	job.Status = domain.JobStatus(status)
	// A bad payload must not hide the row: claimed jobs are already
	// processing and only the caller can fail them.
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			job.Payload = domain.JobPayload{}
			job.PayloadErr = fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}
	return job, nil
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	if !validUUID(projectID) {
		return nil, repository.ErrNotFound
	}
	const query = `SELECT id, project_name, subdomain, deployment_domain, netlify_site_id, netlify_site_name,
			deployment_status, deployment_url, last_deployed_at
		FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.ProjectName, &p.Subdomain, &p.DeploymentDomain, &p.NetlifySiteID, &p.NetlifySiteName,
		&p.DeploymentStatus, &p.DeploymentURL, &p.LastDeployedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProjectHosting writes hosting and deployment fields of a project.
func (r *Repository) UpdateProjectHosting(ctx context.Context, update domain.ProjectHostingUpdate) error {
	const query = `UPDATE projects SET
			netlify_site_id = CASE WHEN $7 THEN NULL ELSE COALESCE($2, netlify_site_id) END,
			netlify_site_name = CASE WHEN $7 THEN NULL ELSE COALESCE($3, netlify_site_name) END,
			deployment_status = COALESCE($4, deployment_status),
			deployment_url = COALESCE($5, deployment_url),
			last_deployed_at = COALESCE($6, last_deployed_at),
			updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		update.ProjectID,
		update.NetlifySiteID,
		update.NetlifySiteName,
		update.DeploymentStatus,
		update.DeploymentURL,
		update.LastDeployedAt,
		update.ClearSite,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetSiteStyles returns the style map of a project, empty when none is stored.
func (r *Repository) GetSiteStyles(ctx context.Context, projectID string) (domain.SiteStyles, error) {
	const query = `SELECT styles FROM site_styles WHERE project_id = $1`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SiteStyles{}, nil
		}
		return nil, err
	}
	styles := domain.SiteStyles{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &styles); err != nil {
			return nil, fmt.Errorf("decode site styles: %w", err)
		}
	}
	return styles, nil
}

// ListPublishedPages returns published pages ordered for rendering.
func (r *Repository) ListPublishedPages(ctx context.Context, projectID string) ([]domain.Page, error) {
	const query = `SELECT id, project_id, page_name, slug, is_homepage, status, order_index, sections
		FROM pages
		WHERE project_id = $1 AND status = 'published'
		ORDER BY order_index ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := make([]domain.Page, 0)
	for rows.Next() {
		var (
			page     domain.Page
			sections []byte
		)
		if err := rows.Scan(&page.ID, &page.ProjectID, &page.PageName, &page.Slug, &page.IsHomepage, &page.Status, &page.OrderIndex, &sections); err != nil {
			return nil, err
		}
		if len(sections) > 0 {
			if err := json.Unmarshal(sections, &page.Sections); err != nil {
				return nil, fmt.Errorf("decode sections of page %s: %w", page.ID, err)
			}
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// ListSectionsByPages loads the section rows of several pages in one query.
func (r *Repository) ListSectionsByPages(ctx context.Context, pageIDs []string) (map[string][]domain.Section, error) {
	grouped := make(map[string][]domain.Section, len(pageIDs))
	if len(pageIDs) == 0 {
		return grouped, nil
	}
	const query = `SELECT page_id, id, section_type, content, settings, order_index
		FROM page_sections
		WHERE page_id = ANY($1::uuid[])
		ORDER BY page_id, order_index ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, pageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pageID string
		section, err := scanSection(rows, &pageID)
		if err != nil {
			return nil, err
		}
		grouped[pageID] = append(grouped[pageID], section)
	}
	return grouped, rows.Err()
}

// ListProjectSections returns sections attached directly to a project.
func (r *Repository) ListProjectSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	const query = `SELECT project_id, id, section_type, content, settings, order_index
		FROM project_sections
		WHERE project_id = $1
		ORDER BY order_index ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make([]domain.Section, 0)
	for rows.Next() {
		var owner string
		section, err := scanSection(rows, &owner)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

func scanSection(row rowScanner, owner *string) (domain.Section, error) {
	var (
		section  domain.Section
		content  []byte
		settings []byte
	)
	if err := row.Scan(owner, &section.ID, &section.Type, &content, &settings, &section.OrderIndex); err != nil {
		return domain.Section{}, err
	}
	section.Content = map[string]any{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &section.Content); err != nil {
			return domain.Section{}, fmt.Errorf("decode content of section %s: %w", section.ID, err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &section.Settings); err != nil {
			return domain.Section{}, fmt.Errorf("decode settings of section %s: %w", section.ID, err)
		}
	}
	return section, nil
}

// GetSectionTemplate returns the stored HTML template for a section type.
func (r *Repository) GetSectionTemplate(ctx context.Context, sectionType string) (*domain.SectionTemplate, error) {
	const query = `SELECT section_type, html_template FROM section_templates WHERE section_type = $1`
	var tmpl domain.SectionTemplate
	if err := r.pool.QueryRow(ctx, query, sectionType).Scan(&tmpl.SectionType, &tmpl.HTMLTemplate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tmpl, nil
}

// AppendLog stores a deployment log entry.
func (r *Repository) AppendLog(ctx context.Context, log domain.DeploymentLog) (int64, error) {
	const query = `INSERT INTO deployment_logs (deployment_id, project_id, log_level, message, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, query, log.DeploymentID, log.ProjectID, log.Level, log.Message, bytesToNil(log.Metadata), log.Timestamp).Scan(&id)
	return id, err
}

// ListLogsByDeployment returns log entries of a deployment in write order.
func (r *Repository) ListLogsByDeployment(ctx context.Context, deploymentID string, limit, offset int) ([]domain.DeploymentLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if !validUUID(deploymentID) {
		return []domain.DeploymentLog{}, nil
	}
	const query = `SELECT id, deployment_id, project_id, log_level, message, metadata, timestamp
		FROM deployment_logs
		WHERE deployment_id = $1
		ORDER BY timestamp ASC, id ASC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, deploymentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.DeploymentLog, 0)
	for rows.Next() {
		var (
			entry    domain.DeploymentLog
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.DeploymentID, &entry.ProjectID, &entry.Level, &entry.Message, &metadata, &entry.Timestamp); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			entry.Metadata = json.RawMessage(metadata)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
