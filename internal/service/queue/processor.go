// Package queue drains the deployment queue: it claims batches of queued
// jobs, publishes each project through the hosting provider and reschedules
// failed attempts with exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/splax/localvercel/sites/internal/bundle"
	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/hosting"
	"github.com/splax/localvercel/sites/internal/netlify"
	"github.com/splax/localvercel/sites/internal/repository"
	"github.com/splax/localvercel/sites/internal/throttle"
	"github.com/splax/localvercel/sites/pkg/config"
)

// Deploy states reported by the hosting provider.
const (
	DeployReady = "ready"
	DeployError = "error"
)

const (
	defaultBatchSize    = 3
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 90
	maxErrorMessage     = 1000
)

var inProgressStates = map[string]bool{
	"new":        true,
	"enqueued":   true,
	"uploaded":   true,
	"uploading":  true,
	"building":   true,
	"processing": true,
	"preparing":  true,
}

var (
	// ErrDeployFailed marks a deploy that ended in a non-ready state.
	ErrDeployFailed = errors.New("deploy failed")
	// ErrDeployTimeout marks a deploy still in progress after the poll budget.
	ErrDeployTimeout = errors.New("deploy timed out")
	// ErrNoDeploymentDomain is returned when neither the job nor the project
	// names a domain to publish on.
	ErrNoDeploymentDomain = fmt.Errorf("%w: no deployment domain configured", domain.ErrValidation)
	// ErrProjectNotFound is returned when the job references a missing project.
	ErrProjectNotFound = fmt.Errorf("%w: project not found", domain.ErrValidation)
)

// SiteProvisioner resolves the hosting site of a project.
type SiteProvisioner interface {
	PrepareProjectDeployment(ctx context.Context, projectID, deploymentURL string) (*hosting.Deployment, error)
}

// SiteGenerator renders a project into an export bundle.
type SiteGenerator interface {
	GenerateStaticSite(ctx context.Context, projectID string) (*domain.ExportResult, error)
}

// Deployer uploads archives and reports deploy progress.
type Deployer interface {
	DeployZip(ctx context.Context, siteID string, archive []byte) (*netlify.Deploy, error)
	GetDeploy(ctx context.Context, siteID, deployID string) (*netlify.Deploy, error)
}

// LogRecorder writes deployment step entries. It must not fail the caller.
type LogRecorder interface {
	Record(ctx context.Context, job domain.DeploymentJob, level, message string, metadata map[string]any)
}

// ArchiveStore keeps a copy of uploaded archives.
type ArchiveStore interface {
	Save(jobID string, archive []byte) (string, error)
}

// Deps are the collaborators of a Processor. Logs and Archives are optional.
type Deps struct {
	Jobs      repository.JobRepository
	Projects  repository.ProjectRepository
	Sites     SiteProvisioner
	Generator SiteGenerator
	Deployer  Deployer
	Logs      LogRecorder
	Archives  ArchiveStore
}

// Summary reports the outcome of one batch.
type Summary struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Requeued  int      `json:"requeued"`
	Reclaimed int      `json:"reclaimed"`
	Errors    []string `json:"errors"`
	// Duration is the wall time of the batch in milliseconds.
	Duration int64 `json:"duration"`
}

// Processor claims and runs deployment jobs.
type Processor struct {
	deps           Deps
	sem            *throttle.Semaphore
	backoff        throttle.ExponentialBackoff
	batchSize      int
	pollInterval   time.Duration
	maxPolls       int
	staleAfter     time.Duration
	platformDomain string
	logger         *slog.Logger
	metrics        *queueMetrics

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New constructs a processor from configuration.
func New(deps Deps, cfg config.QueueConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	sem := throttle.NewSemaphore(cfg.MaxConcurrent)
	metrics := loadMetrics()
	metrics.permits.Set(float64(sem.Permits()))
	return &Processor{
		deps:           deps,
		sem:            sem,
		backoff:        throttle.ExponentialBackoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax, Factor: cfg.BackoffFactor},
		batchSize:      batch,
		pollInterval:   poll,
		maxPolls:       maxPolls,
		staleAfter:     cfg.StaleJobAfter,
		platformDomain: cfg.PlatformDomain,
		logger:         logger.With("component", "queue"),
		metrics:        metrics,
		now:            time.Now,
		sleep:          sleepContext,
	}
}

// ProcessBatch reclaims stale jobs, claims the next batch and runs every
// claimed job to a terminal outcome or a reschedule before returning.
func (p *Processor) ProcessBatch(ctx context.Context) (Summary, error) {
	start := p.now()
	summary := Summary{Errors: []string{}}

	if p.staleAfter > 0 {
		reclaimed, err := p.deps.Jobs.RequeueStaleJobs(ctx, start.Add(-p.staleAfter), start.UTC())
		if err != nil {
			p.logger.Warn("stale job reclaim failed", "error", err)
		}
		for _, job := range reclaimed {
			p.logger.Warn("reclaimed stale job", "job_id", job.ID, "project_id", job.ProjectID, "status", job.Status, "attempt", job.AttemptCount)
		}
		summary.Reclaimed = len(reclaimed)
	}

	jobs, err := p.deps.Jobs.ClaimQueuedJobs(ctx, p.batchSize, start.UTC())
	if err != nil {
		summary.Duration = p.now().Sub(start).Milliseconds()
		return summary, fmt.Errorf("claim jobs: %w", err)
	}
	if len(jobs) == 0 {
		summary.Duration = p.now().Sub(start).Milliseconds()
		return summary, nil
	}
	p.logger.Info("claimed jobs", "count", len(jobs))

	// Claimed jobs always run to an outcome, even if the caller goes away.
	jobCtx := context.WithoutCancel(ctx)
	outcomes := make([]jobOutcome, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job domain.DeploymentJob) {
			defer wg.Done()
			outcomes[i] = p.runJob(jobCtx, job)
		}(i, job)
	}
	wg.Wait()

	for _, out := range outcomes {
		summary.Processed++
		switch out.state {
		case domain.JobCompleted:
			summary.Succeeded++
		case domain.JobQueued:
			summary.Failed++
			summary.Requeued++
		default:
			summary.Failed++
		}
		if out.err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("job %s: %v", out.jobID, out.err))
		}
	}
	summary.Duration = p.now().Sub(start).Milliseconds()
	p.logger.Info("batch processed",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"requeued", summary.Requeued,
		"duration_ms", summary.Duration,
	)
	return summary, nil
}

type jobOutcome struct {
	jobID string
	state domain.JobStatus
	err   error
}

// runJob holds a semaphore permit for the whole pipeline and converts panics
// into job failures so one job never takes down its siblings.
func (p *Processor) runJob(ctx context.Context, job domain.DeploymentJob) jobOutcome {
	out := jobOutcome{jobID: job.ID}
	started := p.now()
	err := p.sem.Execute(ctx, func(ctx context.Context) (err error) {
		p.metrics.inFlight.Set(float64(p.sem.InFlight()))
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("job panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return p.deploy(ctx, job)
	})
	p.metrics.inFlight.Set(float64(p.sem.InFlight()))
	p.metrics.jobDuration.Observe(p.now().Sub(started).Seconds())

	if err == nil {
		out.state = domain.JobCompleted
		p.metrics.jobs.WithLabelValues(string(domain.JobCompleted)).Inc()
		return out
	}
	out.err = err
	out.state = p.handleFailure(ctx, job, err)
	p.metrics.jobs.WithLabelValues(string(out.state)).Inc()
	return out
}

// deploy runs the per-job pipeline: site, export, archive, upload, poll,
// finalize.
func (p *Processor) deploy(ctx context.Context, job domain.DeploymentJob) error {
	log := p.logger.With("job_id", job.ID, "project_id", job.ProjectID)
	log.Info("deployment started", "attempt", job.AttemptCount+1, "max_attempts", job.Attempts())
	p.record(ctx, job, domain.LogInfo, "Deployment started", map[string]any{
		"attempt":      job.AttemptCount + 1,
		"max_attempts": job.Attempts(),
	})

	if job.PayloadErr != nil {
		return job.PayloadErr
	}

	project, err := p.deps.Projects.GetProjectByID(ctx, job.ProjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, job.ProjectID)
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	target := deploymentTarget(job.Payload, *project, p.platformDomain)
	if target == "" {
		return ErrNoDeploymentDomain
	}
	site, err := p.deps.Sites.PrepareProjectDeployment(ctx, project.ID, target)
	if err != nil {
		return fmt.Errorf("prepare site: %w", err)
	}
	p.record(ctx, job, domain.LogInfo, "Hosting site ready", map[string]any{
		"site_id":     site.SiteID,
		"site_name":   site.SiteName,
		"is_new_site": site.IsNewSite,
	})

	deploying := domain.ProjectDeploying
	if err := p.deps.Projects.UpdateProjectHosting(ctx, domain.ProjectHostingUpdate{
		ProjectID:        project.ID,
		DeploymentStatus: &deploying,
		DeploymentURL:    &site.DeploymentURL,
	}); err != nil {
		return fmt.Errorf("update project deployment url: %w", err)
	}

	export, source, err := p.export(ctx, job)
	if err != nil {
		return err
	}
	p.record(ctx, job, domain.LogInfo, "Site exported", map[string]any{
		"source": source,
		"pages":  len(export.Pages),
		"assets": len(export.Assets),
	})

	archive, err := bundle.Package(export)
	if err != nil {
		return fmt.Errorf("package site: %w", err)
	}
	if p.deps.Archives != nil {
		if path, err := p.deps.Archives.Save(job.ID, archive); err != nil {
			log.Warn("failed to keep archive copy", "error", err)
		} else {
			log.Debug("archive stored", "path", path)
		}
	}
	p.record(ctx, job, domain.LogInfo, "Archive packaged", map[string]any{"bytes": len(archive)})

	upload, err := p.deps.Deployer.DeployZip(ctx, site.SiteID, archive)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	p.record(ctx, job, domain.LogInfo, "Archive uploaded", map[string]any{"deploy_id": upload.ID, "state": upload.State})

	final, err := p.waitForDeploy(ctx, site.SiteID, upload)
	if err != nil {
		return err
	}

	liveURL := liveURL(site, final)
	now := p.now().UTC()
	deployed := domain.ProjectDeployed
	if err := p.deps.Projects.UpdateProjectHosting(ctx, domain.ProjectHostingUpdate{
		ProjectID:        project.ID,
		DeploymentStatus: &deployed,
		DeploymentURL:    &liveURL,
		LastDeployedAt:   &now,
	}); err != nil {
		return fmt.Errorf("record deployment on project: %w", err)
	}

	payload := job.Payload
	payload.NetlifySiteID = site.SiteID
	payload.Netlify = &domain.JobDeployMeta{
		SiteID:     site.SiteID,
		SiteName:   site.SiteName,
		DeployID:   final.ID,
		DeployURL:  firstNonEmpty(final.DeployURL, final.SSLURL, final.URL),
		IsNewSite:  site.IsNewSite,
		DeployedAt: now,
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	if err := p.deps.Jobs.UpdateJob(ctx, domain.JobUpdate{
		JobID:       job.ID,
		Status:      domain.JobCompleted,
		CompletedAt: &now,
		LiveURL:     &liveURL,
		Payload:     rawPayload,
	}); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	log.Info("deployment live", "url", liveURL, "deploy_id", final.ID)
	p.record(ctx, job, domain.LogInfo, "Deployment live", map[string]any{"url": liveURL, "deploy_id": final.ID})
	return nil
}

// export prefers the bundle embedded in the job payload over generating one.
func (p *Processor) export(ctx context.Context, job domain.DeploymentJob) (*domain.ExportResult, string, error) {
	if job.Payload.HasExport() {
		return job.Payload.ExportResult, "payload", nil
	}
	result, err := p.deps.Generator.GenerateStaticSite(ctx, job.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("generate site: %w", err)
	}
	return result, "generator", nil
}

// waitForDeploy polls until the deploy leaves the in-progress states or the
// poll budget is spent.
func (p *Processor) waitForDeploy(ctx context.Context, siteID string, deploy *netlify.Deploy) (*netlify.Deploy, error) {
	current := deploy
	for polls := 0; ; polls++ {
		switch {
		case current.State == DeployReady:
			return current, nil
		case !inProgressStates[current.State]:
			detail := current.ErrorMessage
			if detail == "" {
				detail = "no error message reported"
			}
			if current.State == DeployError {
				return nil, fmt.Errorf("%w: build error on deploy %s: %s", ErrDeployFailed, current.ID, detail)
			}
			return nil, fmt.Errorf("%w: deploy %s ended in state %q: %s", ErrDeployFailed, current.ID, current.State, detail)
		case polls >= p.maxPolls:
			waited := time.Duration(p.maxPolls) * p.pollInterval
			return nil, fmt.Errorf("%w: deploy %s still %q after %s", ErrDeployTimeout, current.ID, current.State, waited)
		}

		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return nil, err
		}
		next, err := p.deps.Deployer.GetDeploy(ctx, siteID, current.ID)
		if err != nil {
			return nil, fmt.Errorf("poll deploy %s: %w", current.ID, err)
		}
		p.metrics.polls.Inc()
		current = next
	}
}

// handleFailure reschedules the job with backoff or fails it for good and
// returns the resulting state.
func (p *Processor) handleFailure(ctx context.Context, job domain.DeploymentJob, cause error) domain.JobStatus {
	log := p.logger.With("job_id", job.ID, "project_id", job.ProjectID)
	now := p.now().UTC()
	message := truncate(cause.Error(), maxErrorMessage)
	attempts := job.AttemptCount + 1

	if errors.Is(cause, domain.ErrValidation) || attempts >= job.Attempts() {
		log.Error("deployment failed", "attempt", attempts, "max_attempts", job.Attempts(), "error", cause)
		if err := p.deps.Jobs.UpdateJob(ctx, domain.JobUpdate{
			JobID:        job.ID,
			Status:       domain.JobFailed,
			AttemptCount: &attempts,
			ErrorMessage: &message,
			CompletedAt:  &now,
		}); err != nil {
			log.Error("failed to mark job failed", "error", err)
		}
		failed := domain.ProjectFailed
		if err := p.deps.Projects.UpdateProjectHosting(ctx, domain.ProjectHostingUpdate{
			ProjectID:        job.ProjectID,
			DeploymentStatus: &failed,
		}); err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Warn("failed to mark project deployment failed", "error", err)
		}
		p.record(ctx, job, domain.LogError, "Deployment failed: "+message, map[string]any{
			"attempt":      attempts,
			"max_attempts": job.Attempts(),
			"retryable":    !errors.Is(cause, domain.ErrValidation),
		})
		return domain.JobFailed
	}

	retryAt := now.Add(p.backoff.Delay(job.AttemptCount))
	log.Warn("deployment attempt failed, rescheduling", "attempt", attempts, "retry_at", retryAt, "error", cause)
	if err := p.deps.Jobs.UpdateJob(ctx, domain.JobUpdate{
		JobID:          job.ID,
		Status:         domain.JobQueued,
		AttemptCount:   &attempts,
		ErrorMessage:   &message,
		CreatedAt:      &retryAt,
		ClearStartedAt: true,
	}); err != nil {
		log.Error("failed to reschedule job", "error", err)
	}
	p.record(ctx, job, domain.LogWarning, "Deployment attempt failed: "+message, map[string]any{
		"attempt":  attempts,
		"retry_at": retryAt.Format(time.RFC3339),
	})
	return domain.JobQueued
}

// Run calls ProcessBatch on every tick until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("queue loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue loop stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("batch failed", "error", err)
			}
		}
	}
}

func (p *Processor) record(ctx context.Context, job domain.DeploymentJob, level, message string, metadata map[string]any) {
	if p.deps.Logs == nil {
		return
	}
	p.deps.Logs.Record(ctx, job, level, message, metadata)
}

// deploymentTarget picks the domain to publish on: the job's explicit
// domain, then the project's, then the project subdomain under the platform
// domain.
func deploymentTarget(payload domain.JobPayload, project domain.Project, platformDomain string) string {
	if d := strings.TrimSpace(payload.DeploymentDomain); d != "" {
		return d
	}
	if d := strings.TrimSpace(project.DeploymentDomain); d != "" {
		return d
	}
	sub := strings.TrimSpace(payload.Subdomain)
	if sub == "" && project.Subdomain != nil {
		sub = strings.TrimSpace(*project.Subdomain)
	}
	if sub == "" || platformDomain == "" {
		return ""
	}
	return sub + "." + platformDomain
}

func liveURL(site *hosting.Deployment, deploy *netlify.Deploy) string {
	return firstNonEmpty(site.DeploymentURL, deploy.SSLURL, deploy.URL, site.SiteURL)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate caps s at max bytes without splitting a rune. The result is
// always valid UTF-8 since it ends up in text columns.
func truncate(s string, max int) string {
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.ToValidUTF8(s, "")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
