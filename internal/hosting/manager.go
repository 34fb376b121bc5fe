// Package hosting provisions and maintains the Netlify site backing each
// project. Every project owns exactly one site.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/netlify"
	"github.com/splax/localvercel/sites/internal/repository"
)

var (
	// ErrPlatformDomain rejects deploying onto the platform's own site.
	ErrPlatformDomain = fmt.Errorf("%w: deployment domain belongs to the platform", domain.ErrValidation)
	// ErrInvalidDomain rejects malformed deployment domains.
	ErrInvalidDomain = fmt.Errorf("%w: invalid deployment domain", domain.ErrValidation)
	// ErrProjectNotFound is returned when the project row does not exist.
	ErrProjectNotFound = fmt.Errorf("%w: project not found", domain.ErrValidation)
)

var domainExpr = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

const (
	defaultSiteSuffix = ".netlify.app"
	maxSiteSlug       = 40
)

// SiteAPI is the part of the Netlify client the manager needs.
type SiteAPI interface {
	CreateSite(ctx context.Context, req netlify.SiteRequest) (*netlify.Site, error)
	GetSite(ctx context.Context, siteID string) (*netlify.Site, error)
	UpdateSite(ctx context.Context, siteID string, req netlify.SiteRequest) (*netlify.Site, error)
	DeleteSite(ctx context.Context, siteID string) error
}

// Deployment describes the site a project deploys to.
type Deployment struct {
	SiteID        string `json:"site_id"`
	SiteName      string `json:"site_name"`
	SiteURL       string `json:"site_url"`
	DeploymentURL string `json:"deployment_url"`
	IsNewSite     bool   `json:"is_new_site"`
	DefaultDomain string `json:"default_domain"`
}

// Manager resolves, creates and tears down project sites.
type Manager struct {
	sites          SiteAPI
	projects       repository.ProjectRepository
	platformDomain string
	logger         *slog.Logger
}

// NewManager returns a hosting manager guarding platformDomain.
func NewManager(sites SiteAPI, projects repository.ProjectRepository, platformDomain string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sites:          sites,
		projects:       projects,
		platformDomain: strings.ToLower(strings.TrimSpace(platformDomain)),
		logger:         logger.With("component", "hosting"),
	}
}

// PrepareProjectDeployment returns the project's site, creating it when the
// project has none or its recorded site disappeared upstream, and binds
// deploymentURL as the site's custom domain.
func (m *Manager) PrepareProjectDeployment(ctx context.Context, projectID, deploymentURL string) (*Deployment, error) {
	host, err := m.ValidateDomain(deploymentURL)
	if err != nil {
		return nil, err
	}

	project, err := m.projects.GetProjectByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	if project.HasSite() {
		siteID := *project.NetlifySiteID
		site, err := m.sites.GetSite(ctx, siteID)
		switch {
		case errors.Is(err, netlify.ErrSiteNotFound):
			m.logger.Warn("recorded site missing upstream, provisioning a new one", "project_id", projectID, "site_id", siteID)
		case err != nil:
			return nil, fmt.Errorf("verify site %s: %w", siteID, err)
		default:
			if !strings.EqualFold(site.CustomDomain, host) {
				m.bindDomain(ctx, project.ID, site, host)
			}
			return deploymentFor(site, host, false), nil
		}
	}

	site, err := m.sites.CreateSite(ctx, netlify.SiteRequest{Name: SiteName(project.ProjectName, project.ID)})
	if err != nil {
		return nil, err
	}
	m.logger.Info("site created", "project_id", project.ID, "site_id", site.ID, "site_name", site.Name)

	if err := m.projects.UpdateProjectHosting(ctx, domain.ProjectHostingUpdate{
		ProjectID:       project.ID,
		NetlifySiteID:   &site.ID,
		NetlifySiteName: &site.Name,
	}); err != nil {
		return nil, fmt.Errorf("record site on project: %w", err)
	}

	m.bindDomain(ctx, project.ID, site, host)
	return deploymentFor(site, host, true), nil
}

// bindDomain sets the custom domain. Failure leaves the site reachable on
// its default domain, so it is only logged.
func (m *Manager) bindDomain(ctx context.Context, projectID string, site *netlify.Site, host string) {
	updated, err := m.sites.UpdateSite(ctx, site.ID, netlify.SiteRequest{CustomDomain: host})
	if err != nil {
		m.logger.Warn("custom domain binding failed", "project_id", projectID, "site_id", site.ID, "domain", host, "error", err)
		return
	}
	site.CustomDomain = updated.CustomDomain
	if site.CustomDomain == "" {
		site.CustomDomain = host
	}
	m.logger.Info("custom domain bound", "project_id", projectID, "site_id", site.ID, "domain", host)
}

// DeleteProjectSite removes the project's site upstream and clears the
// recorded hosting fields. A site that is already gone is not an error.
func (m *Manager) DeleteProjectSite(ctx context.Context, projectID string) error {
	project, err := m.projects.GetProjectByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if !project.HasSite() {
		return nil
	}
	siteID := *project.NetlifySiteID
	if err := m.sites.DeleteSite(ctx, siteID); err != nil && !errors.Is(err, netlify.ErrSiteNotFound) {
		return err
	}
	if err := m.projects.UpdateProjectHosting(ctx, domain.ProjectHostingUpdate{ProjectID: projectID, ClearSite: true}); err != nil {
		return fmt.Errorf("clear project site: %w", err)
	}
	m.logger.Info("site deleted", "project_id", projectID, "site_id", siteID)
	return nil
}

// ValidateDomain strips the protocol and path from raw and checks that the
// remaining host is well formed and not the platform's own domain.
func (m *Manager) ValidateDomain(raw string) (string, error) {
	host := NormalizeDomain(raw)
	if host == "" || !domainExpr.MatchString(host) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
	}
	if m.platformDomain != "" && (host == m.platformDomain || host == "www."+m.platformDomain) {
		return "", fmt.Errorf("%w: %s", ErrPlatformDomain, host)
	}
	return host, nil
}

// NormalizeDomain lowercases raw and drops scheme, path, port and a
// trailing dot.
func NormalizeDomain(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// SiteName derives the deterministic site name of a project:
// the slugged project name followed by the first 8 characters of its id.
func SiteName(projectName, projectID string) string {
	slug := domain.Slugify(projectName)
	if len(slug) > maxSiteSlug {
		slug = strings.TrimRight(slug[:maxSiteSlug], "-")
	}
	if slug == "" {
		slug = "site"
	}
	id := domain.Slugify(projectID)
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return slug
	}
	return slug + "-" + id
}

func deploymentFor(site *netlify.Site, host string, isNew bool) *Deployment {
	defaultDomain := site.DefaultDomain
	if defaultDomain == "" && site.Name != "" {
		defaultDomain = site.Name + defaultSiteSuffix
	}
	siteURL := site.SSLURL
	if siteURL == "" {
		siteURL = site.URL
	}
	if siteURL == "" && defaultDomain != "" {
		siteURL = "https://" + defaultDomain
	}
	return &Deployment{
		SiteID:        site.ID,
		SiteName:      site.Name,
		SiteURL:       siteURL,
		DeploymentURL: "https://" + host,
		IsNewSite:     isNew,
		DefaultDomain: defaultDomain,
	}
}
