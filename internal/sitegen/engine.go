// Package sitegen turns a project's published pages and sections into a
// static HTML/CSS bundle.
package sitegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/repository"
	"github.com/splax/localvercel/sites/internal/tpl"
)

var (
	// ErrProjectNotFound is returned when the project row does not exist.
	ErrProjectNotFound = fmt.Errorf("%w: project not found", domain.ErrValidation)
	// ErrNoContent is returned when a project has neither published pages
	// nor project-level sections.
	ErrNoContent = fmt.Errorf("%w: project has no published content", domain.ErrValidation)
)

const (
	mainCSSPath       = "css/main.css"
	componentsCSSPath = "css/components.css"
	hostingConfigPath = "netlify.toml"
)

// Engine generates static sites. Section templates are cached for the
// lifetime of the instance, including the absence of a template.
type Engine struct {
	projects repository.ProjectRepository
	content  repository.ContentRepository
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	templates map[string]string
}

// New returns a site generator.
func New(projects repository.ProjectRepository, content repository.ContentRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		projects:  projects,
		content:   content,
		logger:    logger.With("component", "sitegen"),
		now:       time.Now,
		templates: make(map[string]string),
	}
}

// GenerateStaticSite renders every published page of the project together
// with its stylesheets and manifest.
func (e *Engine) GenerateStaticSite(ctx context.Context, projectID string) (*domain.ExportResult, error) {
	var (
		project *domain.Project
		styles  domain.SiteStyles
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.projects.GetProjectByID(gctx, projectID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		project = p
		return nil
	})
	g.Go(func() error {
		s, err := e.content.GetSiteStyles(gctx, projectID)
		if err != nil {
			return fmt.Errorf("load site styles: %w", err)
		}
		styles = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if styles == nil {
		styles = domain.SiteStyles{}
	}

	pages, err := e.loadPages(ctx, project)
	if err != nil {
		return nil, err
	}

	result := &domain.ExportResult{}
	for _, page := range pages {
		rendered := make([]string, 0, len(page.Sections))
		for _, section := range page.Sections {
			rendered = append(rendered, e.renderSection(ctx, section, styles, project.ProjectName))
		}
		result.Pages = append(result.Pages, domain.ExportPage{
			Filename:   pageFilename(page),
			Content:    document(page.PageName, project.ProjectName, rendered),
			Slug:       page.Slug,
			IsHomepage: page.IsHomepage,
		})
	}

	result.Assets = []domain.ExportAsset{
		{Path: mainCSSPath, Content: mainCSS(styles), Type: domain.AssetCSS},
		{Path: componentsCSSPath, Content: componentsCSS, Type: domain.AssetCSS},
	}
	if len(result.Pages) > 1 {
		result.Assets = append(result.Assets, domain.ExportAsset{
			Path:    hostingConfigPath,
			Content: hostingConfig(result.Pages),
			Type:    domain.AssetOther,
		})
	}

	result.Manifest = domain.Manifest{
		ProjectID:   project.ID,
		ProjectName: project.ProjectName,
		ExportedAt:  e.now().UTC(),
		PageCount:   len(result.Pages),
		AssetCount:  len(result.Assets),
		ImageURLs:   collectImageURLs(pages),
	}

	e.logger.Info("static site generated",
		"project_id", project.ID,
		"pages", result.Manifest.PageCount,
		"assets", result.Manifest.AssetCount,
		"images", len(result.Manifest.ImageURLs),
	)
	return result, nil
}

// loadPages returns the published pages with their sections attached,
// synthesising a homepage from project-level sections when no pages exist.
func (e *Engine) loadPages(ctx context.Context, project *domain.Project) ([]domain.Page, error) {
	pages, err := e.content.ListPublishedPages(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	if len(pages) == 0 {
		sections, err := e.content.ListProjectSections(ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("list project sections: %w", err)
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoContent, project.ID)
		}
		sortSections(sections)
		return []domain.Page{{
			ID:         project.ID,
			ProjectID:  project.ID,
			PageName:   "Home",
			Slug:       "index",
			IsHomepage: true,
			Status:     "published",
			Sections:   sections,
		}}, nil
	}

	sort.SliceStable(pages, func(i, j int) bool { return pages[i].OrderIndex < pages[j].OrderIndex })

	var pending []string
	for _, page := range pages {
		if len(page.Sections) == 0 {
			pending = append(pending, page.ID)
		}
	}
	var byPage map[string][]domain.Section
	if len(pending) > 0 {
		byPage, err = e.content.ListSectionsByPages(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("list page sections: %w", err)
		}
	}
	for i := range pages {
		if len(pages[i].Sections) == 0 {
			pages[i].Sections = byPage[pages[i].ID]
		}
		sortSections(pages[i].Sections)
	}

	normalizePages(pages)
	return pages, nil
}

// normalizePages leaves exactly one homepage and gives every other page a
// usable, unique slug.
func normalizePages(pages []domain.Page) {
	home := -1
	for i := range pages {
		if pages[i].IsHomepage && home < 0 {
			home = i
			continue
		}
		pages[i].IsHomepage = false
	}
	if home < 0 {
		home = 0
		pages[0].IsHomepage = true
	}

	used := map[string]bool{"index": true}
	for i := range pages {
		if i == home {
			pages[i].Slug = "index"
			continue
		}
		slug := domain.Slugify(pages[i].Slug)
		if slug == "" {
			slug = domain.Slugify(pages[i].PageName)
		}
		if slug == "" || slug == "index" {
			slug = "page"
		}
		candidate := slug
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s-%d", slug, n)
		}
		used[candidate] = true
		pages[i].Slug = candidate
	}
}

func sortSections(sections []domain.Section) {
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].OrderIndex < sections[j].OrderIndex })
}

func pageFilename(page domain.Page) string {
	if page.IsHomepage {
		return "index.html"
	}
	return page.Slug + ".html"
}

func (e *Engine) renderSection(ctx context.Context, section domain.Section, styles domain.SiteStyles, projectName string) string {
	if tmpl := e.sectionTemplate(ctx, section.Type); tmpl != "" {
		data := tpl.Enrich(section.Content)
		data["_siteStyles"] = map[string]any(styles)
		data["_sectionType"] = section.Type
		data["_settings"] = section.Settings
		return tpl.Render(tmpl, data)
	}
	return renderBuiltin(section, projectName)
}

// sectionTemplate returns the stored template for sectionType, or "" when
// the built-in renderer should be used. Lookup errors are not cached.
func (e *Engine) sectionTemplate(ctx context.Context, sectionType string) string {
	e.mu.Lock()
	tmpl, ok := e.templates[sectionType]
	e.mu.Unlock()
	if ok {
		return tmpl
	}

	stored, err := e.content.GetSectionTemplate(ctx, sectionType)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		tmpl = ""
	case err != nil:
		e.logger.Warn("section template lookup failed, using built-in renderer", "section_type", sectionType, "error", err)
		return ""
	default:
		tmpl = stored.HTMLTemplate
	}

	e.mu.Lock()
	e.templates[sectionType] = tmpl
	e.mu.Unlock()
	return tmpl
}
