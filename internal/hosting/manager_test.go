package hosting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/netlify"
	"github.com/splax/localvercel/sites/internal/repository"
)

type fakeSites struct {
	mu        sync.Mutex
	sites     map[string]*netlify.Site
	created   int
	deleted   []string
	updates   []netlify.SiteRequest
	updateErr error
}

func newFakeSites() *fakeSites {
	return &fakeSites{sites: map[string]*netlify.Site{}}
}

func (f *fakeSites) CreateSite(_ context.Context, req netlify.SiteRequest) (*netlify.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	site := &netlify.Site{ID: fmt.Sprintf("site-%d", f.created), Name: req.Name, SSLURL: "https://" + req.Name + ".netlify.app"}
	f.sites[site.ID] = site
	cp := *site
	return &cp, nil
}

func (f *fakeSites) GetSite(_ context.Context, id string) (*netlify.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	site, ok := f.sites[id]
	if !ok {
		return nil, fmt.Errorf("get site %s: %w", id, netlify.ErrSiteNotFound)
	}
	cp := *site
	return &cp, nil
}

func (f *fakeSites) UpdateSite(_ context.Context, id string, req netlify.SiteRequest) (*netlify.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	site, ok := f.sites[id]
	if !ok {
		return nil, netlify.ErrSiteNotFound
	}
	site.CustomDomain = req.CustomDomain
	cp := *site
	return &cp, nil
}

func (f *fakeSites) DeleteSite(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if _, ok := f.sites[id]; !ok {
		return netlify.ErrSiteNotFound
	}
	delete(f.sites, id)
	return nil
}

type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

func (f *fakeProjects) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) UpdateProjectHosting(_ context.Context, u domain.ProjectHostingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[u.ProjectID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ClearSite {
		p.NetlifySiteID = nil
		p.NetlifySiteName = nil
	}
	if u.NetlifySiteID != nil {
		id := *u.NetlifySiteID
		p.NetlifySiteID = &id
	}
	if u.NetlifySiteName != nil {
		name := *u.NetlifySiteName
		p.NetlifySiteName = &name
	}
	return nil
}

const projectID = "3f2b9c1d-aaaa-bbbb-cccc-1234567890ab"

func newTestManager() (*Manager, *fakeSites, *fakeProjects) {
	sites := newFakeSites()
	projects := &fakeProjects{projects: map[string]*domain.Project{
		projectID: {ID: projectID, ProjectName: "Joe's Pizza & Co"},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(sites, projects, "wondrousdigital.com", log), sites, projects
}

func TestPrepareRejectsPlatformDomain(t *testing.T) {
	m, sites, _ := newTestManager()
	for _, raw := range []string{"wondrousdigital.com", "www.wondrousdigital.com", "https://WWW.wondrousdigital.com/", "http://wondrousdigital.com/path"} {
		_, err := m.PrepareProjectDeployment(context.Background(), projectID, raw)
		if !errors.Is(err, ErrPlatformDomain) || !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrPlatformDomain, got %v", raw, err)
		}
	}
	if sites.created != 0 {
		t.Fatal("no site may be created for a rejected domain")
	}
}

func TestPrepareRejectsMalformedDomain(t *testing.T) {
	m, _, _ := newTestManager()
	for _, raw := range []string{"", "localhost", "bad_domain.com", "-x.com", "a..com", "https://"} {
		if _, err := m.PrepareProjectDeployment(context.Background(), projectID, raw); !errors.Is(err, ErrInvalidDomain) {
			t.Fatalf("%q: expected ErrInvalidDomain, got %v", raw, err)
		}
	}
}

func TestPrepareCreatesOnceThenReuses(t *testing.T) {
	m, sites, projects := newTestManager()
	ctx := context.Background()

	first, err := m.PrepareProjectDeployment(ctx, projectID, "https://joes.wondrousdigital.com")
	if err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	if !first.IsNewSite || first.SiteName != "joe-s-pizza-co-3f2b9c1d" {
		t.Fatalf("unexpected first deployment %+v", first)
	}
	if first.DeploymentURL != "https://joes.wondrousdigital.com" || first.DefaultDomain != "joe-s-pizza-co-3f2b9c1d.netlify.app" {
		t.Fatalf("unexpected urls %+v", first)
	}
	if got := projects.projects[projectID].NetlifySiteID; got == nil || *got != first.SiteID {
		t.Fatalf("site id not recorded on project: %v", got)
	}

	second, err := m.PrepareProjectDeployment(ctx, projectID, "joes.wondrousdigital.com")
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if second.IsNewSite || second.SiteID != first.SiteID {
		t.Fatalf("expected reuse of %s, got %+v", first.SiteID, second)
	}
	if sites.created != 1 {
		t.Fatalf("expected one site, created %d", sites.created)
	}
	if len(sites.updates) != 1 {
		t.Fatalf("domain unchanged, expected a single binding, got %d", len(sites.updates))
	}
}

func TestPrepareUpdatesChangedDomain(t *testing.T) {
	m, sites, _ := newTestManager()
	ctx := context.Background()
	if _, err := m.PrepareProjectDeployment(ctx, projectID, "old.example.com"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := m.PrepareProjectDeployment(ctx, projectID, "new.example.com"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got := sites.sites["site-1"].CustomDomain; got != "new.example.com" {
		t.Fatalf("expected domain to be updated, got %q", got)
	}
}

func TestPrepareSelfHealsMissingSite(t *testing.T) {
	m, sites, projects := newTestManager()
	stale := "site-gone"
	projects.projects[projectID].NetlifySiteID = &stale

	dep, err := m.PrepareProjectDeployment(context.Background(), projectID, "joes.example.com")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !dep.IsNewSite || dep.SiteID == stale || sites.created != 1 {
		t.Fatalf("expected a replacement site, got %+v", dep)
	}
	if got := *projects.projects[projectID].NetlifySiteID; got != dep.SiteID {
		t.Fatalf("project still points at %s", got)
	}
}

func TestPrepareToleratesDomainBindingFailure(t *testing.T) {
	m, sites, _ := newTestManager()
	sites.updateErr = &netlify.APIError{Status: 422, Message: "custom_domain already in use"}

	dep, err := m.PrepareProjectDeployment(context.Background(), projectID, "taken.example.com")
	if err != nil {
		t.Fatalf("binding failure must not abort site creation: %v", err)
	}
	if !dep.IsNewSite || dep.SiteID == "" {
		t.Fatalf("unexpected deployment %+v", dep)
	}
}

func TestPrepareUnknownProject(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.PrepareProjectDeployment(context.Background(), "nope", "a.example.com")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestDeleteProjectSite(t *testing.T) {
	m, sites, projects := newTestManager()
	ctx := context.Background()
	dep, err := m.PrepareProjectDeployment(ctx, projectID, "joes.example.com")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := m.DeleteProjectSite(ctx, projectID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := sites.sites[dep.SiteID]; ok {
		t.Fatal("site still exists upstream")
	}
	if projects.projects[projectID].HasSite() {
		t.Fatal("project still records a site")
	}
	if err := m.DeleteProjectSite(ctx, projectID); err != nil {
		t.Fatalf("deleting a project without site should be a no-op: %v", err)
	}
}

func TestSiteName(t *testing.T) {
	cases := []struct{ name, id, want string }{
		{"Acme Studio", "12345678-90ab", "acme-studio-12345678"},
		{"", "abcdef0123", "site-abcdef01"},
		{"Über Café!!", "x", "ber-caf-x"},
	}
	for _, tc := range cases {
		if got := SiteName(tc.name, tc.id); got != tc.want {
			t.Fatalf("SiteName(%q, %q) = %q, want %q", tc.name, tc.id, got, tc.want)
		}
	}
}
