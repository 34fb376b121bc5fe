package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/hosting"
	"github.com/splax/localvercel/sites/internal/repository"
	"github.com/splax/localvercel/sites/internal/service/logs"
	"github.com/splax/localvercel/sites/internal/service/queue"
	"github.com/splax/localvercel/sites/internal/ws"
)

type processorStub struct {
	mu      sync.Mutex
	calls   int
	summary queue.Summary
	err     error
	panic   any
}

func (p *processorStub) ProcessBatch(context.Context) (queue.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.panic != nil {
		panic(p.panic)
	}
	return p.summary, p.err
}

type siteRemoverStub struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (s *siteRemoverStub) DeleteProjectSite(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, projectID)
	return nil
}

type jobsStub struct {
	jobs map[string]*domain.DeploymentJob
	err  error
}

func (j *jobsStub) GetJobByID(_ context.Context, id string) (*domain.DeploymentJob, error) {
	if j.err != nil {
		return nil, j.err
	}
	job, ok := j.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

type logRepoStub struct {
	mu         sync.Mutex
	entries    []domain.DeploymentLog
	lastLimit  int
	lastOffset int
	// beforeList runs once, outside the lock, ahead of the next list.
	beforeList func()
}

func (l *logRepoStub) AppendLog(_ context.Context, entry domain.DeploymentLog) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.ID = int64(len(l.entries) + 1)
	l.entries = append(l.entries, entry)
	return entry.ID, nil
}

func (l *logRepoStub) ListLogsByDeployment(_ context.Context, id string, limit, offset int) ([]domain.DeploymentLog, error) {
	l.mu.Lock()
	hook := l.beforeList
	l.beforeList = nil
	l.mu.Unlock()
	if hook != nil {
		hook()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastLimit, l.lastOffset = limit, offset
	var out []domain.DeploymentLog
	for _, e := range l.entries {
		if e.DeploymentID == id {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type routerFixture struct {
	router    *Router
	processor *processorStub
	jobs      *jobsStub
	logRepo   *logRepoStub
	logs      logs.Service
	hub       *ws.Hub
}

func newRouterFixture(t *testing.T, opts Options) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &routerFixture{
		processor: &processorStub{summary: queue.Summary{Errors: []string{}}},
		jobs:      &jobsStub{jobs: map[string]*domain.DeploymentJob{}},
		logRepo:   &logRepoStub{},
		hub:       ws.NewHub(),
	}
	f.logs = logs.New(f.logRepo, f.hub, logger)
	f.router = NewRouter(logger, f.processor, f.jobs, f.logs, nil, opts)
	t.Cleanup(func() {
		f.router.Close()
		f.hub.Close()
	})
	return f
}

func (f *routerFixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	return f.doFrom("192.0.2.1:1234", method, target, header)
}

func (f *routerFixture) doFrom(remoteAddr, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestOptionsPreflight(t *testing.T) {
	f := newRouterFixture(t, Options{})
	rec := f.do(http.MethodOptions, "/process-deployment-queue", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %v", rec.Header())
	}
	if f.processor.calls != 0 {
		t.Fatal("preflight must not process the queue")
	}
}

func TestProcessQueueReturnsSummary(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.processor.summary = queue.Summary{Processed: 2, Succeeded: 1, Failed: 1, Errors: []string{"job b: boom"}, Duration: 42}

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := f.do(method, "/process-deployment-queue", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: missing CORS header", method)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["processed"] != float64(2) || body["succeeded"] != float64(1) || body["failed"] != float64(1) || body["duration"] != float64(42) {
			t.Fatalf("unexpected body: %v", body)
		}
		if errs, ok := body["errors"].([]any); !ok || len(errs) != 1 {
			t.Fatalf("unexpected errors field: %v", body["errors"])
		}
	}
}

func TestProcessQueueFailure(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.processor.err = errors.New("claim jobs: connection refused")
	f.processor.summary = queue.Summary{Errors: []string{}, Duration: 3}

	rec := f.do(http.MethodPost, "/process-deployment-queue", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "claim jobs: connection refused" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
	if body["processed"] != float64(0) || body["duration"] != float64(3) {
		t.Fatalf("expected summary fields alongside error, got %v", body)
	}
}

func TestProcessQueueRecoversPanic(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.processor.panic = "nil map write"

	rec := f.do(http.MethodPost, "/process-deployment-queue", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "panic: nil map write" || body["processed"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
	if errs, ok := body["errors"].([]any); !ok || len(errs) != 0 {
		t.Fatalf("expected empty errors list, got %v", body["errors"])
	}
}

func TestProcessQueueRejectsOtherMethods(t *testing.T) {
	f := newRouterFixture(t, Options{})
	rec := f.do(http.MethodPut, "/process-deployment-queue", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestProcessQueueInvokeToken(t *testing.T) {
	f := newRouterFixture(t, Options{InvokeToken: "s3cret"})

	if rec := f.do(http.MethodPost, "/process-deployment-queue", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/process-deployment-queue", http.Header{"X-Queue-Token": {"wrong!"}}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/process-deployment-queue", http.Header{"Authorization": {"Bearer s3cret"}}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/process-deployment-queue", http.Header{"X-Queue-Token": {"s3cret"}}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with header token, got %d", rec.Code)
	}
	if f.processor.calls != 2 {
		t.Fatalf("expected 2 processed batches, got %d", f.processor.calls)
	}
}

func TestProcessQueueRateLimited(t *testing.T) {
	f := newRouterFixture(t, Options{ProcessRateLimit: 2})

	for i := 0; i < 2; i++ {
		rec := f.do(http.MethodPost, "/process-deployment-queue", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing rate headers: %v", rec.Header())
		}
	}
	rec := f.do(http.MethodPost, "/process-deployment-queue", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected no remaining budget, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if f.processor.calls != 2 {
		t.Fatalf("expected limited request to skip processing, got %d calls", f.processor.calls)
	}
}

func TestProcessRateLimitIgnoresForwardedHeader(t *testing.T) {
	f := newRouterFixture(t, Options{ProcessRateLimit: 1})

	if rec := f.do(http.MethodPost, "/process-deployment-queue", http.Header{"X-Forwarded-For": {"198.51.100.1"}}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/process-deployment-queue", http.Header{"X-Forwarded-For": {"198.51.100.2"}}); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For must not reset the budget, got %d", rec.Code)
	}
	if rec := f.doFrom("192.0.2.9:1234", http.MethodPost, "/process-deployment-queue", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected another peer to have its own budget, got %d", rec.Code)
	}
}

func TestProcessRateLimitBehindTrustedProxy(t *testing.T) {
	f := newRouterFixture(t, Options{ProcessRateLimit: 1, TrustProxy: true})
	proxy := "10.0.0.1:443"

	first := http.Header{"X-Forwarded-For": {"spoofed, 203.0.113.5"}}
	if rec := f.doFrom(proxy, http.MethodPost, "/process-deployment-queue", first); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	other := http.Header{"X-Forwarded-For": {"203.0.113.6"}}
	if rec := f.doFrom(proxy, http.MethodPost, "/process-deployment-queue", other); rec.Code != http.StatusOK {
		t.Fatalf("expected separate budget per forwarded client, got %d", rec.Code)
	}
	again := http.Header{"X-Forwarded-For": {"rotated, 203.0.113.5"}}
	if rec := f.doFrom(proxy, http.MethodPost, "/process-deployment-queue", again); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("caller supplied hops must not reset the budget, got %d", rec.Code)
	}
}

func TestDeleteProjectSite(t *testing.T) {
	sites := &siteRemoverStub{}
	f := newRouterFixture(t, Options{InvokeToken: "s3cret", Sites: sites})
	auth := http.Header{"X-Queue-Token": {"s3cret"}}

	if rec := f.do(http.MethodDelete, "/projects/proj-1/site", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/projects/proj-1/site", auth); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/projects/proj-1", auth); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}

	rec := f.do(http.MethodDelete, "/projects/proj-1/site", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["project_id"] != "proj-1" || body["deleted"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(sites.deleted) != 1 || sites.deleted[0] != "proj-1" {
		t.Fatalf("expected one deletion, got %v", sites.deleted)
	}

	sites.err = fmt.Errorf("%w: proj-2", hosting.ErrProjectNotFound)
	if rec := f.do(http.MethodDelete, "/projects/proj-2/site", auth); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown project, got %d", rec.Code)
	}
	sites.err = errors.New("netlify: 500")
	if rec := f.do(http.MethodDelete, "/projects/proj-1/site", auth); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on upstream failure, got %d", rec.Code)
	}
}

func TestDeleteProjectSiteDisabled(t *testing.T) {
	f := newRouterFixture(t, Options{})
	if rec := f.do(http.MethodDelete, "/projects/proj-1/site", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a site remover, got %d", rec.Code)
	}
}

func TestGetDeployment(t *testing.T) {
	f := newRouterFixture(t, Options{})
	live := "https://acme.example.com"
	f.jobs.jobs["job-1"] = &domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1", Status: domain.JobCompleted, LiveURL: &live}

	rec := f.do(http.MethodGet, "/deployments/job-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job domain.DeploymentJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != domain.JobCompleted || job.LiveURL == nil || *job.LiveURL != live {
		t.Fatalf("unexpected job: %+v", job)
	}

	if rec := f.do(http.MethodGet, "/deployments/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/deployments/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty id, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/deployments/job-1/unknown", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown subroute, got %d", rec.Code)
	}

	f.jobs.err = errors.New("db down")
	if rec := f.do(http.MethodGet, "/deployments/job-1", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestListDeploymentLogs(t *testing.T) {
	f := newRouterFixture(t, Options{})
	job := domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1"}
	for _, msg := range []string{"one", "two", "three"} {
		f.logs.Record(context.Background(), job, domain.LogInfo, msg, nil)
	}

	rec := f.do(http.MethodGet, "/deployments/job-1/logs?limit=2&offset=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []domain.DeploymentLog
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "two" || entries[1].Message != "three" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	rec = f.do(http.MethodGet, "/deployments/job-1/logs?limit=5000&offset=-3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.logRepo.lastLimit != maxLogLimit || f.logRepo.lastOffset != 0 {
		t.Fatalf("expected clamped paging, got limit=%d offset=%d", f.logRepo.lastLimit, f.logRepo.lastOffset)
	}

	rec = f.do(http.MethodGet, "/deployments/other/logs", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
	if f.logRepo.lastLimit != defaultLogLimit {
		t.Fatalf("expected default limit, got %d", f.logRepo.lastLimit)
	}
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, Options{DBHealth: func(context.Context) error { return nil }})
	rec := f.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f = newRouterFixture(t, Options{DBHealth: func(context.Context) error { return errors.New("connection refused") }})
	rec = f.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.do(http.MethodGet, "/healthz", nil)
	rec := f.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sites_http_requests_total") {
		t.Fatal("expected request counter in metrics output")
	}
}

func waitForSubscribers(t *testing.T, hub *ws.Hub, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(id) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber registered for %s", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLogsWebsocketStreamsNewEntries(t *testing.T) {
	f := newRouterFixture(t, Options{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/deployments/job-1/logs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, f.hub, "job-1")

	f.logs.Record(context.Background(), domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1"}, domain.LogInfo, "Archive uploaded", map[string]any{"deploy_id": "d1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["message"] != "Archive uploaded" || payload["deployment_id"] != "job-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestLogsWebsocketUnknownPath(t *testing.T) {
	f := newRouterFixture(t, Options{})
	if rec := f.do(http.MethodGet, "/ws/deployments/job-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLogStreamReplaysAndFollows(t *testing.T) {
	f := newRouterFixture(t, Options{})
	job := domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1"}
	f.logs.Record(context.Background(), job, domain.LogInfo, "Deployment started", nil)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/deployments/job-1/logs/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				return line
			}
		}
	}

	if line := next(); !strings.Contains(line, "Deployment started") {
		t.Fatalf("expected replayed entry, got %q", line)
	}
	waitForSubscribers(t, f.hub, "job-1")
	f.logs.Record(context.Background(), job, domain.LogInfo, "Deployment live", nil)
	if line := next(); !strings.Contains(line, "Deployment live") {
		t.Fatalf("expected followed entry, got %q", line)
	}
}

func TestRedisRateLimiterSharesWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewRedisRateLimiter(client, logger)
	second := NewRedisRateLimiter(client, logger)

	if d := first.Allow("ip:1.2.3.4", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("unexpected first decision: %+v", d)
	}
	if d := second.Allow("ip:1.2.3.4", 2, time.Minute); !d.allowed || d.count != 2 {
		t.Fatalf("unexpected second decision: %+v", d)
	}
	if d := first.Allow("ip:1.2.3.4", 2, time.Minute); d.allowed {
		t.Fatalf("expected shared budget to be spent: %+v", d)
	}

	mr.FastForward(time.Minute + time.Second)
	if d := second.Allow("ip:1.2.3.4", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected new window after expiry: %+v", d)
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	limiter := NewRedisRateLimiter(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mr.Close()

	if d := limiter.Allow("ip:1.2.3.4", 1, time.Minute); !d.allowed {
		t.Fatal("expected requests to pass while redis is unavailable")
	}
}

func TestMemoryRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	defer rl.Close()

	if !rl.Allow("k", 1, time.Minute).allowed {
		t.Fatal("first call must pass")
	}
	if rl.Allow("k", 1, time.Minute).allowed {
		t.Fatal("second call must be limited")
	}
	now = now.Add(time.Minute + time.Millisecond)
	if !rl.Allow("k", 1, time.Minute).allowed {
		t.Fatal("call after window must pass")
	}
	now = now.Add(2 * time.Minute)
	rl.cleanup(now)
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries swept, got %d", len(rl.entries))
	}
}

func TestLogStreamKeepsEntriesWrittenDuringReplay(t *testing.T) {
	f := newRouterFixture(t, Options{})
	job := domain.DeploymentJob{ID: "job-1", ProjectID: "proj-1"}
	f.logs.Record(context.Background(), job, domain.LogInfo, "Deployment started", nil)
	// Written after the stream subscribed but before history is read, so it
	// reaches the stream both ways.
	f.logRepo.beforeList = func() {
		f.logs.Record(context.Background(), job, domain.LogInfo, "Hosting site ready", nil)
	}

	srv := httptest.NewServer(f.router)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/deployments/job-1/logs/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	next := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				return line
			}
		}
	}

	for _, want := range []string{"Deployment started", "Hosting site ready"} {
		if line := next(); !strings.Contains(line, want) {
			t.Fatalf("expected %q, got %q", want, line)
		}
	}
	f.logs.Record(context.Background(), job, domain.LogInfo, "Deployment live", nil)
	if line := next(); !strings.Contains(line, "Deployment live") {
		t.Fatalf("expected the next live entry without duplicates, got %q", line)
	}
}
