package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/hosting"
	"github.com/splax/localvercel/sites/internal/repository"
	"github.com/splax/localvercel/sites/internal/service/logs"
	"github.com/splax/localvercel/sites/internal/service/queue"
	"github.com/splax/localvercel/sites/internal/ws"
)

// QueueProcessor runs one batch of the deployment queue.
type QueueProcessor interface {
	ProcessBatch(ctx context.Context) (queue.Summary, error)
}

// JobReader loads deployment jobs by id.
type JobReader interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.DeploymentJob, error)
}

// SiteRemover tears down the hosted site of a project.
type SiteRemover interface {
	DeleteProjectSite(ctx context.Context, projectID string) error
}

// Options tune the router. Zero values disable the feature.
type Options struct {
	// InvokeToken, when set, must accompany queue processing and site
	// removal requests.
	InvokeToken string
	// ProcessRateLimit caps processing requests per client per minute.
	ProcessRateLimit int
	// TrustProxy keys clients on the last X-Forwarded-For hop instead of
	// the socket address. Enable only behind a proxy that appends it.
	TrustProxy   bool
	Sites        SiteRemover
	DBHealth     func(context.Context) error
	SSEHeartbeat time.Duration
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	queue        QueueProcessor
	jobs         JobReader
	logs         logs.Service
	sites        SiteRemover
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	invokeToken  string
	processLimit int
	trustProxy   bool
	heartbeat    time.Duration
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	defaultLogLimit    = 100
	maxLogLimit        = 1000
	replayLimit        = 500
	sseRetry           = 3 * time.Second
	defaultHeartbeat   = 15 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, processor QueueProcessor, jobs JobReader, logSvc logs.Service, limiter RateLimiter, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger.With("component", "http"),
		queue:  processor,
		jobs:   jobs,
		logs:   logSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		invokeToken:  strings.TrimSpace(opts.InvokeToken),
		processLimit: opts.ProcessRateLimit,
		trustProxy:   opts.TrustProxy,
		sites:        opts.Sites,
		heartbeat:    opts.SSEHeartbeat,
		dbHealth:     opts.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP answers CORS preflights and delegates to the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w.Header())
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/process-deployment-queue", r.audit("/process-deployment-queue",
		r.withRateLimit("/process-deployment-queue", r.processLimit, rateWindowDefault, r.handleProcessQueue)))
	r.mux.HandleFunc("/deployments/", r.audit("/deployments", r.handleDeployments))
	r.mux.HandleFunc("/projects/", r.audit("/projects", r.handleProjects))
	r.mux.HandleFunc("/ws/deployments/", r.audit("/ws/deployments", r.handleLogsWS))
}

func (r *Router) handleProcessQueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyInvokeToken(w, req) {
		return
	}
	var summary queue.Summary
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("queue processing panicked", "panic", rec, "stack", string(debug.Stack()))
			writeProcessFailure(w, summary, fmt.Errorf("panic: %v", rec))
		}
	}()
	summary, err := r.queue.ProcessBatch(req.Context())
	if err != nil {
		r.logger.Error("queue processing failed", "error", err)
		writeProcessFailure(w, summary, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeProcessFailure(w http.ResponseWriter, summary queue.Summary, err error) {
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	writeJSON(w, http.StatusInternalServerError, struct {
		queue.Summary
		Error string `json:"error"`
	}{Summary: summary, Error: err.Error()})
}

// handleProjects serves DELETE /projects/{id}/site.
func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	projectID, rest, _ := strings.Cut(strings.Trim(strings.TrimPrefix(req.URL.Path, "/projects/"), "/"), "/")
	if projectID == "" || rest != "site" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if r.sites == nil {
		writeError(w, http.StatusServiceUnavailable, "site management disabled")
		return
	}
	if !r.verifyInvokeToken(w, req) {
		return
	}
	err := r.sites.DeleteProjectSite(req.Context(), projectID)
	switch {
	case errors.Is(err, hosting.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "project not found")
	case err != nil:
		r.logger.Error("delete project site failed", "project_id", projectID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to delete site")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"project_id": projectID, "deleted": true})
	}
}

// handleDeployments serves /deployments/{id}, /deployments/{id}/logs and
// /deployments/{id}/logs/stream.
func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, "/deployments/"), "/"), "/")
	if parts[0] == "" {
		r.notFound(w)
		return
	}
	jobID := parts[0]
	switch {
	case len(parts) == 1:
		r.handleJob(w, req, jobID)
	case len(parts) == 2 && parts[1] == "logs":
		r.handleLogList(w, req, jobID)
	case len(parts) == 3 && parts[1] == "logs" && parts[2] == "stream":
		r.handleLogStream(w, req, jobID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleJob(w http.ResponseWriter, req *http.Request, jobID string) {
	job, err := r.jobs.GetJobByID(req.Context(), jobID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}
	if err != nil {
		r.logger.Error("load deployment failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load deployment")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (r *Router) handleLogList(w http.ResponseWriter, req *http.Request, jobID string) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	entries, err := r.logs.List(req.Context(), jobID, limit, offset)
	if err != nil {
		r.logger.Error("list deployment logs failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if entries == nil {
		entries = []domain.DeploymentLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleLogStream replays stored entries as Server-Sent Events, then follows
// new ones until the client disconnects.
func (r *Router) handleLogStream(w http.ResponseWriter, req *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	hub := r.logs.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "log streaming disabled")
		return
	}

	// Subscribe before reading history; entries written in between wait in
	// the gate and are dropped there if the replay already carried them.
	client := ws.NewSSEClient(w, flusher, "log", r.logger)
	gate := ws.NewReplayGate(client)
	hub.Register(jobID, gate)
	defer func() {
		hub.Unregister(jobID, gate)
		client.Close()
	}()

	history, err := r.logs.List(req.Context(), jobID, replayLimit, 0)
	if err != nil {
		r.logger.Error("list deployment logs failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := client.Open(sseRetry); err != nil {
		return
	}
	replayed := make(map[int64]struct{}, len(history))
	for _, entry := range history {
		payload, err := logs.MarshalEntry(entry)
		if err != nil {
			continue
		}
		if err := client.Send(payload); err != nil {
			return
		}
		replayed[entry.ID] = struct{}{}
	}
	if err := gate.Release(func(payload []byte) bool {
		_, seen := replayed[logs.EntryID(payload)]
		return seen
	}); err != nil {
		return
	}

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

// handleLogsWS upgrades /ws/deployments/{id}/logs to a websocket that
// receives every new entry of the deployment.
func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/ws/deployments/"), "/")
	jobID, rest, _ := strings.Cut(trimmed, "/")
	if jobID == "" || rest != "logs" {
		r.notFound(w)
		return
	}
	hub := r.logs.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "log streaming disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub.Register(jobID, client)
	done := make(chan struct{})
	go func() {
		defer func() {
			close(done)
			hub.Unregister(jobID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(ws.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := r.clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := h.Hijack()
		if err == nil && sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return conn, rw, err
	}
	return nil, nil, errors.New("hijacker not supported")
}

// verifyInvokeToken checks the shared secret of scheduled invocations when
// one is configured.
func (r *Router) verifyInvokeToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.invokeToken
	if expected == "" {
		return true
	}
	token := strings.TrimSpace(req.Header.Get("X-Queue-Token"))
	if token == "" {
		if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("queue token mismatch", "path", req.URL.Path, "ip", r.clientIP(req))
		writeError(w, http.StatusUnauthorized, "invalid queue token")
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
