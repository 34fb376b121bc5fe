package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/localvercel/sites/internal/app/migrate"
	"github.com/splax/localvercel/sites/internal/bundle"
	"github.com/splax/localvercel/sites/internal/hosting"
	httpx "github.com/splax/localvercel/sites/internal/http"
	"github.com/splax/localvercel/sites/internal/netlify"
	"github.com/splax/localvercel/sites/internal/repository/postgres"
	"github.com/splax/localvercel/sites/internal/service/logs"
	"github.com/splax/localvercel/sites/internal/service/queue"
	"github.com/splax/localvercel/sites/internal/sitegen"
	"github.com/splax/localvercel/sites/internal/throttle"
	"github.com/splax/localvercel/sites/internal/ws"
	"github.com/splax/localvercel/sites/pkg/config"
	"github.com/splax/localvercel/sites/pkg/logger"
)

func main() {
	cfg := config.LoadQueueConfig()
	log := logger.New("queue", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RateLimitRedisPass, DB: cfg.RateLimitRedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using process-local rate limits", "addr", addr, "error", err)
			_ = client.Close()
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	var apiLimiter throttle.Limiter = throttle.NewWindow(cfg.RateLimitCalls, cfg.RateLimitWindow, cfg.RateLimitBuffer)
	httpLimiter := httpx.NewMemoryRateLimiter()
	if redisClient != nil {
		apiLimiter = throttle.NewRedisWindow(redisClient, "sites:netlify", cfg.RateLimitCalls, cfg.RateLimitWindow, cfg.RateLimitBuffer, log)
		httpLimiter.Close()
		httpLimiter = httpx.NewRedisRateLimiter(redisClient, log)
	}

	netlifyClient, err := netlify.NewClient(cfg.NetlifyAPIURL, cfg.NetlifyToken, &http.Client{Timeout: cfg.HTTPClientTimeout}, apiLimiter)
	if err != nil {
		log.Error("failed to configure hosting client", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	defer hub.Close()
	logSvc := logs.New(repo, hub, log)

	sites := hosting.NewManager(netlifyClient, repo, cfg.PlatformDomain, log)
	deps := queue.Deps{
		Jobs:      repo,
		Projects:  repo,
		Sites:     sites,
		Generator: sitegen.New(repo, repo, log),
		Deployer:  netlifyClient,
		Logs:      logSvc,
	}
	if dir := strings.TrimSpace(cfg.BundleArchiveDir); dir != "" {
		store, err := bundle.NewStore(dir)
		if err != nil {
			log.Error("failed to prepare archive directory", "dir", dir, "error", err)
			os.Exit(1)
		}
		deps.Archives = store
	}
	processor := queue.New(deps, cfg, log)
	if cfg.ProcessInterval > 0 {
		go processor.Run(ctx, cfg.ProcessInterval)
	}

	router := httpx.NewRouter(log, processor, repo, logSvc, httpLimiter, httpx.Options{
		InvokeToken:      cfg.InvokeToken,
		ProcessRateLimit: cfg.ProcessRateLimit,
		TrustProxy:       cfg.TrustProxyHeaders,
		Sites:            sites,
		DBHealth:         pool.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("queue server starting", "addr", cfg.Addr, "process_interval", cfg.ProcessInterval)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Batches in flight can run for minutes; give them the poll budget.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.MaxPolls)*cfg.PollInterval+30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("queue server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

