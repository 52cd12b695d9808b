package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filedl/internal/browse"
	"filedl/internal/fingerprint"
	"filedl/internal/handlers"
	"filedl/internal/logging"
	"filedl/internal/metrics"
	"filedl/internal/middleware"
	"filedl/internal/startup"
	"filedl/internal/store"
	"filedl/internal/thumbnail"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "filedl",
		Usage:   "File download server with browsing, thumbnails and zip archives",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", startup.Version, startup.Commit, startup.BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "HTTP listen port",
				Value:   "8080",
				Sources: cli.EnvVars("FILEDL_PORT"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory holding owned objects",
				Value:   "/data",
				Sources: cli.EnvVars("FILEDL_DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "linked-dir",
				Usage:   "Root directory for linked objects",
				Value:   "/linked",
				Sources: cli.EnvVars("FILEDL_LINKED_DIR"),
			},
			&cli.StringFlag{
				Name:    "database-dir",
				Usage:   "Directory for the object registry database",
				Value:   "/database",
				Sources: cli.EnvVars("FILEDL_DATABASE_DIR"),
			},
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "Directory for the thumbnail cache",
				Value:   "/cache",
				Sources: cli.EnvVars("FILEDL_CACHE_DIR"),
			},
			&cli.IntFlag{
				Name:    "cache-max-mb",
				Usage:   "Thumbnail cache byte budget in megabytes",
				Value:   512,
				Sources: cli.EnvVars("FILEDL_CACHE_MAX_MB"),
			},
			&cli.IntFlag{
				Name:    "max-pixels",
				Usage:   "Largest source image accepted for thumbnailing, in pixels",
				Value:   thumbnail.DefaultMaxPixels,
				Sources: cli.EnvVars("FILEDL_MAX_PIXELS"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Thumbnail worker count (0 = one per CPU)",
				Value:   0,
				Sources: cli.EnvVars("FILEDL_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "strong-hashes",
				Usage:   "Fingerprint sources by content digest instead of stat metadata",
				Sources: cli.EnvVars("FILEDL_STRONG_HASHES"),
			},
			&cli.BoolFlag{
				Name:    "vips",
				Usage:   "Enable the libvips decode fast path",
				Sources: cli.EnvVars("FILEDL_VIPS"),
			},
			&cli.BoolFlag{
				Name:    "log-health-checks",
				Usage:   "Include health check requests in the access log",
				Sources: cli.EnvVars("FILEDL_LOG_HEALTH_CHECKS"),
			},
			&cli.BoolFlag{
				Name:    "metrics",
				Usage:   "Expose Prometheus metrics on /metrics",
				Value:   true,
				Sources: cli.EnvVars("FILEDL_METRICS"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("DEBUG"),
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		startup.LogFatal("%v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	startTime := time.Now()

	if cmd.Bool("debug") {
		logging.SetLevel(logging.LevelDebug)
	}

	config := &startup.Config{
		Port:            cmd.String("port"),
		DataDir:         cmd.String("data-dir"),
		LinkedDir:       cmd.String("linked-dir"),
		DatabaseDir:     cmd.String("database-dir"),
		CacheDir:        cmd.String("cache-dir"),
		CacheMaxBytes:   int64(cmd.Int("cache-max-mb")) << 20,
		MaxPixels:       int(cmd.Int("max-pixels")),
		Workers:         int(cmd.Int("workers")),
		StrongHashes:    cmd.Bool("strong-hashes"),
		VipsEnabled:     cmd.Bool("vips"),
		LogHealthChecks: cmd.Bool("log-health-checks"),
		MetricsEnabled:  cmd.Bool("metrics"),
	}
	if err := config.Finalize(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	// Initialize object registry
	storeStart := time.Now()
	st, err := store.New(ctx, config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize object registry: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn("registry close error: %v", err)
		}
	}()

	objects, err := st.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}
	startup.LogStoreInit(time.Since(storeStart), len(objects))

	// Prune expired objects periodically
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go pruneLoop(pruneCtx, st)

	// Initialize thumbnailer
	if config.VipsEnabled {
		if err := thumbnail.InitVips(); err != nil {
			logging.Warn("libvips initialization failed, falling back to pure Go: %v", err)
		}
		defer thumbnail.ShutdownVips()
	}

	fpMode := fingerprint.ModeFast
	if config.StrongHashes {
		fpMode = fingerprint.ModeStrong
	}

	thumbs, err := thumbnail.New(thumbnail.Options{
		CacheRoot:       config.ThumbnailDir,
		MaxCacheBytes:   config.CacheMaxBytes,
		MaxPixels:       config.MaxPixels,
		Workers:         config.Workers,
		FingerprintMode: fpMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize thumbnailer: %w", err)
	}

	stats := thumbs.CacheStats()
	startup.LogThumbnailerInit(stats.Count, stats.UsedBytes, stats.MaxBytes, thumbnail.IsVipsAvailable())

	// Initialize handlers and routes
	layout := store.Layout{DataDir: config.DataDir, LinkedDir: config.LinkedDir}
	h := handlers.New(st, layout, thumbs, startup.Version)

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	if config.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Watch the served trees so changed files drop their fingerprint memos
	watchCtx, stopWatchers := context.WithCancel(context.Background())
	defer stopWatchers()
	for name, dir := range map[string]string{"data": config.DataDir, "linked": config.LinkedDir} {
		scanner := browse.NewScanner(dir, "", nil)
		go scanner.Watch(watchCtx, thumbs.Invalidate)
		startup.LogWatcherStarted(name, dir)
	}

	// Middleware chain: innermost first
	var handler http.Handler = router
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.RequestID(handler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, stopWatchers, stopPrune)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func pruneLoop(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := st.PruneExpired(ctx); err != nil {
				logging.Warn("expired object prune failed: %v", err)
			}
		}
	}
}

func handleShutdown(srv *http.Server, stopWatchers, stopPrune context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping directory watchers")
	stopWatchers()
	startup.LogShutdownStepComplete("Directory watchers stopped")

	startup.LogShutdownStep("Stopping expiry pruner")
	stopPrune()
	startup.LogShutdownStepComplete("Expiry pruner stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
