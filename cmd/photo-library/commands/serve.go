package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"photo-library/internal/database"
	"photo-library/internal/faces"
	"photo-library/internal/filesystem"
	"photo-library/internal/handlers"
	"photo-library/internal/logging"
	"photo-library/internal/media"
	"photo-library/internal/memory"
	"photo-library/internal/metadata"
	"photo-library/internal/metrics"
	"photo-library/internal/middleware"
	"photo-library/internal/notify"
	"photo-library/internal/orchestrator"
	"photo-library/internal/scanner"
	"photo-library/internal/share"
	"photo-library/internal/startup"
	"photo-library/internal/storage"
	"photo-library/internal/transcoder"
)

const (
	shutdownTimeout   = 30 * time.Second
	statsInterval     = time.Minute
	notifyBuffer      = 64
	readHeaderTimeout = 15 * time.Second
)

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scan orchestrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}
}

// server holds everything serve starts, in shutdown order.
type server struct {
	orch      *orchestrator.Orchestrator
	hub       *notify.Hub
	http      *http.Server
	collector *metrics.Collector
	guard     *memory.Guard
	trans     *transcoder.Transcoder
}

func runServe(ctx context.Context, o *options) error {
	startTime := time.Now()

	cfg, err := startup.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	memory.ApplyLimit(cfg.Memory)
	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.ObserveFilesystem)
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"cache":    cfg.CacheDir,
		"database": filepath.Dir(cfg.Database.Path),
	}, "library"))

	dbStart := time.Now()
	db, err := database.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	store, err := storage.New(ctx, cfg.Storage, cfg.ThumbnailDir)
	if err != nil {
		return fmt.Errorf("failed to initialize asset storage: %w", err)
	}

	tools := startup.LogMediaToolsInit(cfg.Transcoding.Enabled)
	trans := transcoder.New(cfg.TranscodeDir, cfg.Transcoding.Enabled && tools.FFmpeg)
	if _, err := trans.ClearWorkDir(); err != nil {
		logging.Warn("Could not clear leftover renditions: %v", err)
	}
	if cfg.Thumbnails.UseVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, decoding with the Go decoders: %v", err)
		} else {
			defer media.ShutdownVips()
		}
	}

	// The generator reads the thumbnail method the orchestrator persists.
	var orchRef atomic.Pointer[orchestrator.Orchestrator]
	method := func() string {
		if orch := orchRef.Load(); orch != nil {
			return orch.ThumbnailMethod()
		}
		return cfg.Thumbnails.Method
	}
	generator := media.NewGenerator(store, trans, method, cfg.Thumbnails.UseVips)
	faceService := faces.NewService(db, cfg.Faces.MaxDistance)

	guard := memory.NewGuard(cfg.Memory)
	guard.Start()

	sc := scanner.New(scanner.Config{
		DB:          db,
		Extractor:   metadata.NewExtractor(trans),
		Thumbnails:  generator,
		Faces:       faceService,
		Retry:       filesystem.DefaultRetryConfig(),
		ContentHash: cfg.Scanner.ContentHash,
		Throttle:    guard,
	})

	hub := notify.NewHub(notifyBuffer)
	startup.LogOrchestratorInit(cfg.Scanner.Workers, cfg.Scanner.PeriodicDuration())
	orch, err := orchestrator.New(ctx, orchestrator.Config{
		Catalog:   db,
		Runner:    sc,
		Publisher: hub,
		Defaults:  cfg.SiteDefaults(),
	})
	if err != nil {
		guard.Stop()
		return fmt.Errorf("failed to start scan orchestrator: %w", err)
	}
	orchRef.Store(orch)
	startup.LogOrchestratorStarted()

	h := handlers.New(handlers.Deps{
		DB:           db,
		Orchestrator: orch,
		Faces:        faceService,
		Shares:       share.NewService(db),
		Hub:          hub,
		Store:        store,
	})
	router := h.Router(cfg.HTTP.MetricsEnabled)
	if cfg.HTTP.MetricsEnabled {
		router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	startup.LogHTTPRoutes(router, cfg.HTTP.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.HTTP.LogHealthChecks

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           middleware.Logger(loggingConfig)(router),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		// Notification streams stay open
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	collector := metrics.NewCollector(db, statsInterval)
	if cfg.HTTP.MetricsEnabled {
		collector.Start()
	}

	s := &server{orch: orch, hub: hub, http: srv, collector: collector, guard: guard, trans: trans}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.HTTP.Port,
		MetricsEnabled:  cfg.HTTP.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var reason string
	select {
	case sig := <-sigChan:
		reason = "received " + sig.String()
	case <-ctx.Done():
		reason = ctx.Err().Error()
	case err = <-serveErr:
		logging.Error("Server error: %v", err)
		reason = "server error"
	}

	s.shutdown(startup.BeginShutdown(reason))
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *server) shutdown(log *startup.Shutdown) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Step("Scan orchestrator stopped", func() error {
		return s.orch.Shutdown(ctx)
	})
	// Notification streams never go idle, so they are closed before the
	// HTTP server drains.
	log.Step("Notification streams closed", func() error {
		s.hub.Close()
		return nil
	})
	log.Step("HTTP server stopped", func() error {
		return s.http.Shutdown(ctx)
	})
	log.Step("Background monitors stopped", func() error {
		s.collector.Stop()
		s.guard.Stop()
		return nil
	})
	log.Step("Transcoder work directory cleaned", func() error {
		s.trans.Cleanup()
		return nil
	})
	log.Done()
}
