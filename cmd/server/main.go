package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vexdb/vexdb/pkg/api/rest"
	"github.com/vexdb/vexdb/pkg/api/rest/middleware"
	"github.com/vexdb/vexdb/pkg/config"
	"github.com/vexdb/vexdb/pkg/db"
	"github.com/vexdb/vexdb/pkg/observability"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

const snapshotExt = ".snap"

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		configFile  = flag.String("config", "", "path to YAML configuration file (optional)")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "server port (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vexdb server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Log.Level), os.Stdout)
	metrics := observability.NewMetrics()

	store := db.New(db.Options{
		Logger:  logger,
		Metrics: metrics,
		Index: db.IndexDefaults{
			M:              cfg.Index.M,
			EfConstruction: cfg.Index.EfConstruction,
			EfSearch:       cfg.Index.DefaultEfSearch,
			Precision:      vectorstore.Precision(cfg.Index.Precision),
		},
	})

	if cfg.Snapshot.Dir != "" {
		if err := restoreSnapshots(store, cfg.Snapshot.Dir, logger); err != nil {
			logger.Errorf("restoring snapshots: %v", err)
			os.Exit(1)
		}
	}

	server := rest.NewServer(rest.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Auth: middleware.AuthConfig{
			Enabled: cfg.Server.AuthSecret != "",
			Secret:  cfg.Server.AuthSecret,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        cfg.Server.RateLimit > 0,
			RequestsPerSec: cfg.Server.RateLimit,
			Burst:          cfg.Server.RateBurst,
		},
	}, store, logger, metrics)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Compaction.Interval > 0 {
		go compactionLoop(ctx, store, cfg.Compaction, logger)
	}
	if cfg.Snapshot.Dir != "" && cfg.Snapshot.Interval > 0 {
		go snapshotLoop(ctx, store, cfg.Snapshot, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
		return
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}

	if cfg.Snapshot.Dir != "" {
		if err := writeSnapshots(store, cfg.Snapshot.Dir, logger); err != nil {
			logger.Errorf("final snapshot: %v", err)
		}
	}
	logger.Info("server stopped")
}

func compactionLoop(ctx context.Context, store *db.DB, cfg config.CompactionConfig, logger *observability.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Compact(cfg.MinDeletedFraction)
			if err != nil {
				logger.Errorf("compaction: %v", err)
				continue
			}
			if n > 0 {
				logger.Info("compaction pass finished", map[string]interface{}{"collections": n})
			}
		}
	}
}

func snapshotLoop(ctx context.Context, store *db.DB, cfg config.SnapshotConfig, logger *observability.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeSnapshots(store, cfg.Dir, logger); err != nil {
				logger.Errorf("snapshot: %v", err)
			}
		}
	}
}

// restoreSnapshots loads every <name>.snap file in dir as a collection.
func restoreSnapshots(store *db.DB, dir string, logger *observability.Logger) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), snapshotExt)
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		_, err = store.Restore(name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("restoring %q: %w", name, err)
		}
		logger.Info("snapshot loaded", map[string]interface{}{"collection": name})
	}
	return nil
}

// writeSnapshots dumps every collection, writing to a temp file first
// so a crash mid-write never clobbers the previous snapshot.
func writeSnapshots(store *db.DB, dir string, logger *observability.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range store.List() {
		final := filepath.Join(dir, name+snapshotExt)
		tmp := final + ".tmp"

		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		err = store.Snapshot(name, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(tmp)
			return fmt.Errorf("snapshotting %q: %w", name, err)
		}
		if err := os.Rename(tmp, final); err != nil {
			return err
		}
		logger.Debug("snapshot written", map[string]interface{}{"collection": name})
	}
	return nil
}
