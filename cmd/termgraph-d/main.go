package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/termgraph/pkg/api"
	"github.com/rmax-ai/termgraph/pkg/engine"
	"github.com/rmax-ai/termgraph/pkg/graph"
	"github.com/rmax-ai/termgraph/pkg/store"
	"github.com/rmax-ai/termgraph/pkg/store/redis"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, `{"level":"fatal","msg":"invalid_config","error":%q}`+"\n", err.Error())
		os.Exit(2)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("system_started", "component", "termgraph-d", "store", cfg.Store)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed_to_close_store", "error", err)
			return
		}
		logger.Info("store_closed")
	}()

	eng := engine.New(st, engine.WithLogger(logger))
	srv := api.NewServer(eng, cfg.Addr, api.WithLogger(logger))
	if cfg.TLSCertFile != "" {
		srv.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Info("shutdown_initiated", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop http server: %w", err)
	}
	return nil
}

// openStore builds the configured GraphStore, wrapped in the redis cache when
// a redis address is set. The returned func releases every resource.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.GraphStore, func() error, error) {
	var (
		st      store.GraphStore
		closers []func() error
	)

	switch cfg.Store {
	case "memory":
		g, err := graph.LoadSnapshotFile(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		snap := g.Snapshot()
		logger.Info("snapshot_loaded", "path", cfg.SnapshotPath, "terms", len(snap.Terms), "edges", len(snap.Edges))
		st = g
	default:
		db, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init store: %w", err)
		}
		logger.Info("store_initialized", "path", cfg.DBPath)
		closers = append(closers, db.Close)

		if cfg.SnapshotPath != "" {
			g, err := graph.LoadSnapshotFile(cfg.SnapshotPath)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			snap := g.Snapshot()
			if err := db.Import(ctx, snap.Terms, snap.Edges); err != nil {
				db.Close()
				return nil, nil, err
			}
			logger.Info("snapshot_imported", "path", cfg.SnapshotPath, "terms", len(snap.Terms), "edges", len(snap.Edges))
		}
		st = db
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis_unreachable", "addr", cfg.RedisAddr, "error", err)
		} else {
			logger.Info("redis_connected", "addr", cfg.RedisAddr)
		}
		cancel()

		st = redis.NewCachedStore(client, st, redis.WithTTL(cfg.CacheTTL), redis.WithLogger(logger))
		closers = append(closers, client.Close)
	}

	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return st, closeAll, nil
}
