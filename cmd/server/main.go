package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/shiftregister-vg/deltapad/pkg/config"
	"github.com/shiftregister-vg/deltapad/pkg/logger"
	"github.com/shiftregister-vg/deltapad/pkg/storage"
)

const Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

const usage = `deltapad collaborative rich text server.

Usage:
    server [--config=<path>] [--addr=<addr>] [--no-redis]
    server -h | --help
    server --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    Config file, defaults to ./deltapad.yaml when present.
    --addr=<addr>      Listen address, overrides server.addr.
    --no-redis         Keep documents in memory only.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if addr, _ := opts.String("--addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if noRedis, _ := opts.Bool("--no-redis"); noRedis {
		cfg.Redis.Enabled = false
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.Storage
	if cfg.Redis.Enabled {
		store, err = storage.New(ctx, cfg.Redis.URL, storage.WithHistoryLimit(cfg.Document.HistoryLimit))
		if err != nil {
			logger.Fatal("failed to initialize storage", "error", err)
		}
		defer store.Close()
	} else {
		logger.Warn("redis disabled, documents are not persisted")
	}

	if err := run(ctx, cfg, store); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run serves until ctx is done, then shuts the HTTP server and the document
// hubs down.
func run(ctx context.Context, cfg *config.Config, store *storage.Storage) error {
	srv := NewServer(cfg, store)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "env", cfg.Env, "redis", store != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		return errors.Join(err, srv.Close())
	})
	return g.Wait()
}
