package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spf13/cobra"

	"github.com/sicodev/photobooth/internal/config"
	"github.com/sicodev/photobooth/pkg/pipeline"
	"github.com/sicodev/photobooth/pkg/server"
	"github.com/sicodev/photobooth/pkg/session"
	"github.com/sicodev/photobooth/pkg/share"
	"github.com/sicodev/photobooth/pkg/storage"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the photobooth HTTP service",
		Long: `Run the HTTP service.

The service accepts rendered strips on POST /api/render, stores them in
Vercel Blob or MongoDB GridFS when configured (falling back to the local
render directory), and runs capture sessions for browser booths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config) error {
	logger := loggerFromContext(ctx)
	installLogHooks(logger)

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer sessions.Close()

	store, closeStore, err := newStorageService(ctx, cfg, c)
	if err != nil {
		return fmt.Errorf("render storage: %w", err)
	}
	defer closeStore()
	if err := store.Ready(); err != nil {
		// Still serve: every render request reports the configuration error.
		logger.Warn("render storage not ready", "error", err)
	}

	ch, keyer, err := c.sharedCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	runner := pipeline.NewRunner(ch, keyer, logger)
	defer runner.Close()

	template, err := loadTemplate(cfg)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}

	srv := server.New(server.Options{
		Sessions:     sessions,
		Storage:      store,
		Runner:       runner,
		QR:           share.NewQR(ch, keyer),
		Template:     template,
		BaseURL:      cfg.Server.BaseURL,
		SessionTTL:   cfg.Session.TTL,
		DefaultTimer: cfg.Capture.Timer,
		Logger:       logger,
	})

	printInfo("Serving on %s", StyleHighlight.Render(cfg.Server.Addr))
	printDetail("storage: %s · sessions: %s", store.Backend(), cfg.Session.Backend)

	go sweepSessions(ctx, sessions, cfg.Session.TTL, logger)

	return srv.ListenAndServe(ctx, server.ListenConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
}

// newSessionStore opens the configured session backend.
func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.BackendFile:
		dir := cfg.Session.Dir
		if dir == "" {
			var err error
			if dir, err = stateDir(); err != nil {
				return nil, err
			}
		}
		return session.NewFileStore(dir)
	case config.BackendRedis:
		return session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
	default:
		return session.NewMemoryStore(), nil
	}
}

// newStorageService builds render persistence: a remote store when one is
// configured, with the local render directory as fallback unless the
// deployment requires remote storage.
func newStorageService(ctx context.Context, cfg *config.Config, c *CLI) (*storage.Service, func(), error) {
	closer := func() {}
	var remote storage.Store

	switch {
	case cfg.Storage.BlobToken != "":
		remote = storage.NewBlobStore(storage.BlobOptions{
			APIURL: cfg.Storage.BlobAPIURL,
			Token:  cfg.Storage.BlobToken,
		})
	case cfg.Storage.MongoURI != "":
		gs, err := storage.NewGridFSStore(ctx, storage.GridFSConfig{
			URI:      cfg.Storage.MongoURI,
			Database: cfg.Storage.MongoDatabase,
		})
		if err != nil {
			return nil, closer, err
		}
		remote = gs
		closer = func() { gs.Close() }
	}

	var local *storage.LocalStore
	if !cfg.Storage.RemoteRequired {
		local = storage.NewLocalStore(cfg.Storage.RenderDir)
	}

	return storage.NewService(storage.Options{
		Remote:         remote,
		Local:          local,
		RemoteRequired: cfg.Storage.RemoteRequired,
		MaxBytes:       cfg.Storage.MaxBytes,
		Logger:         c.Logger,
	}), closer, nil
}

// sweepSessions removes expired sessions every ttl/4 until ctx ends.
func sweepSessions(ctx context.Context, store session.Store, ttl time.Duration, logger *log.Logger) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx); err != nil {
				logger.Warn("session cleanup", "error", err)
			}
		}
	}
}
