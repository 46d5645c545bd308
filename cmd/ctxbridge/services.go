package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/mcp"
	"github.com/hpungsan/ctxbridge/internal/notify"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/settings"
	"github.com/hpungsan/ctxbridge/internal/store"
	"github.com/hpungsan/ctxbridge/internal/synth"
	"github.com/hpungsan/ctxbridge/internal/web"
)

// services is everything one process needs, opened once.
type services struct {
	cfg     *config.Config
	baseDir string
	logger  *slog.Logger
	level   *slog.LevelVar

	hub      *store.Hub
	repo     *ops.Repository
	settings *settings.Settings
	relay    *notify.Relay
	producer *capture.Producer
	engine   *synth.Engine
}

// newLogger returns a text logger on w whose level can be raised later.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), level
}

// openServices opens the configured store and builds the services on it.
// surface names the handle in the change feed, e.g. "cli" or "mcp".
func openServices(ctx context.Context, baseDir, surface string, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (*services, error) {
	backend, err := store.OpenBackend(cfg, baseDir, logger)
	if err != nil {
		return nil, err
	}
	hub := store.NewHub(backend, logger)
	if err := hub.Start(ctx); err != nil {
		hub.Close()
		return nil, err
	}

	handle := hub.Open(surface)
	repo, err := ops.Open(ctx, handle, ops.Options{Config: cfg, BaseDir: baseDir, Logger: logger})
	if err != nil {
		hub.Close()
		return nil, err
	}

	st := settings.New(handle)
	relay := notify.NewRelay(logger)
	engine := synth.NewEngine(
		synth.SettingsGenerator{Credentials: st, Timeout: cfg.AITimeout()},
		synth.EngineOptions{
			RequestsPerMinute: cfg.AIRequestsPerMinute,
			Timeout:           cfg.AITimeout(),
			Logger:            logger,
		},
	)

	return &services{
		cfg:      cfg,
		baseDir:  baseDir,
		logger:   logger,
		level:    level,
		hub:      hub,
		repo:     repo,
		settings: st,
		relay:    relay,
		producer: capture.NewProducer(repo, nil, capture.Options{Switch: st, Relay: relay, Logger: logger}),
		engine:   engine,
	}, nil
}

func (s *services) Close() {
	s.repo.Close()
	if err := s.hub.Close(); err != nil {
		s.logger.Warn("closing store", "error", err)
	}
}

func (s *services) mcpDeps() mcp.Deps {
	return mcp.Deps{
		Repo:     s.repo,
		Producer: s.producer,
		Settings: s.settings,
		Engine:   s.engine,
		Logger:   s.logger,
	}
}

func (s *services) webDeps() web.Deps {
	return web.Deps{
		Repo:     s.repo,
		Producer: s.producer,
		Settings: s.settings,
		Engine:   s.engine,
		Relay:    s.relay,
		Logger:   s.logger,
	}
}
