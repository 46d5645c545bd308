package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/notify"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/settings"
	"github.com/hpungsan/ctxbridge/internal/synth"
)

// Deps are the services the web surface drives.
type Deps struct {
	Repo     *ops.Repository
	Producer *capture.Producer
	Settings *settings.Settings
	Engine   *synth.Engine
	Relay    *notify.Relay
	Logger   *slog.Logger
}

// Server is the HTTP surface: the side panel API, its event stream and the
// per-tab channels content surfaces listen on. It owns one synthesis
// session, shared by every connected panel.
type Server struct {
	deps    Deps
	cfg     *config.Config
	version string
	logger  *slog.Logger

	session *synth.Session
	panel   *broker
	router  chi.Router

	// ctx bounds background AI calls and open streams.
	ctx       context.Context
	cancel    context.CancelFunc
	stops     []func()
	closeOnce sync.Once
}

// New wires the routes and subscribes to clip changes and panel messages.
// Close releases the subscriptions.
func New(deps Deps, cfg *config.Config, version string) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Relay == nil {
		deps.Relay = notify.NewRelay(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		version: version,
		logger:  logger,
		session: synth.NewSession(deps.Engine, logger),
		panel:   newBroker(),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.stops = append(s.stops,
		deps.Repo.OnChange(func(items []clip.Item) {
			s.panel.publish(event{Name: eventClips, Data: clipsEvent(items)})
		}),
		deps.Relay.Register(notify.SurfacePanel, s.toPanel),
	)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(securityHeaders)

	r.Get("/", s.handleIndex)

	r.Get("/clips", s.handleList)
	r.Delete("/clips", s.handleClear)
	r.Put("/clips/order", s.handleReorder)
	r.Post("/clips/delete", s.handleBulkDelete)
	r.Post("/clips/archive", s.handleArchive)
	r.Get("/clips/{id}", s.handleGet)
	r.Get("/clips/{id}/preview", s.handlePreview)
	r.Patch("/clips/{id}", s.handleUpdate)
	r.Delete("/clips/{id}", s.handleDelete)
	r.Post("/clips/{id}/restore", s.handleRestore)
	r.Post("/export", s.handleExport)

	r.Post("/capture/selection", s.handleCaptureSelection)
	r.Post("/capture/page", s.handleCapturePage)
	r.Post("/capture/adapter", s.handleCaptureAdapter)

	r.Get("/synthesis", s.handleSynthesisState)
	r.Post("/synthesis/join", s.handleJoin)
	r.Post("/synthesis/refine", s.handleRefine)
	r.Put("/synthesis/draft", s.handleEditDraft)
	r.Post("/synthesis/confirm", s.handleConfirm)
	r.Delete("/synthesis", s.handleDiscard)

	r.Get("/templates", s.handleTemplates)
	r.Get("/prompts", s.handlePrompts)

	r.Get("/events", s.handlePanelEvents)
	r.Get("/tabs/{tab}/events", s.handleTabEvents)
	r.Post("/tabs/{tab}/activate", s.handleActivate)
	r.Post("/tabs/{tab}/parse", s.handleParse)
	r.Post("/shortcut", s.handleShortcut)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends open streams, cancels in-flight AI calls and unsubscribes.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, stop := range s.stops {
			stop()
		}
	})
}

// NewHTTPServer binds s to bind:port. Shutting the server down closes s so
// event streams do not hold Shutdown open.
func NewHTTPServer(s *Server, bind string, port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.Close)
	return srv
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("panel API running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
