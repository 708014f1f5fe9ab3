// Package server exposes the photobooth over HTTP.
//
// Routes:
//
//	POST   /api/render                        persist a PNG data URL, returns {id, url}
//	GET    /renders/{name}                    serve a locally stored render
//	POST   /api/sessions                      start a capture session
//	GET    /api/sessions/{id}                 session state
//	PUT    /api/sessions/{id}/timer           choose the countdown
//	POST   /api/sessions/{id}/photos          append a frame (raw PNG/JPEG body)
//	DELETE /api/sessions/{id}/photos/last     retake the previous still
//	DELETE /api/sessions/{id}/photos          retake everything
//	POST   /api/sessions/{id}/finish          complete early with fewer stills
//	GET    /api/sessions/{id}/handoff         the handoff payload
//	GET    /api/sessions/{id}/composite.png   the composite strip
//	GET    /api/sessions/{id}/download        share URL if known, else the strip
//	POST   /api/sessions/{id}/share           upload once, returns {url, qr}
//	GET    /healthz
//
// Errors are JSON objects with a message field.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sicodev/photobooth/pkg/inflight"
	"github.com/sicodev/photobooth/pkg/pipeline"
	"github.com/sicodev/photobooth/pkg/session"
	"github.com/sicodev/photobooth/pkg/share"
	"github.com/sicodev/photobooth/pkg/storage"
)

// Options configures a Server.
type Options struct {
	Sessions session.Store
	Storage  *storage.Service
	Runner   *pipeline.Runner

	// QR renders share codes. Nil uses an uncached renderer.
	QR *share.QR

	// Uploader stores shared strips. Nil stores through Storage.
	Uploader share.Uploader

	// Template is the encoded overlay; nil selects the built-in frame.
	Template []byte

	// BaseURL makes relative render URLs absolute. Empty uses the
	// request's own scheme and host.
	BaseURL string

	SessionTTL   time.Duration
	DefaultTimer int

	// MaxFrameBytes caps uploaded camera frames.
	MaxFrameBytes int64

	Logger *log.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	sessions session.Store
	storage  *storage.Service
	runner   *pipeline.Runner
	qr       *share.QR
	uploader share.Uploader
	template []byte
	baseURL  string
	ttl      time.Duration
	timer    int
	maxFrame int64
	logger   *log.Logger

	// One capture and one share upload per session at a time.
	captures *inflight.Set
	shares   *inflight.Set

	// mu serializes session read-modify-write cycles.
	mu sync.Mutex

	router chi.Router
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Runner == nil {
		opts.Runner = pipeline.NewRunner(nil, nil, opts.Logger)
	}
	if opts.QR == nil {
		opts.QR = share.NewQR(nil, nil)
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.DefaultTimer == 0 {
		opts.DefaultTimer = session.DefaultTimer
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = storage.MaxBytes
	}

	s := &Server{
		sessions: opts.Sessions,
		storage:  opts.Storage,
		runner:   opts.Runner,
		qr:       opts.QR,
		uploader: opts.Uploader,
		template: opts.Template,
		baseURL:  opts.BaseURL,
		ttl:      opts.SessionTTL,
		timer:    opts.DefaultTimer,
		maxFrame: opts.MaxFrameBytes,
		logger:   opts.Logger,
		captures: inflight.NewSet(),
		shares:   inflight.NewSet(),
	}
	if s.uploader == nil && s.storage != nil {
		s.uploader = share.UploaderFunc(func(ctx context.Context, png []byte) (string, error) {
			rec, err := s.storage.PersistBytes(ctx, png)
			if err != nil {
				return "", err
			}
			return rec.URL, nil
		})
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/render", s.handleRender)
	r.Get(storage.RoutePrefix+"{name}", s.handleRenderFile)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/timer", s.handleSetTimer)
			r.Post("/photos", s.handleAddPhoto)
			r.Delete("/photos/last", s.handleRetakePrevious)
			r.Delete("/photos", s.handleRetakeAll)
			r.Post("/finish", s.handleFinish)
			r.Get("/handoff", s.handleHandoff)
			r.Get("/composite.png", s.handleComposite)
			r.Get("/download", s.handleDownload)
			r.Post("/share", s.handleShare)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenConfig holds listener settings.
type ListenConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg ListenConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", cfg.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.storage != nil {
		resp["storage"] = s.storage.Backend()
		if err := s.storage.Ready(); err != nil {
			resp["storage_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request", fields...)
			} else {
				logger.Debug("request", fields...)
			}
		})
	}
}
