// Package dashboard serves the ANPR dashboard: the status card, the image
// and video upload pages, analytics charts and JSON views of the same state.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/db"
	"github.com/banshee-data/anpr.dashboard/internal/health"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/preview"
	"github.com/banshee-data/anpr.dashboard/internal/settings"
	"github.com/banshee-data/anpr.dashboard/internal/upload"
)

// DefaultRecentLimit is the number of past submissions shown on the index.
const DefaultRecentLimit = 10

// DefaultStatsTimeout bounds the analytics fetch behind the index page.
const DefaultStatsTimeout = 2 * time.Second

// maxUploadBytes caps multipart bodies accepted by the select handlers.
const maxUploadBytes = 512 << 20

// History is the submission log shown on the index page.
type History interface {
	RecentSubmissions(ctx context.Context, limit int) ([]upload.Submission, error)
	SubmissionCounts(ctx context.Context) (db.SubmissionCounts, error)
}

// AdminRouter mounts debug routes on the dashboard mux.
type AdminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

// Config holds the dependencies of a Server.
type Config struct {
	Address   string
	Client    *backend.Client
	Image     *upload.Controller[*backend.ImageResult]
	Video     *upload.Controller[*backend.VideoResult]
	Poller    *health.Poller
	Settings  *settings.Store
	Feed      *notify.Feed
	Previews  *preview.Store
	History   History     // optional
	Admin     AdminRouter // optional
	Templates TemplateProvider

	RecentLimit  int
	ToastLimit   int
	StatsTimeout time.Duration
}

// Server is the dashboard HTTP server.
type Server struct {
	address   string
	client    *backend.Client
	image     *upload.Controller[*backend.ImageResult]
	video     *upload.Controller[*backend.VideoResult]
	poller    *health.Poller
	settings  *settings.Store
	feed      *notify.Feed
	previews  *preview.Store
	history   History
	admin     AdminRouter
	templates TemplateProvider

	recentLimit  int
	toastLimit   int
	statsTimeout time.Duration

	// bg outlives individual requests. Background submissions run on it
	// and stopBg cancels them at shutdown.
	bg     context.Context
	stopBg context.CancelFunc
}

// NewServer validates cfg and builds a Server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Client == nil:
		return nil, errors.New("dashboard: backend client is required")
	case cfg.Image == nil || cfg.Video == nil:
		return nil, errors.New("dashboard: image and video controllers are required")
	case cfg.Poller == nil:
		return nil, errors.New("dashboard: health poller is required")
	case cfg.Settings == nil:
		return nil, errors.New("dashboard: settings store is required")
	case cfg.Feed == nil || cfg.Previews == nil:
		return nil, errors.New("dashboard: toast feed and preview store are required")
	}
	s := &Server{
		address:     cfg.Address,
		client:      cfg.Client,
		image:       cfg.Image,
		video:       cfg.Video,
		poller:      cfg.Poller,
		settings:    cfg.Settings,
		feed:        cfg.Feed,
		previews:    cfg.Previews,
		history:     cfg.History,
		admin:       cfg.Admin,
		templates:   cfg.Templates,
		recentLimit:  cfg.RecentLimit,
		toastLimit:   cfg.ToastLimit,
		statsTimeout: cfg.StatsTimeout,
	}
	s.bg, s.stopBg = context.WithCancel(context.Background())
	if s.templates == nil {
		s.templates = DefaultTemplates()
	}
	if s.recentLimit <= 0 {
		s.recentLimit = DefaultRecentLimit
	}
	if s.toastLimit <= 0 {
		s.toastLimit = 5
	}
	if s.statsTimeout <= 0 {
		s.statsTimeout = DefaultStatsTimeout
	}
	return s, nil
}

// Handler returns the dashboard routes wrapped in request logging.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /status/refresh", s.handleRefresh)
	mux.HandleFunc("POST /settings/ocr-mode", s.handleToggleOCRMode)
	mux.HandleFunc("POST /settings/theme", s.handleToggleTheme)
	mux.HandleFunc("POST /toasts/{id}/dismiss", s.handleDismissToast)

	mountMedia(s, mux, s.image, mediaPage[*backend.ImageResult]{
		path:     "/image",
		template: "image.html",
		title:    "Image Processing",
		fill:     s.fillImage,
		plot:     plotImage,
	})
	mountMedia(s, mux, s.video, mediaPage[*backend.VideoResult]{
		path:     "/video",
		template: "video.html",
		title:    "Video Processing",
		fill:     s.fillVideo,
		plot:     plotVideo,
	})

	mux.HandleFunc("GET /preview/{id}", s.handlePreview)
	mux.HandleFunc("GET /results/{resultID}/{name}", s.handleArtifact)

	mux.HandleFunc("GET /charts/daily", s.chartHandler(s.dailyChart))
	mux.HandleFunc("GET /charts/confidence", s.chartHandler(s.confidenceChart))
	mux.HandleFunc("GET /charts/processing-time", s.chartHandler(s.processingTimeChart))
	mux.HandleFunc("GET /charts/models", s.chartHandler(s.modelsChart))

	mux.HandleFunc("GET /api/status", s.handleAPIStatus)

	if s.admin != nil {
		if err := s.admin.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	return LoggingMiddleware(mux), nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              s.address,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting dashboard on %s", s.address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down dashboard server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("dashboard shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("dashboard force close error: %v", err)
		}
	}

	// Closed controllers drop late completions, so in-flight backend
	// calls are cancelled rather than awaited.
	s.image.Close()
	s.video.Close()
	s.stopBg()
	s.image.Wait()
	s.video.Wait()
	monitoring.Logf("dashboard server stopped")
	return nil
}
