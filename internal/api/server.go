// Package api is the local HTTP surface of the shorts agent: render
// submission, timelines and exports, range playback, and a websocket
// stream of job progress.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/events"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// RenderService is the catalog surface the handlers need.
type RenderService interface {
	CreateRender(ctx context.Context, req catalog.RenderRequest) (*catalog.Render, *catalog.Job, error)
	GetRender(ctx context.Context, id string) (*catalog.Render, error)
	ListRenders(ctx context.Context, limit int) ([]*catalog.Render, error)
	GetTimeline(ctx context.Context, id string) (*timeline.Timeline, error)
	GetJob(ctx context.Context, id string) (*catalog.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*catalog.Job, error)
}

// ConfigStore holds the bearer token under AuthTokenKey.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

type RunnerControl interface {
	IsPaused() bool
	Pause()
	Resume()
}

type DoctorStatus interface {
	Peek() *media.Capabilities
}

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, path string) error
}

type EventSource interface {
	Subscribe(buffer int) (<-chan events.Event, func())
	Subscribers() int
}

type ScriptGenerator interface {
	Dialogue(ctx context.Context, sourceText string) ([]script.Line, error)
}

const AuthTokenKey = "auth_token"

type ServerConfig struct {
	Port      int
	Service   RenderService
	Config    ConfigStore
	Runner    RunnerControl
	Doctor    DoctorStatus
	Playback  PlaybackService
	Events    EventSource
	Generator ScriptGenerator
	Logger    *slog.Logger
	StartTime time.Time
	DeviceID  string
	Version   string
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	cfg.Logger = logging.WithComponent(logging.OrDiscard(cfg.Logger), "api")
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
