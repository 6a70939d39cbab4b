package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/events"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// Publisher receives catalog events; *events.Broker implements it.
type Publisher interface {
	Publish(e events.Event)
}

type RenderRequest struct {
	Title      string        `json:"title"`
	Background string        `json:"background,omitempty"`
	Lines      []script.Line `json:"lines"`
}

type Service struct {
	repo   Repository
	events Publisher
	logger *slog.Logger
}

func NewService(repo Repository, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: publisher,
		logger: logging.WithComponent(logging.OrDiscard(logger), "catalog"),
	}
}

func (s *Service) publish(e events.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}

// CreateRender normalizes and validates the script, stores the render and
// queues its job.
func (s *Service) CreateRender(ctx context.Context, req RenderRequest) (*Render, *Job, error) {
	req.Lines = script.Normalize(req.Lines)
	if err := script.Validate(req.Lines); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = firstSpoken(req.Lines)
	}

	now := time.Now()
	render := &Render{
		ID:         NewID(),
		Title:      title,
		Status:     RenderStatusPending,
		Background: req.Background,
		Script:     req.Lines,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateRender(ctx, render); err != nil {
		return nil, nil, err
	}

	job, err := s.enqueue(ctx, JobTypeRender, render.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("render created", "render_id", render.ID, "job_id", job.ID, "lines", len(req.Lines))
	s.publish(events.Event{Type: events.TypeRenderAdded, RenderID: render.ID, JobID: job.ID})
	return render, job, nil
}

// CreateRenderFromDocument parses a script document and creates a render.
func (s *Service) CreateRenderFromDocument(ctx context.Context, title, background string, data []byte) (*Render, *Job, error) {
	lines, err := script.ParseDocument(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	return s.CreateRender(ctx, RenderRequest{Title: title, Background: background, Lines: lines})
}

func (s *Service) EnqueueUpload(ctx context.Context, renderID string) (*Job, error) {
	return s.enqueue(ctx, JobTypeUpload, renderID)
}

func (s *Service) enqueue(ctx context.Context, jobType, renderID string) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      jobType,
		Status:    JobStatusPending,
		RenderID:  renderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) GetRender(ctx context.Context, id string) (*Render, error) {
	r, err := s.repo.GetRender(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Service) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	return s.repo.ListRenders(ctx, limit)
}

// GetTimeline returns the reconciled timeline of a finished render.
func (s *Service) GetTimeline(ctx context.Context, id string) (*timeline.Timeline, error) {
	r, err := s.GetRender(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Timeline == nil {
		return nil, ErrNotReady
	}
	return r.Timeline, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) CountActiveJobs(ctx context.Context) (int, error) {
	return s.repo.CountJobsByStatus(ctx, JobStatusRunning)
}

func firstSpoken(lines []script.Line) string {
	for _, l := range lines {
		if l.IsPlaceholder() {
			continue
		}
		t := strings.TrimSpace(l.Text)
		if r := []rune(t); len(r) > 60 {
			t = string(r[:60])
		}
		return t
	}
	return "untitled"
}
