// Package timer implements the start / stop / stats operations on top of a
// remote time-tracking service. It holds no state of its own: whether a
// timer is running is always asked of the remote service.
package timer

import (
	"context"
	"strings"
	"time"

	"github.com/alanbuscaglia/toggl-mcp/internal/toggl"
	"go.uber.org/zap"
)

const (
	// DefaultStatsDays is the window used when the caller does not pass one.
	DefaultStatsDays = 7
	// MaxStatsDays bounds the stats window to ten years.
	MaxStatsDays = 3650
)

// Remote is the subset of the Toggl client the handlers use.
type Remote interface {
	CurrentEntry(ctx context.Context) (*toggl.TimeEntry, error)
	CreateEntry(ctx context.Context, in toggl.NewEntry) (*toggl.TimeEntry, error)
	StopEntry(ctx context.Context, workspaceID, entryID int64) (*toggl.TimeEntry, error)
	ListEntries(ctx context.Context, since, until time.Time) ([]toggl.TimeEntry, error)
}

// Service runs the timer operations.
type Service struct {
	remote Remote
	log    *zap.Logger
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger; the default discards.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func New(remote Remote, opts ...Option) *Service {
	s := &Service{remote: remote, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("timer")
	return s
}

// StartParams are the caller-supplied inputs of Start.
type StartParams struct {
	Description string
	ProjectID   *int64
	Tags        []string
}

// StartResult confirms a started timer.
type StartResult struct {
	EntryID     int64     `json:"entry_id"`
	Description string    `json:"description"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
}

// Start creates a running entry. An already running timer is left for the
// remote service to arbitrate.
func (s *Service) Start(ctx context.Context, p StartParams) (*StartResult, error) {
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return nil, toggl.ValidationError("description is required to start a timer")
	}
	if p.ProjectID != nil && *p.ProjectID <= 0 {
		return nil, toggl.ValidationError("invalid project id: %d", *p.ProjectID)
	}

	s.log.Info("starting timer", zap.String("description", desc))
	e, err := s.remote.CreateEntry(ctx, toggl.NewEntry{
		Description: desc,
		ProjectID:   p.ProjectID,
		Tags:        p.Tags,
	})
	if err != nil {
		return nil, err
	}

	res := &StartResult{
		EntryID:     e.ID,
		Description: e.Description,
		ProjectID:   e.ProjectID,
		StartTime:   e.Start,
	}
	if res.Description == "" {
		res.Description = desc
	}
	if res.StartTime.IsZero() {
		res.StartTime = s.now().UTC()
	}
	return res, nil
}

// StopResult reports the outcome of Stop. Stopped is false when no timer
// was running, which is not an error.
type StopResult struct {
	Stopped         bool       `json:"stopped"`
	EntryID         int64      `json:"entry_id,omitempty"`
	Description     string     `json:"description,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

// Stop re-queries the running entry and stops it.
func (s *Service) Stop(ctx context.Context) (*StopResult, error) {
	s.log.Info("stopping current timer")
	current, err := s.remote.CurrentEntry(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &StopResult{Stopped: false}, nil
	}

	stopped, err := s.remote.StopEntry(ctx, current.WorkspaceID, current.ID)
	if err != nil {
		return nil, err
	}

	desc := stopped.Description
	if desc == "" {
		desc = current.Description
	}
	duration := stopped.Duration
	if duration < 0 {
		duration = current.Elapsed(s.now())
	}
	start := current.Start
	return &StopResult{
		Stopped:         true,
		EntryID:         current.ID,
		Description:     desc,
		StartTime:       &start,
		DurationSeconds: &duration,
	}, nil
}

// Stats lists the entries of the last days and summarizes them. The running
// timer is always reported, even when it started before the window.
func (s *Service) Stats(ctx context.Context, days int) (*Summary, error) {
	if days < 1 {
		return nil, toggl.ValidationError("days must be at least 1, got %d", days)
	}
	if days > MaxStatsDays {
		return nil, toggl.ValidationError("days must be at most %d, got %d", MaxStatsDays, days)
	}
	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)

	s.log.Info("viewing timer stats", zap.Int("days", days))
	current, err := s.remote.CurrentEntry(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.remote.ListEntries(ctx, since, now)
	if err != nil {
		return nil, err
	}
	sum := Summarize(entries, now)
	sum.addCurrent(current, now)
	sum.Days = days
	sum.Since = since
	sum.Until = now
	return sum, nil
}
