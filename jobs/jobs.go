// Package jobs runs the periodic maintenance: expired-event cleanup,
// dangling-bookmark pruning, idle session sweeps and rate limiter cleanup.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const runTimeout = 2 * time.Minute

type EventCleaner interface {
	CleanupExpired(ctx context.Context) int
}

type BookmarkPruner interface {
	PruneAll(ctx context.Context) (int, error)
}

type SessionSweeper interface {
	Sweep() int
}

type VisitorCleaner interface {
	Cleanup(idle time.Duration) int
}

// Maintenance bundles the tasks. Nil members are skipped.
type Maintenance struct {
	Events    EventCleaner
	Bookmarks BookmarkPruner
	Sessions  SessionSweeper
	Visitors  VisitorCleaner
	// VisitorIdle is how long a rate limited client is remembered.
	VisitorIdle time.Duration
	Log         *slog.Logger
}

// Result is what one run removed.
type Result struct {
	Events    int
	Bookmarks int
	Sessions  int
	Visitors  int
}

// RunOnce performs every task in turn. A failing task is logged and the
// rest still run.
func (m *Maintenance) RunOnce(ctx context.Context) Result {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}

	var res Result
	if m.Events != nil {
		res.Events = m.Events.CleanupExpired(ctx)
	}
	if m.Bookmarks != nil {
		n, err := m.Bookmarks.PruneAll(ctx)
		if err != nil {
			log.Warn("bookmark prune failed", "error", err)
		}
		res.Bookmarks = n
	}
	if m.Sessions != nil {
		res.Sessions = m.Sessions.Sweep()
	}
	if m.Visitors != nil {
		idle := m.VisitorIdle
		if idle <= 0 {
			idle = 10 * time.Minute
		}
		res.Visitors = m.Visitors.Cleanup(idle)
	}

	log.Info("maintenance run",
		"events_removed", res.Events,
		"bookmarks_removed", res.Bookmarks,
		"sessions_swept", res.Sessions,
		"visitors_forgotten", res.Visitors,
	)
	return res
}

// Scheduler drives Maintenance on a cron spec.
type Scheduler struct {
	cron *cron.Cron
	m    *Maintenance
	log  *slog.Logger
}

// NewScheduler parses spec (standard five-field cron syntax or a
// descriptor such as "@every 15m").
func NewScheduler(spec string, m *Maintenance) (*Scheduler, error) {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{cron: c, m: m, log: log}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	s.m.RunOnce(ctx)
}

func (s *Scheduler) Start() {
	s.log.Info("maintenance scheduler started")
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("maintenance job still running at shutdown")
	}
}
