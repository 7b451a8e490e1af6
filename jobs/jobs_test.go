package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingCleaner struct{ calls int }

func (c *countingCleaner) CleanupExpired(context.Context) int {
	c.calls++
	return 3
}

type failingPruner struct{}

func (failingPruner) PruneAll(context.Context) (int, error) {
	return 1, errors.New("users collection unavailable")
}

type fixedSweeper int

func (f fixedSweeper) Sweep() int { return int(f) }

type idleRecorder struct{ idle time.Duration }

func (r *idleRecorder) Cleanup(idle time.Duration) int {
	r.idle = idle
	return 4
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	cleaner := &countingCleaner{}
	visitors := &idleRecorder{}
	m := &Maintenance{
		Events:    cleaner,
		Bookmarks: failingPruner{},
		Sessions:  fixedSweeper(2),
		Visitors:  visitors,
	}

	res := m.RunOnce(context.Background())
	want := Result{Events: 3, Bookmarks: 1, Sessions: 2, Visitors: 4}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if cleaner.calls != 1 {
		t.Fatalf("cleanup calls = %d", cleaner.calls)
	}
	if visitors.idle != 10*time.Minute {
		t.Fatalf("default visitor idle = %v", visitors.idle)
	}
}

func TestRunOnceSkipsNilTasks(t *testing.T) {
	if res := (&Maintenance{}).RunOnce(context.Background()); res != (Result{}) {
		t.Fatalf("result = %+v", res)
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler("every now and then", &Maintenance{}); err == nil {
		t.Fatal("expected a parse error")
	}
	s, err := NewScheduler("@every 15m", &Maintenance{})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
