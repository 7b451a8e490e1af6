package visibility

import (
	"math/rand"
	"testing"
	"time"

	models "github.com/phillip/campus-events-go/models"
)

func event(title string, start, end time.Time) models.Event {
	return models.Event{Title: title, StartTime: start, EndTime: end}
}

func TestOfBoundaries(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	hour := time.Hour

	cases := []struct {
		name string
		ev   models.Event
		want Bucket
	}{
		{"starts now", event("a", now, now.Add(hour)), Current},
		{"ends now", event("b", now.Add(-hour), now), Current},
		{"instant event at now", event("c", now, now), Current},
		{"in progress", event("d", now.Add(-hour), now.Add(hour)), Current},
		{"starts later", event("e", now.Add(time.Nanosecond), now.Add(hour)), Upcoming},
		{"ended", event("f", now.Add(-2*hour), now.Add(-time.Nanosecond)), Expired},
	}
	for _, tc := range cases {
		if got := Of(tc.ev, now); got != tc.want {
			t.Errorf("%s: Of = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyPlacesEachEventInExactlyOneBucket(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(rng.Intn(72)) * time.Hour)
		end := start.Add(time.Duration(rng.Intn(10)) * time.Hour)
		now := base.Add(time.Duration(rng.Intn(96)) * time.Hour)
		ev := event("x", start, end)

		b := Classify([]models.Event{ev}, now)
		total := len(b.Current) + len(b.Upcoming) + len(b.Expired)
		if total != 1 {
			t.Fatalf("event %v..%v at %v landed in %d buckets", start, end, now, total)
		}

		switch {
		case len(b.Current) == 1 && (start.After(now) || end.Before(now)):
			t.Fatalf("current but not start<=now<=end: %v..%v at %v", start, end, now)
		case len(b.Upcoming) == 1 && !start.After(now):
			t.Fatalf("upcoming but start<=now: %v at %v", start, now)
		case len(b.Expired) == 1 && !end.Before(now):
			t.Fatalf("expired but end>=now: %v at %v", end, now)
		}
	}
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	in := []models.Event{
		event("past", now.Add(-2*time.Hour), now.Add(-time.Hour)),
		event("future", now.Add(time.Hour), now.Add(2*time.Hour)),
	}
	before := append([]models.Event(nil), in...)

	b := Classify(in, now)
	if len(b.Expired) != 1 || len(b.Upcoming) != 1 || len(b.Current) != 0 {
		t.Fatalf("buckets = %+v", b)
	}
	for i := range in {
		if in[i].Title != before[i].Title || !in[i].StartTime.Equal(before[i].StartTime) {
			t.Fatal("input was modified")
		}
	}
}

func TestLiveDropsExpired(t *testing.T) {
	now := time.Now()
	live := Live([]models.Event{
		event("past", now.Add(-2*time.Hour), now.Add(-time.Hour)),
		event("now", now.Add(-time.Hour), now.Add(time.Hour)),
	}, now)
	if len(live) != 1 || live[0].Title != "now" {
		t.Fatalf("live = %+v", live)
	}
}
