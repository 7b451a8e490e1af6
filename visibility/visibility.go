// Package visibility partitions events by where they sit relative to a
// given instant.
package visibility

import (
	"time"

	models "github.com/phillip/campus-events-go/models"
)

type Bucket string

const (
	Current  Bucket = "current"
	Upcoming Bucket = "upcoming"
	Expired  Bucket = "expired"
)

// Buckets holds a partition of an event list. Order within each bucket
// follows the input.
type Buckets struct {
	Current  []models.Event `json:"current"`
	Upcoming []models.Event `json:"upcoming"`
	Expired  []models.Event `json:"expired"`
}

// Of classifies one event. Upcoming is checked first, so an event with
// end < start that has not started yet still counts as upcoming.
func Of(ev models.Event, now time.Time) Bucket {
	switch {
	case ev.StartTime.After(now):
		return Upcoming
	case ev.EndTime.Before(now):
		return Expired
	default:
		return Current
	}
}

// Classify never mutates events.
func Classify(events []models.Event, now time.Time) Buckets {
	b := Buckets{
		Current:  []models.Event{},
		Upcoming: []models.Event{},
		Expired:  []models.Event{},
	}
	for _, ev := range events {
		switch Of(ev, now) {
		case Current:
			b.Current = append(b.Current, ev)
		case Upcoming:
			b.Upcoming = append(b.Upcoming, ev)
		case Expired:
			b.Expired = append(b.Expired, ev)
		}
	}
	return b
}

// Live drops expired events.
func Live(events []models.Event, now time.Time) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if Of(ev, now) != Expired {
			out = append(out, ev)
		}
	}
	return out
}
