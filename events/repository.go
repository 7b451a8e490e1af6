// Package events is the event repository: create, edit, delete and fetch
// campus events, plus the expired-event cleanup.
package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/phillip/campus-events-go/apperrors"
	models "github.com/phillip/campus-events-go/models"
	store "github.com/phillip/campus-events-go/store"
	utils "github.com/phillip/campus-events-go/utils"
)

type Repository struct {
	store  store.EventStore
	images utils.ImageStore
	log    *slog.Logger
	now    func() time.Time
}

// NewRepository wires the repository. images may be nil when no image
// host is configured.
func NewRepository(s store.EventStore, images utils.ImageStore, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{store: s, images: images, log: log, now: time.Now}
}

// ---------------- CREATE ----------------

// Create stores a new event hosted by actor and returns its id. Host fields
// on the draft are ignored.
func (r *Repository) Create(ctx context.Context, actor *models.Account, draft models.EventDraft) (string, error) {
	const op = "events.Create"
	if actor == nil {
		return "", apperrors.New(apperrors.Auth, op, "you must be signed in to host an event")
	}

	title := trimmed(draft.Title)
	location := trimmed(draft.LocationInfo)
	switch {
	case title == "":
		return "", apperrors.New(apperrors.Validation, op, "title is required")
	case location == "":
		return "", apperrors.New(apperrors.Validation, op, "location is required")
	case !nonZero(draft.Latitude) || !nonZero(draft.Longitude):
		return "", apperrors.New(apperrors.Validation, op, "drop a pin on the map to set the event location")
	case draft.StartTime == nil || draft.EndTime == nil:
		return "", apperrors.New(apperrors.Validation, op, "start and end time are required")
	case draft.EndTime.Before(*draft.StartTime):
		return "", apperrors.New(apperrors.Validation, op, "end time must not be before start time")
	}

	now := r.now().UTC()
	ev := &models.Event{
		Title:        title,
		Description:  trimmed(draft.Description),
		LocationInfo: location,
		Latitude:     *draft.Latitude,
		Longitude:    *draft.Longitude,
		StartTime:    draft.StartTime.UTC(),
		EndTime:      draft.EndTime.UTC(),
		IsPrivate:    boolOr(draft.IsPrivate, false),
		IsRSVPable:   boolOr(draft.IsRSVPable, true),
		HostID:       actor.ID,
		HostEmail:    actor.Email,
		RSVPUsers:    []string{},
		Images:       nonNil(draft.Images),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ev.InviteEmails = inviteList(ev.IsPrivate, draft.InviteEmails)

	id, err := r.store.InsertEvent(ctx, ev)
	if err != nil {
		return "", apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	r.log.Info("event created", "event_id", id.Hex(), "host_id", actor.ID)
	return id.Hex(), nil
}

// ---------------- EDIT ----------------

// Edit overwrites the supplied fields of an event hosted by actor.
func (r *Repository) Edit(ctx context.Context, actor *models.Account, id string, draft models.EventDraft) error {
	const op = "events.Edit"
	if actor == nil {
		return apperrors.New(apperrors.Auth, op, "you must be signed in to edit an event")
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.New(apperrors.NotFound, op, "event not found")
	}
	existing, err := r.store.GetEvent(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.New(apperrors.NotFound, op, "event not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	if existing.HostID != actor.ID {
		return apperrors.New(apperrors.Authorization, op, "only the host can edit this event")
	}

	update := bson.M{}
	if draft.Title != nil {
		title := trimmed(draft.Title)
		if title == "" {
			return apperrors.New(apperrors.Validation, op, "title is required")
		}
		update["title"] = title
	}
	if draft.Description != nil {
		update["description"] = trimmed(draft.Description)
	}
	if draft.LocationInfo != nil {
		location := trimmed(draft.LocationInfo)
		if location == "" {
			return apperrors.New(apperrors.Validation, op, "location is required")
		}
		update["location_info"] = location
	}
	if draft.Latitude != nil || draft.Longitude != nil {
		if (draft.Latitude != nil && !nonZero(draft.Latitude)) || (draft.Longitude != nil && !nonZero(draft.Longitude)) {
			return apperrors.New(apperrors.Validation, op, "drop a pin on the map to set the event location")
		}
		if draft.Latitude != nil {
			update["latitude"] = *draft.Latitude
		}
		if draft.Longitude != nil {
			update["longitude"] = *draft.Longitude
		}
	}

	start, end := existing.StartTime, existing.EndTime
	if draft.StartTime != nil {
		start = draft.StartTime.UTC()
		update["start_time"] = start
	}
	if draft.EndTime != nil {
		end = draft.EndTime.UTC()
		update["end_time"] = end
	}
	if end.Before(start) {
		return apperrors.New(apperrors.Validation, op, "end time must not be before start time")
	}

	private := existing.IsPrivate
	if draft.IsPrivate != nil {
		private = *draft.IsPrivate
		update["is_private"] = private
	}
	switch {
	case !private:
		update["invite_emails"] = []string{}
	case draft.InviteEmails != nil:
		update["invite_emails"] = inviteList(true, draft.InviteEmails)
	}
	if draft.IsRSVPable != nil {
		update["is_rsvpable"] = *draft.IsRSVPable
	}

	var dropped []string
	if draft.Images != nil {
		update["images"] = draft.Images
		dropped = missing(existing.Images, draft.Images)
	}

	// The denormalized host email is refreshed only here.
	update["host_email"] = actor.Email
	update["updated_at"] = r.now().UTC()

	if err := r.store.UpdateEvent(ctx, oid, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.New(apperrors.NotFound, op, "event not found")
		}
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	r.destroyImages(ctx, id, dropped)
	return nil
}

// ---------------- READ ----------------

// FetchAll runs the expired-event cleanup and then lists every event.
func (r *Repository) FetchAll(ctx context.Context) ([]models.Event, error) {
	r.CleanupExpired(ctx)

	list, err := r.store.ListEvents(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, "events.FetchAll", err)
	}
	return list, nil
}

// FetchByID returns nil, nil when no event has the id.
func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	ev, err := r.store.GetEvent(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, "events.FetchByID", err)
	}
	return ev, nil
}

func (r *Repository) ListHosted(ctx context.Context, hostID string) ([]models.Event, error) {
	list, err := r.store.ListEventsByHost(ctx, hostID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, "events.ListHosted", err)
	}
	return list, nil
}

// FetchByIDs resolves ids in store.LookupBatch sized batches. Malformed and
// unknown ids are skipped.
func (r *Repository) FetchByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	out := []models.Event{}
	for _, batch := range Batches(ObjectIDs(ids), store.LookupBatch) {
		list, err := r.store.ListEventsByIDs(ctx, batch)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.RemoteStore, "events.FetchByIDs", err)
		}
		out = append(out, list...)
	}
	return out, nil
}

// ---------------- DELETE ----------------

// Delete removes an event hosted by actor. Deleting an absent event is not
// an error.
func (r *Repository) Delete(ctx context.Context, actor *models.Account, id string) error {
	const op = "events.Delete"
	if actor == nil {
		return apperrors.New(apperrors.Auth, op, "you must be signed in to delete an event")
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	existing, err := r.store.GetEvent(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	if existing.HostID != actor.ID {
		return apperrors.New(apperrors.Authorization, op, "only the host can delete this event")
	}

	if _, err := r.store.DeleteEvent(ctx, oid); err != nil {
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	r.log.Info("event deleted", "event_id", id, "host_id", actor.ID)
	r.destroyImages(ctx, id, existing.Images)
	return nil
}

// CleanupExpired deletes every event that ended before now and returns how
// many were removed. Failures are logged and skipped.
func (r *Repository) CleanupExpired(ctx context.Context) int {
	now := r.now()
	expired, err := r.store.ListEventsEndedBefore(ctx, now)
	if err != nil {
		r.log.Warn("expired event lookup failed", "error", err)
		return 0
	}

	removed := 0
	for _, ev := range expired {
		ok, err := r.store.DeleteEvent(ctx, ev.ID)
		if err != nil {
			r.log.Warn("expired event delete failed", "event_id", ev.ID.Hex(), "error", err)
			continue
		}
		if ok {
			removed++
			r.destroyImages(ctx, ev.ID.Hex(), ev.Images)
		}
	}
	if removed > 0 {
		r.log.Info("expired events removed", "count", removed)
	}
	return removed
}

func (r *Repository) destroyImages(ctx context.Context, eventID string, urls []string) {
	if r.images == nil {
		return
	}
	for _, u := range urls {
		if err := r.images.Destroy(ctx, u); err != nil {
			r.log.Warn("image delete failed", "event_id", eventID, "url", u, "error", err)
		}
	}
}

// ObjectIDs parses the well-formed hex ids and drops the rest.
func ObjectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

// Batches splits ids into consecutive chunks of at most size.
func Batches(ids []primitive.ObjectID, size int) [][]primitive.ObjectID {
	var out [][]primitive.ObjectID
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonZero(f *float64) bool { return f != nil && *f != 0 }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// inviteList normalizes invite emails; the list is empty unless private.
func inviteList(private bool, emails []string) []string {
	out := []string{}
	if !private {
		return out
	}
	seen := map[string]bool{}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func missing(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, u := range after {
		keep[u] = true
	}
	var out []string
	for _, u := range before {
		if !keep[u] {
			out = append(out, u)
		}
	}
	return out
}
