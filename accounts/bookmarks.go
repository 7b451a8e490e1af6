package accounts

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/phillip/campus-events-go/apperrors"
	events "github.com/phillip/campus-events-go/events"
	models "github.com/phillip/campus-events-go/models"
	store "github.com/phillip/campus-events-go/store"
	visibility "github.com/phillip/campus-events-go/visibility"
)

// AddBookmark saves eventID on the user's profile and adds the user to the
// event's bookmark list. Adding twice is a no-op.
func (c *Client) AddBookmark(ctx context.Context, userID, eventID string) error {
	const op = "accounts.AddBookmark"
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return apperrors.New(apperrors.NotFound, op, "event not found")
	}
	ev, err := c.events.GetEvent(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.New(apperrors.NotFound, op, "event not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	switch {
	case ev.HostID == userID:
		return apperrors.New(apperrors.Authorization, op, "hosts cannot bookmark their own event")
	case !ev.IsRSVPable:
		return apperrors.New(apperrors.Validation, op, "this event does not take bookmarks")
	}

	if err := c.users.AddBookmark(ctx, userID, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.New(apperrors.NotFound, op, "profile not found")
		}
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	if err := c.events.AddRSVPUser(ctx, oid, userID); err != nil {
		// Undo the profile half so the two lists stay in step.
		if rbErr := c.users.RemoveBookmarks(ctx, userID, eventID); rbErr != nil {
			c.log.Warn("bookmark rollback failed", "user_id", userID, "event_id", eventID, "error", rbErr)
		}
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	return nil
}

// RemoveBookmark is idempotent. A vanished event still gets its id pulled
// from the profile.
func (c *Client) RemoveBookmark(ctx context.Context, userID, eventID string) error {
	const op = "accounts.RemoveBookmark"
	if err := c.users.RemoveBookmarks(ctx, userID, eventID); err != nil {
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil
	}
	if err := c.events.RemoveRSVPUser(ctx, oid, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.log.Warn("event bookmark list update failed", "user_id", userID, "event_id", eventID, "error", err)
	}
	return nil
}

// ListBookmarks returns an empty list for users without a profile.
func (c *Client) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	acc, err := c.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, "accounts.ListBookmarks", err)
	}
	if acc.Bookmarks == nil {
		return []string{}, nil
	}
	return acc.Bookmarks, nil
}

// PruneDanglingBookmarks removes bookmark ids that no longer resolve to a
// live event and returns them. Lookups that fail keep their ids.
func (c *Client) PruneDanglingBookmarks(ctx context.Context, userID string) []string {
	ids, err := c.ListBookmarks(ctx, userID)
	if err != nil {
		c.log.Warn("bookmark prune skipped", "user_id", userID, "error", err)
		return nil
	}

	now := c.now()
	dangling := []string{}
	valid := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			dangling = append(dangling, id)
			continue
		}
		valid = append(valid, oid)
	}

	for _, batch := range events.Batches(valid, store.LookupBatch) {
		found, err := c.events.ListEventsByIDs(ctx, batch)
		if err != nil {
			c.log.Warn("bookmark lookup failed", "user_id", userID, "batch", len(batch), "error", err)
			continue
		}
		live := map[primitive.ObjectID]bool{}
		for _, ev := range found {
			if visibility.Of(ev, now) != visibility.Expired {
				live[ev.ID] = true
			}
		}
		for _, oid := range batch {
			if !live[oid] {
				dangling = append(dangling, oid.Hex())
			}
		}
	}

	if len(dangling) == 0 {
		return dangling
	}
	if err := c.users.RemoveBookmarks(ctx, userID, dangling...); err != nil {
		c.log.Warn("bookmark prune write failed", "user_id", userID, "error", err)
		return nil
	}
	c.log.Info("dangling bookmarks removed", "user_id", userID, "count", len(dangling))
	return dangling
}

// PruneAll runs PruneDanglingBookmarks for every profile and returns the
// number of ids removed.
func (c *Client) PruneAll(ctx context.Context) (int, error) {
	userIDs, err := c.users.ListUserIDs(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.RemoteStore, "accounts.PruneAll", err)
	}
	removed := 0
	for _, id := range userIDs {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		removed += len(c.PruneDanglingBookmarks(ctx, id))
	}
	return removed, nil
}

// Notifications is the notifications view of one user.
type Notifications struct {
	Hosted     []models.Event `json:"hosted"`
	Bookmarked []models.Event `json:"bookmarked"`
}

// Notifications lists the user's live hosted and bookmarked events.
func (c *Client) Notifications(ctx context.Context, userID string) (*Notifications, error) {
	const op = "accounts.Notifications"
	now := c.now()

	hosted, err := c.events.ListEventsByHost(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	ids, err := c.ListBookmarks(ctx, userID)
	if err != nil {
		return nil, err
	}
	bookmarked := []models.Event{}
	for _, batch := range events.Batches(events.ObjectIDs(ids), store.LookupBatch) {
		found, err := c.events.ListEventsByIDs(ctx, batch)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.RemoteStore, op, err)
		}
		bookmarked = append(bookmarked, found...)
	}

	return &Notifications{
		Hosted:     visibility.Live(hosted, now),
		Bookmarked: visibility.Live(bookmarked, now),
	}, nil
}
