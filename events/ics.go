package events

import (
	"context"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"

	apperrors "github.com/phillip/campus-events-go/apperrors"
	models "github.com/phillip/campus-events-go/models"
)

const icsProductID = "-//campus-events//event map//EN"

// ICS renders one event as an iCalendar document. Private events are only
// exported for their host and invitees.
func (r *Repository) ICS(ctx context.Context, viewer *models.Account, id, baseURL string) (string, error) {
	const op = "events.ICS"
	ev, err := r.FetchByID(ctx, id)
	if err != nil {
		return "", err
	}
	if ev == nil {
		return "", apperrors.New(apperrors.NotFound, op, "event not found")
	}
	if !CanView(*ev, viewer) {
		return "", apperrors.New(apperrors.Authorization, op, "this event is private")
	}
	return Calendar(*ev, baseURL), nil
}

// Calendar serializes ev as a single VEVENT calendar.
func Calendar(ev models.Event, baseURL string) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)

	vev := cal.AddEvent(fmt.Sprintf("%s@campus-events", ev.ID.Hex()))
	vev.SetDtStampTime(ev.UpdatedAt)
	vev.SetCreatedTime(ev.CreatedAt)
	vev.SetModifiedAt(ev.UpdatedAt)
	vev.SetStartAt(ev.StartTime)
	vev.SetEndAt(ev.EndTime)
	vev.SetSummary(ev.Title)
	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}
	vev.SetLocation(ev.LocationInfo)
	if ev.HostEmail != "" {
		vev.SetOrganizer("mailto:" + ev.HostEmail)
	}
	if baseURL != "" {
		vev.SetURL(strings.TrimRight(baseURL, "/") + "/events/" + ev.ID.Hex())
	}
	return cal.Serialize()
}

// CanView reports whether viewer may see ev. Public events are visible to
// everyone.
func CanView(ev models.Event, viewer *models.Account) bool {
	if !ev.IsPrivate {
		return true
	}
	if viewer == nil {
		return false
	}
	if viewer.ID == ev.HostID {
		return true
	}
	email := strings.ToLower(viewer.Email)
	for _, invited := range ev.InviteEmails {
		if strings.ToLower(invited) == email {
			return true
		}
	}
	return false
}
