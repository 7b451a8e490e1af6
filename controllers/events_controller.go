package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/phillip/campus-events-go/apperrors"
	events "github.com/phillip/campus-events-go/events"
	middleware "github.com/phillip/campus-events-go/middleware"
	models "github.com/phillip/campus-events-go/models"
	utils "github.com/phillip/campus-events-go/utils"
	visibility "github.com/phillip/campus-events-go/visibility"
)

// eventInput is the host form. Every field is optional so the same shape
// serves create and partial edit.
type eventInput struct {
	Title        *string  `form:"title" json:"title"`
	Description  *string  `form:"description" json:"description"`
	LocationInfo *string  `form:"location_info" json:"location_info"`
	Latitude     *float64 `form:"latitude" json:"latitude"`
	Longitude    *float64 `form:"longitude" json:"longitude"`
	StartTime    *string  `form:"start_time" json:"start_time"`
	EndTime      *string  `form:"end_time" json:"end_time"`
	IsPrivate    *bool    `form:"is_private" json:"is_private"`
	InviteEmails []string `form:"invite_emails" json:"invite_emails"`
	IsRSVPable   *bool    `form:"is_rsvpable" json:"is_rsvpable"`
	Images       []string `form:"images" json:"images"` // existing image URLs to keep
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.New(apperrors.Validation, "controllers.parseTime",
		fmt.Sprintf("invalid %s format, use RFC3339 or YYYY-MM-DDTHH:MM", field))
}

// splitEmails accepts repeated fields as well as one comma-separated value.
func splitEmails(in []string) []string {
	if in == nil {
		return nil
	}
	out := []string{}
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (in eventInput) draft() (models.EventDraft, error) {
	start, err := parseTime("start_time", in.StartTime)
	if err != nil {
		return models.EventDraft{}, err
	}
	end, err := parseTime("end_time", in.EndTime)
	if err != nil {
		return models.EventDraft{}, err
	}
	return models.EventDraft{
		Title:        in.Title,
		Description:  in.Description,
		LocationInfo: in.LocationInfo,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		StartTime:    start,
		EndTime:      end,
		IsPrivate:    in.IsPrivate,
		InviteEmails: splitEmails(in.InviteEmails),
		IsRSVPable:   in.IsRSVPable,
		Images:       in.Images,
	}, nil
}

// uploadImages pushes the multipart files under key to the image host.
func (d *Deps) uploadImages(c *gin.Context, key string) ([]string, error) {
	const op = "controllers.uploadImages"
	form, err := c.MultipartForm()
	if err != nil {
		if err == http.ErrNotMultipart {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.Validation, op, "invalid form data")
	}
	files := form.File[key]
	if len(files) == 0 {
		return nil, nil
	}
	if d.Images == nil {
		return nil, apperrors.New(apperrors.Validation, op, "image uploads are not configured")
	}

	ctx, cancel := withTimeout(c, time.Minute)
	defer cancel()

	urls := []string{}
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Internal, op, err)
		}
		url, err := d.Images.Upload(ctx, file, fileHeader.Filename)
		file.Close()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.RemoteStore, op, fmt.Errorf("upload %s: %w", fileHeader.Filename, err))
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// visibleTo drops private events the viewer is neither hosting nor
// invited to.
func visibleTo(list []models.Event, viewer *models.Account) []models.Event {
	out := make([]models.Event, 0, len(list))
	for _, ev := range list {
		if events.CanView(ev, viewer) {
			out = append(out, ev)
		}
	}
	return out
}

// bucketsETag covers membership, revision and bucket of every listed event.
func bucketsETag(b visibility.Buckets) string {
	revs := make([]utils.Revision, 0, len(b.Current)+len(b.Upcoming)+1)
	for _, ev := range b.Current {
		revs = append(revs, utils.Revision{ID: ev.ID, UpdatedAt: ev.UpdatedAt})
	}
	revs = append(revs, utils.Revision{})
	for _, ev := range b.Upcoming {
		revs = append(revs, utils.Revision{ID: ev.ID, UpdatedAt: ev.UpdatedAt})
	}
	return utils.ListETag(revs)
}

// ---------------- CREATE ----------------
func CreateEvent(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input eventInput
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		draft, err := input.draft()
		if err != nil {
			d.respondError(c, err)
			return
		}

		uploaded, err := d.uploadImages(c, "images")
		if err != nil {
			d.respondError(c, err)
			return
		}
		draft.Images = append(nonNilURLs(draft.Images), uploaded...)

		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		id, err := d.Events.Create(ctx, middleware.CurrentAccount(c), draft)
		if err != nil {
			d.respondError(c, err)
			return
		}
		endPlacing(c)

		created, err := d.Events.FetchByID(ctx, id)
		if err != nil || created == nil {
			c.JSON(http.StatusCreated, gin.H{"id": id})
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// ---------------- LIST ----------------
func ListEvents(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.CurrentSession(c)
		var gen uint64
		if s != nil {
			gen = s.BeginFetch()
		}

		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		all, err := d.Events.FetchAll(ctx)
		if err != nil {
			d.respondError(c, err)
			return
		}
		list := visibleTo(all, middleware.CurrentAccount(c))
		if s != nil && !s.ApplyFetch(gen, list) {
			// A newer fetch of this browser landed first.
			list = s.Events()
		}

		buckets := visibility.Classify(list, time.Now())
		etag := bucketsETag(buckets)
		c.Header("Vary", "Cookie, Authorization")
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, gin.H{
			"current":  buckets.Current,
			"upcoming": buckets.Upcoming,
		})
	}
}

// ---------------- GET ----------------
func GetEvent(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		event, err := d.Events.FetchByID(ctx, c.Param("id"))
		if err != nil {
			d.respondError(c, err)
			return
		}
		if event == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		if !events.CanView(*event, middleware.CurrentAccount(c)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "this event is private"})
			return
		}

		etag := utils.GenerateETag(event.ID, event.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", event.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, event)
	}
}

// ---------------- ICS ----------------
func EventICS(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		id := c.Param("id")
		doc, err := d.Events.ICS(ctx, middleware.CurrentAccount(c), id, d.Config.BaseURL)
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%s.ics"`, id))
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
	}
}

// ---------------- UPDATE ----------------
func UpdateEvent(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input eventInput
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		draft, err := input.draft()
		if err != nil {
			d.respondError(c, err)
			return
		}

		uploaded, err := d.uploadImages(c, "new_images")
		if err != nil {
			d.respondError(c, err)
			return
		}

		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		id := c.Param("id")
		if len(uploaded) > 0 {
			// New uploads extend the kept list, or the stored one when no
			// kept list was sent.
			if draft.Images == nil {
				existing, err := d.Events.FetchByID(ctx, id)
				if err != nil {
					d.respondError(c, err)
					return
				}
				if existing != nil {
					draft.Images = existing.Images
				}
			}
			draft.Images = append(nonNilURLs(draft.Images), uploaded...)
		}

		if err := d.Events.Edit(ctx, middleware.CurrentAccount(c), id, draft); err != nil {
			d.respondError(c, err)
			return
		}
		endPlacing(c)

		updated, err := d.Events.FetchByID(ctx, id)
		if err != nil || updated == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve updated event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "event updated successfully",
			"event":   updated,
		})
	}
}

// ---------------- DELETE ----------------
func DeleteEvent(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		id := c.Param("id")
		if err := d.Events.Delete(ctx, middleware.CurrentAccount(c), id); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "event deleted successfully",
			"id":      id,
		})
	}
}

func nonNilURLs(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
