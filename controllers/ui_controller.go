package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	events "github.com/phillip/campus-events-go/events"
	middleware "github.com/phillip/campus-events-go/middleware"
	navigation "github.com/phillip/campus-events-go/navigation"
	pinmap "github.com/phillip/campus-events-go/pinmap"
	session "github.com/phillip/campus-events-go/session"
	visibility "github.com/phillip/campus-events-go/visibility"
)

const (
	SectionCookie = "last_section"
	EventCookie   = "last_event"

	persistMaxAge = 90 * 24 * 60 * 60
)

// navigationView is the JSON form of a navigation outcome.
type navigationView struct {
	Section    navigation.Section `json:"section"`
	SelectedID string             `json:"selected_event_id,omitempty"`
	Path       string             `json:"path"`
	Redirect   bool               `json:"redirect"`
	Refresh    bool               `json:"refresh"`
	Notice     string             `json:"notice,omitempty"`
}

type mapView struct {
	Mode     pinmap.Mode  `json:"mode"`
	ShowPins bool         `json:"show_pins"`
	Pins     []pinmap.Pin `json:"pins"`
}

// applyOutcome writes the persisted-section cookies an outcome asks for
// and returns its JSON form.
func (d *Deps) applyOutcome(c *gin.Context, out navigation.Outcome) navigationView {
	if out.Persist {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SectionCookie, string(out.State.Section), persistMaxAge, "/", "", d.SecureCookies(), false)
		if out.State.SelectedID != "" {
			c.SetCookie(EventCookie, out.State.SelectedID, persistMaxAge, "/", "", d.SecureCookies(), false)
		} else {
			c.SetCookie(EventCookie, "", -1, "/", "", d.SecureCookies(), false)
		}
	}

	path := out.Path
	if path == "" && out.State.Section != "" {
		path = navigation.PathFor(out.State)
	}
	return navigationView{
		Section:    out.State.Section,
		SelectedID: out.State.SelectedID,
		Path:       path,
		Redirect:   out.Path != "",
		Refresh:    out.Refresh,
		Notice:     out.Notice,
	}
}

func persistedFrom(c *gin.Context) navigation.Persisted {
	var p navigation.Persisted
	if v, err := c.Cookie(SectionCookie); err == nil {
		p.Section = navigation.Section(v)
	}
	if v, err := c.Cookie(EventCookie); err == nil {
		p.EventID = v
	}
	return p
}

func (d *Deps) mapOf(s *session.Session) mapView {
	evs := s.Events()
	selected := s.State().SelectedID
	var mv mapView
	s.Pins(func(p *pinmap.Controller) {
		mv = mapView{Pins: p.Render(evs, selected), Mode: p.Mode(), ShowPins: p.ShowPins()}
	})
	return mv
}

// render answers with the full view model of the session after out. A
// refresh outcome re-runs cleanup and refetches the event list first.
func (d *Deps) render(c *gin.Context, s *session.Session, out navigation.Outcome) {
	if out.Refresh {
		gen := s.BeginFetch()
		ctx, cancel := withTimeout(c, listTimeout)
		all, err := d.Events.FetchAll(ctx)
		cancel()
		if err != nil {
			d.respondError(c, err)
			return
		}
		s.ApplyFetch(gen, visibleTo(all, s.Account()))
	}

	acc := s.Account()
	state := s.State()
	body := gin.H{
		"navigation": d.applyOutcome(c, out),
		"account":    acc,
		"map":        d.mapOf(s),
	}

	now := time.Now()
	switch state.Section {
	case navigation.Events:
		b := visibility.Classify(s.Events(), now)
		body["events"] = gin.H{"current": b.Current, "upcoming": b.Upcoming}
	case navigation.ViewEvent, navigation.Host:
		if state.SelectedID == "" {
			break
		}
		ctx, cancel := withTimeout(c, docTimeout)
		ev, err := d.Events.FetchByID(ctx, state.SelectedID)
		cancel()
		if err != nil {
			d.respondError(c, err)
			return
		}
		if ev != nil && events.CanView(*ev, acc) {
			body["event"] = ev
		}
	case navigation.Notifications:
		if acc == nil {
			break
		}
		ctx, cancel := withTimeout(c, listTimeout)
		n, err := d.Accounts.Notifications(ctx, acc.ID)
		cancel()
		if err != nil {
			d.respondError(c, err)
			return
		}
		body["notifications"] = n
	}
	c.JSON(http.StatusOK, body)
}

// ---------------- VIEW ----------------

// ShowView serves every client route: the path is reconciled with the
// session and the persisted section, then the view model is returned.
func ShowView(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.CurrentSession(c)
		if s == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no session"})
			return
		}
		out := s.Restore(c.Request.URL.Path, persistedFrom(c))
		d.render(c, s, out)
	}
}

// ---------------- NAVIGATE ----------------
func NavClick(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Section string `json:"section" form:"section" binding:"required"`
			EditID  string `json:"edit_id" form:"edit_id"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "section is required"})
			return
		}
		sec, ok := navigation.ParseSection(input.Section)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown section"})
			return
		}

		s := middleware.CurrentSession(c)
		out := s.Navigate(func(r *navigation.Reconciler) navigation.Outcome {
			return r.NavClick(sec, input.EditID)
		})
		d.render(c, s, out)
	}
}

func ViewEvent(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		s := middleware.CurrentSession(c)
		out := s.Navigate(func(r *navigation.Reconciler) navigation.Outcome {
			return r.ViewEvent(id)
		})
		d.render(c, s, out)
	}
}

// PathChanged reports a browser-initiated move (back/forward).
func PathChanged(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Path string `json:"path" form:"path" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
			return
		}
		s := middleware.CurrentSession(c)
		out := s.Navigate(func(r *navigation.Reconciler) navigation.Outcome {
			return r.PathChanged(input.Path)
		})
		d.render(c, s, out)
	}
}
