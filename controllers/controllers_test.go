package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	accounts "github.com/phillip/campus-events-go/accounts"
	auth "github.com/phillip/campus-events-go/auth"
	config "github.com/phillip/campus-events-go/config"
	controllers "github.com/phillip/campus-events-go/controllers"
	events "github.com/phillip/campus-events-go/events"
	middleware "github.com/phillip/campus-events-go/middleware"
	routes "github.com/phillip/campus-events-go/routes"
	session "github.com/phillip/campus-events-go/session"
	store "github.com/phillip/campus-events-go/store"
	utils "github.com/phillip/campus-events-go/utils"
)

const password = "Abcdef1!"

var linkToken = regexp.MustCompile(`token=([^"&]+)`)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	mailer *utils.LogMailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultConfig()
	cfg.JWTSecret = "test-secret-0123456789"
	cfg.Store = "memory"

	mem := store.NewMemory()
	mailer := &utils.LogMailer{Log: log}
	provider := auth.NewLocalProvider(mem, mailer, auth.Options{
		Secret:     []byte(cfg.JWTSecret),
		BaseURL:    cfg.BaseURL,
		BcryptCost: 4,
	}, log)

	d := &controllers.Deps{
		Config: cfg,
		Events: events.NewRepository(mem, nil, log),
		Accounts: accounts.NewClient(provider, mem, mem, accounts.Options{
			AllowedDomains: cfg.AllowedDomains,
			SchoolDomains:  cfg.SchoolDomains,
		}, log),
		Sessions: session.NewStore(time.Hour),
		Log:      log,
	}
	r := gin.New()
	routes.SetupRoutes(r, d, middleware.NewRateLimiter(6000, 1000))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, mailer: mailer}
}

type browser struct {
	h      *harness
	client *http.Client
}

func (h *harness) browser() *browser {
	jar, err := cookiejar.New(nil)
	if err != nil {
		h.t.Fatal(err)
	}
	return &browser{h: h, client: &http.Client{Jar: jar}}
}

func (b *browser) send(method, path string, body any, header http.Header) (*http.Response, map[string]any) {
	b.h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			b.h.t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.h.srv.URL+path, rd)
	if err != nil {
		b.h.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.h.t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			b.h.t.Fatalf("%s %s: bad json %q", method, path, raw)
		}
	} else {
		out["raw"] = string(raw)
	}
	return resp, out
}

func (b *browser) do(method, path string, body any) (int, map[string]any) {
	b.h.t.Helper()
	resp, out := b.send(method, path, body, nil)
	return resp.StatusCode, out
}

func (h *harness) lastToken(to string) string {
	h.t.Helper()
	sent := h.mailer.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].To == to {
			if m := linkToken.FindStringSubmatch(sent[i].Body); m != nil {
				return m[1]
			}
		}
	}
	h.t.Fatalf("no mailed link for %s", to)
	return ""
}

func (b *browser) signUp(email string) {
	b.h.t.Helper()
	if code, body := b.do(http.MethodPost, "/auth/signup", gin.H{"email": email, "password": password}); code != http.StatusCreated {
		b.h.t.Fatalf("signup %s: %d %v", email, code, body)
	}
}

func (b *browser) verify(email string) {
	b.h.t.Helper()
	if code, body := b.do(http.MethodGet, "/auth/verify?token="+b.h.lastToken(email), nil); code != http.StatusOK {
		b.h.t.Fatalf("verify %s: %d %v", email, code, body)
	}
}

func (b *browser) signIn(email string) map[string]any {
	b.h.t.Helper()
	code, body := b.do(http.MethodPost, "/auth/signin", gin.H{"email": email, "password": password})
	if code != http.StatusOK {
		b.h.t.Fatalf("signin %s: %d %v", email, code, body)
	}
	return body
}

func (b *browser) register(email string) {
	b.h.t.Helper()
	b.signUp(email)
	b.verify(email)
	b.signIn(email)
}

func (b *browser) createEvent(fields gin.H) string {
	b.h.t.Helper()
	now := time.Now().UTC()
	payload := gin.H{
		"title":         "Robotics demo",
		"location_info": "Nedderman Hall",
		"latitude":      32.7318,
		"longitude":     -97.1131,
		"start_time":    now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":      now.Add(2 * time.Hour).Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}
	code, body := b.do(http.MethodPost, "/api/events", payload)
	if code != http.StatusCreated {
		b.h.t.Fatalf("create event: %d %v", code, body)
	}
	return body["id"].(string)
}

func obj(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func TestEventLifecycle(t *testing.T) {
	h := newHarness(t)
	host := h.browser()
	host.register("host@uta.edu")

	id := host.createEvent(nil)

	resp, body := host.send(http.MethodGet, "/api/events", nil, nil)
	if resp.StatusCode != http.StatusOK || len(list(body["current"])) != 1 || len(list(body["upcoming"])) != 0 {
		t.Fatalf("list: %d %v", resp.StatusCode, body)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("list has no ETag")
	}
	resp, _ = host.send(http.MethodGet, "/api/events", nil, http.Header{"If-None-Match": {etag}})
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional list status = %d", resp.StatusCode)
	}

	guest := h.browser()
	guest.register("guest@mavs.uta.edu")
	if code, _ := guest.do(http.MethodPatch, "/api/events/"+id, gin.H{"title": "Hijacked"}); code != http.StatusForbidden {
		t.Fatalf("non-host edit status = %d", code)
	}

	code, body := host.do(http.MethodPatch, "/api/events/"+id, gin.H{
		"title":         "Robotics demo night",
		"is_private":    false,
		"invite_emails": []string{"a@x.com", "b@x.com"},
	})
	if code != http.StatusOK {
		t.Fatalf("edit: %d %v", code, body)
	}
	ev := obj(body["event"])
	if ev["title"] != "Robotics demo night" || len(list(ev["invite_emails"])) != 0 || ev["host_email"] != "host@uta.edu" {
		t.Fatalf("edited event = %v", ev)
	}

	anon := h.browser()
	resp, body = anon.send(http.MethodGet, "/api/events/"+id+"/ics", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar") {
		t.Fatalf("ics: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body["raw"].(string), "SUMMARY:Robotics demo night") {
		t.Fatalf("ics body = %s", body["raw"])
	}

	if code, _ := anon.do(http.MethodPost, "/api/events", gin.H{"title": "x"}); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d", code)
	}
	if code, _ := guest.do(http.MethodDelete, "/api/events/"+id, nil); code != http.StatusForbidden {
		t.Fatalf("non-host delete status = %d", code)
	}
	if code, _ := host.do(http.MethodDelete, "/api/events/"+id, nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	if code, _ := host.do(http.MethodDelete, "/api/events/"+id, nil); code != http.StatusOK {
		t.Fatalf("second delete status = %d", code)
	}
	if code, _ := anon.do(http.MethodGet, "/api/events/"+id, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", code)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	host := h.browser()
	host.register("host@uta.edu")

	now := time.Now().UTC()
	cases := []struct {
		name string
		body gin.H
	}{
		{"no pin", gin.H{"title": "t", "location_info": "l", "start_time": now.Format(time.RFC3339), "end_time": now.Add(time.Hour).Format(time.RFC3339)}},
		{"bad time", gin.H{"title": "t", "location_info": "l", "latitude": 1.5, "longitude": 2.5, "start_time": "tomorrow", "end_time": "later"}},
		{"end before start", gin.H{"title": "t", "location_info": "l", "latitude": 1.5, "longitude": 2.5,
			"start_time": now.Add(time.Hour).Format(time.RFC3339), "end_time": now.Format(time.RFC3339)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := host.do(http.MethodPost, "/api/events", tc.body)
			if code != http.StatusBadRequest || body["error"] == "" {
				t.Fatalf("status = %d body = %v", code, body)
			}
		})
	}
}

func TestPrivateEventsOnlyReachInvitees(t *testing.T) {
	h := newHarness(t)
	host := h.browser()
	host.register("host@uta.edu")
	id := host.createEvent(gin.H{"is_private": true, "invite_emails": []string{"Guest@mavs.uta.edu"}})

	anon := h.browser()
	_, body := anon.do(http.MethodGet, "/api/events", nil)
	if len(list(body["current"])) != 0 {
		t.Fatalf("private event listed for anonymous viewer: %v", body)
	}
	if code, _ := anon.do(http.MethodGet, "/api/events/"+id, nil); code != http.StatusForbidden {
		t.Fatalf("anonymous get status = %d", code)
	}

	guest := h.browser()
	guest.register("guest@mavs.uta.edu")
	if code, _ := guest.do(http.MethodGet, "/api/events/"+id, nil); code != http.StatusOK {
		t.Fatalf("invitee get status = %d", code)
	}
	_, body = host.do(http.MethodGet, "/api/events", nil)
	if len(list(body["current"])) != 1 {
		t.Fatalf("host does not see own private event: %v", body)
	}
}

func TestBookmarksAndNotifications(t *testing.T) {
	h := newHarness(t)
	host := h.browser()
	host.register("host@uta.edu")
	id := host.createEvent(nil)

	guest := h.browser()
	guest.register("guest@mavs.uta.edu")

	if code, body := guest.do(http.MethodPost, "/api/bookmarks/"+id, nil); code != http.StatusOK {
		t.Fatalf("bookmark: %d %v", code, body)
	}
	_, body := guest.do(http.MethodGet, "/api/bookmarks", nil)
	if ids := list(body["bookmarks"]); len(ids) != 1 || ids[0] != id {
		t.Fatalf("bookmarks = %v", body)
	}
	_, body = guest.do(http.MethodGet, "/api/notifications", nil)
	if len(list(body["bookmarked"])) != 1 || len(list(body["hosted"])) != 0 {
		t.Fatalf("guest notifications = %v", body)
	}
	_, body = host.do(http.MethodGet, "/api/events/"+id, nil)
	if rsvps := list(body["rsvp_users"]); len(rsvps) != 1 {
		t.Fatalf("rsvp_users = %v", body["rsvp_users"])
	}

	if code, _ := host.do(http.MethodPost, "/api/bookmarks/"+id, nil); code != http.StatusForbidden {
		t.Fatalf("host bookmarking own event status = %d", code)
	}
	if code, _ := h.browser().do(http.MethodGet, "/api/bookmarks", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous bookmarks status = %d", code)
	}

	if code, _ := guest.do(http.MethodDelete, "/api/bookmarks/"+id, nil); code != http.StatusOK {
		t.Fatalf("remove bookmark status = %d", code)
	}
	if code, _ := guest.do(http.MethodDelete, "/api/bookmarks/"+id, nil); code != http.StatusOK {
		t.Fatalf("second remove status = %d", code)
	}
	_, body = guest.do(http.MethodGet, "/api/bookmarks", nil)
	if len(list(body["bookmarks"])) != 0 {
		t.Fatalf("bookmarks after remove = %v", body)
	}

	// A bookmark whose event is gone is pruned.
	guest.do(http.MethodPost, "/api/bookmarks/"+id, nil)
	host.do(http.MethodDelete, "/api/events/"+id, nil)
	_, body = guest.do(http.MethodPost, "/api/bookmarks/prune", nil)
	if removed := list(body["removed"]); len(removed) != 1 || removed[0] != id {
		t.Fatalf("prune = %v", body)
	}
}

func TestUnverifiedSignInIsRefused(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.signUp("fresh@uta.edu")

	code, body := b.do(http.MethodPost, "/auth/signin", gin.H{"email": "fresh@uta.edu", "password": password})
	if code != http.StatusForbidden || body["code"] != "unverified" {
		t.Fatalf("unverified signin: %d %v", code, body)
	}
	if code, _ := b.do(http.MethodGet, "/api/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me after refused signin status = %d", code)
	}

	code, _ = b.do(http.MethodPost, "/auth/signin", gin.H{"email": "fresh@uta.edu", "password": "Wrong123!"})
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", code)
	}
}

func TestColdDeepLinkOpensEvent(t *testing.T) {
	h := newHarness(t)
	host := h.browser()
	host.register("host@uta.edu")
	id := host.createEvent(nil)

	anon := h.browser()
	code, body := anon.do(http.MethodGet, "/events/"+id, nil)
	if code != http.StatusOK {
		t.Fatalf("view status = %d", code)
	}
	nav := obj(body["navigation"])
	if nav["section"] != "viewEvent" || nav["selected_event_id"] != id || nav["redirect"] != false {
		t.Fatalf("navigation = %v", nav)
	}
	if obj(body["event"])["title"] != "Robotics demo" {
		t.Fatalf("event = %v", body["event"])
	}

	// The selection persists across a full reload at the root.
	_, body = anon.do(http.MethodGet, "/", nil)
	if nav := obj(body["navigation"]); nav["section"] != "viewEvent" || nav["selected_event_id"] != id {
		t.Fatalf("reload navigation = %v", nav)
	}
}

func TestSignInRedirectsOnceAndSignOutStays(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.signUp("student@uta.edu")
	b.verify("student@uta.edu")

	_, body := b.do(http.MethodGet, "/notifications", nil)
	if obj(body["navigation"])["section"] != "notifications" {
		t.Fatalf("navigation = %v", body["navigation"])
	}

	body = b.signIn("student@uta.edu")
	nav := obj(body["navigation"])
	if nav["section"] != "events" || nav["path"] != "/events" || nav["redirect"] != true {
		t.Fatalf("sign-in navigation = %v", nav)
	}

	_, body = b.do(http.MethodPost, "/ui/nav", gin.H{"section": "notifications"})
	if obj(body["navigation"])["section"] != "notifications" || body["notifications"] == nil {
		t.Fatalf("nav to notifications = %v", body)
	}

	// Signing in again in the same session does not redirect a second time.
	body = b.signIn("student@uta.edu")
	if nav := obj(body["navigation"]); nav["section"] != "notifications" || nav["redirect"] != false {
		t.Fatalf("second sign-in navigation = %v", nav)
	}

	_, body = b.do(http.MethodPost, "/auth/signout", nil)
	nav = obj(body["navigation"])
	if nav["section"] != "events" || nav["notice"] != "Logged out successfully" {
		t.Fatalf("sign-out navigation = %v", nav)
	}
	if code, _ := b.do(http.MethodGet, "/api/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me after sign-out status = %d", code)
	}
}

func TestPinDropOnlyOnHostForm(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.register("host@uta.edu")

	if code, _ := b.do(http.MethodPost, "/ui/map/placing", gin.H{"placing": true}); code != http.StatusConflict {
		t.Fatalf("placing outside host status = %d", code)
	}
	_, body := b.do(http.MethodPost, "/ui/map/click", gin.H{"lat": 32.7, "lng": -97.1})
	if body["recorded"] != false {
		t.Fatalf("click while idle = %v", body)
	}

	_, body = b.do(http.MethodPost, "/ui/nav", gin.H{"section": "host"})
	if obj(body["navigation"])["path"] != "/host" {
		t.Fatalf("host navigation = %v", body["navigation"])
	}
	_, body = b.do(http.MethodPost, "/ui/map/placing", gin.H{"placing": true})
	if obj(body["map"])["mode"] != "placing" {
		t.Fatalf("map = %v", body["map"])
	}
	b.do(http.MethodPost, "/ui/map/click", gin.H{"lat": 32.7, "lng": -97.1})
	_, body = b.do(http.MethodPost, "/ui/map/click", gin.H{"lat": 32.8, "lng": -97.2})
	pins := list(obj(body["map"])["pins"])
	if body["recorded"] != true || len(pins) != 1 || obj(pins[0])["lat"] != 32.8 {
		t.Fatalf("after two clicks = %v", body)
	}
	if coords := obj(body["coordinates"]); coords["lng"] != -97.2 {
		t.Fatalf("coordinates = %v", body["coordinates"])
	}

	_, body = b.do(http.MethodPost, "/ui/nav", gin.H{"section": "events"})
	m := obj(body["map"])
	if m["mode"] != "idle" {
		t.Fatalf("map after leaving host = %v", m)
	}
	for _, p := range list(m["pins"]) {
		if obj(p)["dropped"] == true {
			t.Fatalf("dropped pin survived leaving host: %v", m)
		}
	}

	_, body = b.do(http.MethodPost, "/ui/map/pins", gin.H{"show": false})
	if obj(body["map"])["show_pins"] != false {
		t.Fatalf("show pins toggle = %v", body["map"])
	}
}

func TestSubmitLeavesPlacingMode(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.register("host@uta.edu")

	placeAndDrop := func() {
		t.Helper()
		b.do(http.MethodPost, "/ui/nav", gin.H{"section": "host"})
		b.do(http.MethodPost, "/ui/map/placing", gin.H{"placing": true})
		_, body := b.do(http.MethodPost, "/ui/map/click", gin.H{"lat": 32.8, "lng": -97.2})
		if body["recorded"] != true {
			t.Fatalf("click while placing = %v", body)
		}
	}
	assertIdle := func(after string) {
		t.Helper()
		_, body := b.do(http.MethodPost, "/ui/map/pins", gin.H{"show": true})
		m := obj(body["map"])
		if m["mode"] != "idle" {
			t.Fatalf("map after %s = %v", after, m)
		}
		for _, p := range list(m["pins"]) {
			if obj(p)["dropped"] == true {
				t.Fatalf("dropped pin survived %s: %v", after, m)
			}
		}
	}

	placeAndDrop()
	id := b.createEvent(gin.H{"latitude": 32.8, "longitude": -97.2})
	assertIdle("create")

	placeAndDrop()
	if code, body := b.do(http.MethodPatch, "/api/events/"+id, gin.H{"latitude": 32.81}); code != http.StatusOK {
		t.Fatalf("edit: %d %v", code, body)
	}
	assertIdle("edit")

	// A rejected submit keeps the dropped pin for the next try.
	placeAndDrop()
	if code, _ := b.do(http.MethodPost, "/api/events", gin.H{"title": "No place"}); code != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d", code)
	}
	_, body := b.do(http.MethodPost, "/ui/map/pins", gin.H{"show": true})
	if obj(body["map"])["mode"] != "placing" {
		t.Fatalf("map after rejected submit = %v", body["map"])
	}
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.register("host@uta.edu")

	if code, _ := b.do(http.MethodPost, "/auth/password-reset", gin.H{"email": "nobody@uta.edu"}); code != http.StatusNotFound {
		t.Fatalf("reset for unknown email status = %d", code)
	}
	if code, _ := b.do(http.MethodPost, "/auth/password-reset", gin.H{"email": "host@uta.edu"}); code != http.StatusOK {
		t.Fatalf("reset request status = %d", code)
	}
	token := h.lastToken("host@uta.edu")
	code, body := b.do(http.MethodPost, "/auth/password-reset/confirm", gin.H{"token": token, "password": "Newpass9?"})
	if code != http.StatusOK {
		t.Fatalf("confirm: %d %v", code, body)
	}
	if code, _ := b.do(http.MethodPost, "/auth/password-reset/confirm", gin.H{"token": token, "password": "Other9?x"}); code != http.StatusUnauthorized {
		t.Fatalf("reused reset token status = %d", code)
	}
	code, _ = b.do(http.MethodPost, "/auth/signin", gin.H{"email": "host@uta.edu", "password": "Newpass9?"})
	if code != http.StatusOK {
		t.Fatalf("signin with new password status = %d", code)
	}
}
