// Package navigation decides which primary view a browser session shows.
//
// Three inputs compete for that decision: the live browser path, the
// in-memory state of the session and the section persisted in the browser
// from an earlier visit. Precedence is live path > in-memory > persisted.
// Every operation returns an Outcome describing the side effects the
// caller must apply (navigate, persist, refresh, clear pin-drop mode).
package navigation

import (
	"net/url"
	"strings"
)

type Section string

const (
	Events        Section = "events"
	Notifications Section = "notifications"
	Host          Section = "host"
	ViewEvent     Section = "viewEvent"
	Login         Section = "login"
	Signup        Section = "signup"
)

var sections = map[Section]bool{
	Events: true, Notifications: true, Host: true, ViewEvent: true, Login: true, Signup: true,
}

// ParseSection accepts the enumerated section names.
func ParseSection(s string) (Section, bool) {
	sec := Section(s)
	return sec, sections[sec]
}

// State is the authoritative view selection of one session.
type State struct {
	Section    Section `json:"section"`
	SelectedID string  `json:"selected_event_id,omitempty"`
}

// Persisted is what the browser keeps across full reloads.
type Persisted struct {
	Section Section
	EventID string
}

type Outcome struct {
	State State
	// Path is set when the browser should be sent to a new location.
	Path string
	// Persist asks the caller to store State as the last-known section.
	Persist bool
	// Refresh asks for a cleanup-then-refetch of the event list.
	Refresh bool
	// ClearPinDrop is set on every transition that leaves the host form.
	ClearPinDrop bool
	Notice       string
}

const signedOutNotice = "Logged out successfully"

// Reconciler is not safe for concurrent use; the owning session
// serializes access.
type Reconciler struct {
	state State
	// redirected is the one-shot guard for the post-sign-in redirect.
	redirected bool
}

// Restore builds the cold-start state: the path wins when it names a
// section, then the persisted section, then the event list.
func Restore(path string, persisted Persisted) (*Reconciler, Outcome) {
	r := &Reconciler{}

	if st, ok := ParsePath(path); ok {
		r.state = st
		return r, Outcome{State: st, Persist: true, Refresh: refreshes(st.Section), ClearPinDrop: st.Section != Host}
	}

	st := State{Section: Events}
	if sec, ok := ParseSection(string(persisted.Section)); ok {
		switch {
		case sec == ViewEvent && persisted.EventID == "":
		case sec == ViewEvent, sec == Host:
			st = State{Section: sec, SelectedID: persisted.EventID}
		default:
			st = State{Section: sec}
		}
	}
	r.state = st

	out := Outcome{State: st, Refresh: refreshes(st.Section), ClearPinDrop: st.Section != Host}
	if p := PathFor(st); p != cleanPath(path) {
		out.Path = p
	}
	return r, out
}

func (r *Reconciler) State() State { return r.state }

// NavClick handles a navigation menu click. editID is only meaningful for
// Host, where it selects the event being edited.
func (r *Reconciler) NavClick(section Section, editID string) Outcome {
	switch section {
	case ViewEvent:
		if editID != "" {
			return r.ViewEvent(editID)
		}
		section = Events
	case Host:
		// Entering host without an explicit edit target is create mode.
		r.state = State{Section: Host, SelectedID: editID}
		return r.moved()
	}
	if !sections[section] {
		section = Events
	}
	r.state = State{Section: section, SelectedID: r.state.SelectedID}
	return r.moved()
}

// ViewEvent opens the detail view of one event.
func (r *Reconciler) ViewEvent(id string) Outcome {
	if id == "" {
		return r.NavClick(Events, "")
	}
	r.state = State{Section: ViewEvent, SelectedID: id}
	return r.moved()
}

// PathChanged re-derives the state after the browser moved on its own
// (back/forward, typed URL). Unrecognized paths fall back to the list.
func (r *Reconciler) PathChanged(path string) Outcome {
	st, ok := ParsePath(path)
	if !ok {
		st = State{Section: Events, SelectedID: r.state.SelectedID}
	}
	changed := st.Section != r.state.Section
	r.state = st

	out := Outcome{
		State:        st,
		Persist:      true,
		Refresh:      changed && refreshes(st.Section),
		ClearPinDrop: st.Section != Host,
	}
	if p := PathFor(st); p != cleanPath(path) {
		out.Path = p
	}
	return out
}

// SignOut keeps readers of a detail or host view where they are and sends
// everyone else to the list. It re-arms the post-sign-in redirect.
func (r *Reconciler) SignOut() Outcome {
	r.redirected = false
	if r.state.Section == ViewEvent || r.state.Section == Host {
		return Outcome{State: r.state, Notice: signedOutNotice}
	}
	r.state = State{Section: Events, SelectedID: r.state.SelectedID}
	out := r.moved()
	out.Notice = signedOutNotice
	return out
}

// SignedIn forces the list view the first time it is called after an
// authentication; later calls are no-ops until SignOut.
func (r *Reconciler) SignedIn() Outcome {
	if r.redirected {
		return Outcome{State: r.state}
	}
	r.redirected = true
	r.state = State{Section: Events, SelectedID: r.state.SelectedID}
	return r.moved()
}

// Resume arms the guard without moving, for sessions that were already
// authenticated when they were restored.
func (r *Reconciler) Resume() { r.redirected = true }

func (r *Reconciler) moved() Outcome {
	return Outcome{
		State:        r.state,
		Path:         PathFor(r.state),
		Persist:      true,
		Refresh:      refreshes(r.state.Section),
		ClearPinDrop: r.state.Section != Host,
	}
}

func refreshes(s Section) bool {
	return s == Events || s == Notifications
}

// PathFor renders the client route of a state.
func PathFor(st State) string {
	switch st.Section {
	case ViewEvent:
		return "/events/" + url.PathEscape(st.SelectedID)
	case Host:
		if st.SelectedID != "" {
			return "/host/" + url.PathEscape(st.SelectedID)
		}
		return "/host"
	case Notifications, Login, Signup:
		return "/" + string(st.Section)
	default:
		return "/events"
	}
}

// ParsePath reads a state from a client route. ok is false when the path
// names no section (including "/").
func ParsePath(path string) (State, bool) {
	parts := strings.Split(strings.Trim(cleanPath(path), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return State{}, false
	}

	id := ""
	if len(parts) == 2 {
		unescaped, err := url.PathUnescape(parts[1])
		if err != nil || unescaped == "" {
			return State{}, false
		}
		id = unescaped
	}
	if len(parts) > 2 {
		return State{}, false
	}

	switch parts[0] {
	case "events":
		if id != "" {
			return State{Section: ViewEvent, SelectedID: id}, true
		}
		return State{Section: Events}, true
	case "host":
		return State{Section: Host, SelectedID: id}, true
	case "notifications", "login", "signup":
		if id != "" {
			return State{}, false
		}
		return State{Section: Section(parts[0])}, true
	}
	return State{}, false
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path = strings.TrimRight(path, "/"); path == "" {
		return "/"
	}
	return path
}
