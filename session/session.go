// Package session keeps the per-browser UI state on the server: who is
// signed in, which section is shown, the map pin state and the last event
// list fetched for that browser.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	models "github.com/phillip/campus-events-go/models"
	navigation "github.com/phillip/campus-events-go/navigation"
	pinmap "github.com/phillip/campus-events-go/pinmap"
)

// Listener is told about every account change of a session. A nil account
// means signed out.
type Listener func(acc *models.Account)

type Session struct {
	ID string

	mu       sync.Mutex
	account  *models.Account
	token    string
	nav      *navigation.Reconciler
	pins     *pinmap.Controller
	lastSeen time.Time

	events     []models.Event
	fetchGen   uint64
	appliedGen uint64

	listeners map[int]Listener
	nextID    int
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		pins:      pinmap.New(),
		lastSeen:  now,
		listeners: map[int]Listener{},
	}
}

// Restore initializes navigation on the first request of a session. Later
// calls only re-derive the state from the live path, since the path beats
// in-memory state.
func (s *Session) Restore(path string, persisted navigation.Persisted) navigation.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out navigation.Outcome
	if s.nav == nil {
		out = s.initNav(path, persisted)
	} else if _, ok := navigation.ParsePath(path); ok {
		out = s.nav.PathChanged(path)
	} else {
		out = navigation.Outcome{State: s.nav.State(), Path: navigation.PathFor(s.nav.State())}
	}
	s.apply(out)
	return out
}

// Navigate runs fn against the session's reconciler and applies the pin
// side effects of the outcome.
func (s *Session) Navigate(fn func(r *navigation.Reconciler) navigation.Outcome) navigation.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureNav()
	out := fn(s.nav)
	s.apply(out)
	return out
}

// Pins runs fn with the session's pin controller held.
func (s *Session) Pins(fn func(p *pinmap.Controller)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.pins)
}

func (s *Session) State() navigation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureNav()
	return s.nav.State()
}

func (s *Session) ensureNav() {
	if s.nav == nil {
		s.initNav("/", navigation.Persisted{})
	}
}

func (s *Session) initNav(path string, persisted navigation.Persisted) navigation.Outcome {
	var out navigation.Outcome
	s.nav, out = navigation.Restore(path, persisted)
	if s.account != nil {
		// Authenticated before the first view: no sign-in redirect.
		s.nav.Resume()
	}
	return out
}

func (s *Session) apply(out navigation.Outcome) {
	if out.ClearPinDrop {
		s.pins.EndPlacing()
	}
}

func (s *Session) Account() *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetAccount records an authentication change and notifies listeners. The
// navigation outcome is the sign-in redirect or the sign-out transition;
// it is empty before the session's first view.
func (s *Session) SetAccount(acc *models.Account, token string) navigation.Outcome {
	s.mu.Lock()
	wasSignedIn := s.account != nil
	s.account, s.token = acc, token

	// Before the first view there is nothing to navigate; Restore picks
	// the account up.
	var out navigation.Outcome
	if s.nav != nil {
		switch {
		case acc != nil:
			out = s.nav.SignedIn()
		case wasSignedIn:
			out = s.nav.SignOut()
		default:
			out = navigation.Outcome{State: s.nav.State()}
		}
		s.apply(out)
	}

	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(acc)
	}
	return out
}

// Subscribe registers fn for account changes and returns a function that
// removes it.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// BeginFetch tags a new event list fetch.
func (s *Session) BeginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchGen++
	return s.fetchGen
}

// ApplyFetch stores the result of fetch gen unless a newer fetch already
// landed. It reports whether the cache was replaced.
func (s *Session) ApplyFetch(gen uint64, events []models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen <= s.appliedGen || gen > s.fetchGen {
		return false
	}
	s.appliedGen = gen
	s.events = append([]models.Event(nil), events...)
	return true
}

func (s *Session) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

// Store is the process-wide set of live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

func NewStore(idleTTL time.Duration) *Store {
	return &Store{
		sessions: map[string]*Session{},
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Get returns the session for id, creating a fresh one under a new id when
// id is unknown. created reports which of the two happened.
func (st *Store) Get(id string) (s *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if s, ok := st.sessions[id]; ok && id != "" {
		s.mu.Lock()
		s.lastSeen = now
		s.mu.Unlock()
		return s, false
	}
	s = newSession(uuid.NewString(), now)
	st.sessions[s.ID] = s
	return s, true
}

func (st *Store) Lookup(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the store's TTL and returns how
// many were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.idleTTL)
	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
