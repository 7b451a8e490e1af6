package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/campus-events-go/models"
)

// Memory is a process-local Store. Documents are kept as BSON so reads go
// through the same instant normalization as the Mongo implementation.
type Memory struct {
	mu          sync.Mutex
	reg         *bsoncodec.Registry
	events      *docs
	users       *docs
	credentials *docs
}

type docs struct {
	order []string
	byKey map[string]bson.Raw
}

func newDocs() *docs {
	return &docs{byKey: map[string]bson.Raw{}}
}

func (d *docs) put(key string, raw bson.Raw) {
	if _, ok := d.byKey[key]; !ok {
		d.order = append(d.order, key)
	}
	d.byKey[key] = raw
}

func (d *docs) remove(key string) bool {
	if _, ok := d.byKey[key]; !ok {
		return false
	}
	delete(d.byKey, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		reg:         Registry(),
		events:      newDocs(),
		users:       newDocs(),
		credentials: newDocs(),
	}
}

func (m *Memory) decode(raw bson.Raw, v any) error {
	return bson.UnmarshalWithRegistry(m.reg, raw, v)
}

// mutate decodes a document into a generic map, applies fn and stores the
// result back.
func (m *Memory) mutate(d *docs, key string, fn func(doc bson.M)) error {
	raw, ok := d.byKey[key]
	if !ok {
		return ErrNotFound
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return err
	}
	fn(doc)
	out, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	d.put(key, out)
	return nil
}

// InsertRawEvent stores an arbitrary events document, for seeding data in
// encodings older clients produced.
func (m *Memory) InsertRawEvent(doc bson.M) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := doc["_id"].(primitive.ObjectID)
	if !ok {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	m.events.put(id.Hex(), raw)
	return id, nil
}

// ---------------- EVENTS ----------------

func (m *Memory) InsertEvent(_ context.Context, ev *models.Event) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.ID.IsZero() {
		ev.ID = primitive.NewObjectID()
	}
	raw, err := bson.Marshal(ev)
	if err != nil {
		return primitive.NilObjectID, err
	}
	m.events.put(ev.ID.Hex(), raw)
	return ev.ID, nil
}

func (m *Memory) GetEvent(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.events.byKey[id.Hex()]
	if !ok {
		return nil, ErrNotFound
	}
	var ev models.Event
	if err := m.decode(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (m *Memory) UpdateEvent(_ context.Context, id primitive.ObjectID, fields bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutate(m.events, id.Hex(), func(doc bson.M) {
		for k, v := range fields {
			doc[k] = v
		}
	})
}

func (m *Memory) DeleteEvent(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.events.remove(id.Hex()), nil
}

func (m *Memory) ListEvents(_ context.Context) ([]models.Event, error) {
	return m.filterEvents(func(models.Event) bool { return true })
}

func (m *Memory) ListEventsEndedBefore(_ context.Context, t time.Time) ([]models.Event, error) {
	return m.filterEvents(func(ev models.Event) bool { return ev.EndTime.Before(t) })
}

func (m *Memory) ListEventsByHost(_ context.Context, hostID string) ([]models.Event, error) {
	return m.filterEvents(func(ev models.Event) bool { return ev.HostID == hostID })
}

func (m *Memory) ListEventsByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Event, error) {
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.filterEvents(func(ev models.Event) bool { return want[ev.ID] })
}

func (m *Memory) AddRSVPUser(_ context.Context, eventID primitive.ObjectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutate(m.events, eventID.Hex(), func(doc bson.M) {
		doc["rsvp_users"] = addToSet(stringList(doc["rsvp_users"]), userID)
		doc["updated_at"] = time.Now().UTC()
	})
}

func (m *Memory) RemoveRSVPUser(_ context.Context, eventID primitive.ObjectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutate(m.events, eventID.Hex(), func(doc bson.M) {
		doc["rsvp_users"] = pullAll(stringList(doc["rsvp_users"]), userID)
		doc["updated_at"] = time.Now().UTC()
	})
}

func (m *Memory) filterEvents(keep func(models.Event) bool) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Event{}
	for _, key := range m.events.order {
		var ev models.Event
		if err := m.decode(m.events.byKey[key], &ev); err != nil {
			return nil, err
		}
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ---------------- USERS ----------------

func (m *Memory) PutUser(_ context.Context, u *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Bookmarks == nil {
		u.Bookmarks = []string{}
	}
	raw, err := bson.Marshal(u)
	if err != nil {
		return err
	}
	m.users.put(u.ID, raw)
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.users.byKey[id]
	if !ok {
		return nil, ErrNotFound
	}
	var u models.Account
	if err := m.decode(raw, &u); err != nil {
		return nil, err
	}
	if u.Bookmarks == nil {
		u.Bookmarks = []string{}
	}
	return &u, nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string{}, m.users.order...), nil
}

func (m *Memory) AddBookmark(_ context.Context, userID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutate(m.users, userID, func(doc bson.M) {
		doc["bookmarks"] = addToSet(stringList(doc["bookmarks"]), eventID)
	})
}

func (m *Memory) RemoveBookmarks(_ context.Context, userID string, eventIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.mutate(m.users, userID, func(doc bson.M) {
		doc["bookmarks"] = pullAll(stringList(doc["bookmarks"]), eventIDs...)
	})
	// $pullAll on a missing document matches nothing and is not an error.
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users.remove(id)
	return nil
}

// ---------------- CREDENTIALS ----------------

func (m *Memory) CreateCredential(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.Email = strings.ToLower(c.Email)
	for _, raw := range m.credentials.byKey {
		if email, ok := raw.Lookup("email").StringValueOK(); ok && email == c.Email {
			return ErrDuplicate
		}
	}
	if _, ok := m.credentials.byKey[c.ID]; ok {
		return ErrDuplicate
	}
	raw, err := bson.Marshal(c)
	if err != nil {
		return err
	}
	m.credentials.put(c.ID, raw)
	return nil
}

func (m *Memory) GetCredential(_ context.Context, id string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.credentials.byKey[id]
	if !ok {
		return nil, ErrNotFound
	}
	var c models.Credential
	if err := m.decode(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *Memory) GetCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, key := range m.credentials.order {
		raw := m.credentials.byKey[key]
		if v, ok := raw.Lookup("email").StringValueOK(); ok && v == email {
			var c models.Credential
			if err := m.decode(raw, &c); err != nil {
				return nil, err
			}
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateCredential(_ context.Context, id string, fields bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutate(m.credentials, id, func(doc bson.M) {
		for k, v := range fields {
			doc[k] = v
		}
	})
}

func (m *Memory) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credentials.remove(id)
	return nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case primitive.A:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string{}, list...)
	default:
		return []string{}
	}
}

func addToSet(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func pullAll(list []string, values ...string) []string {
	drop := make(map[string]bool, len(values))
	for _, v := range values {
		drop[v] = true
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}
