package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	models "github.com/phillip/campus-events-go/models"
)

const (
	docTimeout  = 5 * time.Second
	listTimeout = 10 * time.Second
)

// Mongo implements Store over a MongoDB database. The client should be
// built with Registry() so stored instants decode uniformly.
type Mongo struct {
	db *mongo.Database
}

var _ Store = (*Mongo)(nil)

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) events() *mongo.Collection      { return m.db.Collection(EventsCollection) }
func (m *Mongo) users() *mongo.Collection       { return m.db.Collection(UsersCollection) }
func (m *Mongo) credentials() *mongo.Collection { return m.db.Collection(CredentialsCollection) }

// EnsureIndexes creates the indexes the queries below rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	if _, err := m.events().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}}},
		{Keys: bson.D{{Key: "end_time", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := m.credentials().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ---------------- EVENTS ----------------

func (m *Mongo) InsertEvent(ctx context.Context, ev *models.Event) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	if ev.ID.IsZero() {
		ev.ID = primitive.NewObjectID()
	}
	if _, err := m.events().InsertOne(ctx, ev); err != nil {
		return primitive.NilObjectID, err
	}
	return ev.ID, nil
}

func (m *Mongo) GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	var ev models.Event
	err := m.events().FindOne(ctx, bson.M{"_id": id}).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (m *Mongo) UpdateEvent(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	res, err := m.events().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteEvent(ctx context.Context, id primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	res, err := m.events().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) ListEvents(ctx context.Context) ([]models.Event, error) {
	return m.findEvents(ctx, bson.M{})
}

// legacyInstantTypes are the non-date BSON types an end_time may still be
// stored as. $lt against a date never matches them.
var legacyInstantTypes = bson.A{"string", "int", "long", "double"}

// ListEventsEndedBefore also fetches events whose end_time uses a legacy
// encoding and keeps those whose decoded end is before t.
func (m *Mongo) ListEventsEndedBefore(ctx context.Context, t time.Time) ([]models.Event, error) {
	found, err := m.findEvents(ctx, bson.M{"$or": bson.A{
		bson.M{"end_time": bson.M{"$lt": t}},
		bson.M{"end_time": bson.M{"$type": legacyInstantTypes}},
	}})
	if err != nil {
		return nil, err
	}
	expired := found[:0]
	for _, ev := range found {
		if ev.EndTime.Before(t) {
			expired = append(expired, ev)
		}
	}
	return expired, nil
}

func (m *Mongo) ListEventsByHost(ctx context.Context, hostID string) ([]models.Event, error) {
	return m.findEvents(ctx, bson.M{"host_id": hostID})
}

func (m *Mongo) ListEventsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Event, error) {
	if len(ids) == 0 {
		return []models.Event{}, nil
	}
	return m.findEvents(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (m *Mongo) AddRSVPUser(ctx context.Context, eventID primitive.ObjectID, userID string) error {
	return m.updateEventArray(ctx, eventID, "$addToSet", userID)
}

func (m *Mongo) RemoveRSVPUser(ctx context.Context, eventID primitive.ObjectID, userID string) error {
	return m.updateEventArray(ctx, eventID, "$pull", userID)
}

func (m *Mongo) updateEventArray(ctx context.Context, eventID primitive.ObjectID, op, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	res, err := m.events().UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
		op:     bson.M{"rsvp_users": userID},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) findEvents(ctx context.Context, filter bson.M) ([]models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cursor, err := m.events().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ---------------- USERS ----------------

func (m *Mongo) PutUser(ctx context.Context, u *models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	if u.Bookmarks == nil {
		u.Bookmarks = []string{}
	}
	_, err := m.users().ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) GetUser(ctx context.Context, id string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	var u models.Account
	err := m.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Bookmarks == nil {
		u.Bookmarks = []string{}
	}
	return &u, nil
}

func (m *Mongo) ListUserIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cursor, err := m.users().Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (m *Mongo) AddBookmark(ctx context.Context, userID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	res, err := m.users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"bookmarks": eventID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) RemoveBookmarks(ctx context.Context, userID string, eventIDs ...string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	_, err := m.users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pullAll": bson.M{"bookmarks": eventIDs}})
	return err
}

func (m *Mongo) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	_, err := m.users().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ---------------- CREDENTIALS ----------------

func (m *Mongo) CreateCredential(ctx context.Context, c *models.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	c.Email = strings.ToLower(c.Email)
	_, err := m.credentials().InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	return m.findCredential(ctx, bson.M{"_id": id})
}

func (m *Mongo) GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	return m.findCredential(ctx, bson.M{"email": strings.ToLower(email)})
}

func (m *Mongo) UpdateCredential(ctx context.Context, id string, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	res, err := m.credentials().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteCredential(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	_, err := m.credentials().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (m *Mongo) findCredential(ctx context.Context, filter bson.M) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	var c models.Credential
	err := m.credentials().FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
