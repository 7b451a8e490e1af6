// Package store holds the document store contracts the rest of the service
// talks to, with a MongoDB implementation and an in-memory one.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/campus-events-go/models"
)

const (
	EventsCollection      = "events"
	UsersCollection       = "users"
	CredentialsCollection = "accounts"

	// LookupBatch caps the ids of one ListEventsByIDs call.
	LookupBatch = 10
)

var (
	ErrNotFound  = errors.New("store: document not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// EventStore is the events collection contract.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.Event) (primitive.ObjectID, error)
	GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	// UpdateEvent applies fields with $set semantics. ErrNotFound when no
	// document matches.
	UpdateEvent(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	// DeleteEvent reports whether a document was removed.
	DeleteEvent(ctx context.Context, id primitive.ObjectID) (bool, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	ListEventsEndedBefore(ctx context.Context, t time.Time) ([]models.Event, error)
	ListEventsByHost(ctx context.Context, hostID string) ([]models.Event, error)
	ListEventsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Event, error)
	AddRSVPUser(ctx context.Context, eventID primitive.ObjectID, userID string) error
	RemoveRSVPUser(ctx context.Context, eventID primitive.ObjectID, userID string) error
}

// UserStore is the users (profile) collection contract.
type UserStore interface {
	PutUser(ctx context.Context, u *models.Account) error
	GetUser(ctx context.Context, id string) (*models.Account, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	// AddBookmark is an atomic add-to-set on the bookmark list.
	AddBookmark(ctx context.Context, userID, eventID string) error
	// RemoveBookmarks pulls every given id from the bookmark list.
	RemoveBookmarks(ctx context.Context, userID string, eventIDs ...string) error
	// DeleteUser removes a profile. A missing profile is not an error.
	DeleteUser(ctx context.Context, id string) error
}

// CredentialStore backs the auth provider.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
	UpdateCredential(ctx context.Context, id string, fields bson.M) error
	// DeleteCredential removes a credential. A missing one is not an error.
	DeleteCredential(ctx context.Context, id string) error
}

// Store is everything a process needs from the document store.
type Store interface {
	EventStore
	UserStore
	CredentialStore
}
