package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is a hostable, location-anchored happening on campus.
type Event struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	Description  string             `bson:"description" json:"description"`
	LocationInfo string             `bson:"location_info" json:"location_info"`
	Latitude     float64            `bson:"latitude" json:"latitude"`
	Longitude    float64            `bson:"longitude" json:"longitude"`
	StartTime    time.Time          `bson:"start_time" json:"start_time"`
	EndTime      time.Time          `bson:"end_time" json:"end_time"`
	IsPrivate    bool               `bson:"is_private" json:"is_private"`
	InviteEmails []string           `bson:"invite_emails" json:"invite_emails"`
	IsRSVPable   bool               `bson:"is_rsvpable" json:"is_rsvpable"`
	HostID       string             `bson:"host_id" json:"host_id"`
	// HostEmail is captured at create/edit time and never re-synced.
	HostEmail string    `bson:"host_email" json:"host_email"`
	RSVPUsers []string  `bson:"rsvp_users" json:"rsvp_users"`
	Images    []string  `bson:"images" json:"images"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Coordinates is a map position. The zero value means no pin was placed.
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

func (e Event) Coordinates() Coordinates {
	return Coordinates{Lat: e.Latitude, Lng: e.Longitude}
}

// EventDraft is the editable form state. Nil fields are "not supplied" and
// are left untouched by an edit.
type EventDraft struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	LocationInfo *string    `json:"location_info,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	IsPrivate    *bool      `json:"is_private,omitempty"`
	InviteEmails []string   `json:"invite_emails,omitempty"`
	IsRSVPable   *bool      `json:"is_rsvpable,omitempty"`
	// Images replaces the stored image list when non-nil.
	Images []string `json:"images,omitempty"`

	// Host fields are accepted from forms but always ignored.
	HostID    string `json:"host_id,omitempty"`
	HostEmail string `json:"host_email,omitempty"`
}
