package models

import "time"

// Account is a registered user as seen by the rest of the app: the profile
// record plus the provider's verification flag.
type Account struct {
	ID            string    `bson:"_id" json:"id"`
	Email         string    `bson:"email" json:"email"`
	Username      string    `bson:"username" json:"username"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	Bookmarks     []string  `bson:"bookmarks" json:"bookmarks"`
	EmailVerified bool      `bson:"-" json:"email_verified"`
}

// Credential is the auth provider's own record. It never leaves the auth
// package boundary in API responses.
type Credential struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Verified     bool      `bson:"verified"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}
