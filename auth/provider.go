// Package auth is the account provider: it owns credentials, issues signed
// session tokens and sends verification and password reset email.
package auth

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=../mocks/mock_provider.go -package=mocks github.com/phillip/campus-events-go/auth Provider

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoAccount          = errors.New("no account for that email")
)

// Session is an authenticated provider session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Verified  bool      `json:"email_verified"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is what a valid session token resolves to.
type Identity struct {
	UserID   string
	Email    string
	Verified bool
	TokenID  string
}

type Provider interface {
	// CreateAccount registers the credential and returns a signed-in
	// session for it.
	CreateAccount(ctx context.Context, email, password string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut revokes the session token.
	SignOut(ctx context.Context, token string) error
	// DeleteAccount removes the credential the session token belongs to
	// and revokes the token.
	DeleteAccount(ctx context.Context, token string) error
	// SendEmailVerification mails a verification link to the account the
	// session token belongs to.
	SendEmailVerification(ctx context.Context, token string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, token string) (*Identity, error)
}
