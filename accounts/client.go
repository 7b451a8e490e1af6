// Package accounts wraps the auth provider and the user profile records:
// sign up, sign in and out, password reset and the per-user bookmark list.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/phillip/campus-events-go/apperrors"
	auth "github.com/phillip/campus-events-go/auth"
	models "github.com/phillip/campus-events-go/models"
	store "github.com/phillip/campus-events-go/store"
)

const defaultDisplayName = "User"

type Options struct {
	// AllowedDomains gates signup; an empty list accepts any domain.
	AllowedDomains []string
	// SchoolDomains earn the graduation cap suffix on the display name.
	SchoolDomains []string
}

type Client struct {
	provider auth.Provider
	users    store.UserStore
	events   store.EventStore
	validate *validator.Validate
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

func NewClient(provider auth.Provider, users store.UserStore, events store.EventStore, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: provider,
		users:    users,
		events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// SignInOptions carries the user's answer to the resend prompt shown for
// unverified accounts.
type SignInOptions struct {
	ResendVerification bool
}

// ---------------- SIGN UP ----------------

// SignUp registers an account, writes its profile, mails the verification
// link and signs the new session straight back out. The caller is never
// signed in by a signup. When a later step fails the account is removed
// again so the same email can retry.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	const op = "accounts.SignUp"
	email = strings.TrimSpace(email)

	if err := c.CheckSignup(email, password); err != nil {
		return err
	}

	sess, err := c.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return remoteAuth(op, "sign up failed", err)
	}
	defer c.endSession(ctx, sess.Token)

	profile := &models.Account{
		ID:        sess.UserID,
		Email:     sess.Email,
		Username:  c.DisplayName(sess.Email),
		CreatedAt: c.now().UTC(),
		Bookmarks: []string{},
	}
	if err := c.users.PutUser(ctx, profile); err != nil {
		c.discardAccount(ctx, sess, false)
		return apperrors.Wrap(apperrors.RemoteStore, op, err)
	}

	if err := c.provider.SendEmailVerification(ctx, sess.Token); err != nil {
		c.discardAccount(ctx, sess, true)
		return remoteAuth(op, "could not send the verification email", err)
	}
	c.log.Info("account created", "user_id", sess.UserID)
	return nil
}

// CheckSignup is the client-side gate: email format, allow-listed domain
// and password strength. No remote call is made.
func (c *Client) CheckSignup(email, password string) error {
	const op = "accounts.CheckSignup"
	if err := c.validate.Var(email, "required,email"); err != nil {
		return apperrors.New(apperrors.Validation, op, "enter a valid email address")
	}
	if !c.AllowedDomain(email) {
		return apperrors.New(apperrors.Validation, op,
			"sign up with an email from one of: "+strings.Join(c.opts.AllowedDomains, ", "))
	}
	if msg := PasswordProblem(password); msg != "" {
		return apperrors.New(apperrors.Validation, op, msg)
	}
	return nil
}

func (c *Client) AllowedDomain(email string) bool {
	if len(c.opts.AllowedDomains) == 0 {
		return true
	}
	return domainIn(email, c.opts.AllowedDomains)
}

// DisplayName is the default profile name for email.
func (c *Client) DisplayName(email string) string {
	if domainIn(email, c.opts.SchoolDomains) {
		return defaultDisplayName + " 🎓"
	}
	return defaultDisplayName
}

// PasswordProblem describes why password is too weak, or returns "" when
// it has at least 8 characters, an uppercase letter, a digit and a symbol.
func PasswordProblem(password string) string {
	var upper, digit, symbol bool
	n := 0
	for _, r := range password {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	switch {
	case n < 8:
		return "password must be at least 8 characters"
	case !upper:
		return "password must contain an uppercase letter"
	case !digit:
		return "password must contain a number"
	case !symbol:
		return "password must contain a symbol"
	}
	return ""
}

func domainIn(email string, domains []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range domains {
		if domain == strings.ToLower(strings.TrimPrefix(d, "@")) {
			return true
		}
	}
	return false
}

// ---------------- SIGN IN / OUT ----------------

// SignIn authenticates a verified account. Unverified accounts get their
// session ended right away (after an optional resend of the verification
// email) and an Unverified error.
func (c *Client) SignIn(ctx context.Context, email, password string, opts SignInOptions) (*auth.Session, *models.Account, error) {
	const op = "accounts.SignIn"
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil, apperrors.New(apperrors.Validation, op, "email and password are required")
	}

	sess, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, remoteAuth(op, "login failed", err)
	}

	if !sess.Verified {
		msg := "your email is not verified, check your inbox for the verification link"
		if opts.ResendVerification {
			if err := c.provider.SendEmailVerification(ctx, sess.Token); err != nil {
				c.log.Warn("verification resend failed", "user_id", sess.UserID, "error", err)
			} else {
				msg = "verification email sent again, check your inbox"
			}
		}
		c.endSession(ctx, sess.Token)
		return nil, nil, apperrors.New(apperrors.Unverified, op, msg)
	}

	acc, err := c.Profile(ctx, &auth.Identity{UserID: sess.UserID, Email: sess.Email, Verified: true})
	if err != nil {
		c.endSession(ctx, sess.Token)
		return nil, nil, err
	}
	return sess, acc, nil
}

// SignOut never fails from the caller's point of view.
func (c *Client) SignOut(ctx context.Context, token string) {
	c.endSession(ctx, token)
}

func (c *Client) discardAccount(ctx context.Context, sess *auth.Session, withProfile bool) {
	if withProfile {
		if err := c.users.DeleteUser(ctx, sess.UserID); err != nil {
			c.log.Warn("profile rollback failed", "user_id", sess.UserID, "error", err)
		}
	}
	if err := c.provider.DeleteAccount(ctx, sess.Token); err != nil {
		c.log.Warn("account rollback failed", "user_id", sess.UserID, "error", err)
	}
}

func (c *Client) endSession(ctx context.Context, token string) {
	if err := c.provider.SignOut(ctx, token); err != nil {
		c.log.Warn("sign out failed", "error", err)
	}
}

// Profile loads the account behind an authenticated identity. Accounts
// created before profiles existed get one written on first use.
func (c *Client) Profile(ctx context.Context, id *auth.Identity) (*models.Account, error) {
	const op = "accounts.Profile"
	acc, err := c.users.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		acc = &models.Account{
			ID:        id.UserID,
			Email:     id.Email,
			Username:  c.DisplayName(id.Email),
			CreatedAt: c.now().UTC(),
			Bookmarks: []string{},
		}
		if err := c.users.PutUser(ctx, acc); err != nil {
			return nil, apperrors.Wrap(apperrors.RemoteStore, op, err)
		}
	} else if err != nil {
		return nil, apperrors.Wrap(apperrors.RemoteStore, op, err)
	}
	acc.EmailVerified = id.Verified
	return acc, nil
}

// Authenticate resolves a session token to its account.
func (c *Client) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	id, err := c.provider.Authenticate(ctx, token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Auth, "accounts.Authenticate", err)
	}
	return c.Profile(ctx, id)
}

// ---------------- PASSWORD / VERIFICATION ----------------

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	const op = "accounts.SendPasswordReset"
	email = strings.TrimSpace(email)
	if err := c.validate.Var(email, "required,email"); err != nil {
		return apperrors.New(apperrors.Validation, op, "enter a valid email address")
	}
	if err := c.provider.SendPasswordResetEmail(ctx, email); err != nil {
		return remoteAuth(op, "password reset failed", err)
	}
	return nil
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	const op = "accounts.ConfirmPasswordReset"
	if msg := PasswordProblem(password); msg != "" {
		return apperrors.New(apperrors.Validation, op, msg)
	}
	if err := c.provider.ResetPassword(ctx, token, password); err != nil {
		return remoteAuth(op, "password reset failed", err)
	}
	return nil
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	if err := c.provider.VerifyEmail(ctx, token); err != nil {
		return remoteAuth("accounts.VerifyEmail", "email verification failed", err)
	}
	return nil
}

func remoteAuth(op, prefix string, err error) error {
	return &apperrors.Error{
		Kind: apperrors.RemoteAuth,
		Op:   op,
		Msg:  fmt.Sprintf("%s: %v", prefix, err),
		Err:  err,
	}
}
