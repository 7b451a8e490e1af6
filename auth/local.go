package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	models "github.com/phillip/campus-events-go/models"
	store "github.com/phillip/campus-events-go/store"
	utils "github.com/phillip/campus-events-go/utils"
)

const (
	purposeSession = "session"
	purposeVerify  = "verify"
	purposeReset   = "reset"
)

// Claims are carried by every token the provider signs. Purpose keeps a
// verification link from being used as a session.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Verified bool   `json:"verified,omitempty"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret     []byte
	SessionTTL time.Duration
	VerifyTTL  time.Duration
	ResetTTL   time.Duration
	// BaseURL is the public origin links in emails point at.
	BaseURL    string
	BcryptCost int
}

// LocalProvider keeps credentials in the document store.
type LocalProvider struct {
	creds  store.CredentialStore
	mailer utils.Mailer
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(creds store.CredentialStore, mailer utils.Mailer, opts Options, log *slog.Logger) *LocalProvider {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.VerifyTTL <= 0 {
		opts.VerifyTTL = 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocalProvider{
		creds:   creds,
		mailer:  mailer,
		opts:    opts,
		log:     log,
		now:     time.Now,
		revoked: map[string]time.Time{},
	}
}

func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := p.now().UTC()
	cred := &models.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.creds.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return p.issueSession(cred)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := p.creds.GetCredentialByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issueSession(cred)
}

func (p *LocalProvider) SignOut(_ context.Context, token string) error {
	claims, err := p.parse(token, purposeSession)
	if err != nil {
		// An already invalid token is as signed out as it gets.
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.purgeLocked()
	return nil
}

func (p *LocalProvider) DeleteAccount(ctx context.Context, token string) error {
	claims, err := p.parse(token, purposeSession)
	if err != nil {
		return err
	}
	if err := p.creds.DeleteCredential(ctx, claims.UserID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	p.mu.Lock()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.mu.Unlock()
	return nil
}

func (p *LocalProvider) SendEmailVerification(ctx context.Context, token string) error {
	id, err := p.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	link, err := p.sign(Claims{UserID: id.UserID, Email: id.Email, Purpose: purposeVerify}, p.opts.VerifyTTL)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`<p>Confirm your email address to finish setting up your account.</p>
<p><a href="%s">Verify email</a></p>`, html.EscapeString(p.link("/auth/verify", link)))
	if err := p.mailer.Send(ctx, id.Email, "Verify your email", body); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (p *LocalProvider) SendPasswordResetEmail(ctx context.Context, email string) error {
	cred, err := p.creds.GetCredentialByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoAccount
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	link, err := p.sign(Claims{UserID: cred.ID, Email: cred.Email, Purpose: purposeReset}, p.opts.ResetTTL)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`<p>Someone asked to reset the password of this account.</p>
<p><a href="%s">Choose a new password</a></p>
<p>If that was not you, ignore this email.</p>`, html.EscapeString(p.link("/login", link)))
	if err := p.mailer.Send(ctx, cred.Email, "Reset your password", body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (p *LocalProvider) VerifyEmail(ctx context.Context, token string) error {
	claims, err := p.parse(token, purposeVerify)
	if err != nil {
		return err
	}
	err = p.creds.UpdateCredential(ctx, claims.UserID, bson.M{
		"verified":   true,
		"updated_at": p.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

func (p *LocalProvider) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := p.parse(token, purposeReset)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = p.creds.UpdateCredential(ctx, claims.UserID, bson.M{
		"password_hash": string(hashed),
		"updated_at":    p.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	// Reset links are single use.
	p.mu.Lock()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.mu.Unlock()
	return nil
}

// Authenticate resolves a session token. The verified flag is read from
// the credential, not the token, so verification takes effect without a
// new sign-in.
func (p *LocalProvider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := p.parse(token, purposeSession)
	if err != nil {
		return nil, err
	}
	cred, err := p.creds.GetCredential(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &Identity{
		UserID:   cred.ID,
		Email:    cred.Email,
		Verified: cred.Verified,
		TokenID:  claims.ID,
	}, nil
}

func (p *LocalProvider) issueSession(cred *models.Credential) (*Session, error) {
	token, err := p.sign(Claims{
		UserID:   cred.ID,
		Email:    cred.Email,
		Verified: cred.Verified,
		Purpose:  purposeSession,
	}, p.opts.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		UserID:    cred.ID,
		Email:     cred.Email,
		Verified:  cred.Verified,
		ExpiresAt: p.now().Add(p.opts.SessionTTL).UTC(),
	}, nil
}

func (p *LocalProvider) sign(claims Claims, ttl time.Duration) (string, error) {
	now := p.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *LocalProvider) parse(token, purpose string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid || claims.Purpose != purpose || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, gone := p.revoked[claims.ID]; gone {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// purgeLocked forgets revocations of tokens that have expired anyway.
func (p *LocalProvider) purgeLocked() {
	now := p.now()
	for id, exp := range p.revoked {
		if exp.Before(now) {
			delete(p.revoked, id)
		}
	}
}

func (p *LocalProvider) link(path, token string) string {
	return strings.TrimRight(p.opts.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
