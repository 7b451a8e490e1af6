package auth

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	store "github.com/phillip/campus-events-go/store"
	utils "github.com/phillip/campus-events-go/utils"
)

var linkToken = regexp.MustCompile(`token=([^"&]+)`)

func newTestProvider(t *testing.T) (*LocalProvider, *utils.LogMailer) {
	t.Helper()
	mailer := &utils.LogMailer{}
	p := NewLocalProvider(store.NewMemory(), mailer, Options{
		Secret:     []byte("test-secret"),
		BaseURL:    "http://localhost:8080/",
		BcryptCost: bcrypt.MinCost,
	}, nil)
	return p, mailer
}

func tokenFromLastMail(t *testing.T, mailer *utils.LogMailer) string {
	t.Helper()
	sent := mailer.Sent()
	if len(sent) == 0 {
		t.Fatal("no email sent")
	}
	m := linkToken.FindStringSubmatch(sent[len(sent)-1].Body)
	if m == nil {
		t.Fatalf("no token link in %q", sent[len(sent)-1].Body)
	}
	tok, err := url.QueryUnescape(m[1])
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestSignUpVerifySignIn(t *testing.T) {
	ctx := context.Background()
	p, mailer := newTestProvider(t)

	sess, err := p.CreateAccount(ctx, "Student@UTA.edu", "Abcdef1!")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if sess.Email != "student@uta.edu" || sess.Verified {
		t.Fatalf("session = %+v", sess)
	}

	if _, err := p.CreateAccount(ctx, "student@uta.edu", "Other1!x"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("duplicate signup err = %v", err)
	}

	if err := p.SendEmailVerification(ctx, sess.Token); err != nil {
		t.Fatalf("SendEmailVerification: %v", err)
	}
	verifyToken := tokenFromLastMail(t, mailer)

	if _, err := p.Authenticate(ctx, verifyToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("verification token accepted as a session")
	}
	if err := p.VerifyEmail(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("session token accepted as a verification link")
	}
	if err := p.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	id, err := p.Authenticate(ctx, sess.Token)
	if err != nil || !id.Verified {
		t.Fatalf("Authenticate = %+v, %v; want verified", id, err)
	}

	if _, err := p.SignIn(ctx, "student@uta.edu", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v", err)
	}
	if _, err := p.SignIn(ctx, "nobody@uta.edu", "Abcdef1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
	again, err := p.SignIn(ctx, "STUDENT@uta.edu", "Abcdef1!")
	if err != nil || !again.Verified {
		t.Fatalf("SignIn = %+v, %v", again, err)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	sess, err := p.CreateAccount(ctx, "a@uta.edu", "Abcdef1!")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Authenticate(ctx, sess.Token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	if err := p.SignOut(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Authenticate(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token err = %v", err)
	}
	if err := p.SignOut(ctx, "garbage"); err != nil {
		t.Fatalf("signing out a bad token should be a no-op, got %v", err)
	}
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	ctx := context.Background()
	p, mailer := newTestProvider(t)

	if _, err := p.CreateAccount(ctx, "a@uta.edu", "Abcdef1!"); err != nil {
		t.Fatal(err)
	}
	if err := p.SendPasswordResetEmail(ctx, "missing@uta.edu"); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("reset for unknown email err = %v", err)
	}
	if err := p.SendPasswordResetEmail(ctx, "a@uta.edu"); err != nil {
		t.Fatal(err)
	}
	resetToken := tokenFromLastMail(t, mailer)

	if err := p.ResetPassword(ctx, resetToken, "Newpass1!"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := p.ResetPassword(ctx, resetToken, "Again12!"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused reset token err = %v", err)
	}
	if _, err := p.SignIn(ctx, "a@uta.edu", "Abcdef1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password still works")
	}
	if _, err := p.SignIn(ctx, "a@uta.edu", "Newpass1!"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	sess, err := p.CreateAccount(ctx, "a@uta.edu", "Abcdef1!")
	if err != nil {
		t.Fatal(err)
	}
	p.now = func() time.Time { return time.Now().Add(13 * time.Hour) }
	if _, err := p.Authenticate(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v", err)
	}
}
