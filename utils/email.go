package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

//go:generate mockgen -destination=../mocks/mock_mailer.go -package=mocks github.com/phillip/campus-events-go/utils Mailer

// Mailer delivers transactional HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ZeptoMailer sends through the ZeptoMail HTTP API.
type ZeptoMailer struct {
	APIURL string // e.g. https://api.zeptomail.com/v1.1/email
	APIKey string // e.g. Zoho-enczapikey xxxxx
	From   string
	ToName string
	Client *http.Client
	Log    *slog.Logger
}

var _ Mailer = (*ZeptoMailer)(nil)

func (z *ZeptoMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if z.APIURL == "" || z.APIKey == "" || z.From == "" {
		return fmt.Errorf("missing required email config")
	}

	payload := emailRequest{
		From: emailAddress{Address: z.From},
		To: []toRecipient{
			{Email: emailWithName{Address: to, Name: z.ToName}},
		},
		Subject:  subject,
		HtmlBody: htmlBody,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", z.APIKey)

	client := z.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	if z.Log != nil {
		z.Log.Debug("email sent", "to", to, "subject", subject)
	}
	return nil
}

// Message is one email captured by LogMailer.
type Message struct {
	To, Subject, Body string
}

// LogMailer logs instead of sending. Used when no email provider is
// configured.
type LogMailer struct {
	Log *slog.Logger

	mu   sync.Mutex
	sent []Message
}

func (l *LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	l.mu.Lock()
	l.sent = append(l.sent, Message{To: to, Subject: subject, Body: htmlBody})
	l.mu.Unlock()
	if l.Log != nil {
		l.Log.Info("email (not sent, no provider configured)", "to", to, "subject", subject)
	}
	return nil
}

func (l *LogMailer) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}
