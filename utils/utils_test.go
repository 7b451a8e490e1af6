package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPublicID(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.jpg": "events/abc123",
		"https://res.cloudinary.com/demo/image/upload/events/abc123.png":             "events/abc123",
		"https://res.cloudinary.com/demo/image/upload/v17/abc.jpeg":                  "abc",
		"https://res.cloudinary.com/demo/image/upload/vacation/pic.jpg":              "vacation/pic",
	}
	for in, want := range cases {
		got, err := PublicID(in)
		if err != nil || got != want {
			t.Errorf("PublicID(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := PublicID("https://example.com/no/upload-segment.jpg"); err == nil {
		t.Error("expected an error for a non-cloudinary URL")
	}
}

func TestListETagTracksMembership(t *testing.T) {
	a := Revision{ID: primitive.NewObjectID(), UpdatedAt: time.Unix(100, 0)}
	b := Revision{ID: primitive.NewObjectID(), UpdatedAt: time.Unix(200, 0)}

	both := ListETag([]Revision{a, b})
	if both != ListETag([]Revision{a, b}) {
		t.Fatal("etag not deterministic")
	}
	if both == ListETag([]Revision{a}) {
		t.Fatal("removing an entry kept the etag")
	}
	b.UpdatedAt = b.UpdatedAt.Add(time.Second)
	if both == ListETag([]Revision{a, b}) {
		t.Fatal("updating an entry kept the etag")
	}
}

func TestZeptoMailerSend(t *testing.T) {
	var got emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Zoho-enczapikey k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := &ZeptoMailer{APIURL: srv.URL, APIKey: "Zoho-enczapikey k", From: "noreply@campus.test", ToName: "User"}
	if err := m.Send(context.Background(), "student@uta.edu", "Verify", "<p>hi</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.From.Address != "noreply@campus.test" || len(got.To) != 1 || got.To[0].Email.Address != "student@uta.edu" {
		t.Fatalf("payload = %+v", got)
	}

	m.APIKey = "wrong"
	if err := m.Send(context.Background(), "student@uta.edu", "Verify", "x"); err == nil {
		t.Fatal("expected an error on a rejected request")
	}
	if err := (&ZeptoMailer{}).Send(context.Background(), "a@b.c", "s", "b"); err == nil {
		t.Fatal("expected a config error")
	}
}
