package senders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestWPPConnectSenderSuccess(t *testing.T) {
	var got wppSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/billing/send-message" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","response":[{"id":"true_5511@c.us_ABC"}]}`))
	}))
	defer srv.Close()

	s := NewWPPConnectSender(WPPConnectConfig{BaseURL: srv.URL + "/", Session: "billing", Token: "secret"}, zerolog.Nop())
	res, err := s.Send(context.Background(), Outgoing{To: "5511999990000", Body: "Olá"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Success || res.MessageID != "true_5511@c.us_ABC" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Phone != "5511999990000" || got.Message != "Olá" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWPPConnectSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"invalid phone"}`))
	}))
	defer srv.Close()

	s := NewWPPConnectSender(WPPConnectConfig{BaseURL: srv.URL, Session: "billing"}, zerolog.Nop())
	res, err := s.Send(context.Background(), Outgoing{To: "55", Body: "x"})
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("expected failed result, got %+v", res)
	}
}

func TestWPPConnectSenderAPIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"session closed"}`))
	}))
	defer srv.Close()

	s := NewWPPConnectSender(WPPConnectConfig{BaseURL: srv.URL, Session: "billing"}, zerolog.Nop())
	res, err := s.Send(context.Background(), Outgoing{To: "5511", Body: "x"})
	if err != nil || res.Success || res.Error != "session closed" {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestWPPConnectSenderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := NewWPPConnectSender(WPPConnectConfig{BaseURL: url, Session: "billing"}, zerolog.Nop())
	if _, err := s.Send(context.Background(), Outgoing{To: "5511", Body: "x"}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestExtractMessageID(t *testing.T) {
	cases := map[string]string{
		`{"id":"abc"}`:                        "abc",
		`[{"id":{"_serialized":"ser_1"}}]`:    "ser_1",
		`[]`:                                  "",
		`"plain"`:                             "",
	}
	for in, want := range cases {
		if got := extractMessageID(json.RawMessage(in)); got != want {
			t.Fatalf("extractMessageID(%s) = %q, want %q", in, got, want)
		}
	}
}
