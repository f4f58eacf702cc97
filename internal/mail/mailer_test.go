package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

var cred = domain.Credential{AccessToken: "access-token"}

func TestSendBuildsMIMEMessage(t *testing.T) {
	var gotAuth string
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var payload struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		gotRaw = payload.Raw
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	m := New(srv.URL, "Calendar Assistant", zap.NewNop())
	err := m.Send(context.Background(), "alice@example.com", "Your Summary", "<p>hi</p>", cred)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer access-token" {
		t.Fatalf("authorization header = %q", gotAuth)
	}

	decoded, err := base64.URLEncoding.DecodeString(gotRaw)
	if err != nil {
		t.Fatalf("raw is not url-safe base64: %v", err)
	}
	msg := string(decoded)
	for _, want := range []string{
		"From: Calendar Assistant <me>",
		"To: alice@example.com",
		"Subject: Your Summary",
		"Content-Type: text/html",
		"<p>hi</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendForbiddenMeansInsufficientScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"insufficientPermissions"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	m := New(srv.URL, "Calendar Assistant", zap.NewNop())
	err := m.Send(context.Background(), "alice@example.com", "s", "<p>hi</p>", cred)

	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Reason != domain.DeliveryInsufficientScope {
		t.Fatalf("want insufficient_scope, got %v", err)
	}
	if !strings.Contains(de.Msg, "403") {
		t.Fatalf("message should carry the status: %q", de.Msg)
	}
}

func TestSendServerErrorMeansProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New(srv.URL, "Calendar Assistant", zap.NewNop())
	err := m.Send(context.Background(), "alice@example.com", "s", "<p>hi</p>", cred)

	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Reason != domain.DeliveryProviderError {
		t.Fatalf("want provider_error, got %v", err)
	}
}

func TestSendTimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	m := New(srv.URL, "Calendar Assistant", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Send(ctx, "alice@example.com", "s", "<p>hi</p>", cred)
	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Reason != domain.DeliveryTransportTimeout {
		t.Fatalf("want transport_timeout, got %v", err)
	}
}

func TestSendConnectionRefusedIsUnexpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	m := New(srv.URL, "Calendar Assistant", zap.NewNop())
	err := m.Send(context.Background(), "alice@example.com", "s", "<p>hi</p>", cred)

	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Reason != domain.DeliveryUnexpected {
		t.Fatalf("want unexpected, got %v", err)
	}
}
