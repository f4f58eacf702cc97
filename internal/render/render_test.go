package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// stubGen records calls and returns a canned result.
type stubGen struct {
	text   string
	err    error
	called int
	prompt string
}

func (s *stubGen) Generate(_ context.Context, prompt string) (string, error) {
	s.called++
	s.prompt = prompt
	return s.text, s.err
}

var fixedNow = time.Date(2025, time.October, 28, 8, 0, 0, 0, time.UTC)

func standupEvents() []domain.Event {
	return []domain.Event{{
		Summary: "Standup",
		Start:   domain.EventTime{DateTime: "2025-10-28T09:00:00Z"},
	}}
}

func TestEmptyEventsSkipsGenerator(t *testing.T) {
	gen := &stubGen{text: "should not be used"}
	r := New(gen, zap.NewNop())

	doc := r.Render(context.Background(), nil, "Alice", 7, fixedNow)
	if gen.called != 0 {
		t.Fatalf("generator must not be called for empty events, called %d times", gen.called)
	}
	if !strings.Contains(doc, "next 7 days") {
		t.Fatalf("empty-state document should mention the window, got:\n%s", doc)
	}
	if !strings.Contains(doc, "No Events Scheduled") {
		t.Fatal("missing empty-state heading")
	}
}

func TestFallbackContainsFormattedTime(t *testing.T) {
	r := New(nil, zap.NewNop())

	doc := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	if !strings.Contains(doc, "Standup") {
		t.Fatal("fallback should list the event title")
	}
	if !strings.Contains(doc, "9:00 AM") {
		t.Fatal("fallback should render 12-hour time without leading zero")
	}
	if strings.Contains(doc, "2025-10-28T09:00:00Z") {
		t.Fatal("fallback must not leak raw ISO timestamps")
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	r := New(nil, zap.NewNop())

	a := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	b := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	if a != b {
		t.Fatal("rendering the same inputs twice should be byte-identical")
	}
}

func TestGeneratorFailureFallsBack(t *testing.T) {
	gen := &stubGen{err: errors.New("backend down")}
	r := New(gen, zap.NewNop())

	doc := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	if gen.called != 1 {
		t.Fatalf("generator should be attempted once, called %d", gen.called)
	}
	if !strings.Contains(doc, "Standup") {
		t.Fatal("fallback body missing after generator failure")
	}
}

func TestGeneratorEmptyResultFallsBack(t *testing.T) {
	gen := &stubGen{text: "   "}
	r := New(gen, zap.NewNop())

	doc := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	if !strings.Contains(doc, "Standup") {
		t.Fatal("blank generation should route to the fallback template")
	}
}

func TestGeneratedBodyUsesSameShell(t *testing.T) {
	gen := &stubGen{text: "<p>generated summary</p>"}
	r := New(gen, zap.NewNop())

	doc := r.Render(context.Background(), standupEvents(), "Alice", 1, fixedNow)
	if !strings.Contains(doc, "<p>generated summary</p>") {
		t.Fatal("generated body missing from document")
	}
	if !strings.Contains(doc, "Daily Calendar Summary") {
		t.Fatal("generated document missing shared shell header")
	}
	if !strings.Contains(doc, "Tuesday, October 28, 2025") {
		t.Fatal("shell header should carry the current date")
	}
}

func TestPromptCarriesFormattedEventFields(t *testing.T) {
	gen := &stubGen{text: "ok"}
	r := New(gen, zap.NewNop())

	events := []domain.Event{{
		Summary:  "Standup",
		Location: "Room 4",
		Start:    domain.EventTime{DateTime: "2025-10-28T09:00:00Z"},
	}}
	r.Render(context.Background(), events, "Alice", 3, fixedNow)

	for _, want := range []string{"Standup", "Room 4", "9:00 AM", "Tuesday, October 28, 2025", "Alice"} {
		if !strings.Contains(gen.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
}
