package domain

import (
	"strings"
	"time"
)

// EventTime mirrors the provider's start object: timed events carry
// DateTime (RFC 3339), all-day events carry Date (YYYY-MM-DD).
type EventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

// Raw returns whichever representation the provider sent, preferring DateTime.
func (t EventTime) Raw() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// Event is one calendar entry inside a fetch window.
type Event struct {
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Start       EventTime `json:"start"`
}

// Title returns the event summary with a placeholder for untitled events.
func (e Event) Title() string {
	if strings.TrimSpace(e.Summary) == "" {
		return "Untitled Event"
	}
	return e.Summary
}

// FormatTime12h renders a provider timestamp as 12-hour clock time without a
// leading zero ("9:00 AM"). Date-only values render as "All Day". Malformed
// input passes through verbatim rather than failing the render.
func FormatTime12h(raw string) string {
	if !strings.Contains(raw, "T") {
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return raw
		}
		return "All Day"
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("3:04 PM")
}

// FormatDateFriendly renders a provider timestamp as a long date,
// e.g. "Tuesday, October 28, 2025".
func FormatDateFriendly(raw string) string {
	t, err := parseProviderTime(raw)
	if err != nil {
		return raw
	}
	return t.Format("Monday, January 2, 2006")
}

// FormatDateTimeFull combines day and time, e.g. "Tuesday, Oct 28 at 9:00 AM".
// All-day events render as "Tuesday, Oct 28 (All Day)".
func FormatDateTimeFull(raw string) string {
	if !strings.Contains(raw, "T") {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return raw
		}
		return t.Format("Monday, Jan 2") + " (All Day)"
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Monday, Jan 2 at 3:04 PM")
}

func parseProviderTime(raw string) (time.Time, error) {
	if strings.Contains(raw, "T") {
		return time.Parse(time.RFC3339, raw)
	}
	return time.Parse("2006-01-02", raw)
}
