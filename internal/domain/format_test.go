package domain

import "testing"

func TestFormatTime12h_NoLeadingZero(t *testing.T) {
	got := FormatTime12h("2025-10-28T09:00:00Z")
	if got != "9:00 AM" {
		t.Fatalf("want 9:00 AM, got %s", got)
	}
}

func TestFormatTime12h_Afternoon(t *testing.T) {
	got := FormatTime12h("2025-10-28T14:30:00+05:00")
	if got != "2:30 PM" {
		t.Fatalf("want 2:30 PM, got %s", got)
	}
}

func TestFormatTime12h_AllDay(t *testing.T) {
	got := FormatTime12h("2025-10-28")
	if got != "All Day" {
		t.Fatalf("want All Day, got %s", got)
	}
}

func TestFormatTime12h_MalformedPassesThrough(t *testing.T) {
	for _, raw := range []string{"not-a-time", "2025-13-99T25:00:00Z", "garbageT"} {
		if got := FormatTime12h(raw); got != raw {
			t.Fatalf("malformed %q: want passthrough, got %s", raw, got)
		}
	}
}

func TestFormatDateFriendly(t *testing.T) {
	got := FormatDateFriendly("2025-10-28T09:00:00Z")
	if got != "Tuesday, October 28, 2025" {
		t.Fatalf("got %s", got)
	}
	if got := FormatDateFriendly("2025-10-28"); got != "Tuesday, October 28, 2025" {
		t.Fatalf("date-only: got %s", got)
	}
}

func TestFormatDateTimeFull(t *testing.T) {
	got := FormatDateTimeFull("2025-10-28T09:00:00Z")
	if got != "Tuesday, Oct 28 at 9:00 AM" {
		t.Fatalf("got %s", got)
	}
	if got := FormatDateTimeFull("2025-10-28"); got != "Tuesday, Oct 28 (All Day)" {
		t.Fatalf("all-day: got %s", got)
	}
}

func TestEventTimeRawPrefersDateTime(t *testing.T) {
	et := EventTime{DateTime: "2025-10-28T09:00:00Z", Date: "2025-10-28"}
	if et.Raw() != "2025-10-28T09:00:00Z" {
		t.Fatalf("got %s", et.Raw())
	}
	et = EventTime{Date: "2025-10-28"}
	if et.Raw() != "2025-10-28" {
		t.Fatalf("got %s", et.Raw())
	}
}

func TestDeriveRole(t *testing.T) {
	admins := []string{"boss@example.com", "ops@example.com"}
	if r := DeriveRole("boss@example.com", admins); r != RoleAdmin {
		t.Fatalf("want admin, got %s", r)
	}
	if r := DeriveRole("BOSS@Example.COM", admins); r != RoleAdmin {
		t.Fatalf("case-insensitive match failed, got %s", r)
	}
	if r := DeriveRole("someone@example.com", admins); r != RoleUser {
		t.Fatalf("want user, got %s", r)
	}
	// A role flips when the allow-list changes.
	if r := DeriveRole("boss@example.com", nil); r != RoleUser {
		t.Fatalf("removed from allow-list: want user, got %s", r)
	}
}

func TestValidateWindow(t *testing.T) {
	for _, days := range []int{1, 7, 365} {
		if err := ValidateWindow(days); err != nil {
			t.Fatalf("days=%d: unexpected error %v", days, err)
		}
	}
	for _, days := range []int{0, -1, 366} {
		if err := ValidateWindow(days); err == nil {
			t.Fatalf("days=%d: expected error", days)
		}
	}
}

func TestUserWindowDefault(t *testing.T) {
	u := &User{FetchDays: 0}
	if u.Window() != DefaultFetchDays {
		t.Fatalf("want default %d, got %d", DefaultFetchDays, u.Window())
	}
	u.FetchDays = 30
	if u.Window() != 30 {
		t.Fatalf("want 30, got %d", u.Window())
	}
}
