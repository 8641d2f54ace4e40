package schema

import (
	"regexp"
	"testing"
	"time"
)

func TestNewSessionID(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 30, 12, 0, time.UTC)
	id := NewSessionID(now)

	re := regexp.MustCompile(`^\d{8}_\d{2}-\d{2}_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	if !re.MatchString(id) {
		t.Fatalf("session id %q does not match the expected shape", id)
	}
	if got, want := id[:14], "20260824_09-30"; got != want {
		t.Errorf("session id prefix = %q, want %q", got, want)
	}

	other := NewSessionID(now)
	if id == other {
		t.Error("two session ids minted at the same instant collided")
	}
}

func TestSessionTime(t *testing.T) {
	now := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	id := NewSessionID(now)

	parsed, ok := SessionTime(id)
	if !ok {
		t.Fatalf("SessionTime(%q) failed to parse", id)
	}
	if !parsed.Equal(now) {
		t.Errorf("parsed %v, want %v", parsed, now)
	}

	for _, bad := range []string{"", "junk", "2026", "20260824", "20260824_2359_x"} {
		if _, ok := SessionTime(bad); ok {
			t.Errorf("SessionTime(%q) unexpectedly succeeded", bad)
		}
	}
}

func TestSanitizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2026-08-24T09:30:12Z", "2026-08-24T09-30-12Z"},
		{"2026-08-24T09:30:12.345Z", "2026-08-24T09-30-12-345Z"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := SanitizeTimestamp(tt.in); got != tt.want {
			t.Errorf("SanitizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimeIsUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	at := time.Date(2026, 8, 24, 1, 0, 0, 0, loc)
	got := FormatTime(at)
	if got != "2026-08-24T09:00:00Z" {
		t.Errorf("FormatTime = %q, want UTC rendering", got)
	}
}
