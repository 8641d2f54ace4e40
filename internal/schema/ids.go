package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// sessionIDLayout is the lexicographic prefix of a session id, chosen so
// that directory listings sort chronologically.
const sessionIDLayout = "20060102_15-04"

// NewUUID returns a fresh v4 UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// NewSessionID mints a session id of the form YYYYMMDD_HH-MM_<uuid> in UTC.
func NewSessionID(now time.Time) string {
	return now.UTC().Format(sessionIDLayout) + "_" + uuid.NewString()
}

// SessionTime parses the timestamp prefix out of a session id. The boolean
// is false for names that do not carry the prefix.
func SessionTime(sessionID string) (time.Time, bool) {
	if len(sessionID) < len(sessionIDLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(sessionIDLayout, sessionID[:len(sessionIDLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Now returns the current UTC time as an RFC3339 string.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders a timestamp the way every artifact stores it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var timestampSanitizer = strings.NewReplacer(":", "-", ".", "-")

// SanitizeTimestamp makes an RFC3339 timestamp filename-safe by replacing
// ':' and '.' with '-'.
func SanitizeTimestamp(ts string) string {
	return timestampSanitizer.Replace(ts)
}
