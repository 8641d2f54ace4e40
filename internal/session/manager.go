package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// ErrNoSession marks a lookup against a base with no sessions at all.
var ErrNoSession = fmt.Errorf("no sessions: %w", ErrNotFound)

// activityFiles are checked newest-first to decide when a session was
// last touched. The directory mtime is the fallback.
var activityFiles = []string{
	HistoryFile,
	"handoffs/latest-handoff.json",
	"plans/current-plan.json",
	"state/orchestrator.json",
}

// Manager performs session lifecycle operations over a base directory.
// Sessions live under <base>/sessions/; their ids sort chronologically.
type Manager struct {
	base       string
	maxHistory int
}

// NewManager returns a manager rooted at base. The sessions directory is
// created lazily on the first New call.
func NewManager(base string, maxHistory int) *Manager {
	return &Manager{base: base, maxHistory: maxHistory}
}

// SessionsDir returns the directory that holds all session roots.
func (m *Manager) SessionsDir() string {
	return filepath.Join(m.base, "sessions")
}

// New mints a session id and creates its directory skeleton.
func (m *Manager) New(now time.Time) (*Store, error) {
	id := schema.NewSessionID(now)
	store, err := NewStore(filepath.Join(m.SessionsDir(), id), m.maxHistory)
	if err != nil {
		return nil, err
	}
	logging.Session("created session %s", id)
	return store, nil
}

// Open binds to an existing session. The session must already exist;
// use New to create one.
func (m *Manager) Open(sessionID string) (*Store, error) {
	dir := filepath.Join(m.SessionsDir(), sessionID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return NewStore(dir, m.maxHistory)
}

// List enumerates session names in directory order (chronological by id
// construction).
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the session with the most recent activity.
func (m *Manager) Latest() (string, error) {
	names, err := m.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoSession
	}
	best, bestTime := "", time.Time{}
	for _, name := range names {
		at := m.lastActivity(name)
		if best == "" || at.After(bestTime) {
			best, bestTime = name, at
		}
	}
	return best, nil
}

// Age returns how many days ago the session was last active.
func (m *Manager) Age(sessionID string, now time.Time) (float64, error) {
	dir := filepath.Join(m.SessionsDir(), sessionID)
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return now.Sub(m.lastActivity(sessionID)).Hours() / 24, nil
}

// lastActivity is the maximum mtime among the session's activity files,
// falling back to the directory's own mtime.
func (m *Manager) lastActivity(sessionID string) time.Time {
	dir := filepath.Join(m.SessionsDir(), sessionID)
	var latest time.Time
	if info, err := os.Stat(dir); err == nil {
		latest = info.ModTime()
	}
	for _, rel := range activityFiles {
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err == nil {
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
	}
	return latest
}

// PurgeOld deletes sessions older than olderThanDays, always retaining
// the keep most recently active ones. It returns the names that were
// (or, in dry-run, would be) deleted.
func (m *Manager) PurgeOld(olderThanDays, keep int, dryRun bool, now time.Time) ([]string, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}

	type aged struct {
		name string
		days float64
	}
	sessions := make([]aged, 0, len(names))
	for _, name := range names {
		days := now.Sub(m.lastActivity(name)).Hours() / 24
		sessions = append(sessions, aged{name: name, days: days})
	}
	// Youngest first; the keep newest are always retained.
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].days < sessions[j].days
	})

	var purged []string
	for i, s := range sessions {
		if i < keep {
			continue
		}
		if s.days <= float64(olderThanDays) {
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(m.SessionsDir(), s.name)); err != nil {
				return purged, fmt.Errorf("purge session %s: %w", s.name, err)
			}
			logging.Session("purged session %s (%.1f days old)", s.name, s.days)
		}
		purged = append(purged, s.name)
	}
	return purged, nil
}
