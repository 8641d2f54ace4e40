// Package session owns the on-disk session tree: a per-session directory
// with fixed subdirectories, atomic JSON writes, an append-only history
// journal, and lifecycle operations over the sessions base directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

var (
	// ErrNotFound marks a missing artifact or session.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt marks a file that exists but does not parse as JSON.
	ErrCorrupt = errors.New("corrupt json")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DefaultMaxHistory bounds history/log.jsonl when no limit is configured.
const DefaultMaxHistory = 50

// HistoryFile is the journal path relative to the session root.
const HistoryFile = "history/log.jsonl"

// subdirs are created before the first artifact write.
var subdirs = []string{
	"prompts", "plans", "handoffs", "state", "history", "gates", "memories", "evidence",
}

// Store binds to one session directory and performs all artifact IO.
// Writes go through a sibling temp file and a rename so readers never
// observe a partial document. The store is single-process; it takes no
// cross-process locks.
type Store struct {
	root       string
	maxHistory int
}

// NewStore opens the session rooted at dir, creating the directory
// skeleton if it is absent.
func NewStore(dir string, maxHistory int) (*Store, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &Store{root: dir, maxHistory: maxHistory}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session layout: %w", err)
		}
	}
	return s, nil
}

// Root returns the absolute session directory.
func (s *Store) Root() string {
	return s.root
}

// ID returns the session id, which is the directory base name.
func (s *Store) ID() string {
	return filepath.Base(s.root)
}

// Path resolves a session-relative path.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// WriteJSON writes doc pretty-printed to rel, creating parent
// directories as needed. The write lands on a temp sibling first and is
// renamed into place.
func (s *Store) WriteJSON(rel string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rel, err)
	}
	return s.WriteRaw(rel, data)
}

// WriteRaw writes bytes to rel with the same atomic rename discipline as
// WriteJSON.
func (s *Store) WriteRaw(rel string, data []byte) error {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", rel, err)
	}
	logging.StoreDebug("wrote %s (%d bytes)", rel, len(data))
	return nil
}

// ReadJSON decodes the document at rel into doc. Missing files report
// ErrNotFound; unparseable files report ErrCorrupt.
func (s *Store) ReadJSON(rel string, doc any) error {
	data, err := s.ReadRaw(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("%s: %w: %v", rel, ErrCorrupt, err)
	}
	return nil
}

// ReadRaw returns the bytes at rel, mapping a missing file to ErrNotFound.
func (s *Store) ReadRaw(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether rel names an existing file.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// Remove deletes the file at rel. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	err := os.Remove(s.Path(rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// ListDir returns the sorted file names directly under rel that satisfy
// keep. A nil keep accepts everything. A missing directory lists empty.
func (s *Store) ListDir(rel string, keep func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(s.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if keep == nil || keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Archive copies the file at rel to a timestamp-suffixed sibling and
// returns the sibling's relative path. A missing source archives nothing
// and returns "".
func (s *Store) Archive(rel string) (string, error) {
	data, err := s.ReadRaw(rel)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	stamp := schema.SanitizeTimestamp(schema.Now())
	dst := archiveName(rel, stamp)
	if err := s.WriteRaw(dst, data); err != nil {
		return "", err
	}
	logging.Store("archived %s to %s", rel, dst)
	return dst, nil
}

// archiveName inserts -<stamp> before the extension of rel.
func archiveName(rel, stamp string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + "-" + stamp + ext
}

// AppendHistory appends one {timestamp,type,id} line to the journal and
// trims it from the front to the configured maximum.
func (s *Store) AppendHistory(entryType, id string) error {
	entry := schema.HistoryEntry{
		Timestamp: schema.Now(),
		Type:      entryType,
		ID:        id,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	lines := s.historyLines()
	lines = append(lines, string(line))
	if len(lines) > s.maxHistory {
		lines = lines[len(lines)-s.maxHistory:]
	}
	return s.WriteRaw(HistoryFile, []byte(strings.Join(lines, "\n")+"\n"))
}

// History returns the journal entries oldest-first. Malformed lines are
// skipped; readers tolerate a torn tail.
func (s *Store) History() ([]schema.HistoryEntry, error) {
	lines := s.historyLines()
	entries := make([]schema.HistoryEntry, 0, len(lines))
	for _, line := range lines {
		var e schema.HistoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logging.StoreWarn("skipping malformed history line: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) historyLines() []string {
	data, err := s.ReadRaw(HistoryFile)
	if err != nil {
		return nil
	}
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
