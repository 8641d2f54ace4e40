package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "20250101_10-00_abc"), 5)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

// TestNewStoreCreatesSkeleton tests that every fixed subdirectory exists
// before the first artifact write.
func TestNewStoreCreatesSkeleton(t *testing.T) {
	s := newTestStore(t)
	for _, sub := range subdirs {
		info, err := os.Stat(filepath.Join(s.Root(), sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected subdirectory %s, err=%v", sub, err)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := testDoc{Name: "alpha", Count: 3}
	if err := s.WriteJSON("plans/plan-1.json", want); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var got testDoc
	if err := s.ReadJSON("plans/plan-1.json", &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestWriteIsPrettyPrinted tests the on-disk format: two-space indent,
// trailing content without a temp sibling left behind.
func TestWriteIsPrettyPrinted(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteJSON("state/orchestrator.json", testDoc{Name: "x"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	data, err := os.ReadFile(s.Path("state/orchestrator.json"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"name\"") {
		t.Errorf("expected two-space indent, got:\n%s", data)
	}
	if s.Exists("state/orchestrator.json.tmp") {
		t.Error("temp sibling left behind after rename")
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	var doc testDoc
	err := s.ReadJSON("plans/absent.json", &doc)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReadCorruptIsCorrupt(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteRaw("plans/bad.json", []byte("{not json")); err != nil {
		t.Fatalf("WriteRaw failed: %v", err)
	}
	var doc testDoc
	err := s.ReadJSON("plans/bad.json", &doc)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestListDirFiltersAndSorts(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"handoff-b.json", "handoff-a.json", "latest-handoff.json"} {
		if err := s.WriteJSON("handoffs/"+name, testDoc{}); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
	}

	names, err := s.ListDir("handoffs", func(name string) bool {
		return strings.HasPrefix(name, "handoff-")
	})
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	want := []string{"handoff-a.json", "handoff-b.json"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ListDir mismatch (-want +got):\n%s", diff)
	}
}

func TestListDirMissingIsEmpty(t *testing.T) {
	s := newTestStore(t)
	names, err := s.ListDir("nope", nil)
	if err != nil || len(names) != 0 {
		t.Errorf("expected empty listing, got %v, err=%v", names, err)
	}
}

func TestArchiveCopiesWithTimestampSuffix(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteJSON("state/orchestrator.json", testDoc{Name: "v1"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	dst, err := s.Archive("state/orchestrator.json")
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if !strings.HasPrefix(dst, "state/orchestrator-") || !strings.HasSuffix(dst, ".json") {
		t.Errorf("unexpected archive name %q", dst)
	}
	var got testDoc
	if err := s.ReadJSON(dst, &got); err != nil {
		t.Fatalf("archived copy unreadable: %v", err)
	}
	if got.Name != "v1" {
		t.Errorf("archived copy = %+v, want v1", got)
	}
}

func TestArchiveMissingSourceIsNoop(t *testing.T) {
	s := newTestStore(t)
	dst, err := s.Archive("state/orchestrator.json")
	if err != nil || dst != "" {
		t.Errorf("expected empty no-op archive, got %q, err=%v", dst, err)
	}
}

// TestHistoryTrimsToMax tests that the journal never exceeds the
// configured maximum after an append.
func TestHistoryTrimsToMax(t *testing.T) {
	s := newTestStore(t) // max 5
	for i := 0; i < 9; i++ {
		if err := s.AppendHistory("plan", string(rune('a'+i))); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	entries, err := s.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("history length = %d, want 5", len(entries))
	}
	// Oldest entries trimmed from the front; newest kept.
	if entries[0].ID != "e" || entries[4].ID != "i" {
		t.Errorf("unexpected trim window: first=%s last=%s", entries[0].ID, entries[4].ID)
	}
}

func TestHistorySkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendHistory("prompt", "p1"); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}
	f, err := os.OpenFile(s.Path(HistoryFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := f.WriteString("{torn line\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	f.Close()

	entries, err := s.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "p1" {
		t.Errorf("expected the single valid entry, got %+v", entries)
	}
}
