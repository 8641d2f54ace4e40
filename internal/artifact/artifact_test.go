package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

func newTestRepos(t *testing.T) (*Repos, *session.Store) {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	store, err := session.NewStore(filepath.Join(t.TempDir(), "20250101_10-00_"+schema.NewUUID()), 10)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewRepos(store, registry), store
}

func validPlan() *schema.Plan {
	return &schema.Plan{
		Phases: []schema.Phase{
			{
				ID:   "phase-1",
				Name: "Analysis",
				Subtasks: []schema.Subtask{
					{ID: "t1", AgentType: schema.AgentAnalyst, Prompt: "analyze"},
					{ID: "t2", AgentType: schema.AgentDeveloper, Prompt: "build", Dependencies: []string{"t1"}},
				},
				GateCondition: "manual_override",
			},
			{ID: "phase-2", Name: "Validation", Subtasks: []schema.Subtask{
				{ID: "t3", AgentType: schema.AgentBrowser, Prompt: "verify"},
			}},
		},
	}
}

func validHandoff(from schema.AgentType, taskID string) *schema.Handoff {
	return &schema.Handoff{
		Metadata: schema.HandoffMetadata{
			PlanID:    schema.NewUUID(),
			FromAgent: schema.AgentRef{Type: from, ID: schema.NewUUID()},
			ToAgent:   schema.AgentTarget{Type: schema.AgentOrchestrator},
		},
		Reason: schema.ReasonTaskComplete,
		Results: []schema.HandoffResult{
			{TaskID: taskID, Status: schema.ResultCompleted, Summary: "done"},
		},
		State: schema.HandoffState{ResumeInstructions: "continue"},
	}
}

// Read-by-id and the pointer mirror both equal the written prompt.
func TestPromptWriteReadMirror(t *testing.T) {
	repos, _ := newTestRepos(t)
	p := &schema.Prompt{Description: "build the feature"}
	if err := repos.Prompts.Write(p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	byID, err := repos.Prompts.Read(p.ID)
	if err != nil {
		t.Fatalf("Read(id) failed: %v", err)
	}
	current, err := repos.Prompts.Read("")
	if err != nil {
		t.Fatalf("Read(current) failed: %v", err)
	}
	if diff := cmp.Diff(p, byID); diff != "" {
		t.Errorf("Read(id) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(p, current); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}
}

func TestPromptMissingMirrorEnumeratesIDs(t *testing.T) {
	repos, store := newTestRepos(t)
	p := &schema.Prompt{Description: "x"}
	if err := repos.Prompts.Write(p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Simulate a crash between canonical write and mirror update.
	if err := store.Remove("prompts/current-prompt.json"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	_, err := repos.Prompts.Read("")
	if err == nil || !strings.Contains(err.Error(), p.ID) {
		t.Errorf("error should enumerate available ids, got: %v", err)
	}
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound, got: %v", err)
	}
}

func TestPlanValidationRejectsForwardDependency(t *testing.T) {
	repos, store := newTestRepos(t)
	plan := validPlan()
	plan.Phases[0].Subtasks[0].Dependencies = []string{"t2"}

	err := repos.Plans.Write(plan)
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// A failed validation leaves the session untouched.
	names, _ := store.ListDir("plans", nil)
	if len(names) != 0 {
		t.Errorf("validation failure wrote files: %v", names)
	}
}

func TestPlanWriteAppendsHistory(t *testing.T) {
	repos, store := newTestRepos(t)
	if err := repos.Plans.Write(validPlan()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	entries, err := store.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "plan" {
		t.Errorf("history = %+v, want one plan entry", entries)
	}
}

func TestHandoffListSortedByTimestampDesc(t *testing.T) {
	repos, _ := newTestRepos(t)
	older := validHandoff(schema.AgentAnalyst, "t1")
	older.Metadata.Timestamp = "2025-01-01T10:00:00Z"
	newer := validHandoff(schema.AgentDeveloper, "t2")
	newer.Metadata.Timestamp = "2025-01-02T10:00:00Z"
	for _, h := range []*schema.Handoff{older, newer} {
		if err := repos.Handoffs.Write(h); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	list, err := repos.Handoffs.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("list order wrong: %+v", list)
	}
	if list[0].FromAgentType != schema.AgentDeveloper {
		t.Errorf("summary agent type = %s", list[0].FromAgentType)
	}
}

func TestHandoffReadByIDScansCanonicals(t *testing.T) {
	repos, _ := newTestRepos(t)
	h := validHandoff(schema.AgentDeveloper, "t1")
	if err := repos.Handoffs.Write(h); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := repos.Handoffs.Read(h.ID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
	if _, err := repos.Handoffs.Read("not-there"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHandoffPostWriteHookFires(t *testing.T) {
	repos, _ := newTestRepos(t)
	var hooked []string
	repos.Handoffs.SetPostWriteHook(func(h *schema.Handoff) {
		hooked = append(hooked, h.ID)
	})

	h := validHandoff(schema.AgentAnalyst, "t1")
	if err := repos.Handoffs.Write(h); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(hooked) != 1 || hooked[0] != h.ID {
		t.Errorf("hook calls = %v", hooked)
	}
}

func TestHandoffInvalidReasonRejected(t *testing.T) {
	repos, _ := newTestRepos(t)
	h := validHandoff(schema.AgentAnalyst, "t1")
	h.Reason = "because"
	var verr *schema.ValidationError
	if err := repos.Handoffs.Write(h); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad reason, got %v", err)
	}
}

func TestStateWriteArchivesPrior(t *testing.T) {
	repos, store := newTestRepos(t)
	first := &schema.OrchestratorState{
		Status:       schema.StatusRunning,
		CurrentPhase: schema.PhaseRef{ID: "phase-1", Name: "Analysis", Progress: 10},
	}
	if err := repos.State.Write(first); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	second := &schema.OrchestratorState{
		Status:       schema.StatusRunning,
		CurrentPhase: schema.PhaseRef{ID: "phase-2", Name: "Validation", Progress: 0},
	}
	if err := repos.State.Write(second); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	names, err := store.ListDir("state", func(name string) bool {
		return strings.HasPrefix(name, "orchestrator-")
	})
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("archives = %v, want exactly one", names)
	}
	var archived schema.OrchestratorState
	if err := store.ReadJSON("state/"+names[0], &archived); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if archived.CurrentPhase.ID != "phase-1" {
		t.Errorf("archived phase = %s, want phase-1", archived.CurrentPhase.ID)
	}

	current, err := repos.State.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if current.CurrentPhase.ID != "phase-2" {
		t.Errorf("current phase = %s, want phase-2", current.CurrentPhase.ID)
	}
}

func TestStateReadOrInit(t *testing.T) {
	repos, _ := newTestRepos(t)
	st, err := repos.State.ReadOrInit()
	if err != nil {
		t.Fatalf("ReadOrInit failed: %v", err)
	}
	if st.Status != schema.StatusIdle {
		t.Errorf("fresh state status = %s, want idle", st.Status)
	}
}

func TestMemoryLinkAndGet(t *testing.T) {
	repos, _ := newTestRepos(t)
	src := filepath.Join(t.TempDir(), "analysis.json")
	if err := os.WriteFile(src, []byte(`{"analyzed_symbols":["main.Run"],"entry_points":["cmd/main.go"]}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	mem, err := repos.Memories.Link("auth-analysis", src, LinkOptions{
		Summary:   "auth flow study",
		ForAgents: []schema.AgentType{schema.AgentDeveloper},
		Extract:   true,
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if mem.TraceabilityData == nil || len(mem.TraceabilityData.AnalyzedSymbols) != 1 {
		t.Errorf("extraction missed: %+v", mem.TraceabilityData)
	}

	got, err := repos.Memories.Get("auth-analysis")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(mem, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	names, err := repos.Memories.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"auth-analysis"}, names); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryLinkMissingSource(t *testing.T) {
	repos, _ := newTestRepos(t)
	_, err := repos.Memories.Link("x", "/does/not/exist.json", LinkOptions{})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvidenceWriteRecomputesDerivedFields(t *testing.T) {
	repos, _ := newTestRepos(t)
	now := schema.Now()
	chain := schema.NewEvidenceChain("t1", now)
	chain.Stages.Analysis = &schema.EvidenceStage{Content: "findings", Source: "handoff", Timestamp: now}
	chain.Stages.Implementation = &schema.EvidenceStage{Content: "diff", Source: "handoff", Timestamp: now}
	chain.CoveragePercent = 999 // stale; Write must recompute

	if err := repos.Evidence.Write(chain); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := repos.Evidence.Read("t1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.CoveragePercent != 50 || !got.Valid {
		t.Errorf("coverage = %v valid = %v, want 50/true", got.CoveragePercent, got.Valid)
	}
}

func TestGateWriteReadAndList(t *testing.T) {
	repos, _ := newTestRepos(t)
	res := &schema.GateResult{
		PhaseID:   "phase-1",
		Passed:    false,
		CheckedAt: "2025-01-01T10:00:00Z",
		Results:   []schema.GateCheckResult{{Check: "tests", Passed: false, Message: "2 tests failed"}},
		Blockers:  []string{"tests: 2 tests failed"},
		Duration:  1200,
	}
	if err := repos.Gates.Write(res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	res2 := &schema.GateResult{
		PhaseID:   "phase-1",
		Passed:    true,
		CheckedAt: "2025-01-01T11:00:00Z",
		Results:   []schema.GateCheckResult{{Check: "tests", Passed: true}},
		Blockers:  []string{},
	}
	if err := repos.Gates.Write(res2); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	latest, err := repos.Gates.Read("phase-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !latest.Passed {
		t.Errorf("latest snapshot = %+v, want second result", latest)
	}

	names, err := repos.Gates.List("phase-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 || names[0] < names[1] {
		t.Errorf("list = %v, want two canonicals newest-first", names)
	}
	if !repos.Gates.HasResult("phase-1") || repos.Gates.HasResult("phase-9") {
		t.Error("HasResult mismatch")
	}
}
