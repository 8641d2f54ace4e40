// Package schema declares the artifact shapes shared across the
// orchestration core and validates documents against their JSON Schemas.
package schema

import "math"

// Kind identifies an artifact family for validation and history entries.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindPlan     Kind = "plan"
	KindHandoff  Kind = "handoff"
	KindState    Kind = "state"
	KindMemory   Kind = "memory"
	KindEvidence Kind = "evidence"
	KindGate     Kind = "gate"
)

// AgentType is the kind of worker a subtask is dispatched to.
type AgentType string

const (
	AgentAnalyst      AgentType = "analyst"
	AgentDeveloper    AgentType = "developer"
	AgentBrowser      AgentType = "browser"
	AgentOrchestrator AgentType = "orchestrator"
)

// HandoffReason explains why an agent handed control back.
type HandoffReason string

const (
	ReasonTaskComplete  HandoffReason = "task_complete"
	ReasonPhaseComplete HandoffReason = "phase_complete"
	ReasonBlocked       HandoffReason = "blocked"
	ReasonError         HandoffReason = "error"
	ReasonTokenLimit    HandoffReason = "token_limit"
)

// ResultStatus is the outcome an agent reports for one task.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPartial   ResultStatus = "partial"
	ResultSkipped   ResultStatus = "skipped"
)

// SessionStatus is the orchestrator-level run state.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusBlocked   SessionStatus = "blocked"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// AgentStatus is the lifecycle state of one registered agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// HandoffVersion is written into every handoff's metadata.
const HandoffVersion = "1.0"

// PhaseCompleteID marks orchestrator state past the last plan phase.
const PhaseCompleteID = "complete"

// Prompt is the originating user intent for a session.
type Prompt struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	Description string         `json:"description"`
	Request     map[string]any `json:"request,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// Plan is an ordered list of phases to execute.
type Plan struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionId"`
	CreatedAt string  `json:"createdAt"`
	Phases    []Phase `json:"phases"`
}

// Phase is a named set of subtasks with shared advancement criteria.
type Phase struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Subtasks       []Subtask `json:"subtasks"`
	GateCondition  string    `json:"gateCondition,omitempty"`
	Parallelizable bool      `json:"parallelizable"`
}

// Subtask is one unit of agent work inside a phase.
type Subtask struct {
	ID              string    `json:"id"`
	AgentType       AgentType `json:"agentType"`
	Prompt          string    `json:"prompt"`
	Dependencies    []string  `json:"dependencies,omitempty"`
	EstimatedTokens int       `json:"estimatedTokens,omitempty"`
}

// FindPhase returns the phase with the given id, or nil.
func (p *Plan) FindPhase(id string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].ID == id {
			return &p.Phases[i]
		}
	}
	return nil
}

// NextPhase returns the phase following the given id in plan order, or nil
// when the id names the last phase or is unknown.
func (p *Plan) NextPhase(id string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].ID == id && i+1 < len(p.Phases) {
			return &p.Phases[i+1]
		}
	}
	return nil
}

// FindSubtask returns the subtask with the given id and its phase, or nils.
func (p *Plan) FindSubtask(id string) (*Subtask, *Phase) {
	for i := range p.Phases {
		if t := p.Phases[i].FindSubtask(id); t != nil {
			return t, &p.Phases[i]
		}
	}
	return nil, nil
}

// FindSubtask returns the phase's subtask with the given id, or nil.
func (ph *Phase) FindSubtask(id string) *Subtask {
	for i := range ph.Subtasks {
		if ph.Subtasks[i].ID == id {
			return &ph.Subtasks[i]
		}
	}
	return nil
}

// Handoff is the artifact a completed agent writes back.
type Handoff struct {
	ID       string          `json:"id"`
	Metadata HandoffMetadata `json:"metadata"`
	Reason   HandoffReason   `json:"reason"`
	Results  []HandoffResult `json:"results"`
	State    HandoffState    `json:"state"`
}

// HandoffMetadata identifies the agents and session a handoff belongs to.
type HandoffMetadata struct {
	SessionID string      `json:"sessionId"`
	PlanID    string      `json:"planId"`
	FromAgent AgentRef    `json:"fromAgent"`
	ToAgent   AgentTarget `json:"toAgent"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
}

// AgentRef names a concrete agent instance.
type AgentRef struct {
	Type AgentType `json:"type"`
	ID   string    `json:"id"`
}

// AgentTarget names the agent type work is handed to.
type AgentTarget struct {
	Type AgentType `json:"type"`
}

// HandoffResult reports the outcome of one task.
type HandoffResult struct {
	TaskID  string       `json:"taskId"`
	Status  ResultStatus `json:"status"`
	Summary string       `json:"summary"`
	Output  string       `json:"output,omitempty"`
}

// HandoffState is the context snapshot the next agent resumes from.
type HandoffState struct {
	FilesModified      []string          `json:"filesModified,omitempty"`
	CriticalContext    map[string]string `json:"criticalContext,omitempty"`
	ResumeInstructions string            `json:"resumeInstructions,omitempty"`
}

// OrchestratorState is the single mutable run document of a session.
type OrchestratorState struct {
	Status       SessionStatus `json:"status"`
	CurrentPhase PhaseRef      `json:"currentPhase"`
	Agents       []AgentEntry  `json:"agents"`
	TokenUsage   *TokenUsage   `json:"tokenUsage,omitempty"`
	UpdatedAt    string        `json:"updatedAt"`
}

// PhaseRef points at the phase the orchestrator is currently in.
type PhaseRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
}

// CompletePhase is the sentinel written when no phases remain.
func CompletePhase() PhaseRef {
	return PhaseRef{ID: PhaseCompleteID, Name: "Plan Complete", Progress: 100}
}

// AgentEntry is one registered agent in orchestrator state.
type AgentEntry struct {
	ID         string      `json:"id"`
	Type       AgentType   `json:"type"`
	TaskID     string      `json:"taskId"`
	Status     AgentStatus `json:"status"`
	StartTime  string      `json:"startTime"`
	TokensUsed int         `json:"tokensUsed,omitempty"`
}

// TokenUsage tracks the session token budget.
type TokenUsage struct {
	Limit      int     `json:"limit"`
	Consumed   int     `json:"consumed"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// LinkedMemory binds a named external knowledge artifact to the session.
type LinkedMemory struct {
	MemoryName       string            `json:"memoryName"`
	SourcePath       string            `json:"sourcePath"`
	LinkedAt         string            `json:"linkedAt"`
	ForAgents        []AgentType       `json:"forAgents,omitempty"`
	TraceabilityData *TraceabilityData `json:"traceabilityData,omitempty"`
	Summary          string            `json:"summary,omitempty"`
}

// TraceabilityData records what an analysis pass extracted from a source.
// Field names keep the snake_case shape agents emit.
type TraceabilityData struct {
	AnalyzedSymbols []string            `json:"analyzed_symbols,omitempty"`
	EntryPoints     []string            `json:"entry_points,omitempty"`
	DataFlowMap     map[string][]string `json:"data_flow_map,omitempty"`
}

// FieldNonEmpty reports whether the named traceability field has content.
func (t *TraceabilityData) FieldNonEmpty(field string) bool {
	if t == nil {
		return false
	}
	switch field {
	case "analyzed_symbols":
		return len(t.AnalyzedSymbols) > 0
	case "entry_points":
		return len(t.EntryPoints) > 0
	case "data_flow_map":
		return len(t.DataFlowMap) > 0
	}
	return false
}

// EvidenceChain links requirement, analysis, implementation and validation
// for one task.
type EvidenceChain struct {
	ChainID         string         `json:"chainId"`
	Stages          EvidenceStages `json:"stages"`
	CoveragePercent float64        `json:"coveragePercent"`
	Valid           bool           `json:"valid"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

// EvidenceStages holds the four optional stages of a chain.
type EvidenceStages struct {
	Requirement    *EvidenceStage `json:"requirement,omitempty"`
	Analysis       *EvidenceStage `json:"analysis,omitempty"`
	Implementation *EvidenceStage `json:"implementation,omitempty"`
	Validation     *EvidenceStage `json:"validation,omitempty"`
}

// EvidenceStage is one populated stage of an evidence chain.
type EvidenceStage struct {
	Content   string `json:"content"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// NewEvidenceChain returns an empty chain for the given id.
func NewEvidenceChain(chainID, now string) *EvidenceChain {
	c := &EvidenceChain{ChainID: chainID, CreatedAt: now, UpdatedAt: now}
	c.Recompute()
	return c
}

// StageCount returns how many stages are populated.
func (c *EvidenceChain) StageCount() int {
	n := 0
	for _, s := range []*EvidenceStage{
		c.Stages.Requirement, c.Stages.Analysis,
		c.Stages.Implementation, c.Stages.Validation,
	} {
		if s != nil {
			n++
		}
	}
	return n
}

// Recompute derives coveragePercent (one decimal) and valid from the
// populated stages.
func (c *EvidenceChain) Recompute() {
	pct := float64(c.StageCount()) / 4 * 100
	c.CoveragePercent = math.Round(pct*10) / 10
	c.Valid = c.CoveragePercent >= 50
}

// GateResult is the recorded outcome of one gate check.
type GateResult struct {
	PhaseID   string            `json:"phaseId"`
	Passed    bool              `json:"passed"`
	CheckedAt string            `json:"checkedAt"`
	Results   []GateCheckResult `json:"results"`
	Blockers  []string          `json:"blockers"`
	Duration  int64             `json:"duration,omitempty"` // milliseconds
}

// GateCheckResult is one evaluated atom of a gate expression.
type GateCheckResult struct {
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// HistoryEntry is one line of the session journal.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	ID        string `json:"id"`
}
