// Package orchestrator is the facade binding one session to the
// repositories, gate evaluator, scheduler and dispatcher. It is the only
// place the handoff hook, check registry and Convex mirror get wired;
// consumers never assemble those themselves.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/artifact"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/checks"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/evidence"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/proc"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
	"github.com/mastergrief/convex-medical-starter-sub003/pkg/convex"
)

// Orchestrator is a single stateful facade bound to one session. Its
// methods are sequential; it provides no cross-process guarantees.
type Orchestrator struct {
	cfg      *config.Config
	manager  *session.Manager
	store    *session.Store
	repos    *artifact.Repos
	linker   *evidence.Linker
	registry *gate.Registry
	mirror   *convex.Mirror
}

// NewSession mints a fresh session under the configured base and returns
// a facade bound to it.
func NewSession(cfg *config.Config) (*Orchestrator, error) {
	manager := session.NewManager(cfg.Base.Dir, cfg.History.MaxEntries)
	store, err := manager.New(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return bind(cfg, manager, store)
}

// Open binds to an existing session. An empty id binds to the most
// recently active session.
func Open(cfg *config.Config, sessionID string) (*Orchestrator, error) {
	manager := session.NewManager(cfg.Base.Dir, cfg.History.MaxEntries)
	if sessionID == "" {
		latest, err := manager.Latest()
		if err != nil {
			return nil, err
		}
		sessionID = latest
	}
	store, err := manager.Open(sessionID)
	if err != nil {
		return nil, err
	}
	return bind(cfg, manager, store)
}

func bind(cfg *config.Config, manager *session.Manager, store *session.Store) (*Orchestrator, error) {
	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:      cfg,
		manager:  manager,
		store:    store,
		repos:    artifact.NewRepos(store, registry),
		registry: gate.NewRegistry(),
	}

	o.linker = evidence.NewLinker(o.repos.Evidence, store)
	o.repos.Handoffs.SetPostWriteHook(o.linker.LinkHandoff)

	checks.RegisterAll(o.registry, checks.Deps{
		Store:     store,
		Runner:    &proc.Runner{},
		Workspace: cfg.Gate.Workspace,
		Gate:      cfg.Gate,
	})

	if cfg.Convex.Enabled {
		client, err := convex.NewClient(cfg.Convex.DeploymentURL, cfg.Convex.Timeout)
		if err != nil {
			logging.ConvexWarn("mirror disabled: %v", err)
		} else {
			o.mirror = convex.NewMirror(client, cfg.Convex.Timeout)
		}
	}

	logging.Session("bound to session %s", store.ID())
	return o, nil
}

// SessionID returns the bound session's id.
func (o *Orchestrator) SessionID() string {
	return o.store.ID()
}

// Store exposes the bound session store for read-side tooling.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// WritePrompt records the originating user intent.
func (o *Orchestrator) WritePrompt(description string, request map[string]any) (*schema.Prompt, error) {
	p := &schema.Prompt{Description: description, Request: request}
	if err := o.repos.Prompts.Write(p); err != nil {
		return nil, err
	}
	o.mirrorArtifact("prompt", p.ID, p)
	return p, nil
}

// ReadPrompt returns the prompt with the given id, or the current one.
func (o *Orchestrator) ReadPrompt(id string) (*schema.Prompt, error) {
	return o.repos.Prompts.Read(id)
}

// WritePlan validates and stores a plan, making it current.
func (o *Orchestrator) WritePlan(p *schema.Plan) (*schema.Plan, error) {
	if err := o.repos.Plans.Write(p); err != nil {
		return nil, err
	}
	o.mirrorArtifact("plan", p.ID, p)
	return p, nil
}

// ReadPlan returns the plan with the given id, or the current one.
func (o *Orchestrator) ReadPlan(id string) (*schema.Plan, error) {
	return o.repos.Plans.Read(id)
}

// WriteHandoff stores a handoff; the evidence linker runs as its
// post-write hook before this returns.
func (o *Orchestrator) WriteHandoff(h *schema.Handoff) (*schema.Handoff, error) {
	if err := o.repos.Handoffs.Write(h); err != nil {
		return nil, err
	}
	o.mirrorArtifact("handoff", h.ID, h)
	return h, nil
}

// ReadHandoff returns the handoff with the given id, or the latest one.
func (o *Orchestrator) ReadHandoff(id string) (*schema.Handoff, error) {
	return o.repos.Handoffs.Read(id)
}

// ListHandoffs returns handoff summaries, newest first.
func (o *Orchestrator) ListHandoffs() ([]artifact.HandoffSummary, error) {
	return o.repos.Handoffs.List()
}

// ReadState returns orchestrator state, initializing an idle one for a
// fresh session.
func (o *Orchestrator) ReadState() (*schema.OrchestratorState, error) {
	return o.repos.State.ReadOrInit()
}

// WriteState replaces orchestrator state, archiving the prior document.
func (o *Orchestrator) WriteState(st *schema.OrchestratorState) error {
	if err := o.repos.State.Write(st); err != nil {
		return err
	}
	o.mirrorArtifact("state", "orchestrator", st)
	return nil
}

// LinkMemory binds an external knowledge file into the session.
func (o *Orchestrator) LinkMemory(name, sourcePath string, opts artifact.LinkOptions) (*schema.LinkedMemory, error) {
	m, err := o.repos.Memories.Link(name, sourcePath, opts)
	if err != nil {
		return nil, err
	}
	o.mirrorArtifact("memory", name, m)
	return m, nil
}

// GetMemory returns one linked memory by name.
func (o *Orchestrator) GetMemory(name string) (*schema.LinkedMemory, error) {
	return o.repos.Memories.Get(name)
}

// ListMemories returns linked memory names.
func (o *Orchestrator) ListMemories() ([]string, error) {
	return o.repos.Memories.List()
}

// Status summarizes the bound session for display.
type Status struct {
	SessionID    string               `json:"sessionId"`
	Status       schema.SessionStatus `json:"status"`
	CurrentPhase schema.PhaseRef      `json:"currentPhase"`
	Agents       int                  `json:"agents"`
	TokenUsage   *schema.TokenUsage   `json:"tokenUsage,omitempty"`
	PlanID       string               `json:"planId,omitempty"`
	Handoffs     int                  `json:"handoffs"`
}

// SessionStatus reports the session, phase and token summary.
func (o *Orchestrator) SessionStatus() (*Status, error) {
	st, err := o.ReadState()
	if err != nil {
		return nil, err
	}
	s := &Status{
		SessionID:    o.store.ID(),
		Status:       st.Status,
		CurrentPhase: st.CurrentPhase,
		Agents:       len(st.Agents),
		TokenUsage:   st.TokenUsage,
	}
	if plan, err := o.repos.Plans.Read(""); err == nil {
		s.PlanID = plan.ID
	}
	if handoffs, err := o.repos.Handoffs.List(); err == nil {
		s.Handoffs = len(handoffs)
	}
	return s, nil
}

// mirrorArtifact pushes a successful write to Convex when the mirror is
// enabled. Failures are logged, never returned: the local write already
// succeeded.
func (o *Orchestrator) mirrorArtifact(kind, id string, doc any) {
	if o.mirror == nil {
		return
	}
	if err := o.mirror.Upsert(context.Background(), o.store.ID(), kind, id, doc); err != nil {
		logging.ConvexWarn("mirror %s %s: %v", kind, id, err)
		return
	}
	logging.ConvexDebug("mirrored %s %s", kind, id)
}

// currentPlan loads the session's current plan with a friendlier error
// for phase operations.
func (o *Orchestrator) currentPlan() (*schema.Plan, error) {
	plan, err := o.repos.Plans.Read("")
	if err != nil {
		if session.IsNotFound(err) {
			return nil, fmt.Errorf("no current plan in session %s", o.store.ID())
		}
		return nil, err
	}
	return plan, nil
}
