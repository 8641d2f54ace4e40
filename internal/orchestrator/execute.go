package orchestrator

import (
	"fmt"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/dispatch"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/scheduler"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// PhaseInstructions pairs a phase with its dispatch instructions, in
// execution order.
type PhaseInstructions struct {
	PhaseID      string                 `json:"phaseId"`
	PhaseName    string                 `json:"phaseName"`
	Instructions []dispatch.Instruction `json:"instructions"`
}

// ExecutePhase schedules one phase and produces dispatch instructions
// for it. maxAgents overrides the configured concurrency when positive.
// The phase's tasks get their evidence requirement stage seeded, the
// spawned agents are registered in orchestrator state, and prompts
// reference prior results via {result:<taskId>}.
func (o *Orchestrator) ExecutePhase(phaseID string, maxAgents int) (*PhaseInstructions, error) {
	plan, err := o.currentPlan()
	if err != nil {
		return nil, err
	}
	phase := plan.FindPhase(phaseID)
	if phase == nil {
		return nil, fmt.Errorf("plan %s has no phase %q", plan.ID, phaseID)
	}
	return o.executePhase(plan, phase, maxAgents)
}

func (o *Orchestrator) executePhase(plan *schema.Plan, phase *schema.Phase, maxAgents int) (*PhaseInstructions, error) {
	if maxAgents <= 0 {
		maxAgents = o.cfg.Dispatch.MaxConcurrentAgents
	}
	groups := scheduler.Schedule(phase, scheduler.Config{
		MaxConcurrentAgents: maxAgents,
		WaitForAll:          o.cfg.Dispatch.WaitForAll,
	})

	for _, task := range phase.Subtasks {
		o.linker.SeedRequirement(task.ID, task.Prompt, "plan:"+plan.ID)
	}

	prior, err := o.aggregateFromSession()
	if err != nil {
		return nil, err
	}
	instructions := dispatch.New(o.cfg.Dispatch).Build(groups, prior)

	if err := o.registerAgents(phase, instructions); err != nil {
		return nil, err
	}
	if err := o.store.AppendHistory("dispatch", phase.ID); err != nil {
		return nil, err
	}
	logging.Dispatch("phase %s: %d group(s) dispatched", phase.ID, len(instructions))
	return &PhaseInstructions{PhaseID: phase.ID, PhaseName: phase.Name, Instructions: instructions}, nil
}

// ExecutePlan produces instructions for every phase from resumeFrom (or
// the first phase when empty) to the end of the plan.
func (o *Orchestrator) ExecutePlan(resumeFrom string, maxAgents int) ([]PhaseInstructions, error) {
	plan, err := o.currentPlan()
	if err != nil {
		return nil, err
	}
	start := 0
	if resumeFrom != "" {
		start = -1
		for i := range plan.Phases {
			if plan.Phases[i].ID == resumeFrom {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("plan %s has no phase %q", plan.ID, resumeFrom)
		}
	}

	var out []PhaseInstructions
	for i := start; i < len(plan.Phases); i++ {
		pi, err := o.executePhase(plan, &plan.Phases[i], maxAgents)
		if err != nil {
			return nil, err
		}
		out = append(out, *pi)
	}
	return out, nil
}

// aggregateFromSession digests the session's handoffs into the context
// dispatch substitution draws from.
func (o *Orchestrator) aggregateFromSession() (*dispatch.Aggregated, error) {
	agg := &dispatch.Aggregated{Handoffs: map[string]*schema.Handoff{}}

	summaries, err := o.repos.Handoffs.List()
	if err != nil {
		return nil, err
	}
	// Oldest first so newer handoffs win the per-task slot.
	for i := len(summaries) - 1; i >= 0; i-- {
		h, err := o.repos.Handoffs.Read(summaries[i].ID)
		if err != nil {
			logging.DispatchWarn("skipping unreadable handoff %s: %v", summaries[i].ID, err)
			continue
		}
		for _, r := range h.Results {
			if r.Status == schema.ResultCompleted || r.Status == schema.ResultPartial {
				if !agg.Completed(r.TaskID) {
					agg.CompletedTasks = append(agg.CompletedTasks, r.TaskID)
				}
				agg.Handoffs[r.TaskID] = h
			}
		}
	}

	if st, err := o.repos.State.Read(); err == nil && st.TokenUsage != nil {
		agg.TotalTokensUsed = st.TokenUsage.Consumed
	}
	return agg, nil
}

// registerAgents records one state entry per spawn so agents list/kill
// can see in-flight work. Re-dispatching a task replaces its entry.
func (o *Orchestrator) registerAgents(phase *schema.Phase, instructions []dispatch.Instruction) error {
	st, err := o.repos.State.ReadOrInit()
	if err != nil {
		return err
	}
	st.Status = schema.StatusRunning
	st.CurrentPhase = schema.PhaseRef{ID: phase.ID, Name: phase.Name, Progress: 0}

	byTask := map[string]int{}
	for i, a := range st.Agents {
		byTask[a.TaskID] = i
	}
	now := schema.Now()
	for _, inst := range instructions {
		for _, spawn := range inst.Spawns {
			entry := schema.AgentEntry{
				ID:        schema.NewUUID(),
				Type:      spawn.AgentType,
				TaskID:    spawn.TaskID,
				Status:    schema.AgentRunning,
				StartTime: now,
			}
			if i, ok := byTask[spawn.TaskID]; ok {
				st.Agents[i] = entry
			} else {
				byTask[spawn.TaskID] = len(st.Agents)
				st.Agents = append(st.Agents, entry)
			}
		}
	}
	return o.WriteState(st)
}

// Agents returns the registered agent entries from orchestrator state.
func (o *Orchestrator) Agents() ([]schema.AgentEntry, error) {
	st, err := o.repos.State.ReadOrInit()
	if err != nil {
		return nil, err
	}
	return st.Agents, nil
}

// KillAgent marks one registered agent failed and journals the kill. The
// core spawns no processes, so this is registry maintenance only.
func (o *Orchestrator) KillAgent(agentID string) (*schema.AgentEntry, error) {
	st, err := o.repos.State.ReadOrInit()
	if err != nil {
		return nil, err
	}
	for i := range st.Agents {
		if st.Agents[i].ID != agentID {
			continue
		}
		st.Agents[i].Status = schema.AgentFailed
		if err := o.WriteState(st); err != nil {
			return nil, err
		}
		if err := o.store.AppendHistory("agent_killed", agentID); err != nil {
			return nil, err
		}
		logging.Session("agent %s (task %s) killed", agentID, st.Agents[i].TaskID)
		return &st.Agents[i], nil
	}
	return nil, fmt.Errorf("no registered agent %q", agentID)
}
