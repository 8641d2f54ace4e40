// Package dispatch turns scheduled task groups into spawn instructions
// for the external agent runner, substituting prior results into
// dependent prompts.
package dispatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/scheduler"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// defaultTaskTokens is assumed for subtasks that carry no estimate.
const defaultTaskTokens = 4000

// Spawn is one agent invocation inside a dispatch instruction.
type Spawn struct {
	TaskID          string           `json:"taskId"`
	AgentType       schema.AgentType `json:"agentType"`
	Command         string           `json:"command"`
	RunInBackground bool             `json:"runInBackground"`
}

// Instruction is everything a controller needs to launch one group.
type Instruction struct {
	GroupID         string  `json:"groupId"`
	AgentCount      int     `json:"agentCount"`
	WaitForAll      bool    `json:"waitForAll"`
	Spawns          []Spawn `json:"spawns"`
	EstimatedTokens int     `json:"estimatedTokens"`
	Summary         string  `json:"summary"`
}

// Aggregated is the digested outcome of prior groups, consumed by
// result substitution in later prompts.
type Aggregated struct {
	CompletedTasks  []string
	Handoffs        map[string]*schema.Handoff
	TotalTokensUsed int
	Errors          []string
}

// Completed reports whether a task id finished in a prior group.
func (a *Aggregated) Completed(taskID string) bool {
	for _, id := range a.CompletedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// Result pairs a task with its outcome, as reported back by a runner.
type Result struct {
	TaskID     string
	Status     schema.ResultStatus
	Handoff    *schema.Handoff
	TokensUsed int
	Err        error
}

// Dispatcher builds instructions. It is advisory: token-budget overruns
// are flagged in the instruction summary, never refused.
type Dispatcher struct {
	cfg config.DispatchConfig
}

// New returns a dispatcher with the given runner settings.
func New(cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

// Build produces one instruction per scheduled group, substituting
// {result:<taskId>} references from the aggregated prior context.
func (d *Dispatcher) Build(groups []scheduler.ParallelGroup, prior *Aggregated) []Instruction {
	if prior == nil {
		prior = &Aggregated{}
	}
	instructions := make([]Instruction, 0, len(groups))
	used := prior.TotalTokensUsed
	for _, group := range groups {
		inst := d.buildGroup(group, prior, used)
		used += inst.EstimatedTokens
		instructions = append(instructions, inst)
	}
	return instructions
}

func (d *Dispatcher) buildGroup(group scheduler.ParallelGroup, prior *Aggregated, usedTokens int) Instruction {
	inst := Instruction{
		GroupID:    group.GroupID,
		AgentCount: len(group.Tasks),
		WaitForAll: group.WaitForAll,
	}
	for _, task := range group.Tasks {
		prompt := SubstituteResults(task.Prompt, prior)
		inst.Spawns = append(inst.Spawns, Spawn{
			TaskID:    task.ID,
			AgentType: task.AgentType,
			Command:   d.command(task, prompt),
		})
		inst.EstimatedTokens += taskTokens(task)
	}
	inst.Summary = d.summarize(inst, usedTokens)
	logging.Dispatch("group %s: %d spawn(s), ~%d tokens", inst.GroupID, inst.AgentCount, inst.EstimatedTokens)
	return inst
}

func (d *Dispatcher) summarize(inst Instruction, usedTokens int) string {
	summary := fmt.Sprintf("%s: %d agent(s), est. %d tokens", inst.GroupID, inst.AgentCount, inst.EstimatedTokens)
	if !WithinBudget(usedTokens, inst.EstimatedTokens, d.cfg.TokenBudget) {
		summary += fmt.Sprintf(" [over budget: %d used of %d]", usedTokens+inst.EstimatedTokens, d.cfg.TokenBudget)
		logging.DispatchWarn("group %s exceeds token budget (%d+%d > %d)",
			inst.GroupID, usedTokens, inst.EstimatedTokens, d.cfg.TokenBudget)
	}
	return summary
}

// command renders the runner invocation for one task, shell-escaped so
// prompts with quotes and whitespace survive sh -c transport.
func (d *Dispatcher) command(task schema.Subtask, prompt string) string {
	parts := []string{
		d.cfg.Runner,
		"--type", string(task.AgentType),
		"--task", task.ID,
		"--prompt", prompt,
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = shellQuote(p)
	}
	return strings.Join(quoted, " ")
}

func taskTokens(task schema.Subtask) int {
	if task.EstimatedTokens > 0 {
		return task.EstimatedTokens
	}
	return defaultTaskTokens
}

// WithinBudget reports whether launching more work stays inside the
// session token budget. A zero budget means unlimited.
func WithinBudget(usedTokens, estimatedTokens, budget int) bool {
	if budget <= 0 {
		return true
	}
	return usedTokens+estimatedTokens <= budget
}

// Aggregate digests runner results into the context later groups
// substitute from.
func Aggregate(results []Result) *Aggregated {
	agg := &Aggregated{Handoffs: map[string]*schema.Handoff{}}
	for _, r := range results {
		if r.Err != nil {
			agg.Errors = append(agg.Errors, fmt.Sprintf("%s: %v", r.TaskID, r.Err))
			continue
		}
		if r.Status == schema.ResultCompleted || r.Status == schema.ResultPartial {
			agg.CompletedTasks = append(agg.CompletedTasks, r.TaskID)
		}
		if r.Handoff != nil {
			agg.Handoffs[r.TaskID] = r.Handoff
		}
		agg.TotalTokensUsed += r.TokensUsed
	}
	return agg
}

var resultRefRe = regexp.MustCompile(`\{result:([^}]+)\}`)

// SubstituteResults replaces every {result:<taskId>} reference in a
// prompt. Unavailable dependencies leave an explicit placeholder rather
// than vanishing.
func SubstituteResults(prompt string, prior *Aggregated) string {
	return resultRefRe.ReplaceAllStringFunc(prompt, func(ref string) string {
		taskID := resultRefRe.FindStringSubmatch(ref)[1]
		if h, ok := prior.Handoffs[taskID]; ok {
			return renderResult(taskID, h)
		}
		if prior.Completed(taskID) {
			return fmt.Sprintf("[task %s completed, no handoff available]", taskID)
		}
		logging.DispatchWarn("prompt references %s which has not completed", taskID)
		return fmt.Sprintf("[WARNING: task %s has not completed; no result available]", taskID)
	})
}

// renderResult formats a dependency's handoff as a structured block the
// downstream agent can read verbatim.
func renderResult(taskID string, h *schema.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<result taskId=%q>\n", taskID)
	for _, r := range h.Results {
		fmt.Fprintf(&b, "Summary (%s): %s\n", r.TaskID, r.Summary)
		if r.Output != "" {
			fmt.Fprintf(&b, "Output:\n%s\n", r.Output)
		}
	}
	if len(h.State.CriticalContext) > 0 {
		b.WriteString("Critical context:\n")
		for k, v := range h.State.CriticalContext {
			fmt.Fprintf(&b, "  %s: %s\n", k, v)
		}
	}
	if h.State.ResumeInstructions != "" {
		fmt.Fprintf(&b, "Resume instructions: %s\n", h.State.ResumeInstructions)
	}
	if len(h.State.FilesModified) > 0 {
		fmt.Fprintf(&b, "Files modified: %s\n", strings.Join(h.State.FilesModified, ", "))
	}
	b.WriteString("</result>")
	return b.String()
}

// shellQuote single-quotes a string for sh, escaping embedded quotes.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`|&;<>(){}*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
