// Package evidence links handoff artifacts into per-task evidence
// chains so completed work stays traceable to its requirement.
package evidence

import (
	"github.com/mastergrief/convex-medical-starter-sub003/internal/artifact"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// stageForAgent maps the reporting agent type to the chain stage it
// populates. Orchestrator handoffs carry no evidence.
func stageForAgent(agentType schema.AgentType) string {
	switch agentType {
	case schema.AgentAnalyst:
		return "analysis"
	case schema.AgentDeveloper:
		return "implementation"
	case schema.AgentBrowser:
		return "validation"
	}
	return ""
}

// Linker auto-populates evidence chains. It runs as the handoff
// repository's post-write hook; every failure is logged and swallowed
// so evidence problems never mask a successful handoff write.
type Linker struct {
	evidence *artifact.EvidenceRepo
	store    *session.Store
}

// NewLinker returns a linker over the session's evidence repository.
func NewLinker(evidence *artifact.EvidenceRepo, store *session.Store) *Linker {
	return &Linker{evidence: evidence, store: store}
}

// LinkHandoff populates one chain stage per handoff result. Chain id
// equals task id; re-linking the same stage overwrites it.
func (l *Linker) LinkHandoff(h *schema.Handoff) {
	stage := stageForAgent(h.Metadata.FromAgent.Type)
	if stage == "" {
		logging.EvidenceDebug("handoff %s from %s carries no evidence stage", h.ID, h.Metadata.FromAgent.Type)
		return
	}
	for _, result := range h.Results {
		if result.TaskID == "" {
			continue
		}
		l.populate(result.TaskID, stage, &schema.EvidenceStage{
			Content:   stageContent(result),
			Source:    "handoff:" + h.ID,
			Timestamp: schema.Now(),
		})
	}
}

// SeedRequirement records the originating requirement for a task, used
// at dispatch preparation so chains trace back to intent. Existing
// requirement stages are left alone.
func (l *Linker) SeedRequirement(taskID, content, source string) {
	chain, isNew := l.open(taskID)
	if chain == nil {
		return
	}
	if chain.Stages.Requirement != nil {
		return
	}
	chain.Stages.Requirement = &schema.EvidenceStage{
		Content:   content,
		Source:    source,
		Timestamp: schema.Now(),
	}
	l.write(chain, isNew)
}

func (l *Linker) populate(taskID, stage string, entry *schema.EvidenceStage) {
	chain, isNew := l.open(taskID)
	if chain == nil {
		return
	}
	switch stage {
	case "analysis":
		chain.Stages.Analysis = entry
	case "implementation":
		chain.Stages.Implementation = entry
	case "validation":
		chain.Stages.Validation = entry
	}
	l.write(chain, isNew)
}

func (l *Linker) open(taskID string) (chain *schema.EvidenceChain, isNew bool) {
	chain, err := l.evidence.Read(taskID)
	if err == nil {
		return chain, false
	}
	if session.IsNotFound(err) {
		return schema.NewEvidenceChain(taskID, schema.Now()), true
	}
	logging.Evidence("cannot open evidence chain %s: %v", taskID, err)
	return nil, false
}

func (l *Linker) write(chain *schema.EvidenceChain, isNew bool) {
	chain.UpdatedAt = schema.Now()
	if err := l.evidence.Write(chain); err != nil {
		logging.Evidence("cannot write evidence chain %s: %v", chain.ChainID, err)
		return
	}
	entryType := "evidence_updated"
	if isNew {
		entryType = "evidence_created"
	}
	if err := l.store.AppendHistory(entryType, chain.ChainID); err != nil {
		logging.Evidence("cannot journal %s for chain %s: %v", entryType, chain.ChainID, err)
	}
	logging.Evidence("%s chain %s: coverage %.1f%%", entryType, chain.ChainID, chain.CoveragePercent)
}

func stageContent(result schema.HandoffResult) string {
	content := result.Summary
	if result.Output != "" {
		content += "\n" + result.Output
	}
	return content
}
