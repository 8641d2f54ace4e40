package artifact

import (
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

const statePath = "state/orchestrator.json"

// StateRepo persists the single orchestrator state document. Every
// successful write archives the prior value first.
type StateRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// Write validates the state, archives the previous document, overwrites
// state/orchestrator.json and journals the write.
func (r *StateRepo) Write(st *schema.OrchestratorState) error {
	if st.UpdatedAt == "" {
		st.UpdatedAt = schema.Now()
	}
	if st.Agents == nil {
		st.Agents = []schema.AgentEntry{}
	}
	if err := r.registry.Validate(schema.KindState, st); err != nil {
		return err
	}

	archived, err := r.store.Archive(statePath)
	if err != nil {
		return err
	}
	if err := r.store.WriteJSON(statePath, st); err != nil {
		return err
	}
	if err := r.store.AppendHistory("state", string(st.Status)); err != nil {
		return err
	}
	if archived != "" {
		logging.SessionDebug("archived prior orchestrator state to %s", archived)
	}
	logging.Session("wrote orchestrator state: status=%s phase=%s", st.Status, st.CurrentPhase.ID)
	return nil
}

// Read returns the current orchestrator state.
func (r *StateRepo) Read() (*schema.OrchestratorState, error) {
	var st schema.OrchestratorState
	if err := r.store.ReadJSON(statePath, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReadOrInit returns the current state, or a fresh idle one when none
// has been written yet.
func (r *StateRepo) ReadOrInit() (*schema.OrchestratorState, error) {
	st, err := r.Read()
	if err == nil {
		return st, nil
	}
	if !session.IsNotFound(err) {
		return nil, err
	}
	return &schema.OrchestratorState{
		Status:    schema.StatusIdle,
		Agents:    []schema.AgentEntry{},
		UpdatedAt: schema.Now(),
	}, nil
}
