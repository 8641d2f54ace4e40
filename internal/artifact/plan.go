package artifact

import (
	"errors"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

const (
	planPrefix  = "plan-"
	currentPlan = "plans/current-plan.json"
)

// PlanRepo persists execution plans.
type PlanRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// Write validates and persists a plan, updates the current-plan mirror
// and journals the write. Validation includes the cross-field dependency
// rules, so a stored plan never contains forward or dangling references.
func (r *PlanRepo) Write(p *schema.Plan) error {
	if p.ID == "" {
		p.ID = schema.NewUUID()
	}
	if p.SessionID == "" {
		p.SessionID = r.store.ID()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = schema.Now()
	}
	if err := r.registry.Validate(schema.KindPlan, p); err != nil {
		return err
	}

	rel := "plans/" + planPrefix + p.ID + ".json"
	if err := r.store.WriteJSON(rel, p); err != nil {
		return err
	}
	if err := r.store.WriteJSON(currentPlan, p); err != nil {
		return err
	}
	if err := r.store.AppendHistory("plan", p.ID); err != nil {
		return err
	}
	logging.Session("wrote plan %s (%d phases)", p.ID, len(p.Phases))
	return nil
}

// Read returns the plan with the given id, or the current one when id is
// empty.
func (r *PlanRepo) Read(id string) (*schema.Plan, error) {
	rel := currentPlan
	if id != "" {
		rel = "plans/" + planPrefix + id + ".json"
	}
	var p schema.Plan
	if err := r.store.ReadJSON(rel, &p); err != nil {
		if id == "" && errors.Is(err, session.ErrNotFound) {
			available, _ := r.List()
			return nil, noCurrentError("plan", available)
		}
		return nil, err
	}
	return &p, nil
}

// List returns the canonical plan ids in directory order.
func (r *PlanRepo) List() ([]string, error) {
	names, err := r.store.ListDir("plans", hasPrefixJSON(planPrefix))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = idFromFilename(name, planPrefix)
	}
	return ids, nil
}
