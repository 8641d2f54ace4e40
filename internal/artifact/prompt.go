package artifact

import (
	"errors"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

const (
	promptPrefix  = "prompt-"
	currentPrompt = "prompts/current-prompt.json"
)

// PromptRepo persists the originating user intents of a session.
type PromptRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// Write validates and persists a prompt, updates the current-prompt
// mirror and journals the write. Missing id, sessionId and createdAt are
// filled in.
func (r *PromptRepo) Write(p *schema.Prompt) error {
	if p.ID == "" {
		p.ID = schema.NewUUID()
	}
	if p.SessionID == "" {
		p.SessionID = r.store.ID()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = schema.Now()
	}
	if err := r.registry.Validate(schema.KindPrompt, p); err != nil {
		return err
	}

	rel := "prompts/" + promptPrefix + p.ID + ".json"
	if err := r.store.WriteJSON(rel, p); err != nil {
		return err
	}
	if err := r.store.WriteJSON(currentPrompt, p); err != nil {
		return err
	}
	if err := r.store.AppendHistory("prompt", p.ID); err != nil {
		return err
	}
	logging.Session("wrote prompt %s", p.ID)
	return nil
}

// Read returns the prompt with the given id, or the current one when id
// is empty.
func (r *PromptRepo) Read(id string) (*schema.Prompt, error) {
	rel := currentPrompt
	if id != "" {
		rel = "prompts/" + promptPrefix + id + ".json"
	}
	var p schema.Prompt
	if err := r.store.ReadJSON(rel, &p); err != nil {
		if id == "" && errors.Is(err, session.ErrNotFound) {
			available, _ := r.List()
			return nil, noCurrentError("prompt", available)
		}
		return nil, err
	}
	return &p, nil
}

// List returns the canonical prompt ids in directory order.
func (r *PromptRepo) List() ([]string, error) {
	names, err := r.store.ListDir("prompts", hasPrefixJSON(promptPrefix))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = idFromFilename(name, promptPrefix)
	}
	return ids, nil
}
