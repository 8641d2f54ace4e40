package artifact

import (
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// EvidenceRepo persists evidence chains. History journaling for chains
// is the evidence linker's concern, which knows whether a write created
// or updated a chain.
type EvidenceRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// Write validates and persists a chain under evidence/<chainId>.json.
// Derived fields are recomputed before validation so a stored chain is
// always internally consistent.
func (r *EvidenceRepo) Write(chain *schema.EvidenceChain) error {
	chain.Recompute()
	if chain.UpdatedAt == "" {
		chain.UpdatedAt = schema.Now()
	}
	if err := r.registry.Validate(schema.KindEvidence, chain); err != nil {
		return err
	}
	return r.store.WriteJSON("evidence/"+chain.ChainID+".json", chain)
}

// Read returns the chain with the given id.
func (r *EvidenceRepo) Read(chainID string) (*schema.EvidenceChain, error) {
	var chain schema.EvidenceChain
	if err := r.store.ReadJSON("evidence/"+chainID+".json", &chain); err != nil {
		return nil, err
	}
	return &chain, nil
}

// Exists reports whether a chain file is present.
func (r *EvidenceRepo) Exists(chainID string) bool {
	return r.store.Exists("evidence/" + chainID + ".json")
}

// List returns the chain ids in directory order.
func (r *EvidenceRepo) List() ([]string, error) {
	names, err := r.store.ListDir("evidence", func(name string) bool {
		return strings.HasSuffix(name, ".json")
	})
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = strings.TrimSuffix(name, ".json")
	}
	return names, nil
}
