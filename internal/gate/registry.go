package gate

import "context"

// CheckResult is what one provider reports for one evaluated atom.
// Counters carries structured numbers for threshold comparisons, e.g.
// the tests provider reports passed/failed counts and evidence_coverage
// reports the mean coverage.
type CheckResult struct {
	Check    string
	Passed   bool
	Message  string
	Counters map[string]float64
}

// Observer receives human-readable progress strings during evaluation.
// It is optional and has no effect on semantics.
type Observer func(msg string)

// Provider executes one kind of check. The context carries the remaining
// share of the gate's total deadline; providers must stop when it
// expires.
type Provider interface {
	Run(ctx context.Context, args []string, progress Observer) CheckResult
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, args []string, progress Observer) CheckResult

func (f ProviderFunc) Run(ctx context.Context, args []string, progress Observer) CheckResult {
	return f(ctx, args, progress)
}

// Registry maps check names to providers. The facade registers the
// concrete providers once; the evaluator only reads.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a check name. Later registrations win,
// which lets tests swap in counting providers.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Lookup returns the provider for a check name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
