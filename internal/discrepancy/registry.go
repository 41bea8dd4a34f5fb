package discrepancy

import (
	"sync"

	"sql-agent-workers/internal/models"
)

// Registry holds business rules in registration order. Registering a name
// again replaces the rule but keeps its original position.
type Registry struct {
	mu      sync.RWMutex
	natives map[string]NativeCheck
	order   []string
	rules   map[string]boundRule
}

// NewRegistry returns an empty registry that knows the built-in native
// checks.
func NewRegistry() *Registry {
	return &Registry{
		natives: map[string]NativeCheck{
			"price_consistency": checkPriceConsistency,
			"inventory_balance": checkInventoryBalance,
		},
		rules: make(map[string]boundRule),
	}
}

// RegisterNative adds or replaces a native check. Rules registered earlier
// keep the kind they were bound with.
func (r *Registry) RegisterNative(name string, check NativeCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.natives[name] = check
}

func (r *Registry) Register(rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound, err := bind(rule, r.natives)
	if err != nil {
		return err
	}
	r.put(bound)
	return nil
}

// SetBusinessRules replaces every registered rule. Nothing changes if any
// rule is invalid.
func (r *Registry) SetBusinessRules(rules []Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound := make([]boundRule, 0, len(rules))
	for _, rule := range rules {
		b, err := bind(rule, r.natives)
		if err != nil {
			return err
		}
		bound = append(bound, b)
	}

	r.order = nil
	r.rules = make(map[string]boundRule, len(bound))
	for _, b := range bound {
		r.put(b)
	}
	return nil
}

func (r *Registry) put(b boundRule) {
	name := b.Definition.Name
	if _, exists := r.rules[name]; !exists {
		r.order = append(r.order, name)
	}
	r.rules[name] = b
}

func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[name]; !ok {
		return false
	}
	delete(r.rules, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Kind reports how the named rule will be evaluated.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.rules[name]
	return b.kind, ok
}

// Definitions returns the rule definitions in registration order.
func (r *Registry) Definitions() []models.RuleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RuleDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.rules[name].Definition)
	}
	return out
}

func (r *Registry) snapshot() []boundRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]boundRule, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.rules[name])
	}
	return out
}
