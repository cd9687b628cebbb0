package health

import (
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// Resolver selects the tolerance rules that apply to a resource.
//
// The policy is held behind an atomic pointer together with its memo of global
// resolutions, so SetPolicy replaces both at once and readers never observe a
// half-updated policy or a stale resolution.
type Resolver struct {
	snapshot atomic.Pointer[policySnapshot]
}

type policySnapshot struct {
	policy Policy
	memo   sync.Map // resourceKey -> []ToleranceRule
}

type resourceKey struct {
	namespace, kind, name string
}

// NewResolver returns a resolver serving the given policy.
func NewResolver(policy Policy) *Resolver {
	r := &Resolver{}
	r.SetPolicy(policy)
	return r
}

// SetPolicy swaps the policy in use and drops every memoized resolution.
func (r *Resolver) SetPolicy(policy Policy) {
	r.snapshot.Store(&policySnapshot{policy: policy})
}

// Policy returns the policy currently in use.
func (r *Resolver) Policy() Policy {
	return r.snapshot.Load().policy
}

// Resolve returns the tolerance rules for a resource. A valid rate annotation
// replaces the global policy entirely; otherwise the first policy entry matching
// namespace, name and kind is used, and the last entry when none does.
func (r *Resolver) Resolve(namespace, name, kind string, annotations map[string]string) []ToleranceRule {
	if raw := RateAnnotation(annotations); raw != "" {
		if rules, ok := ParseRateAnnotation(raw); ok {
			return rules
		}
	}
	return r.resolveGlobal(namespace, name, kind)
}

func (r *Resolver) resolveGlobal(namespace, name, kind string) []ToleranceRule {
	snapshot := r.snapshot.Load()
	key := resourceKey{namespace: namespace, kind: kind, name: name}
	if cached, ok := snapshot.memo.Load(key); ok {
		return cached.([]ToleranceRule)
	}
	rules := snapshot.policy.lookup(namespace, name, kind)
	snapshot.memo.Store(key, rules)
	return rules
}

func (p Policy) lookup(namespace, name, kind string) []ToleranceRule {
	if len(p) == 0 {
		return nil
	}
	for i, entry := range p {
		if entry.Applies(namespace, name, kind) {
			klog.V(5).Infof("rate health entry %d applies to %s %s/%s", i, kind, namespace, name)
			return entry.Tolerance
		}
	}
	return p[len(p)-1].Tolerance
}
