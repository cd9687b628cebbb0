package health

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/kiali/kiali-health/pkg/config"
)

// RateHealth scopes an ordered list of tolerance rules to the resources whose
// namespace, name and kind match. A nil pattern matches everything.
type RateHealth struct {
	Namespace *regexp.Regexp
	Name      *regexp.Regexp
	Kind      *regexp.Regexp
	Tolerance []ToleranceRule
}

// Applies reports whether the entry covers the given resource.
func (r RateHealth) Applies(namespace, name, kind string) bool {
	return Matches(r.Namespace, namespace) && Matches(r.Name, name) && Matches(r.Kind, kind)
}

// Policy is the ordered list of rate health entries. Order is significant: the first
// applicable entry wins and the last entry is the fallback for everything else.
type Policy []RateHealth

// NewPolicy compiles the configured rate health entries.
func NewPolicy(rates []config.Rate) (Policy, error) {
	policy := make(Policy, 0, len(rates))
	for i, rate := range rates {
		entry, err := compileRate(rate)
		if err != nil {
			return nil, errors.Wrapf(err, "health rate entry %d", i)
		}
		policy = append(policy, entry)
	}
	return policy, nil
}

// DefaultPolicy compiles config.DefaultHealthConfig.
func DefaultPolicy() Policy {
	policy, err := NewPolicy(config.DefaultHealthConfig().Rate)
	if err != nil {
		panic(err)
	}
	return policy
}

func compileRate(rate config.Rate) (RateHealth, error) {
	var (
		entry RateHealth
		err   error
	)
	if entry.Namespace, err = compileOptional(rate.Namespace); err != nil {
		return entry, errors.Wrap(err, "namespace")
	}
	if entry.Name, err = compileOptional(rate.Name); err != nil {
		return entry, errors.Wrap(err, "name")
	}
	if entry.Kind, err = compileOptional(rate.Kind); err != nil {
		return entry, errors.Wrap(err, "kind")
	}
	entry.Tolerance = make([]ToleranceRule, 0, len(rate.Tolerance))
	for i, t := range rate.Tolerance {
		rule, err := compileTolerance(t)
		if err != nil {
			return entry, errors.Wrapf(err, "tolerance %d", i)
		}
		entry.Tolerance = append(entry.Tolerance, rule)
	}
	return entry, nil
}

func compileTolerance(t config.Tolerance) (ToleranceRule, error) {
	if !finite(t.Degraded) || !finite(t.Failure) {
		return ToleranceRule{}, errors.Errorf("thresholds must be finite numbers, got degraded %g and failure %g", t.Degraded, t.Failure)
	}
	if t.Degraded > t.Failure {
		return ToleranceRule{}, errors.Errorf("degraded threshold %g is greater than failure threshold %g", t.Degraded, t.Failure)
	}
	var (
		rule = ToleranceRule{Degraded: t.Degraded, Failure: t.Failure}
		err  error
	)
	if rule.Code, err = compileOptional(t.Code); err != nil {
		return rule, errors.Wrap(err, "code")
	}
	if rule.Protocol, err = compileOptional(t.Protocol); err != nil {
		return rule, errors.Wrap(err, "protocol")
	}
	if rule.Direction, err = compileOptional(t.Direction); err != nil {
		return rule, errors.Wrap(err, "direction")
	}
	return rule, nil
}

func compileOptional(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}
