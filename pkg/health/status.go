package health

import (
	"fmt"
	"sort"
)

// ThresholdCheck classifies value, an error percentage, against ascending degraded
// and failure thresholds. Thresholds are inclusive: value == failure is a Failure.
// Only positive values are checked, so a 0% error rate is Healthy even when the
// degraded threshold is 0.
func ThresholdCheck(value, degraded, failure float64) ThresholdStatus {
	if value > 0 {
		if value >= failure {
			return ThresholdStatus{Value: value, Status: Failure, Violation: violation(value, failure)}
		}
		if value >= degraded {
			return ThresholdStatus{Value: value, Status: Degraded, Violation: violation(value, degraded)}
		}
	}
	return ThresholdStatus{Value: value, Status: Healthy}
}

func violation(value, threshold float64) string {
	return fmt.Sprintf("%.2f%%>=%g%%", value, threshold)
}

// CalculateStatus evaluates every rule/protocol pair and keeps the one with the
// highest status priority. On equal priority the first pair seen is kept. Rules are
// visited in the given order and protocols in lexical order.
func CalculateStatus(rateTolerances []RateTolerance) ThresholdStatus {
	result := ThresholdStatus{Value: RatioNA, Status: NotApplicable}
	for i := range rateTolerances {
		rt := &rateTolerances[i]
		for _, protocol := range sortedProtocols(rt.Requests) {
			current := evaluate(rt.Requests[protocol], rt.Rule)
			if current.Status.Priority() > result.Status.Priority() {
				current.Protocol = protocol
				current.Rule = &rt.Rule
				result = current
			}
		}
	}
	return result
}

func evaluate(acc *RateAccumulator, rule ToleranceRule) ThresholdStatus {
	if acc.ErrorRatio == RatioNA {
		return ThresholdStatus{Value: RatioNA, Status: NotApplicable}
	}
	return ThresholdCheck(acc.ErrorRatio*100, rule.Degraded, rule.Failure)
}

func sortedProtocols(requests map[string]*RateAccumulator) []string {
	protocols := make([]string, 0, len(requests))
	for p := range requests {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	return protocols
}
