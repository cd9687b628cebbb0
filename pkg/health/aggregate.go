package health

// Aggregate computes, for every rule, the request rate, error rate and error ratio
// of each protocol the rule covers. A protocol without any code entry is left out
// of the rule's map rather than reported with zero values. requests is not modified.
func Aggregate(requests RequestType, rules []ToleranceRule) []RateTolerance {
	result := make([]RateTolerance, 0, len(rules))
	for _, rule := range rules {
		rt := RateTolerance{Rule: rule, Requests: map[string]*RateAccumulator{}}
		for protocol, codes := range requests {
			if len(codes) == 0 || !Matches(rule.Protocol, protocol) {
				continue
			}
			acc := &RateAccumulator{}
			for code, count := range codes {
				acc.RequestRate += count
				if Matches(rule.Code, code) {
					acc.ErrorRate += count
				}
			}
			if acc.RequestRate == 0 {
				acc.ErrorRatio = RatioNA
			} else {
				acc.ErrorRatio = acc.ErrorRate / acc.RequestRate
			}
			rt.Requests[protocol] = acc
		}
		result = append(result, rt)
	}
	return result
}

// SumRequests returns the element-wise sum of a and b per protocol and code.
func SumRequests(a, b RequestType) RequestType {
	sum := make(RequestType, len(a)+len(b))
	for _, requests := range []RequestType{a, b} {
		for protocol, codes := range requests {
			dst, ok := sum[protocol]
			if !ok {
				dst = make(map[string]float64, len(codes))
				sum[protocol] = dst
			}
			for code, count := range codes {
				dst[code] += count
			}
		}
	}
	return sum
}

// FilterByDirection keeps the rules whose direction pattern matches direction.
func FilterByDirection(rules []ToleranceRule, direction string) []ToleranceRule {
	filtered := make([]ToleranceRule, 0, len(rules))
	for _, rule := range rules {
		if Matches(rule.Direction, direction) {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}
