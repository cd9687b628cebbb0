package health

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// RateAnnotationKey is the annotation overriding the rate tolerances of a single resource.
//
// Its value is a list of clauses separated by ';', each one made of five comma separated
// fields: CODE,DEGRADED,FAILURE,PROTOCOL,DIRECTION. For example:
//
//	health.kiali.io/rate: "4XX,10,20,http,inbound;5XX,0,5,http,.*"
const RateAnnotationKey = "health.kiali.io/rate"

// AnnotationPrefix is shared by every health annotation.
const AnnotationPrefix = "health.kiali.io/"

const rateAnnotationFields = 5

var codeWildcard = regexp.MustCompile(`[xX]`)

// RateAnnotation returns the rate annotation value, or "" when absent.
func RateAnnotation(annotations map[string]string) string {
	if annotations == nil {
		return ""
	}
	return strings.TrimSpace(annotations[RateAnnotationKey])
}

// ParseRateAnnotation parses a rate annotation into tolerance rules, in clause order.
// The boolean is false when the annotation is empty or any clause is invalid; a
// partially valid annotation is rejected as a whole.
func ParseRateAnnotation(raw string) ([]ToleranceRule, bool) {
	rules, err := parseRateAnnotation(raw)
	if err != nil {
		klog.V(4).Infof("ignoring %s annotation %q: %v", RateAnnotationKey, raw, err)
		return nil, false
	}
	return rules, true
}

// ValidateRateAnnotation returns why raw is rejected, or nil when it is valid.
func ValidateRateAnnotation(raw string) error {
	_, err := parseRateAnnotation(raw)
	return err
}

func parseRateAnnotation(raw string) ([]ToleranceRule, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &AnnotationError{Clause: -1, Reason: "empty annotation"}
	}
	clauses := strings.Split(raw, ";")
	rules := make([]ToleranceRule, 0, len(clauses))
	for i, clause := range clauses {
		rule, reason := parseRateClause(clause)
		if reason != "" {
			return nil, &AnnotationError{Clause: i, Value: clause, Reason: reason}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRateClause(clause string) (ToleranceRule, string) {
	fields := strings.Split(clause, ",")
	if len(fields) != rateAnnotationFields {
		return ToleranceRule{}, "expected 5 fields: code,degraded,failure,protocol,direction"
	}
	degraded, ok := parseThreshold(fields[1])
	if !ok {
		return ToleranceRule{}, "degraded threshold is not a number"
	}
	failure, ok := parseThreshold(fields[2])
	if !ok {
		return ToleranceRule{}, "failure threshold is not a number"
	}
	if degraded > failure {
		return ToleranceRule{}, "degraded threshold is greater than failure threshold"
	}
	code, err := regexp.Compile(codeWildcard.ReplaceAllString(fields[0], `\d`))
	if err != nil {
		return ToleranceRule{}, "invalid code expression"
	}
	protocol, err := regexp.Compile(fields[3])
	if err != nil {
		return ToleranceRule{}, "invalid protocol expression"
	}
	direction, err := regexp.Compile(fields[4])
	if err != nil {
		return ToleranceRule{}, "invalid direction expression"
	}
	return ToleranceRule{
		Code:      code,
		Protocol:  protocol,
		Direction: direction,
		Degraded:  degraded,
		Failure:   failure,
	}, ""
}

// parseThreshold accepts finite numbers only, ParseFloat also reads NaN and Inf.
func parseThreshold(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AnnotationError describes the clause that invalidated a rate annotation.
// Clause is -1 when the annotation as a whole is unusable.
type AnnotationError struct {
	Clause int
	Value  string
	Reason string
}

func (e *AnnotationError) Error() string {
	if e.Clause < 0 {
		return e.Reason
	}
	return "clause " + strconv.Itoa(e.Clause+1) + " (" + strconv.Quote(e.Value) + "): " + e.Reason
}
