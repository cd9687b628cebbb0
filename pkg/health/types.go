package health

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// RatioNA marks an error ratio computed over zero requests. It is distinct from 0,
// which means real traffic with no errors.
const RatioNA = -1.0

// Status is the health classification of a direction, an entity or a workload.
// Values are ordered by priority: a higher value dominates when merging.
type Status int

const (
	NotApplicable Status = iota
	Healthy
	NotReady
	Degraded
	Failure
)

var statusNames = map[Status]string{
	NotApplicable: "NA",
	Healthy:       "Healthy",
	NotReady:      "Not Ready",
	Degraded:      "Degraded",
	Failure:       "Failure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Priority returns the merge priority of the status.
func (s Status) Priority() int {
	return int(s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", name)
}

// Worst returns the status with the highest priority.
func Worst(statuses ...Status) Status {
	worst := NotApplicable
	for _, s := range statuses {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// ToleranceRule is one tolerance entry: which codes count as errors for which
// protocols and directions, and the percentages at which the error ratio turns
// Degraded or Failure. A nil pattern matches everything.
type ToleranceRule struct {
	Code      *regexp.Regexp
	Protocol  *regexp.Regexp
	Direction *regexp.Regexp
	Degraded  float64
	Failure   float64
}

func (t ToleranceRule) String() string {
	return fmt.Sprintf("code=%s protocol=%s direction=%s degraded=%g%% failure=%g%%",
		patternString(t.Code), patternString(t.Protocol), patternString(t.Direction), t.Degraded, t.Failure)
}

func (t ToleranceRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code      string  `json:"code"`
		Protocol  string  `json:"protocol"`
		Direction string  `json:"direction"`
		Degraded  float64 `json:"degraded"`
		Failure   float64 `json:"failure"`
	}{
		Code:      patternString(t.Code),
		Protocol:  patternString(t.Protocol),
		Direction: patternString(t.Direction),
		Degraded:  t.Degraded,
		Failure:   t.Failure,
	})
}

func patternString(re *regexp.Regexp) string {
	if re == nil {
		return ".*"
	}
	return re.String()
}

// RequestType maps protocol -> response code -> request count (or rate).
type RequestType map[string]map[string]float64

// RequestHealth holds request counts of an entity, as reported by the Kiali backend.
type RequestHealth struct {
	Inbound           RequestType       `json:"inbound"`
	Outbound          RequestType       `json:"outbound"`
	HealthAnnotations map[string]string `json:"healthAnnotations,omitempty"`
}

// RateAccumulator aggregates one protocol under one rule.
type RateAccumulator struct {
	RequestRate float64 `json:"requestRate"`
	ErrorRate   float64 `json:"errorRate"`
	ErrorRatio  float64 `json:"errorRatio"`
}

// RateTolerance pairs a rule with the per-protocol aggregation it produced.
type RateTolerance struct {
	Rule     ToleranceRule
	Requests map[string]*RateAccumulator
}

// ThresholdStatus is the evaluated status of one direction, with the protocol and
// rule that decided it.
type ThresholdStatus struct {
	Value     float64        `json:"value"`
	Status    Status         `json:"status"`
	Violation string         `json:"violation,omitempty"`
	Protocol  string         `json:"protocol,omitempty"`
	Rule      *ToleranceRule `json:"rule,omitempty"`
}

// ErrorRatio holds the evaluated status per direction.
type ErrorRatio struct {
	Global   ThresholdStatus `json:"global"`
	Inbound  ThresholdStatus `json:"inbound"`
	Outbound ThresholdStatus `json:"outbound"`
}

// ErrorRateResult is returned by Calculator.CalculateErrorRate.
type ErrorRateResult struct {
	ErrorRatio ErrorRatio      `json:"errorRatio"`
	Config     []ToleranceRule `json:"config"`
}
