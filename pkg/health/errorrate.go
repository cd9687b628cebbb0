package health

import (
	"regexp"

	"k8s.io/klog/v2"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Codes counted by ErrorCodeRate, whatever the tolerance policy says.
var (
	httpErrorCodes = regexp.MustCompile(`^[4-5]\d\d$`)
	grpcErrorCodes = regexp.MustCompile(`^[1-9]$|^1[0-6]$`)
)

// Calculator evaluates the error rate health of mesh entities.
type Calculator struct {
	resolver *Resolver
}

// NewCalculator returns a calculator resolving tolerances with resolver.
func NewCalculator(resolver *Resolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Resolver returns the resolver backing the calculator.
func (c *Calculator) Resolver() *Resolver {
	return c.resolver
}

// CalculateErrorRate evaluates the inbound, outbound and global (inbound plus
// outbound) request health of a resource.
//
// When the global status is Healthy, the value of each Healthy direction is replaced
// with the plain percentage of HTTP 4xx/5xx and gRPC 1-16 responses, so that a
// healthy entity still shows the errors it does have.
func (c *Calculator) CalculateErrorRate(namespace, name, kind string, requests RequestHealth) ErrorRateResult {
	rules := c.resolver.Resolve(namespace, name, kind, requests.HealthAnnotations)
	inboundRules := FilterByDirection(rules, DirectionInbound)
	outboundRules := FilterByDirection(rules, DirectionOutbound)

	result := ErrorRateResult{
		ErrorRatio: ErrorRatio{
			Global:   CalculateStatus(Aggregate(SumRequests(requests.Inbound, requests.Outbound), rules)),
			Inbound:  CalculateStatus(Aggregate(requests.Inbound, inboundRules)),
			Outbound: CalculateStatus(Aggregate(requests.Outbound, outboundRules)),
		},
		Config: rules,
	}
	klog.V(5).Infof("error rate of %s %s/%s: global=%s inbound=%s outbound=%s", kind, namespace, name,
		result.ErrorRatio.Global.Status, result.ErrorRatio.Inbound.Status, result.ErrorRatio.Outbound.Status)

	if result.ErrorRatio.Global.Status != Healthy {
		return result
	}
	if result.ErrorRatio.Inbound.Status == Healthy {
		result.ErrorRatio.Inbound.Value = ErrorCodeRate(requests.Inbound)
	}
	if result.ErrorRatio.Outbound.Status == Healthy {
		result.ErrorRatio.Outbound.Value = ErrorCodeRate(requests.Outbound)
	}
	return result
}

// ErrorCodeRate returns the percentage of HTTP 4xx/5xx and gRPC 1-16 responses among
// all HTTP and gRPC requests, or RatioNA when there are none.
func ErrorCodeRate(requests RequestType) float64 {
	var total, errs float64
	for protocol, codes := range requests {
		var errorCodes *regexp.Regexp
		switch protocol {
		case "http":
			errorCodes = httpErrorCodes
		case "grpc":
			errorCodes = grpcErrorCodes
		default:
			continue
		}
		for code, count := range codes {
			total += count
			if errorCodes.MatchString(code) {
				errs += count
			}
		}
	}
	if total == 0 {
		return RatioNA
	}
	return errs / total * 100
}
