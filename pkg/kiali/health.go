package kiali

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiali/kiali-health/pkg/health"
)

// Health returns health status for apps, workloads, and services across namespaces.
// Parameters:
//   - namespaces: comma-separated list of namespaces (optional, if empty returns health for all accessible namespaces)
//   - queryParams: optional query parameters map for filtering health data (e.g., "type", "rateInterval", "queryTime")
//   - type: health type - "app", "service", or "workload" (default: "app")
//   - rateInterval: rate interval for fetching error rate (default: "10m")
//   - queryTime: Unix timestamp for the prometheus query (optional)
func (k *Kiali) Health(ctx context.Context, namespaces string, queryParams map[string]string) (string, error) {
	baseURL, err := k.validateAndGetBaseURL()
	if err != nil {
		return "", err
	}

	u, err := url.Parse(baseURL + "/api/clusters/health")
	if err != nil {
		return "", err
	}
	q := u.Query()
	if namespaces != "" {
		q.Set("namespaces", namespaces)
	}
	for key, value := range queryParams {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()

	return k.executeRequest(ctx, u.String())
}

// ClustersNamespaceHealth matches Kiali's response structure
type ClustersNamespaceHealth struct {
	AppHealth      map[string]NamespaceAppHealth      `json:"namespaceAppHealth"`
	ServiceHealth  map[string]NamespaceServiceHealth  `json:"namespaceServiceHealth"`
	WorkloadHealth map[string]NamespaceWorkloadHealth `json:"namespaceWorkloadHealth"`
}

// NamespaceAppHealth is a map of app name to health
type NamespaceAppHealth map[string]health.AppHealth

// NamespaceServiceHealth is a map of service name to health
type NamespaceServiceHealth map[string]health.ServiceHealth

// NamespaceWorkloadHealth is a map of workload name to health
type NamespaceWorkloadHealth map[string]health.WorkloadHealth

// NamespacesHealth fetches and decodes the health of one entity kind.
func (k *Kiali) NamespacesHealth(ctx context.Context, kind, namespaces string, queryParams map[string]string) (ClustersNamespaceHealth, error) {
	params := map[string]string{"type": kind}
	for key, value := range queryParams {
		params[key] = value
	}
	var result ClustersNamespaceHealth
	content, err := k.Health(ctx, namespaces, params)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return result, fmt.Errorf("failed to parse %s health: %v", kind, err)
	}
	return result, nil
}

// MeshHealthSummary represents aggregated health across the mesh
type MeshHealthSummary struct {
	OverallStatus    health.Status               `json:"overallStatus"`
	Availability     float64                     `json:"availability"` // Percentage 0-100
	TotalErrorRate   float64                     `json:"totalErrorRate"`
	NamespaceCount   int                         `json:"namespaceCount"`
	EntityCounts     EntityHealthCounts          `json:"entityCounts"`
	NamespaceSummary map[string]NamespaceSummary `json:"namespaceSummary"`
	TopUnhealthy     []UnhealthyEntity           `json:"topUnhealthy,omitempty"`
	Timestamp        string                      `json:"timestamp"`
	RateInterval     string                      `json:"rateInterval"`
}

// EntityHealthCounts contains health counts for all entity types
type EntityHealthCounts struct {
	Apps      HealthCounts `json:"apps"`
	Services  HealthCounts `json:"services"`
	Workloads HealthCounts `json:"workloads"`
}

func (c EntityHealthCounts) total() HealthCounts {
	return HealthCounts{
		Total:         c.Apps.Total + c.Services.Total + c.Workloads.Total,
		Healthy:       c.Apps.Healthy + c.Services.Healthy + c.Workloads.Healthy,
		Degraded:      c.Apps.Degraded + c.Services.Degraded + c.Workloads.Degraded,
		Failure:       c.Apps.Failure + c.Services.Failure + c.Workloads.Failure,
		NotReady:      c.Apps.NotReady + c.Services.NotReady + c.Workloads.NotReady,
		NotApplicable: c.Apps.NotApplicable + c.Services.NotApplicable + c.Workloads.NotApplicable,
	}
}

// HealthCounts represents health status counts
type HealthCounts struct {
	Total         int `json:"total"`
	Healthy       int `json:"healthy"`
	Degraded      int `json:"degraded"`
	Failure       int `json:"failure"`
	NotReady      int `json:"notReady"`
	NotApplicable int `json:"notApplicable"`
}

func (c *HealthCounts) add(status health.Status) {
	c.Total++
	switch status {
	case health.Healthy:
		c.Healthy++
	case health.Degraded:
		c.Degraded++
	case health.Failure:
		c.Failure++
	case health.NotReady:
		c.NotReady++
	default:
		c.NotApplicable++
	}
}

// status is Failure when more than half of the entities fail, Degraded when any
// entity fails or degrades, Healthy otherwise.
func (c HealthCounts) status() health.Status {
	switch {
	case c.Total == 0:
		return health.NotApplicable
	case c.Failure > c.Total/2:
		return health.Failure
	case c.Failure > 0 || c.Degraded > 0:
		return health.Degraded
	default:
		return health.Healthy
	}
}

// availability counts healthy entities fully and degraded ones by half.
func (c HealthCounts) availability() float64 {
	if c.Total == 0 {
		return 100.0
	}
	return (float64(c.Healthy) + float64(c.Degraded)*0.5) / float64(c.Total) * 100.0
}

// NamespaceSummary contains health summary for a namespace
type NamespaceSummary struct {
	Status       health.Status `json:"status"`
	Availability float64       `json:"availability"`
	// ErrorRate is the mean error percentage of the entities with traffic.
	ErrorRate float64      `json:"errorRate"`
	Apps      HealthCounts `json:"apps"`
	Services  HealthCounts `json:"services"`
	Workloads HealthCounts `json:"workloads"`

	errorRateSum  float64
	entitiesRated int
}

func (ns *NamespaceSummary) counts() EntityHealthCounts {
	return EntityHealthCounts{Apps: ns.Apps, Services: ns.Services, Workloads: ns.Workloads}
}

// UnhealthyEntity represents an unhealthy entity
type UnhealthyEntity struct {
	Type      string        `json:"type"` // app, service, workload
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Status    health.Status `json:"status"`
	Issue     string        `json:"issue"`
	ErrorRate float64       `json:"errorRate,omitempty"`
}

const topUnhealthyLimit = 10

// MeshHealthSummary fetches app, service and workload health in parallel, evaluates
// every entity with calc and returns the aggregated summary as JSON.
func (k *Kiali) MeshHealthSummary(ctx context.Context, calc *health.Calculator, namespaces string, queryParams map[string]string) (string, error) {
	rateInterval := queryParams["rateInterval"]
	if rateInterval == "" {
		rateInterval = "10m"
	}

	var appHealth, svcHealth, wlHealth ClustersNamespaceHealth
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		appHealth, err = k.NamespacesHealth(gctx, health.KindApp, namespaces, queryParams)
		if err != nil {
			return fmt.Errorf("failed to fetch app health: %v", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		svcHealth, err = k.NamespacesHealth(gctx, health.KindService, namespaces, queryParams)
		if err != nil {
			return fmt.Errorf("failed to fetch service health: %v", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		wlHealth, err = k.NamespacesHealth(gctx, health.KindWorkload, namespaces, queryParams)
		if err != nil {
			return fmt.Errorf("failed to fetch workload health: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	summary := ComputeHealthSummary(calc, appHealth, svcHealth, wlHealth, rateInterval)

	result, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %v", err)
	}
	return string(result), nil
}

// ComputeHealthSummary evaluates every entity and aggregates the results per
// namespace and for the whole mesh.
func ComputeHealthSummary(
	calc *health.Calculator,
	appHealth ClustersNamespaceHealth,
	svcHealth ClustersNamespaceHealth,
	wlHealth ClustersNamespaceHealth,
	rateInterval string,
) MeshHealthSummary {
	summary := MeshHealthSummary{
		NamespaceSummary: make(map[string]NamespaceSummary),
		TopUnhealthy:     []UnhealthyEntity{},
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		RateInterval:     rateInterval,
	}

	nsSet := make(map[string]bool)
	for ns := range appHealth.AppHealth {
		nsSet[ns] = true
	}
	for ns := range svcHealth.ServiceHealth {
		nsSet[ns] = true
	}
	for ns := range wlHealth.WorkloadHealth {
		nsSet[ns] = true
	}
	summary.NamespaceCount = len(nsSet)

	record := func(ns *NamespaceSummary, counts *HealthCounts, kind, namespace, name string, status health.EntityStatus) {
		counts.add(status.Status)
		if status.ErrorRatio.Global.Status != health.NotApplicable {
			ns.errorRateSum += status.ErrorRate()
			ns.entitiesRated++
		}
		if status.Status == health.Failure || status.Status == health.Degraded {
			summary.TopUnhealthy = append(summary.TopUnhealthy, UnhealthyEntity{
				Type:      kind,
				Namespace: namespace,
				Name:      name,
				Status:    status.Status,
				Issue:     status.Issue,
				ErrorRate: status.ErrorRate(),
			})
		}
	}

	var errorRateSum float64
	var entitiesRated int
	for ns := range nsSet {
		nsSummary := NamespaceSummary{}
		for name, app := range appHealth.AppHealth[ns] {
			record(&nsSummary, &nsSummary.Apps, health.KindApp, ns, name, calc.AppStatus(ns, name, app))
		}
		for name, svc := range svcHealth.ServiceHealth[ns] {
			record(&nsSummary, &nsSummary.Services, health.KindService, ns, name, calc.ServiceStatus(ns, name, svc))
		}
		for name, wl := range wlHealth.WorkloadHealth[ns] {
			record(&nsSummary, &nsSummary.Workloads, health.KindWorkload, ns, name, calc.WorkloadStatus(ns, name, wl))
		}

		counts := nsSummary.counts()
		summary.EntityCounts.Apps = addCounts(summary.EntityCounts.Apps, counts.Apps)
		summary.EntityCounts.Services = addCounts(summary.EntityCounts.Services, counts.Services)
		summary.EntityCounts.Workloads = addCounts(summary.EntityCounts.Workloads, counts.Workloads)

		total := counts.total()
		nsSummary.Status = total.status()
		nsSummary.Availability = total.availability()
		if nsSummary.entitiesRated > 0 {
			nsSummary.ErrorRate = nsSummary.errorRateSum / float64(nsSummary.entitiesRated)
		}
		errorRateSum += nsSummary.errorRateSum
		entitiesRated += nsSummary.entitiesRated
		summary.NamespaceSummary[ns] = nsSummary
	}

	total := summary.EntityCounts.total()
	summary.OverallStatus = total.status()
	summary.Availability = total.availability()
	if entitiesRated > 0 {
		summary.TotalErrorRate = errorRateSum / float64(entitiesRated)
	}

	sortUnhealthyByImpact(summary.TopUnhealthy)
	if len(summary.TopUnhealthy) > topUnhealthyLimit {
		summary.TopUnhealthy = summary.TopUnhealthy[:topUnhealthyLimit]
	}

	return summary
}

func addCounts(a, b HealthCounts) HealthCounts {
	return HealthCounts{
		Total:         a.Total + b.Total,
		Healthy:       a.Healthy + b.Healthy,
		Degraded:      a.Degraded + b.Degraded,
		Failure:       a.Failure + b.Failure,
		NotReady:      a.NotReady + b.NotReady,
		NotApplicable: a.NotApplicable + b.NotApplicable,
	}
}

// sortUnhealthyByImpact orders failures before degradations, then by error rate
// descending, then by namespace, type and name so the order is stable.
func sortUnhealthyByImpact(unhealthy []UnhealthyEntity) {
	sort.SliceStable(unhealthy, func(i, j int) bool {
		a, b := unhealthy[i], unhealthy[j]
		if a.Status != b.Status {
			return a.Status > b.Status
		}
		if a.ErrorRate != b.ErrorRate {
			return a.ErrorRate > b.ErrorRate
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})
}
