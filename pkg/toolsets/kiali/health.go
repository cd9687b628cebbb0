package kiali

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"k8s.io/utils/ptr"

	"github.com/kiali/kiali-health/pkg/api"
	"github.com/kiali/kiali-health/pkg/health"
)

func initHealth() []api.ServerTool {
	ret := make([]api.ServerTool, 0)

	// Cluster health tool
	ret = append(ret, api.ServerTool{
		Tool: api.Tool{
			Name:        "health",
			Description: "Get health status for apps, workloads, and services across specified namespaces in the mesh. Returns the raw request counts and replica status reported by Kiali for the requested resource type; use mesh_health_summary or error_rate for evaluated statuses",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"namespaces": {
						Type:        "string",
						Description: "Comma-separated list of namespaces to get health from (e.g. 'bookinfo' or 'bookinfo,default'). If not provided, returns health for all accessible namespaces",
					},
					"type": {
						Type:        "string",
						Description: "Type of health to retrieve: 'app', 'service', or 'workload'. Default: 'app'",
						Enum:        []any{health.KindApp, health.KindService, health.KindWorkload},
					},
					"rateInterval": {
						Type:        "string",
						Description: "Rate interval for fetching error rate (e.g., '10m', '5m', '1h'). Default: '10m'",
					},
					"queryTime": {
						Type:        "string",
						Description: "Unix timestamp (in seconds) for the prometheus query. If not provided, uses current time. Optional",
					},
				},
			},
			Annotations: api.ToolAnnotations{
				Title:           "Health",
				ReadOnlyHint:    ptr.To(true),
				DestructiveHint: ptr.To(false),
				IdempotentHint:  ptr.To(true),
				OpenWorldHint:   ptr.To(true),
			},
		}, Handler: clusterHealthHandler,
	})

	return ret
}

func initHealthSummary() []api.ServerTool {
	ret := make([]api.ServerTool, 0)

	// Mesh health summary tool
	ret = append(ret, api.ServerTool{
		Tool: api.Tool{
			Name:        "mesh_health_summary",
			Description: "Get aggregated health summary for the entire mesh or specific namespaces. Every entity is evaluated against the configured rate tolerances. Returns overall availability, mean error rates, and counts of healthy/degraded/failing/not ready entities across apps, services, and workloads, with per-namespace breakdowns and the top unhealthy entities.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"namespaces": {
						Type:        "string",
						Description: "Comma-separated list of namespaces to include in summary (e.g. 'bookinfo,default'). If not provided, summarizes health for all accessible namespaces",
					},
					"rateInterval": {
						Type:        "string",
						Description: "Rate interval for fetching error rate (e.g., '10m', '5m', '1h'). Default: '10m'",
					},
					"queryTime": {
						Type:        "string",
						Description: "Unix timestamp (in seconds) for the prometheus query. If not provided, uses current time. Optional",
					},
				},
			},
			Annotations: api.ToolAnnotations{
				Title:           "Mesh Health Summary",
				ReadOnlyHint:    ptr.To(true),
				DestructiveHint: ptr.To(false),
				IdempotentHint:  ptr.To(true),
				OpenWorldHint:   ptr.To(true),
			},
		},
		Handler: meshHealthSummaryHandler,
	})

	return ret
}

func meshHealthSummaryHandler(params api.ToolHandlerParams) (*api.ToolCallResult, error) {
	namespaces, _ := params.GetArguments()["namespaces"].(string)

	content, err := params.MeshHealthSummary(params.Context, params.Calculator, namespaces, rateQueryParams(params.GetArguments()))
	if err != nil {
		return api.NewToolCallResult("", fmt.Errorf("failed to get mesh health summary: %v", err)), nil
	}
	return api.NewToolCallResult(content, nil), nil
}

func clusterHealthHandler(params api.ToolHandlerParams) (*api.ToolCallResult, error) {
	namespaces, _ := params.GetArguments()["namespaces"].(string)

	queryParams := rateQueryParams(params.GetArguments())
	if healthType, ok := params.GetArguments()["type"].(string); ok && healthType != "" {
		if !validKind(healthType) {
			return api.NewToolCallResult("", fmt.Errorf("invalid type parameter: must be one of 'app', 'service', or 'workload'")), nil
		}
		queryParams["type"] = healthType
	}

	content, err := params.Health(params.Context, namespaces, queryParams)
	if err != nil {
		return api.NewToolCallResult("", fmt.Errorf("failed to get health: %v", err)), nil
	}
	return api.NewToolCallResult(content, nil), nil
}

// rateQueryParams picks the Prometheus query window arguments shared by the health tools.
func rateQueryParams(args map[string]any) map[string]string {
	queryParams := make(map[string]string)
	for _, key := range []string{"rateInterval", "queryTime"} {
		if value, ok := args[key].(string); ok && value != "" {
			queryParams[key] = value
		}
	}
	return queryParams
}

func validKind(kind string) bool {
	return kind == health.KindApp || kind == health.KindService || kind == health.KindWorkload
}
