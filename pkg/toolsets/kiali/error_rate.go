package kiali

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"k8s.io/utils/ptr"

	"github.com/kiali/kiali-health/pkg/api"
	"github.com/kiali/kiali-health/pkg/health"
)

func initErrorRate() []api.ServerTool {
	requestCounts := &jsonschema.Schema{
		Type:        "object",
		Description: "Map of protocol (e.g. 'http', 'grpc') to a map of response code to request count or rate. Codes are strings such as '200', '503', '14' or '-' for requests without response",
		AdditionalProperties: &jsonschema.Schema{
			Type:                 "object",
			AdditionalProperties: &jsonschema.Schema{Type: "number"},
		},
	}

	return []api.ServerTool{{
		Tool: api.Tool{
			Name:        "error_rate",
			Description: "Evaluate the error rate health of an app, service or workload from its inbound and outbound request counts. Tolerances are resolved from the health.kiali.io/rate annotation when valid, otherwise from the first matching rate entry of the health configuration. Returns the global, inbound and outbound status with the error percentage and violated tolerance, plus the tolerances applied",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"namespace": {
						Type:        "string",
						Description: "Namespace of the entity",
					},
					"name": {
						Type:        "string",
						Description: "Name of the app, service or workload",
					},
					"kind": {
						Type:        "string",
						Description: "Kind of the entity: 'app', 'service', or 'workload'",
						Enum:        []any{health.KindApp, health.KindService, health.KindWorkload},
					},
					"inbound":  requestCounts,
					"outbound": requestCounts,
					"annotations": {
						Type:                 "object",
						Description:          "Annotations of the entity, e.g. {\"health.kiali.io/rate\": \"4XX,10,20,http,inbound\"}. Optional",
						AdditionalProperties: &jsonschema.Schema{Type: "string"},
					},
					"fromCluster": {
						Type:        "boolean",
						Description: "Read the entity health annotations from the cluster when none are given. Optional, default false",
					},
				},
				Required: []string{"namespace", "name", "kind"},
			},
			Annotations: api.ToolAnnotations{
				Title:           "Error Rate: Evaluate",
				ReadOnlyHint:    ptr.To(true),
				DestructiveHint: ptr.To(false),
				IdempotentHint:  ptr.To(true),
				OpenWorldHint:   ptr.To(false),
			},
		},
		Handler: errorRateHandler,
	}}
}

func errorRateHandler(params api.ToolHandlerParams) (*api.ToolCallResult, error) {
	args := params.GetArguments()
	namespace, _ := args["namespace"].(string)
	name, _ := args["name"].(string)
	kind, _ := args["kind"].(string)

	if namespace == "" {
		return api.NewToolCallResult("", fmt.Errorf("namespace parameter is required")), nil
	}
	if name == "" {
		return api.NewToolCallResult("", fmt.Errorf("name parameter is required")), nil
	}
	if !validKind(kind) {
		return api.NewToolCallResult("", fmt.Errorf("invalid kind parameter: must be one of 'app', 'service', or 'workload'")), nil
	}

	requests, err := decodeRequestHealth(args)
	if err != nil {
		return api.NewToolCallResult("", err), nil
	}

	if fromCluster, _ := args["fromCluster"].(bool); fromCluster && len(requests.HealthAnnotations) == 0 {
		if params.Kubernetes == nil {
			return api.NewToolCallResult("", fmt.Errorf("fromCluster requested but no cluster access is configured")), nil
		}
		annotations, err := params.Kubernetes.HealthAnnotations(params.Context, namespace, kind, name)
		if err != nil {
			return api.NewToolCallResult("", fmt.Errorf("failed to read health annotations of %s %s/%s: %v", kind, namespace, name, err)), nil
		}
		requests.HealthAnnotations = annotations
	}

	if raw := health.RateAnnotation(requests.HealthAnnotations); raw != "" {
		params.Metrics.ObserveAnnotation(health.ValidateRateAnnotation(raw) == nil)
	}

	result := params.Calculator.CalculateErrorRate(namespace, name, kind, requests)
	params.Metrics.ObserveEvaluation(kind, result)

	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return api.NewToolCallResult("", fmt.Errorf("failed to marshal error rate: %v", err)), nil
	}
	return api.NewToolCallResult(string(content), nil), nil
}

// decodeRequestHealth converts the loosely typed tool arguments into a RequestHealth.
func decodeRequestHealth(args map[string]any) (health.RequestHealth, error) {
	doc := map[string]any{
		"inbound":           args["inbound"],
		"outbound":          args["outbound"],
		"healthAnnotations": args["annotations"],
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return health.RequestHealth{}, fmt.Errorf("invalid request counts: %v", err)
	}
	var requests health.RequestHealth
	if err := json.Unmarshal(data, &requests); err != nil {
		return health.RequestHealth{}, fmt.Errorf("invalid request counts: %v", err)
	}
	return requests, nil
}
