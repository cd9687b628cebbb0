package kiali

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"k8s.io/utils/ptr"

	"github.com/kiali/kiali-health/pkg/api"
	"github.com/kiali/kiali-health/pkg/health"
)

type annotationReport struct {
	Valid bool                   `json:"valid"`
	Rules []health.ToleranceRule `json:"rules,omitempty"`
	Error string                 `json:"error,omitempty"`
}

func initHealthAnnotation() []api.ServerTool {
	return []api.ServerTool{{
		Tool: api.Tool{
			Name:        "health_annotation",
			Description: "Validate a health.kiali.io/rate annotation value and explain the tolerances it defines. The value is a ';' separated list of 'code,degraded,failure,protocol,direction' clauses where code, protocol and direction are regular expressions (x or X stands for any digit in codes) and degraded/failure are percentages. An annotation with any invalid clause is ignored as a whole",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"value": {
						Type:        "string",
						Description: "Annotation value, e.g. '4XX,10,20,http,inbound;5XX,5,10,http,.*'",
					},
				},
				Required: []string{"value"},
			},
			Annotations: api.ToolAnnotations{
				Title:           "Health Annotation: Validate",
				ReadOnlyHint:    ptr.To(true),
				DestructiveHint: ptr.To(false),
				IdempotentHint:  ptr.To(true),
				OpenWorldHint:   ptr.To(false),
			},
		},
		Handler: healthAnnotationHandler,
	}}
}

func healthAnnotationHandler(params api.ToolHandlerParams) (*api.ToolCallResult, error) {
	value, ok := params.GetArguments()["value"].(string)
	if !ok {
		return api.NewToolCallResult("", fmt.Errorf("value parameter is required")), nil
	}

	report := annotationReport{}
	if rules, valid := health.ParseRateAnnotation(value); valid {
		report.Valid = true
		report.Rules = rules
	} else {
		report.Error = health.ValidateRateAnnotation(value).Error()
	}
	params.Metrics.ObserveAnnotation(report.Valid)

	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return api.NewToolCallResult("", fmt.Errorf("failed to marshal annotation report: %v", err)), nil
	}
	return api.NewToolCallResult(string(content), nil), nil
}
