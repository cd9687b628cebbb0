package api

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kiali/kiali-health/pkg/health"
	"github.com/kiali/kiali-health/pkg/kiali"
	"github.com/kiali/kiali-health/pkg/kubernetes"
	"github.com/kiali/kiali-health/pkg/metrics"
)

type ServerTool struct {
	Tool    Tool
	Handler ToolHandlerFunc
}

type Toolset interface {
	// GetName returns the name of the toolset.
	// Used to identify the toolset in configuration, logs, and command-line arguments.
	GetName() string
	GetDescription() string
	GetTools() []ServerTool
}

type ToolCallRequest interface {
	GetArguments() map[string]any
}

type ToolCallResult struct {
	// Raw content returned by the tool.
	Content string
	// Error (non-protocol) to send back to the LLM.
	Error error
}

func NewToolCallResult(content string, err error) *ToolCallResult {
	return &ToolCallResult{
		Content: content,
		Error:   err,
	}
}

// ToolHandlerParams is everything a tool handler may use to answer a call.
// Kubernetes is nil when no cluster access is configured.
type ToolHandlerParams struct {
	context.Context
	*kiali.Kiali
	ToolCallRequest
	Calculator *health.Calculator
	Kubernetes *kubernetes.Kubernetes
	Metrics    *metrics.Metrics
}

type ToolHandlerFunc func(params ToolHandlerParams) (*ToolCallResult, error)

type Tool struct {
	// The name of the tool.
	// Intended for programmatic or logical use, but used as a display name in past specs or fallback (if title isn't present).
	Name string `json:"name"`
	// A human-readable description of the tool.
	//
	// This can be used by clients to improve the LLM's understanding of available tools. It can be thought of like a "hint" to the model.
	Description string `json:"description,omitempty"`
	// Additional tool information.
	Annotations ToolAnnotations `json:"annotations"`
	// A JSON Schema object defining the expected parameters for the tool.
	InputSchema *jsonschema.Schema
}

type ToolAnnotations struct {
	// Human-readable title for the tool
	Title string `json:"title,omitempty"`
	// If true, the tool does not modify its environment.
	ReadOnlyHint *bool `json:"readOnlyHint,omitempty"`
	// If true, the tool may perform destructive updates to its environment.
	// If false, the tool performs only additive updates.
	DestructiveHint *bool `json:"destructiveHint,omitempty"`
	// If true, calling the tool repeatedly with the same arguments will have no additional effect on its environment.
	IdempotentHint *bool `json:"idempotentHint,omitempty"`
	// If true, this tool may interact with an "open world" of external entities.
	// If false, the tool's domain of interaction is closed.
	OpenWorldHint *bool `json:"openWorldHint,omitempty"`
}
