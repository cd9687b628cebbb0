package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"k8s.io/klog/v2"

	"github.com/kiali/kiali-health/pkg/api"
	"github.com/kiali/kiali-health/pkg/config"
	"github.com/kiali/kiali-health/pkg/health"
	internalkiali "github.com/kiali/kiali-health/pkg/kiali"
	internalk8s "github.com/kiali/kiali-health/pkg/kubernetes"
	"github.com/kiali/kiali-health/pkg/metrics"
	"github.com/kiali/kiali-health/pkg/toolsets/kiali"
)

const version = "0.1.0"

type Configuration struct {
	StaticConfig *config.StaticConfig
	Calculator   *health.Calculator
	// Kubernetes is optional, tools needing cluster access report an error without it.
	Kubernetes *internalk8s.Kubernetes
	Metrics    *metrics.Metrics
	Toolsets   []api.Toolset
}

func (c *Configuration) toolsets() []api.Toolset {
	if len(c.Toolsets) == 0 {
		return []api.Toolset{&kiali.Toolset{}}
	}
	return c.Toolsets
}

type Server struct {
	configuration *Configuration
	server        *server.MCPServer
	kiali         *internalkiali.Kiali
	enabledTools  []string
}

func NewServer(configuration Configuration) (*Server, error) {
	if configuration.StaticConfig == nil {
		configuration.StaticConfig = config.Default()
	}
	if configuration.Calculator == nil {
		policy, err := health.NewPolicy(configuration.StaticConfig.HealthConfig.Rate)
		if err != nil {
			return nil, err
		}
		configuration.Calculator = health.NewCalculator(health.NewResolver(policy))
	}
	s := &Server{
		configuration: &configuration,
		server: server.NewMCPServer(
			"kiali-health",
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		kiali: internalkiali.NewFromConfig(configuration.StaticConfig),
	}
	if err := s.reloadTools(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) reloadTools() error {
	var serverTools []server.ServerTool
	for _, toolset := range s.configuration.toolsets() {
		converted, err := ServerToolToM3LabsServerTool(s, toolset.GetTools())
		if err != nil {
			return fmt.Errorf("failed to convert tools of toolset %s: %v", toolset.GetName(), err)
		}
		serverTools = append(serverTools, converted...)
	}
	s.enabledTools = make([]string, 0, len(serverTools))
	for _, tool := range serverTools {
		s.enabledTools = append(s.enabledTools, tool.Tool.Name)
	}
	s.server.SetTools(serverTools...)
	klog.V(1).Infof("enabled tools: %v", s.enabledTools)
	return nil
}

// GetEnabledTools returns the names of the registered tools.
func (s *Server) GetEnabledTools() []string {
	return slices.Clone(s.enabledTools)
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

// HandleMessage processes a single JSON-RPC message, used for in-process calls.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.server.HandleMessage(ctx, message)
}

func (s *Server) handlerParams(ctx context.Context, request mcp.CallToolRequest) (api.ToolHandlerParams, error) {
	k, err := s.kiali.Derived(ctx)
	if err != nil {
		return api.ToolHandlerParams{}, err
	}
	return api.ToolHandlerParams{
		Context:         ctx,
		Kiali:           k,
		ToolCallRequest: request,
		Calculator:      s.configuration.Calculator,
		Kubernetes:      s.configuration.Kubernetes,
		Metrics:         s.configuration.Metrics,
	}, nil
}

func NewTextResult(content string, err error) *mcp.CallToolResult {
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: err.Error(),
				},
			},
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: content,
			},
		},
	}
}
