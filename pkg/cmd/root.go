package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"

	"github.com/kiali/kiali-health/pkg/config"
	"github.com/kiali/kiali-health/pkg/health"
	internalkiali "github.com/kiali/kiali-health/pkg/kiali"
	internalk8s "github.com/kiali/kiali-health/pkg/kubernetes"
	"github.com/kiali/kiali-health/pkg/mcp"
	"github.com/kiali/kiali-health/pkg/metrics"
)

var (
	long     = `Kiali health evaluation server: evaluates error rate health of mesh entities against rate tolerances and serves it as MCP tools.`
	examples = `
# serve the MCP tools over stdio, reading health data from a Kiali server
kiali-health --kiali-server-url https://kiali.example.com

# use a configuration file, reloaded when it changes
kiali-health --config /etc/kiali-health/config.toml

# evaluate a request health document
kiali-health evaluate --namespace bookinfo --name reviews --kind service --input requests.yaml

# check a health.kiali.io/rate annotation
kiali-health annotation '4XX,10,20,http,inbound;5XX,5,10,http,.*'
`
)

const (
	flagConfig                = "config"
	flagLogLevel              = "log-level"
	flagKialiServerURL        = "kiali-server-url"
	flagKialiInsecure         = "kiali-insecure"
	flagMetricsAddress        = "metrics-address"
	flagKubeconfig            = "kubeconfig"
	flagUseServerHealthConfig = "use-server-health-config"
)

type MCPServerOptions struct {
	LogLevel              int
	ConfigPath            string
	KialiServerURL        string
	KialiInsecure         bool
	MetricsAddress        string
	Kubeconfig            string
	UseServerHealthConfig bool

	StaticConfig *config.StaticConfig

	fs     afero.Fs
	Out    io.Writer
	ErrOut io.Writer
}

func NewMCPServerOptions(fs afero.Fs, out, errOut io.Writer) *MCPServerOptions {
	return &MCPServerOptions{
		fs:           fs,
		Out:          out,
		ErrOut:       errOut,
		StaticConfig: config.Default(),
	}
}

// NewMCPServer creates the kiali-health root command reading files from the OS.
func NewMCPServer(out, errOut io.Writer) *cobra.Command {
	return newRootCmd(NewMCPServerOptions(afero.NewOsFs(), out, errOut))
}

func newRootCmd(o *MCPServerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kiali-health [command] [options]",
		Short:        "Kiali health evaluation server",
		Long:         long,
		Example:      examples,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(c.Context())
		},
	}
	cmd.SetOut(o.Out)
	cmd.SetErr(o.ErrOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.ConfigPath, flagConfig, o.ConfigPath, "Path of the TOML configuration file")
	flags.IntVar(&o.LogLevel, flagLogLevel, o.LogLevel, "Set the log level (from 0 to 9)")
	flags.StringVar(&o.Kubeconfig, flagKubeconfig, o.Kubeconfig, "Path to the kubeconfig file used to read health annotations from the cluster")
	cmd.Flags().StringVar(&o.KialiServerURL, flagKialiServerURL, o.KialiServerURL, "URL of the Kiali server (e.g. https://kiali-istio-system.apps-crc.testing/)")
	cmd.Flags().BoolVar(&o.KialiInsecure, flagKialiInsecure, o.KialiInsecure, "Skip TLS verification when connecting to the Kiali server")
	cmd.Flags().StringVar(&o.MetricsAddress, flagMetricsAddress, o.MetricsAddress, "Address to serve Prometheus metrics on (e.g. :9090). Disabled when empty")
	cmd.Flags().BoolVar(&o.UseServerHealthConfig, flagUseServerHealthConfig, o.UseServerHealthConfig, "Use the health configuration of the Kiali server instead of the local one")

	cmd.AddCommand(newEvaluateCmd(o), newAnnotationCmd(o))
	return cmd
}

// Complete reads the configuration file, if any, and applies the flags set on the
// command line on top of it.
func (m *MCPServerOptions) Complete(cmd *cobra.Command) error {
	if m.ConfigPath != "" {
		cfg, err := config.Read(m.fs, m.ConfigPath)
		if err != nil {
			return err
		}
		m.StaticConfig = cfg
	}
	m.loadFlags(cmd)
	m.initializeLogging()
	return nil
}

func (m *MCPServerOptions) loadFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed(flagLogLevel) {
		m.StaticConfig.LogLevel = m.LogLevel
	}
	if flags.Changed(flagKubeconfig) {
		m.StaticConfig.KubeConfig = m.Kubeconfig
	}
	if flags.Changed(flagKialiServerURL) {
		m.StaticConfig.KialiServerURL = m.KialiServerURL
	}
	if flags.Changed(flagKialiInsecure) {
		m.StaticConfig.KialiInsecure = m.KialiInsecure
	}
	if flags.Changed(flagMetricsAddress) {
		m.StaticConfig.MetricsAddress = m.MetricsAddress
	}
	if flags.Changed(flagUseServerHealthConfig) {
		m.StaticConfig.UseServerHealthConfig = m.UseServerHealthConfig
	}
}

// initializeLogging sends klog output to ErrOut, stdout carries the MCP protocol.
func (m *MCPServerOptions) initializeLogging() {
	flagSet := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	loggerOptions := []textlogger.ConfigOption{textlogger.Output(m.ErrOut)}
	if m.StaticConfig.LogLevel >= 0 {
		loggerOptions = append(loggerOptions, textlogger.Verbosity(m.StaticConfig.LogLevel))
		_ = flagSet.Parse([]string{"--v", strconv.Itoa(m.StaticConfig.LogLevel)})
	}
	logger := textlogger.NewLogger(textlogger.NewConfig(loggerOptions...))
	klog.SetLoggerWithOptions(logger)
}

func (m *MCPServerOptions) Validate() error {
	if m.StaticConfig.LogLevel < 0 || m.StaticConfig.LogLevel > 9 {
		return fmt.Errorf("log level must be between 0 and 9, got %d", m.StaticConfig.LogLevel)
	}
	if m.StaticConfig.UseServerHealthConfig && m.StaticConfig.KialiServerURL == "" {
		return fmt.Errorf("--%s requires a Kiali server URL", flagUseServerHealthConfig)
	}
	return nil
}

// calculator compiles the configured health policy.
func (m *MCPServerOptions) calculator() (*health.Calculator, error) {
	policy, err := health.NewPolicy(m.StaticConfig.HealthConfig.Rate)
	if err != nil {
		return nil, err
	}
	return health.NewCalculator(health.NewResolver(policy)), nil
}

func (m *MCPServerOptions) Run(ctx context.Context) error {
	calculator, err := m.calculator()
	if err != nil {
		return err
	}
	reporter := metrics.New()

	if m.StaticConfig.UseServerHealthConfig {
		m.syncServerHealthConfig(ctx, calculator.Resolver(), reporter)
	}
	if m.ConfigPath != "" {
		if err := config.Watch(ctx, m.fs, m.ConfigPath, m.reloadPolicy(calculator.Resolver(), reporter)); err != nil {
			return err
		}
	}
	if m.StaticConfig.MetricsAddress != "" {
		go func() {
			if err := reporter.Serve(ctx, m.StaticConfig.MetricsAddress); err != nil {
				klog.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	k8s, err := internalk8s.NewFromKubeConfig(m.StaticConfig.KubeConfig)
	if err != nil {
		klog.V(1).Infof("cluster access disabled: %v", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Configuration{
		StaticConfig: m.StaticConfig,
		Calculator:   calculator,
		Kubernetes:   k8s,
		Metrics:      reporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP server: %w", err)
	}
	klog.V(1).Infof("serving %d tools over stdio", len(mcpServer.GetEnabledTools()))
	return mcpServer.ServeStdio()
}

// syncServerHealthConfig replaces the local policy with the one the Kiali server
// runs with. Failures keep the local policy.
func (m *MCPServerOptions) syncServerHealthConfig(ctx context.Context, resolver *health.Resolver, reporter *metrics.Metrics) {
	healthConfig, err := internalkiali.NewFromConfig(m.StaticConfig).HealthConfig(ctx)
	if err == nil {
		var policy health.Policy
		if policy, err = health.NewPolicy(healthConfig.Rate); err == nil {
			resolver.SetPolicy(policy)
			klog.V(1).Infof("using the health configuration of the Kiali server (%d rate entries)", len(policy))
		}
	}
	if err != nil {
		klog.Errorf("keeping local health configuration: %v", err)
	}
	reporter.ObservePolicyReload("kiali", err)
}

// reloadPolicy returns the configuration watcher callback swapping the policy of resolver.
func (m *MCPServerOptions) reloadPolicy(resolver *health.Resolver, reporter *metrics.Metrics) func(*config.StaticConfig) {
	return func(cfg *config.StaticConfig) {
		if m.StaticConfig.UseServerHealthConfig {
			klog.V(2).Infof("ignoring local health configuration change, the Kiali server configuration is in use")
			return
		}
		policy, err := health.NewPolicy(cfg.HealthConfig.Rate)
		reporter.ObservePolicyReload("file", err)
		if err != nil {
			klog.Errorf("keeping previous health configuration: %v", err)
			return
		}
		resolver.SetPolicy(policy)
		klog.V(1).Infof("health configuration reloaded (%d rate entries)", len(policy))
	}
}
