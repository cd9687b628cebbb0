package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/kiali/kiali-health/pkg/health"
	internalk8s "github.com/kiali/kiali-health/pkg/kubernetes"
)

type evaluateOptions struct {
	namespace   string
	name        string
	kind        string
	input       string
	fromCluster bool
}

func newEvaluateCmd(o *MCPServerOptions) *cobra.Command {
	e := &evaluateOptions{kind: health.KindApp}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the error rate health of a request health document",
		Long: `Reads a request health document (YAML or JSON) with inbound and outbound request counts
per protocol and response code, and optional healthAnnotations, then prints the evaluated
error rate health as JSON. Use --input - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			return e.run(c, o)
		},
	}
	cmd.Flags().StringVar(&e.namespace, "namespace", e.namespace, "Namespace of the entity")
	cmd.Flags().StringVar(&e.name, "name", e.name, "Name of the entity")
	cmd.Flags().StringVar(&e.kind, "kind", e.kind, "Kind of the entity: app, service or workload")
	cmd.Flags().StringVar(&e.input, "input", e.input, "Request health document, - for stdin")
	cmd.Flags().BoolVar(&e.fromCluster, "from-cluster", e.fromCluster, "Read the health annotations of the entity from the cluster when the document has none")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (e *evaluateOptions) run(c *cobra.Command, o *MCPServerOptions) error {
	if e.kind != health.KindApp && e.kind != health.KindService && e.kind != health.KindWorkload {
		return fmt.Errorf("invalid kind %q: must be one of 'app', 'service', or 'workload'", e.kind)
	}
	requests, err := e.readRequests(c.InOrStdin(), o.fs)
	if err != nil {
		return err
	}
	if e.fromCluster && len(requests.HealthAnnotations) == 0 {
		k8s, err := internalk8s.NewFromKubeConfig(o.StaticConfig.KubeConfig)
		if err != nil {
			return fmt.Errorf("failed to access the cluster: %w", err)
		}
		if requests.HealthAnnotations, err = k8s.HealthAnnotations(c.Context(), e.namespace, e.kind, e.name); err != nil {
			return fmt.Errorf("failed to read health annotations: %w", err)
		}
	}

	calculator, err := o.calculator()
	if err != nil {
		return err
	}
	result := calculator.CalculateErrorRate(e.namespace, e.name, e.kind, requests)

	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Out, string(content))
	return err
}

func (e *evaluateOptions) readRequests(stdin io.Reader, fs afero.Fs) (health.RequestHealth, error) {
	var data []byte
	var err error
	if e.input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = afero.ReadFile(fs, e.input)
	}
	if err != nil {
		return health.RequestHealth{}, fmt.Errorf("failed to read %s: %w", e.input, err)
	}
	var requests health.RequestHealth
	if err := yaml.Unmarshal(data, &requests); err != nil {
		return health.RequestHealth{}, fmt.Errorf("failed to parse %s: %w", e.input, err)
	}
	return requests, nil
}
