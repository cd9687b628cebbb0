package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiali/kiali-health/pkg/health"
)

func newAnnotationCmd(o *MCPServerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "annotation <value>",
		Short: "Validate a " + health.RateAnnotationKey + " annotation and print its tolerances",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := o.Complete(c); err != nil {
				return err
			}
			if err := health.ValidateRateAnnotation(args[0]); err != nil {
				return fmt.Errorf("invalid annotation, the health configuration applies instead: %w", err)
			}
			rules, _ := health.ParseRateAnnotation(args[0])
			for _, rule := range rules {
				if _, err := fmt.Fprintln(o.Out, rule.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
