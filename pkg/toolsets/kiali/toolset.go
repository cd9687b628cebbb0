package kiali

import (
	"slices"

	"github.com/kiali/kiali-health/pkg/api"
)

type Toolset struct{}

var _ api.Toolset = (*Toolset)(nil)

func (t *Toolset) GetName() string {
	return "kiali"
}

func (t *Toolset) GetDescription() string {
	return "Kiali health tools: raw and evaluated health of apps, services and workloads, error rate evaluation and rate annotation validation"
}

func (t *Toolset) GetTools() []api.ServerTool {
	return slices.Concat(
		initHealth(),
		initHealthSummary(),
		initErrorRate(),
		initHealthAnnotation(),
	)
}
