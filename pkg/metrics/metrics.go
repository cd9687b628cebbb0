package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/kiali/kiali-health/pkg/health"
)

const (
	labelKind   = "kind"
	labelStatus = "status"
	labelValid  = "valid"
	labelSource = "source"
	labelResult = "result"
	labelTool   = "tool"
)

// Metrics holds the collectors reported on /metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	evaluations   *prometheus.CounterVec
	annotations   *prometheus.CounterVec
	policyReloads *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
}

// New creates the collectors and registers them with a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiali_health_evaluations_total",
			Help: "Number of error rate evaluations by entity kind and resulting global status.",
		}, []string{labelKind, labelStatus}),
		annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiali_health_rate_annotations_total",
			Help: "Number of health.kiali.io/rate annotations parsed, by validity.",
		}, []string{labelValid}),
		policyReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiali_health_policy_reloads_total",
			Help: "Number of tolerance policy swaps by source and result.",
		}, []string{labelSource, labelResult}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiali_health_tool_calls_total",
			Help: "Number of MCP tool calls by tool and result.",
		}, []string{labelTool, labelResult}),
	}
	m.registry.MustRegister(m.evaluations, m.annotations, m.policyReloads, m.toolCalls)
	return m
}

// Registry exposes the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEvaluation counts one error rate evaluation.
func (m *Metrics) ObserveEvaluation(kind string, result health.ErrorRateResult) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind, result.ErrorRatio.Global.Status.String()).Inc()
}

// ObserveAnnotation counts one parsed rate annotation.
func (m *Metrics) ObserveAnnotation(valid bool) {
	if m == nil {
		return
	}
	m.annotations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// ObservePolicyReload counts one policy swap attempt coming from source ("file" or "kiali").
func (m *Metrics) ObservePolicyReload(source string, err error) {
	if m == nil {
		return
	}
	m.policyReloads.WithLabelValues(source, result(err)).Inc()
}

// ObserveToolCall counts one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("metrics server shutdown failed: %v", err)
		}
	}()

	klog.V(1).Infof("serving metrics on %s/metrics", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
