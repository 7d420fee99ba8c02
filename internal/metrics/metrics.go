// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package metrics holds the Prometheus collectors of resource operations. The API server
// exposes them on /metrics and the CLI can write them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const namespace = "ralphstack"

type Metrics struct {
	registry *prometheus.Registry

	resourceUpdates   *prometheus.CounterVec
	operationAttempts *prometheus.CounterVec
	updateDuration    *prometheus.HistogramVec
	commands          *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resourceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_updates_total",
			Help:      "Finished resource updates by type, operation and state.",
		}, []string{"type", "operation", "state"}),
		operationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_operation_attempts_total",
			Help:      "Provider operation attempts by operation and error code.",
		}, []string{"operation", "error_code"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_update_duration_seconds",
			Help:      "Wall time from the start of a resource update until it finished.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type", "operation"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Finished stack commands by command and state.",
		}, []string{"command", "state"}),
	}

	m.registry.MustRegister(m.resourceUpdates, m.operationAttempts, m.updateDuration, m.commands)

	return m
}

// Registry is the gatherer and registerer of every ralphstack collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveResourceUpdate records a resource update that reached a final state.
func (m *Metrics) ObserveResourceUpdate(ru resource_update.ResourceUpdate) {
	if m == nil {
		return
	}

	m.resourceUpdates.WithLabelValues(ru.Type(), string(ru.Operation), string(ru.State)).Inc()
	if !ru.StartTs.IsZero() && ru.ModifiedTs.After(ru.StartTs) {
		m.updateDuration.WithLabelValues(ru.Type(), string(ru.Operation)).Observe(ru.ModifiedTs.Sub(ru.StartTs).Seconds())
	}
	for _, progress := range ru.ProgressResult {
		m.ObserveProgress(progress)
	}
}

// ObserveProgress counts the attempts made for one provider operation.
func (m *Metrics) ObserveProgress(progress resource.ProgressResult) {
	if m == nil || progress.Attempts == 0 {
		return
	}

	code := string(progress.ErrorCode)
	if code == "" {
		code = "none"
	}
	m.operationAttempts.WithLabelValues(string(progress.Operation), code).Add(float64(progress.Attempts))
}

func (m *Metrics) ObserveCommand(command, state string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, state).Inc()
}

// WriteTextfile writes every collected metric in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	slog.Debug("Wrote metrics textfile", "path", path)
	return nil
}
