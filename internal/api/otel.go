// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package api

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	promcli "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	otelresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/resuralph/ralphstack"
	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metrics"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type OTel struct {
	otelConfig    *pkgmodel.OTelConfig
	meterProvider *metric.MeterProvider
}

func (s *Server) isOTelEnabled() bool {
	return s.otel != nil && s.otel.otelConfig != nil && s.otel.otelConfig.Enabled
}

func serviceResource(serviceName string) (*otelresource.Resource, error) {
	if serviceName == "" {
		serviceName = "ralphstack"
	}
	return otelresource.New(context.Background(),
		otelresource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(ralphstack.Version),
		),
	)
}

// SetupGlobalTracerProvider installs the global TracerProvider for OTLP export. It has to
// run before the datastore opens its connections: otelsql and otelpgx pick up the
// provider when the driver is registered.
//
// The returned function flushes and stops the provider.
func SetupGlobalTracerProvider(otelConfig *pkgmodel.OTelConfig) func() {
	if otelConfig == nil || !otelConfig.Enabled || !otelConfig.OTLP.Enabled {
		return func() {}
	}

	otlpConfig := otelConfig.OTLP

	res, err := serviceResource(otelConfig.ServiceName)
	if err != nil {
		slog.Error("Failed to create resource for OTel tracing", "error", err)
		return func() {}
	}

	var exporter sdktrace.SpanExporter
	switch otlpConfig.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(otlpConfig.Endpoint)}
		if otlpConfig.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(context.Background(), opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(otlpConfig.Endpoint)}
		if otlpConfig.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(context.Background(), opts...)
	default:
		slog.Error("Unknown OTLP protocol for tracing", "protocol", otlpConfig.Protocol)
		return func() {}
	}
	if err != nil {
		slog.Error("Failed to create OTLP trace exporter", "error", err)
		return func() {}
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	slog.Info("OTel tracing enabled", "endpoint", otlpConfig.Endpoint, "protocol", otlpConfig.Protocol)

	return func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down TracerProvider", "error", err)
		}
	}
}

// metricsHandler serves the resource operation collectors, the stack stats and, when
// OTel is enabled, the instruments of the global MeterProvider (datastore pools and
// queries among them).
func (s *Server) metricsHandler(m *metrics.Metrics) echo.HandlerFunc {
	registry := promcli.NewRegistry()
	registry.MustRegister(promcli.CollectorFunc(func(ch chan<- promcli.Metric) {
		stats, err := s.metastructure.Stats()
		if err != nil {
			slog.Error("Failed to get stats from metastructure", "error", err)
			return
		}
		for _, pm := range statsToPrometheusMetrics(stats) {
			ch <- pm
		}
	}))

	if s.isOTelEnabled() {
		s.setupOTelMetrics(registry)
	}

	gatherers := promcli.Gatherers{registry}
	if m != nil {
		gatherers = append(gatherers, m.Registry())
	}

	return echo.WrapHandler(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
}

func (s *Server) setupOTelMetrics(registry promcli.Registerer) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		slog.Error("Failed to create Prometheus exporter", "error", err)
		return
	}

	res, err := serviceResource(s.otel.otelConfig.ServiceName)
	if err != nil {
		slog.Error("Failed to create resource for OTel", "error", err)
		return
	}

	opts := []metric.Option{
		metric.WithReader(exporter),
		metric.WithResource(res),
	}
	if reader := otlpMetricReader(&s.otel.otelConfig.OTLP); reader != nil {
		opts = append(opts, metric.WithReader(reader))
	}
	meterProvider := metric.NewMeterProvider(opts...)

	// Global so otelsql and otelpgx report through it
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		slog.Error("Failed to start runtime metrics", "error", err)
	}
	if err := host.Start(host.WithMeterProvider(meterProvider)); err != nil {
		slog.Error("Failed to start host metrics", "error", err)
	}

	s.otel.meterProvider = meterProvider
}

// otlpMetricReader pushes the instruments to the OTLP collector next to the scrape
// endpoint. It returns nil when OTLP export is off.
func otlpMetricReader(otlpConfig *pkgmodel.OTLPConfig) metric.Reader {
	if !otlpConfig.Enabled {
		return nil
	}

	var (
		exporter metric.Exporter
		err      error
	)
	switch otlpConfig.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(otlpConfig.Endpoint)}
		if otlpConfig.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(context.Background(), opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(otlpConfig.Endpoint)}
		if otlpConfig.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(context.Background(), opts...)
	default:
		slog.Error("Unknown OTLP protocol for metrics", "protocol", otlpConfig.Protocol)
		return nil
	}
	if err != nil {
		slog.Error("Failed to create OTLP metric exporter", "error", err)
		return nil
	}

	return metric.NewPeriodicReader(exporter)
}

func (s *Server) shutdownOTel() {
	if s.isOTelEnabled() && s.otel.meterProvider != nil {
		if err := s.otel.meterProvider.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down MeterProvider", "error", err)
		}
	}
}

var (
	statsStacksDesc         = promcli.NewDesc("ralphstack_stats_stacks", "Deployed stacks.", nil, nil)
	statsResourcesDesc      = promcli.NewDesc("ralphstack_stats_resources", "Recorded resources by management.", []string{"managed"}, nil)
	statsCommandsDesc       = promcli.NewDesc("ralphstack_stats_commands", "Recorded stack commands by command.", []string{"command"}, nil)
	statsStatesDesc         = promcli.NewDesc("ralphstack_stats_command_states", "Recorded stack commands by state.", []string{"state"}, nil)
	statsResourceTypesDesc  = promcli.NewDesc("ralphstack_stats_resource_types", "Managed resources by type.", []string{"type"}, nil)
	statsResourceErrorsDesc = promcli.NewDesc("ralphstack_stats_resource_errors", "Failed resource updates by type.", []string{"type"}, nil)
	statsPluginDesc         = promcli.NewDesc("ralphstack_stats_plugin_max_requests_per_second", "Provider request budget.", []string{"namespace"}, nil)
	statsInfoDesc           = promcli.NewDesc("ralphstack_build_info", "Version of the running binary.", []string{"version"}, nil)
)

func statsToPrometheusMetrics(stats *apimodel.Stats) []promcli.Metric {
	gauge := func(desc *promcli.Desc, value int, labels ...string) promcli.Metric {
		return promcli.MustNewConstMetric(desc, promcli.GaugeValue, float64(value), labels...)
	}

	out := []promcli.Metric{
		gauge(statsInfoDesc, 1, stats.Version),
		gauge(statsStacksDesc, stats.Stacks),
		gauge(statsResourcesDesc, stats.ManagedResources, "true"),
		gauge(statsResourcesDesc, stats.UnmanagedResources, "false"),
	}
	for command, n := range stats.Commands {
		out = append(out, gauge(statsCommandsDesc, n, command))
	}
	for state, n := range stats.States {
		out = append(out, gauge(statsStatesDesc, n, state))
	}
	for resourceType, n := range stats.ResourceTypes {
		out = append(out, gauge(statsResourceTypesDesc, n, resourceType))
	}
	for resourceType, n := range stats.ResourceErrors {
		out = append(out, gauge(statsResourceErrorsDesc, n, resourceType))
	}
	for _, p := range stats.Plugins {
		out = append(out, gauge(statsPluginDesc, p.MaxRequestsPerSecond, p.Namespace))
	}

	return out
}
