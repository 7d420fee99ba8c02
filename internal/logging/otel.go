// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/resuralph/ralphstack"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func setupOTelHandler(cfg *pkgmodel.OTelConfig) (slog.Handler, func()) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(ralphstack.Version),
		),
	)
	if err != nil {
		slog.Error("Could not set up OTel resource", "error", err)
		return nil, nil
	}

	var exporter otellog.Exporter
	switch cfg.OTLP.Protocol {
	case "grpc":
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	case "http":
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	default:
		slog.Error("Unknown OTLP protocol", "protocol", cfg.OTLP.Protocol)
		return nil, nil
	}
	if err != nil {
		slog.Error("Could not set up OTLP log exporter", "protocol", cfg.OTLP.Protocol, "error", err)
		return nil, nil
	}

	provider := otellog.NewLoggerProvider(
		otellog.WithResource(res),
		otellog.WithProcessor(otellog.NewBatchProcessor(exporter)),
	)
	shutdown := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down OTel logger provider", "error", err)
		}
	}

	return otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(provider)), shutdown
}
