// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func TestOTLPMetricReader(t *testing.T) {
	assert.Nil(t, otlpMetricReader(&pkgmodel.OTLPConfig{}))
	assert.Nil(t, otlpMetricReader(&pkgmodel.OTLPConfig{Enabled: true, Protocol: "carrier-pigeon"}))
	assert.NotNil(t, otlpMetricReader(&pkgmodel.OTLPConfig{Enabled: true, Protocol: "http", Endpoint: "localhost:4318", Insecure: true}))
}

func TestSetupGlobalTracerProviderDisabled(t *testing.T) {
	shutdown := SetupGlobalTracerProvider(&pkgmodel.OTelConfig{Enabled: true})
	assert.NotNil(t, shutdown)
	shutdown()
}
