// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package serve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func TestValidateServeOptions(t *testing.T) {
	assert.NoError(t, validateServeOptions(&ServeOptions{}))
	assert.NoError(t, validateServeOptions(&ServeOptions{Port: 49690}))
	assert.EqualError(t, validateServeOptions(&ServeOptions{Port: 70000}), "port must be between 0 and 65535")
}

func TestFlagsOverrideServerConfig(t *testing.T) {
	cfg := pkgmodel.ServerConfig{Hostname: "localhost", Port: 49690}

	(&ServeOptions{}).apply(&cfg)
	assert.Equal(t, pkgmodel.ServerConfig{Hostname: "localhost", Port: 49690}, cfg)

	(&ServeOptions{Hostname: "0.0.0.0", Port: 8080}).apply(&cfg)
	assert.Equal(t, pkgmodel.ServerConfig{Hostname: "0.0.0.0", Port: 8080}, cfg)
}
