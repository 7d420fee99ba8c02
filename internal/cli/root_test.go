// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package cli

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/cli/display"
)

func TestRootRegistersEveryCommand(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"deploy", "destroy", "plan", "synth", "status", "inventory", "outputs", "drift", "verify", "dlq", "serve"}, names)
}

func TestGlobalFlagsAreInherited(t *testing.T) {
	root := NewRootCmd()
	deploy, _, err := root.Find([]string{"deploy"})
	require.NoError(t, err)

	for _, name := range []string{"config", "verbose", "metrics-file"} {
		assert.NotNil(t, deploy.InheritedFlags().Lookup(name), name)
	}
}

func TestOptionsUsage(t *testing.T) {
	display.NoColor()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("output", "o", "", "Write to this file")
	flags.String("format", "yaml", "Template format")
	flags.Bool("yes", false, "Skip confirmation")

	usage := optionsUsage(flags)
	require.Len(t, usage, 3)

	assert.Contains(t, usage[0], `--format`)
	assert.Contains(t, usage[0], `[default: "yaml"]`)
	assert.Contains(t, usage[1], "-o, --output")
	assert.NotContains(t, usage[1], "default")
	assert.NotContains(t, usage[2], "default")
}
