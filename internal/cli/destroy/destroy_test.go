// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package destroy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

func TestValidateDestroyOptions(t *testing.T) {
	machine := cmd.OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "yaml"}

	t.Run("human", func(t *testing.T) {
		assert.NoError(t, validateDestroyOptions(&DestroyOptions{OutputOptions: cmd.OutputOptions{OutputConsumer: printer.ConsumerHuman}}))
	})

	t.Run("machine needs yes or simulate", func(t *testing.T) {
		assert.EqualError(t, validateDestroyOptions(&DestroyOptions{OutputOptions: machine}), "the machine consumer cannot confirm, use --yes or --simulate")
		assert.NoError(t, validateDestroyOptions(&DestroyOptions{OutputOptions: machine, Yes: true}))
		assert.NoError(t, validateDestroyOptions(&DestroyOptions{OutputOptions: machine, Simulate: true}))
	})

	t.Run("invalid schema", func(t *testing.T) {
		opts := &DestroyOptions{OutputOptions: cmd.OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "xml"}, Yes: true}
		assert.Error(t, validateDestroyOptions(opts))
	})
}
