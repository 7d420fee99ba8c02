// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

func validOptions() *StatusOptions {
	return &StatusOptions{
		OutputOptions: cmd.OutputOptions{OutputConsumer: printer.ConsumerHuman},
		OutputLayout:  StatusOutputSummary,
		MaxResults:    10,
	}
}

func TestValidateStatusOptions(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, validateStatusOptions(validOptions()))
	})

	t.Run("output-consumer should be human or machine", func(t *testing.T) {
		opts := validOptions()
		opts.OutputConsumer = "invalid_consumer"
		assert.EqualError(t, validateStatusOptions(opts), "output consumer must be either 'human' or 'machine'")
	})

	t.Run("output layout should be detailed or summary", func(t *testing.T) {
		opts := validOptions()
		opts.OutputLayout = "invalid_layout"
		assert.EqualError(t, validateStatusOptions(opts), "output layout must be either 'detailed' or 'summary'")
	})

	t.Run("max results must be positive", func(t *testing.T) {
		opts := validOptions()
		opts.MaxResults = 0
		assert.EqualError(t, validateStatusOptions(opts), "max results must be a positive number")
	})

	t.Run("machine consumer cannot watch", func(t *testing.T) {
		opts := validOptions()
		opts.OutputOptions = cmd.OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "json"}
		opts.Watch = true
		assert.EqualError(t, validateStatusOptions(opts), "the machine consumer cannot watch")
	})
}

func TestLimitOfSingleCommand(t *testing.T) {
	opts := validOptions()
	assert.Equal(t, 10, opts.limit())

	opts.CommandID = "2x8Lk"
	assert.Equal(t, 1, opts.limit())
}

func TestFinished(t *testing.T) {
	done := &apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{{State: "Success"}, {State: "Failed"}}}
	running := &apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{{State: "Success"}, {State: "InProgress"}}}
	pending := &apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{{State: "Pending"}}}

	assert.True(t, finished(done))
	assert.True(t, finished(&apimodel.ListCommandStatusResponse{}))
	assert.False(t, finished(running))
	assert.False(t, finished(pending))
}
