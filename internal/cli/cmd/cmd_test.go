// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/resuralph/ralphstack/internal/cli/printer"
)

func TestOutputOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    OutputOptions
		wantErr string
	}{
		{"human", OutputOptions{OutputConsumer: printer.ConsumerHuman}, ""},
		{"machine json", OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "json"}, ""},
		{"machine yaml", OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "yaml"}, ""},
		{"unknown consumer", OutputOptions{OutputConsumer: "robot"}, "output consumer must be either 'human' or 'machine'"},
		{"unknown schema", OutputOptions{OutputConsumer: printer.ConsumerMachine, OutputSchema: "toml"}, "output schema must be either 'json' or 'yaml' for machine consumer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)

			var flagErr *FlagError
			assert.True(t, errors.As(err, &flagErr))
		})
	}
}

func TestAppFromContextWithoutApp(t *testing.T) {
	command := &cobra.Command{}
	command.SetContext(context.Background())

	_, err := AppFromContext(command)
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestFlagErrorWrap(t *testing.T) {
	assert.Nil(t, FlagErrorWrap(nil))

	inner := errors.New("bad flag")
	assert.ErrorIs(t, FlagErrorWrap(inner), inner)
}
