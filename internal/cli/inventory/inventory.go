// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package inventory

import (
	"os"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

type InventoryOptions struct {
	cmd.OutputOptions
	MaxResults int
}

func validateInventoryOptions(opts *InventoryOptions) error {
	if opts.MaxResults < 0 {
		return cmd.FlagErrorf("max-results must be 0 (unlimited) or a positive number")
	}
	return opts.Validate()
}

func InventoryCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "inventory",
		Short: "List the recorded resources of the stack",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &InventoryOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.MaxResults, _ = command.Flags().GetInt("max-results")

			if err := validateInventoryOptions(opts); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			inventory, err := a.Inventory()
			if err != nil {
				if opts.ForHumans() {
					return cmd.RenderError(err)
				}
				return err
			}

			if !opts.ForHumans() {
				return printer.NewMachineReadablePrinter[apimodel.ListResourcesResponse](os.Stdout, opts.OutputSchema).Print(inventory)
			}

			display.PrintBanner()
			return printer.NewHumanReadablePrinter(os.Stdout).Print(inventory, printer.PrintOptions{MaxResults: opts.MaxResults})
		},
		Annotations: map[string]string{
			"type":     "Information",
			"examples": "{{.Name}} {{.Command}} --max-results 50  |  {{.Name}} {{.Command}} --output-consumer machine",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	cmd.AddEndpointFlag(command)
	command.Flags().Int("max-results", 10, "Maximum number of resources to display in the table (0 = unlimited)")

	return command
}
