// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package outputs

import (
	"os"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

func OutputsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "outputs",
		Short: "Print the outputs of the deployed stack",
		RunE: func(command *cobra.Command, args []string) error {
			opts := cmd.OutputOptionsFromFlags(command)
			if err := opts.Validate(); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			outputs, err := a.Outputs()
			if err != nil {
				if opts.ForHumans() {
					return cmd.RenderError(err)
				}
				return err
			}

			if !opts.ForHumans() {
				return printer.NewMachineReadablePrinter[apimodel.ListOutputsResponse](os.Stdout, opts.OutputSchema).Print(outputs)
			}
			return printer.NewHumanReadablePrinter(os.Stdout).Print(outputs, printer.PrintOptions{})
		},
		Annotations: map[string]string{
			"type":     "Information",
			"examples": "{{.Name}} {{.Command}}  |  {{.Name}} {{.Command}} --output-consumer machine --output-schema yaml",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	cmd.AddEndpointFlag(command)

	return command
}
