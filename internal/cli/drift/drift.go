// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package drift

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

var ErrDrifted = errors.New("the deployed stack drifted from the recorded state")

type DriftOptions struct {
	cmd.OutputOptions
	FailOnDrift bool
}

func DriftCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "drift",
		Short: "Compare the deployed resources with the recorded state",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &DriftOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.FailOnDrift, _ = command.Flags().GetBool("fail-on-drift")
			if err := opts.Validate(); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			result, err := a.Drift(command.Context())
			if err != nil {
				if opts.ForHumans() {
					return cmd.RenderError(err)
				}
				return err
			}

			if opts.ForHumans() {
				display.PrintBanner()
				err = printer.NewHumanReadablePrinter(os.Stdout).Print(result, printer.PrintOptions{})
			} else {
				err = printer.NewMachineReadablePrinter[apimodel.DriftResponse](os.Stdout, opts.OutputSchema).Print(result)
			}
			if err != nil {
				return err
			}

			return checkDrift(result, opts.FailOnDrift)
		},
		Annotations: map[string]string{
			"type":     "Information",
			"examples": "{{.Name}} {{.Command}}  |  {{.Name}} {{.Command}} --fail-on-drift",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	cmd.AddEndpointFlag(command)
	command.Flags().Bool("fail-on-drift", false, "Exit with an error when a resource drifted")

	return command
}

func checkDrift(result *apimodel.DriftResponse, failOnDrift bool) error {
	if failOnDrift && len(result.Drifted) > 0 {
		return ErrDrifted
	}
	return nil
}
