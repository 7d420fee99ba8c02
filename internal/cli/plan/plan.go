// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package plan

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/app"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
)

type PlanOptions struct {
	cmd.OutputOptions
	Destroy  bool
	ImageURI string
}

func PlanCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a deploy or destroy would make",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &PlanOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.Destroy, _ = command.Flags().GetBool("destroy")
			opts.ImageURI, _ = command.Flags().GetString("image-uri")

			if err := opts.Validate(); err != nil {
				return err
			}
			if opts.Destroy && opts.ImageURI != "" {
				return cmd.FlagErrorf("--image-uri has no effect when planning a destroy")
			}

			app, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			simulation, err := simulate(command, app, opts)
			if err != nil {
				if opts.ForHumans() {
					return cmd.RenderError(err)
				}
				return err
			}

			if !opts.ForHumans() {
				return printer.NewMachineReadablePrinter[apimodel.Simulation](os.Stdout, opts.OutputSchema).Print(simulation)
			}

			if !simulation.ChangesRequired {
				fmt.Printf("%s\n\n%s\n\n", display.Gold("No changes needed:"), display.Grey("The deployed stack matches the declaration."))
				return nil
			}
			return printer.NewHumanReadablePrinter(os.Stdout).Print(simulation, printer.PrintOptions{})
		},
		Annotations: map[string]string{
			"type":     "Stack",
			"examples": "{{.Name}} {{.Command}}  |  {{.Name}} {{.Command}} --destroy",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	command.Flags().Bool("destroy", false, "Plan the destruction of the deployed stack")
	command.Flags().String("image-uri", "", "Plan with this image instead of the fingerprint of the asset directory")

	return command
}

// simulate never publishes assets: the image is the one a deploy would produce.
func simulate(command *cobra.Command, a *app.App, opts *PlanOptions) (*apimodel.Simulation, error) {
	if opts.Destroy {
		return a.PlanDestroy(command.Context())
	}
	return a.Plan(command.Context(), app.ImageOptions{URI: opts.ImageURI})
}
