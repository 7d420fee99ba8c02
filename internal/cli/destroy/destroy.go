// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package destroy

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/app"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
	"github.com/resuralph/ralphstack/internal/cli/prompter"
	"github.com/resuralph/ralphstack/internal/cli/renderer"
)

type DestroyOptions struct {
	cmd.OutputOptions
	Yes      bool
	Simulate bool
}

func DestroyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the deployed command pipeline",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &DestroyOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.Yes, _ = command.Flags().GetBool("yes")
			opts.Simulate, _ = command.Flags().GetBool("simulate")

			if err := validateDestroyOptions(opts); err != nil {
				return err
			}

			app, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			if opts.ForHumans() {
				return runDestroyForHumans(command.Context(), app, opts)
			}
			return runDestroyForMachines(command.Context(), app, opts)
		},
		Annotations: map[string]string{
			"type":     "Stack",
			"examples": "{{.Name}} {{.Command}} --simulate",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	command.Flags().Bool("yes", false, "Allow the command to run without any confirmations")
	command.Flags().Bool("simulate", false, "Simulate the command rather than make actual changes")

	return command
}

func validateDestroyOptions(opts *DestroyOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.OutputConsumer == printer.ConsumerMachine && !opts.Simulate && !opts.Yes {
		return cmd.FlagErrorf("the machine consumer cannot confirm, use --yes or --simulate")
	}
	return nil
}

func runDestroyForHumans(ctx context.Context, app *app.App, opts *DestroyOptions) error {
	display.PrintBanner()

	simulation, err := app.PlanDestroy(ctx)
	if err != nil {
		return cmd.RenderError(err)
	}

	if !simulation.ChangesRequired {
		fmt.Printf("%s\n\n%s\n\n",
			display.Gold("No changes needed:"),
			display.Grey("The stack has no resources left to destroy."))
		return nil
	}

	if !opts.Yes {
		if err := printer.NewHumanReadablePrinter(os.Stdout).Print(simulation, printer.PrintOptions{}); err != nil {
			return fmt.Errorf("error printing simulation: %v", err)
		}
	}

	if opts.Simulate {
		fmt.Print(display.Grey("Command will not continue - simulation only\n"))
		return nil
	}

	prompt := renderer.PromptForOperations(&simulation.Command)
	if !opts.Yes && !prompter.NewBasicPrompter().Confirm(prompt) {
		fmt.Print(display.Red("\nCommand aborted\n"))
		return nil
	}

	fmt.Println()
	result, err := app.Destroy(ctx, renderer.NewProgress(os.Stdout).Update)
	if err != nil {
		if result != nil {
			if out, renderErr := renderer.RenderStatus(&apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{*result}}); renderErr == nil {
				fmt.Println(out)
			}
		}
		return cmd.RenderError(err)
	}

	fmt.Printf("\n%s %s\n", display.Tick(), display.Greenf("Stack %s destroyed (command %s)", result.Stack, result.CommandID))
	return nil
}

func runDestroyForMachines(ctx context.Context, app *app.App, opts *DestroyOptions) error {
	if opts.Simulate {
		simulation, err := app.PlanDestroy(ctx)
		if err != nil {
			return fmt.Errorf("error simulating destroy: %w", err)
		}
		return printer.NewMachineReadablePrinter[apimodel.Simulation](os.Stdout, opts.OutputSchema).Print(simulation)
	}

	result, err := app.Destroy(ctx, nil)
	if result != nil {
		if printErr := printer.NewMachineReadablePrinter[apimodel.Command](os.Stdout, opts.OutputSchema).Print(result); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("error destroying stack: %w", err)
	}
	return nil
}

