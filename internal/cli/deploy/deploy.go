// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package deploy

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

type DeployOptions struct {
	cmd.OutputOptions
	Yes        bool
	Simulate   bool
	ImageURI   string
	SkipAssets bool
}

func DeployCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the command pipeline",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &DeployOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.Yes, _ = command.Flags().GetBool("yes")
			opts.Simulate, _ = command.Flags().GetBool("simulate")
			opts.ImageURI, _ = command.Flags().GetString("image-uri")
			opts.SkipAssets, _ = command.Flags().GetBool("skip-assets")

			if err := validateDeployOptions(opts); err != nil {
				return err
			}

			app, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			if opts.ForHumans() {
				return runDeployForHumans(command.Context(), app, opts)
			}
			return runDeployForMachines(command.Context(), app, opts)
		},
		Annotations: map[string]string{
			"type":     "Stack",
			"examples": "{{.Name}} {{.Command}} --simulate  |  {{.Name}} {{.Command}} --yes --image-uri <uri>",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	command.Flags().Bool("yes", false, "Allow the command to run without any confirmations")
	command.Flags().Bool("simulate", false, "Simulate the command rather than make actual changes")
	command.Flags().String("image-uri", "", "Deploy this prebuilt image instead of building the asset directory")
	command.Flags().Bool("skip-assets", false, "Keep the image that is already deployed")

	return command
}

func validateDeployOptions(opts *DeployOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.ImageURI != "" && opts.SkipAssets {
		return cmd.FlagErrorf("--image-uri and --skip-assets cannot be used together")
	}
	if opts.OutputConsumer == printer.ConsumerMachine && !opts.Simulate && !opts.Yes {
		return cmd.FlagErrorf("the machine consumer cannot confirm, use --yes or --simulate")
	}
	return nil
}

func (o *DeployOptions) imageOptions(publish bool) app.ImageOptions {
	return app.ImageOptions{URI: o.ImageURI, SkipAssets: o.SkipAssets, Publish: publish}
}

func runDeployForHumans(ctx context.Context, app *app.App, opts *DeployOptions) error {
	display.PrintBanner()

	// always simulate first for humans, publishing only when the deploy can proceed
	simulation, err := app.Plan(ctx, opts.imageOptions(!opts.Simulate))
	if err != nil {
		return cmd.RenderError(err)
	}

	if !simulation.ChangesRequired {
		fmt.Printf("%s\n\n%s\n\n",
			display.Gold("No changes needed:"),
			display.Grey("The deployed stack is up to date."))
		return printOutputs(app)
	}

	if !opts.Yes {
		p := printer.NewHumanReadablePrinter(os.Stdout)
		if err := p.Print(simulation, printer.PrintOptions{}); err != nil {
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
	progress := renderer.NewProgress(os.Stdout)
	result, err := app.Deploy(ctx, opts.imageOptions(true), progress.Update)
	if err != nil {
		if result != nil {
			printFinalStatus(result)
		}
		return cmd.RenderError(err)
	}

	fmt.Printf("\n%s %s\n\n", display.Tick(), display.Greenf("Stack %s deployed (command %s)", result.Stack, result.CommandID))
	return printOutputs(app)
}

func runDeployForMachines(ctx context.Context, app *app.App, opts *DeployOptions) error {
	if opts.Simulate {
		simulation, err := app.Plan(ctx, opts.imageOptions(false))
		if err != nil {
			return fmt.Errorf("error simulating deploy: %w", err)
		}
		return printer.NewMachineReadablePrinter[apimodel.Simulation](os.Stdout, opts.OutputSchema).Print(simulation)
	}

	result, err := app.Deploy(ctx, opts.imageOptions(true), nil)
	if result != nil {
		if printErr := printer.NewMachineReadablePrinter[apimodel.Command](os.Stdout, opts.OutputSchema).Print(result); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("error deploying stack: %w", err)
	}
	return nil
}

func printFinalStatus(result *apimodel.Command) {
	out, err := renderer.RenderStatus(&apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{*result}})
	if err == nil {
		fmt.Println(out)
	}
}

func printOutputs(app *app.App) error {
	outputs, err := app.Outputs()
	if err != nil {
		return cmd.RenderError(err)
	}
	return printer.NewHumanReadablePrinter(os.Stdout).Print(outputs, printer.PrintOptions{})
}
