// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package dlq

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
	"github.com/resuralph/ralphstack/internal/cli/prompter"
	"github.com/resuralph/ralphstack/internal/ops"
)

type DLQOptions struct {
	cmd.OutputOptions
	Redrive bool
	Yes     bool
}

func validateDLQOptions(opts *DLQOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.Redrive && !opts.ForHumans() && !opts.Yes {
		return cmd.FlagErrorf("the machine consumer cannot confirm, use --yes")
	}
	return nil
}

func DLQCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect or redrive the dead-letter queue of the command queue",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &DLQOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			opts.Redrive, _ = command.Flags().GetBool("redrive")
			opts.Yes, _ = command.Flags().GetBool("yes")
			if err := validateDLQOptions(opts); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			inspector, targets, err := a.Inspector(command.Context())
			if err != nil {
				return cmd.RenderError(err)
			}
			defer inspector.Close() //nolint:errcheck

			stats, err := inspector.DeadLetters(command.Context(), targets)
			if err != nil {
				return err
			}

			if !opts.ForHumans() {
				if err := printer.NewMachineReadablePrinter[ops.DeadLetterStats](os.Stdout, opts.OutputSchema).Print(stats); err != nil {
					return err
				}
			} else {
				display.PrintBanner()
				if err := printer.NewHumanReadablePrinter(os.Stdout).Print(stats, printer.PrintOptions{}); err != nil {
					return err
				}
			}

			if !opts.Redrive {
				return nil
			}
			if stats.Total() == 0 {
				if opts.ForHumans() {
					fmt.Println(display.Grey("Nothing to redrive."))
				}
				return nil
			}

			prompt := fmt.Sprintf("This operation will move %d dead letters back to the command queue.\n\nDo you want to continue?", stats.Total())
			if !opts.Yes && !prompter.NewBasicPrompter().Confirm(prompt) {
				fmt.Print(display.Red("\nCommand aborted\n"))
				return nil
			}

			handle, err := inspector.Redrive(command.Context(), targets)
			if err != nil {
				return err
			}
			if opts.ForHumans() {
				fmt.Printf("\n%s %s\n", display.Tick(), display.Greenf("Redrive started (task %s)", handle))
			}
			return nil
		},
		Annotations: map[string]string{
			"type":     "Operations",
			"examples": "{{.Name}} {{.Command}}  |  {{.Name}} {{.Command}} --redrive --yes",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	command.Flags().Bool("redrive", false, "Move the dead letters back to the command queue")
	command.Flags().Bool("yes", false, "Redrive without confirmation")

	return command
}
