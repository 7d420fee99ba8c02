// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Status command to query the recorded deploy and destroy commands of the stack.
package status

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/app"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
)

type StatusOutput string

const (
	StatusOutputDetailed StatusOutput = "detailed"
	StatusOutputSummary  StatusOutput = "summary"
)

const watchInterval = 2 * time.Second

type StatusOptions struct {
	cmd.OutputOptions
	CommandID    string
	Watch        bool
	OutputLayout StatusOutput
	MaxResults   int
}

func StatusCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "status",
		Short: "Receive the status of previously executed commands",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &StatusOptions{OutputOptions: cmd.OutputOptionsFromFlags(command)}
			id, _ := command.Flags().GetString("id")
			opts.CommandID = strings.TrimSpace(id)
			opts.MaxResults, _ = command.Flags().GetInt("max-results")
			opts.Watch, _ = command.Flags().GetBool("watch")
			layout, _ := command.Flags().GetString("output-layout")
			opts.OutputLayout = StatusOutput(layout)

			if err := validateStatusOptions(opts); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if opts.ForHumans() {
				return runStatusForHumans(a, opts)
			}
			return runStatusForMachines(a, opts)
		},
		Annotations: map[string]string{
			"type":     "Information",
			"examples": "{{.Name}} {{.Command}} --max-results 5  |  {{.Name}} {{.Command}} --id <command-id> --watch",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	cmd.AddEndpointFlag(command)
	command.Flags().String("id", "", "Show only the command with this id")
	command.Flags().Int("max-results", 10, "Maximum number of commands to show")
	command.Flags().Bool("watch", false, "Continuously refresh and print the status until completion")
	command.Flags().String("output-layout", string(StatusOutputSummary), fmt.Sprintf("What to print as status output (%s | %s)", StatusOutputSummary, StatusOutputDetailed))

	command.AddCommand(StatsCmd())

	return command
}

func validateStatusOptions(opts *StatusOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.OutputLayout != StatusOutputDetailed && opts.OutputLayout != StatusOutputSummary {
		return cmd.FlagErrorf("output layout must be either 'detailed' or 'summary'")
	}
	if opts.MaxResults <= 0 {
		return cmd.FlagErrorf("max results must be a positive number")
	}
	if opts.Watch && !opts.ForHumans() {
		return cmd.FlagErrorf("the machine consumer cannot watch")
	}
	return nil
}

func (o *StatusOptions) limit() int {
	if o.CommandID != "" {
		return 1
	}
	return o.MaxResults
}

func runStatusForHumans(a *app.App, opts *StatusOptions) error {
	display.PrintBanner()

	status, err := a.Status(opts.CommandID, opts.limit())
	if err != nil {
		return cmd.RenderError(err)
	}
	if err := renderCommandsStatus(status, opts.OutputLayout); err != nil {
		return err
	}

	if opts.Watch && !finished(status) {
		return watchCommandsStatus(a, opts)
	}
	return nil
}

func runStatusForMachines(a *app.App, opts *StatusOptions) error {
	status, err := a.Status(opts.CommandID, opts.limit())
	if err != nil {
		return err
	}
	return printer.NewMachineReadablePrinter[apimodel.ListCommandStatusResponse](os.Stdout, opts.OutputSchema).Print(status)
}

func renderCommandsStatus(status *apimodel.ListCommandStatusResponse, layout StatusOutput) error {
	return printer.NewHumanReadablePrinter(os.Stdout).Print(status, printer.PrintOptions{Summary: layout == StatusOutputSummary})
}

// finished reports whether none of the listed commands is still pending or running.
func finished(status *apimodel.ListCommandStatusResponse) bool {
	for _, c := range status.Commands {
		if c.State == string(types.CommandStatePending) || c.State == string(types.CommandStateInProgress) {
			return false
		}
	}
	return true
}

func prepareScreen(what string) {
	display.ClearScreen()
	display.PrintBanner()
	fmt.Printf("Watching %s (refreshing every 2s)...\n\n", what)
}

func watchCommandsStatus(a *app.App, opts *StatusOptions) error {
	for {
		time.Sleep(watchInterval)

		prepareScreen("commands status")
		status, err := a.Status(opts.CommandID, opts.limit())
		if err != nil {
			return cmd.RenderError(err)
		}
		if err := renderCommandsStatus(status, opts.OutputLayout); err != nil {
			return err
		}

		if finished(status) {
			return nil
		}
	}
}

func StatsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the recorded stacks, commands and resources",
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

			stats, err := a.Stats()
			if err != nil {
				return err
			}

			if !opts.ForHumans() {
				return printer.NewMachineReadablePrinter[apimodel.Stats](os.Stdout, opts.OutputSchema).Print(stats)
			}

			display.PrintBanner()
			return printer.NewHumanReadablePrinter(os.Stdout).Print(stats, printer.PrintOptions{})
		},
		Annotations: map[string]string{
			"examples": "{{.Name}} status {{.Command}}  |  {{.Name}} status {{.Command}} --endpoint http://localhost:49690",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)
	cmd.AddEndpointFlag(command)

	return command
}
