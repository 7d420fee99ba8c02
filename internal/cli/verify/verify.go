// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package verify

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
	"github.com/resuralph/ralphstack/internal/ops"
)

var ErrVerificationFailed = errors.New("the deployed pipeline failed verification")

func VerifyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "verify",
		Short: "Check the deployed pipeline against its declared configuration",
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

			inspector, targets, err := a.Inspector(command.Context())
			if err != nil {
				return cmd.RenderError(err)
			}
			defer inspector.Close() //nolint:errcheck

			report, err := inspector.Verify(command.Context(), targets)
			if err != nil {
				return err
			}

			if opts.ForHumans() {
				display.PrintBanner()
				err = printer.NewHumanReadablePrinter(os.Stdout).Print(report, printer.PrintOptions{})
			} else {
				err = printer.NewMachineReadablePrinter[ops.Report](os.Stdout, opts.OutputSchema).Print(report)
			}
			if err != nil {
				return err
			}

			if !report.Passed() {
				return ErrVerificationFailed
			}
			return nil
		},
		Annotations: map[string]string{
			"type":     "Operations",
			"examples": "{{.Name}} {{.Command}}",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	cmd.AddOutputFlags(command)

	return command
}
