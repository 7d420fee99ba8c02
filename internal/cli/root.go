// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/resuralph/ralphstack"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/deploy"
	"github.com/resuralph/ralphstack/internal/cli/destroy"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/dlq"
	"github.com/resuralph/ralphstack/internal/cli/drift"
	"github.com/resuralph/ralphstack/internal/cli/inventory"
	"github.com/resuralph/ralphstack/internal/cli/outputs"
	"github.com/resuralph/ralphstack/internal/cli/plan"
	"github.com/resuralph/ralphstack/internal/cli/serve"
	"github.com/resuralph/ralphstack/internal/cli/status"
	"github.com/resuralph/ralphstack/internal/cli/synth"
	"github.com/resuralph/ralphstack/internal/cli/verify"
)

func longDescription() string {
	return display.Tool + ": " + display.Green("Deploy and operate the serverless command pipeline")
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           display.Tool,
		Short:         display.Tool + " CLI",
		Long:          longDescription(),
		Version:       ralphstack.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	hp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		display.PrintBanner()
		hp(cmd, args)
	})

	rootCmd.SetHelpCommand(&cobra.Command{
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetUsageTemplate(cmd.RootCmdUsageTemplate)

	rootCmd.AddCommand(
		deploy.DeployCmd(),
		destroy.DestroyCmd(),
		plan.PlanCmd(),
		synth.SynthCmd(),
		status.StatusCmd(),
		inventory.InventoryCmd(),
		outputs.OutputsCmd(),
		drift.DriftCmd(),
		verify.VerifyCmd(),
		dlq.DLQCmd(),
		serve.ServeCmd(),
	)

	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file [default: ./ralphstack.yaml]")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log debug output to the console")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write the command metrics in Prometheus text format to this file")

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for "+rootCmd.Use)
	for _, c := range rootCmd.Commands() {
		c.PersistentFlags().BoolP("help", "h", false, fmt.Sprintf("Show help for %s command", c.Name()))
	}

	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show "+rootCmd.Use+" version information")
	rootCmd.SetVersionTemplate(fmt.Sprintf("ralphstack version: %s\ngo version: %s\n", ralphstack.Version, runtime.Version()))

	return rootCmd
}

func init() {
	cobra.AddTemplateFunc("typeMap", func(cmds []*cobra.Command) map[string][]*cobra.Command {
		m := make(map[string][]*cobra.Command)
		for _, c := range cmds {
			if c.IsAvailableCommand() {
				t := c.Annotations["type"]
				if t == "" {
					t = "Tooling"
				}

				m[t] = append(m[t], c)
			}
		}
		return m
	})

	cobra.AddTemplateFunc("formatExamples", func(examples string, cmd *cobra.Command) string {
		replaced := strings.ReplaceAll(examples, "{{.Name}}", cmd.Root().Name())
		return strings.ReplaceAll(replaced, "{{.Command}}", cmd.Name())
	})

	cobra.AddTemplateFunc("optionsUsage", optionsUsage)
}

func optionsUsage(f *pflag.FlagSet) []string {
	longestFlagName := 0
	f.VisitAll(func(flag *pflag.Flag) {
		length := len(flag.Name)
		if flag.Shorthand != "" {
			length += 6
		}
		longestFlagName = max(longestFlagName, length)
	})
	longestFlagName += 10

	var usage []string
	f.VisitAll(func(flag *pflag.Flag) {
		s := fmt.Sprintf("      --%s ", flag.Name)
		if flag.Shorthand != "" {
			s = fmt.Sprintf("  -%s, --%s ", flag.Shorthand, flag.Name)
		}

		s = fmt.Sprintf("%-*s%s", longestFlagName, s, flag.Usage)
		if flag.DefValue != "" &&
			flag.DefValue != "[]" &&
			flag.DefValue != "false" &&
			flag.Name != "help" &&
			flag.Name != "version" {
			s += display.Grey(fmt.Sprintf(" [default: %q]", flag.DefValue))
		}

		usage = append(usage, s)
	})
	return usage
}

func Start() {
	rootCmd := cmd.InitCommandWithContext(NewRootCmd())

	executed, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	var flagErr *cmd.FlagError
	if errors.As(err, &flagErr) && executed != nil {
		_ = executed.Usage()
		fmt.Println()
	}

	fmt.Println(display.Red("Error: " + err.Error()))
	os.Exit(1)
}
