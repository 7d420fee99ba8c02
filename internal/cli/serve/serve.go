// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package serve

import (
	"github.com/spf13/cobra"

	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/daemon"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type ServeOptions struct {
	Hostname string
	Port     int
}

func validateServeOptions(opts *ServeOptions) error {
	if opts.Port < 0 || opts.Port > 65535 {
		return cmd.FlagErrorf("port must be between 0 and 65535")
	}
	return nil
}

// apply overrides the server configuration with the flags that were set.
func (o *ServeOptions) apply(cfg *pkgmodel.ServerConfig) {
	if o.Hostname != "" {
		cfg.Hostname = o.Hostname
	}
	if o.Port != 0 {
		cfg.Port = o.Port
	}
}

func startCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "start",
		Short: "Resume interrupted commands and serve the read-only API",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &ServeOptions{}
			opts.Hostname, _ = command.Flags().GetString("hostname")
			opts.Port, _ = command.Flags().GetInt("port")
			if err := validateServeOptions(opts); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			opts.apply(&a.Config.Server)

			d := daemon.New(a.Config, a.PluginManager, a.Metrics)
			if err := d.Start(); err != nil {
				return err
			}
			d.Wait()

			return a.Close()
		},
		PersistentPreRun: func(command *cobra.Command, args []string) {
			display.PrintBanner()
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	command.Flags().String("hostname", "", "Listen on this hostname instead of the configured one")
	command.Flags().Int("port", 0, "Listen on this port instead of the configured one")

	return command
}

func stopCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		RunE: func(command *cobra.Command, args []string) error {
			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			return daemon.New(a.Config, a.PluginManager, a.Metrics).Stop()
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	return command
}

func ServeCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Server management commands",
		Annotations: map[string]string{
			"type":     "Operations",
			"examples": "{{.Name}} {{.Command}} start --port 49690  |  {{.Name}} {{.Command}} stop",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	command.AddCommand(startCmd(), stopCmd())

	return command
}
