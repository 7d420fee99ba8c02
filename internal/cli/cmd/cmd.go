// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/resuralph/ralphstack/internal/cli/app"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/cli/printer"
	"github.com/resuralph/ralphstack/internal/cli/renderer"
	"github.com/resuralph/ralphstack/internal/logging"
)

var RootCmdUsageTemplate = display.Grey("Usage: ") + display.Green("{{.CommandPath}} [OPTIONS]{{if .HasAvailableSubCommands}} [COMMAND]{{end}}\n") +
	"{{if .HasAvailableSubCommands}}\n" + display.Gold("Commands:") + "{{$types := typeMap .Commands}}" +
	"{{$first := true}}{{range $type, $cmds := $types}}" +
	"{{if $first}}{{$first = false}}{{else}}\n{{end}}\n  " + display.Gold("{{$type}}:") +
	"{{range $cmd := $cmds}}\n    " + display.Green("{{rpad $cmd.Name $cmd.NamePadding}}") + "     {{$cmd.Short}}" +
	"{{if (index $cmd.Annotations \"examples\")}}\n                   " +
	display.Grey("  {{formatExamples (index $cmd.Annotations \"examples\") $cmd}}") + "{{end}}" +
	"{{end}}{{end}}\n{{end}}" +
	"{{if .HasAvailableLocalFlags}}\n" + display.Gold("Options:\n") +
	"{{range .LocalFlags | optionsUsage}}{{.}}\n{{end}}" +
	"{{end}}" +
	display.Links("Docs", "cli/{{.Name}}") +
	"\n"

var SimpleCmdUsageTemplate = display.Grey("Usage: ") + display.Green("{{.CommandPath}}{{if .HasAvailableFlags}} [OPTIONS]{{end}}{{if .HasAvailableSubCommands}} [COMMAND]{{end}}") + "\n" +
	"{{if .HasAvailableSubCommands}}\n" + display.Gold("Commands:") +
	"{{range $cmd := .Commands}}\n  " + display.Green("{{rpad $cmd.Name $cmd.NamePadding}}") + "       {{$cmd.Short}}" +
	"{{end}}\n{{end}}" +
	"{{if .HasAvailableLocalFlags}}\n" + display.Gold("Options:\n") +
	"{{range .LocalFlags | optionsUsage}}{{.}}\n{{end}}" +
	"{{end}}" +
	"{{if .HasAvailableInheritedFlags}}\n" + display.Gold("Global options:\n") +
	"{{range .InheritedFlags | optionsUsage}}{{.}}\n{{end}}" +
	"{{end}}" +
	display.Links("Docs", "cli/{{.Name}}") +
	"\n"

type appKey struct{}

var ErrAppNotFound = errors.New("application context is not initialized")

func WithApp(ctx context.Context, a *app.App) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

// AppFromContext returns the application of the command tree with its configuration
// loaded from the global flags. CLI logging is set up once the configuration is known.
func AppFromContext(command *cobra.Command) (*app.App, error) {
	a, ok := command.Context().Value(appKey{}).(*app.App)
	if !ok {
		return nil, ErrAppNotFound
	}

	configFile, _ := command.Flags().GetString("config")
	if err := a.LoadConfig(configFile); err != nil {
		return nil, fmt.Errorf("%w%s", err, display.Links("Configuration docs", "configuration"))
	}

	verbose, _ := command.Flags().GetBool("verbose")
	logging.SetupCLILogging(&a.Config.Logging, verbose)

	a.MetricsFile, _ = command.Flags().GetString("metrics-file")
	if command.Flags().Lookup("endpoint") != nil {
		a.Endpoint, _ = command.Flags().GetString("endpoint")
	}

	return a, nil
}

func InitCommandWithContext(command *cobra.Command) *cobra.Command {
	command.SetContext(WithApp(context.Background(), app.NewApp()))
	return command
}

// OutputOptions select how a command prints its result.
type OutputOptions struct {
	OutputConsumer printer.Consumer
	OutputSchema   string
}

func AddOutputFlags(command *cobra.Command) {
	command.Flags().String("output-consumer", string(printer.ConsumerHuman), "Consumer of the command result (human | machine)")
	command.Flags().String("output-schema", "json", "The schema to use for the result output (json | yaml)")
}

func AddEndpointFlag(command *cobra.Command) {
	command.Flags().String("endpoint", "", "Query a running ralphstack server instead of the local state, e.g. http://localhost:49690")
}

func OutputOptionsFromFlags(command *cobra.Command) OutputOptions {
	consumer, _ := command.Flags().GetString("output-consumer")
	schema, _ := command.Flags().GetString("output-schema")
	return OutputOptions{OutputConsumer: printer.Consumer(consumer), OutputSchema: schema}
}

func (o OutputOptions) Validate() error {
	if o.OutputConsumer != printer.ConsumerHuman && o.OutputConsumer != printer.ConsumerMachine {
		return FlagErrorf("output consumer must be either 'human' or 'machine'")
	}
	if o.OutputConsumer == printer.ConsumerMachine && o.OutputSchema != "json" && o.OutputSchema != "yaml" {
		return FlagErrorf("output schema must be either 'json' or 'yaml' for machine consumer")
	}
	return nil
}

func (o OutputOptions) ForHumans() bool {
	return o.OutputConsumer == printer.ConsumerHuman
}

// RenderError replaces the known command errors with their human rendering.
func RenderError(err error) error {
	msg, renderErr := renderer.RenderErrorMessage(err)
	if renderErr != nil {
		return renderErr
	}
	return errors.New(strings.TrimRight(msg, "\n"))
}
