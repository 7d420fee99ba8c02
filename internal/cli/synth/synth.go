// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package synth

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/resuralph/ralphstack/internal/cli/app"
	"github.com/resuralph/ralphstack/internal/cli/cmd"
	"github.com/resuralph/ralphstack/internal/synth"
	"github.com/resuralph/ralphstack/internal/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type SynthOptions struct {
	Format   synth.Format
	Output   string
	ImageURI string
}

func SynthCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "synth",
		Short: "Print the CloudFormation template of the command pipeline",
		RunE: func(command *cobra.Command, args []string) error {
			opts := &SynthOptions{}
			format, _ := command.Flags().GetString("format")
			opts.Format = synth.Format(format)
			opts.Output, _ = command.Flags().GetString("output")
			opts.ImageURI, _ = command.Flags().GetString("image-uri")

			if err := validateSynthOptions(opts); err != nil {
				return err
			}

			a, err := cmd.AppFromContext(command)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			declared, err := a.DeclaredStack(command.Context(), app.ImageOptions{URI: opts.ImageURI})
			if err != nil {
				return err
			}

			return writeTemplate(declared, opts)
		},
		Annotations: map[string]string{
			"type":     "Stack",
			"examples": "{{.Name}} {{.Command}} --format json --output template.json",
		},
		SilenceErrors: true,
	}

	command.SetUsageTemplate(cmd.SimpleCmdUsageTemplate)

	command.Flags().String("format", string(synth.FormatYAML), "Template format (json | yaml)")
	command.Flags().StringP("output", "o", "", "Write the template to this file instead of stdout")
	command.Flags().String("image-uri", "", "Reference this image instead of the fingerprint of the asset directory")

	return command
}

func validateSynthOptions(opts *SynthOptions) error {
	if opts.Format != synth.FormatJSON && opts.Format != synth.FormatYAML {
		return cmd.FlagErrorf("format must be either 'json' or 'yaml'")
	}
	return nil
}

func writeTemplate(declared *pkgmodel.Stack, opts *SynthOptions) error {
	template, err := synth.Synthesize(declared)
	if err != nil {
		return fmt.Errorf("failed to synthesize stack %s: %w", declared.Label, err)
	}
	data, err := template.Render(opts.Format)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	if opts.Output == "" {
		return write(os.Stdout, data)
	}

	path := util.ExpandHomePath(opts.Output)
	if err := util.EnsureFileFolderHierarchy(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template to %s: %w", path, err)
	}
	return nil
}

func write(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
