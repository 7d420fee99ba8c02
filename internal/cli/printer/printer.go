// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package printer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/renderer"
	"github.com/resuralph/ralphstack/internal/ops"
)

type Consumer string

const (
	ConsumerHuman   Consumer = "human"
	ConsumerMachine Consumer = "machine"
)

type MachineReadablePrinter[T any] struct {
	w      io.Writer
	format string
}

func NewMachineReadablePrinter[T any](w io.Writer, format string) *MachineReadablePrinter[T] {
	return &MachineReadablePrinter[T]{
		w:      w,
		format: format,
	}
}

func (p *MachineReadablePrinter[T]) Print(v *T) error {
	var data []byte
	var err error
	switch p.format {
	case "json":
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("json marshal: %w", err)
		}
	case "yaml":
		intermediate, convertErr := convertRawMessages(v)
		if convertErr != nil {
			return fmt.Errorf("convert raw messages: %w", convertErr)
		}

		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(intermediate); err != nil {
			return fmt.Errorf("yaml encode: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported format: %s", p.format)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	if _, err = p.w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// convertRawMessages round-trips v through JSON so embedded json.RawMessage values are
// encoded as YAML structures instead of byte lists.
func convertRawMessages(v any) (any, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var result any
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return nil, err
	}

	return result, nil
}

type HumanReadablePrinter struct {
	w io.Writer
}

func NewHumanReadablePrinter(w io.Writer) *HumanReadablePrinter {
	return &HumanReadablePrinter{
		w: w,
	}
}

type PrintOptions struct {
	Summary    bool
	MaxResults int
}

func (p *HumanReadablePrinter) Print(v any, opts PrintOptions) error {
	var output string
	var err error

	switch v := v.(type) {
	case *apimodel.Simulation:
		output, err = renderer.RenderSimulation(v)
	case *apimodel.ListCommandStatusResponse:
		if opts.Summary {
			output, err = renderer.RenderStatusSummary(v)
		} else {
			output, err = renderer.RenderStatus(v)
		}
	case *apimodel.ListResourcesResponse:
		output, err = renderer.RenderInventory(v, opts.MaxResults)
	case *apimodel.ListOutputsResponse:
		output, err = renderer.RenderOutputs(v)
	case *apimodel.DriftResponse:
		output, err = renderer.RenderDrift(v)
	case *apimodel.Stats:
		output, err = renderer.RenderStats(v)
	case *ops.Report:
		output = renderer.RenderVerifyReport(v)
	case *ops.DeadLetterStats:
		output = renderer.RenderDeadLetters(v)
	default:
		return fmt.Errorf("unsupported type: %T", v)
	}
	if err != nil {
		return fmt.Errorf("render %T: %w", v, err)
	}

	if _, err = p.w.Write([]byte(output)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
