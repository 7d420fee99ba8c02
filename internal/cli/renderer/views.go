// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package renderer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ddddddO/gtree"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/ops"
)

func newTable(buf *strings.Builder) *tablewriter.Table {
	return tablewriter.NewTable(buf,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithRowAutoWrap(tw.WrapBreak),
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})))
}

func renderTable(header []any, data [][]string) (string, error) {
	var buf strings.Builder
	table := newTable(&buf)
	table.Header(header...)
	if err := table.Bulk(data); err != nil {
		return "", fmt.Errorf("error formatting table: %v", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("error rendering table: %v", err)
	}
	return buf.String(), nil
}

// RenderInventory lists the recorded resources of a stack, managed ones first.
func RenderInventory(inventory *apimodel.ListResourcesResponse, maxResults int) (string, error) {
	if len(inventory.Resources) == 0 {
		return display.Goldf("No resources found for stack %s.\n", inventory.Stack), nil
	}

	resources := append([]apimodel.Resource(nil), inventory.Resources...)
	sort.SliceStable(resources, func(i, j int) bool {
		if resources[i].Managed != resources[j].Managed {
			return resources[i].Managed
		}
		return resources[i].Label < resources[j].Label
	})

	truncated := 0
	if maxResults > 0 && len(resources) > maxResults {
		truncated = len(resources) - maxResults
		resources = resources[:maxResults]
	}

	data := make([][]string, 0, len(resources))
	for _, r := range resources {
		managed := display.Green("managed")
		if !r.Managed {
			managed = display.LightBlue("imported")
		}
		data = append(data, []string{r.Label, display.Grey(r.Type), r.NativeID, managed})
	}

	out, err := renderTable([]any{"Label", "Type", "Native ID", "Management"}, data)
	if err != nil {
		return "", err
	}
	if truncated > 0 {
		out += display.Greyf("... and %d more, use --max-results to show them\n", truncated)
	}
	return out, nil
}

func RenderOutputs(outputs *apimodel.ListOutputsResponse) (string, error) {
	if len(outputs.Outputs) == 0 {
		return display.Goldf("Stack %s has no outputs.\n", outputs.Stack), nil
	}

	data := make([][]string, 0, len(outputs.Outputs))
	for _, o := range outputs.Outputs {
		data = append(data, []string{display.LightBlue(o.Key), o.Value, display.Grey(o.Description)})
	}
	return renderTable([]any{"Output", "Value", "Description"}, data)
}

func RenderDrift(drift *apimodel.DriftResponse) (string, error) {
	if len(drift.Drifted) == 0 {
		return display.Greenf("%s all %d resources of stack %s match the recorded state.\n", display.Tick(), drift.Checked, drift.Stack), nil
	}

	root := gtree.NewRoot(display.Goldf("%d of %d resources of stack %s drifted from the recorded state:", len(drift.Drifted), drift.Checked, drift.Stack))
	for _, d := range drift.Drifted {
		switch {
		case d.Missing:
			node := root.Add(display.Red("missing ") + d.Label)
			node.Add(display.Greyf("of type %s", d.Type))
			node.Add(display.Grey("was identified by ") + d.NativeID)
		case d.ErrorMessage != "":
			node := root.Add(display.Red("could not read ") + d.Label)
			node.Add(display.Greyf("of type %s", d.Type))
			node.Add(display.Grey("reason: ") + display.Red(d.ErrorMessage))
		default:
			node := root.Add(display.Gold("changed ") + d.Label)
			node.Add(display.Greyf("of type %s", d.Type))
			if len(d.PatchDocument) > 0 {
				FormatPatchDocument(node.Add(display.Grey("reverting requires:")), d.PatchDocument, nil)
			}
		}
	}

	var buf strings.Builder
	if err := gtree.OutputFromRoot(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func RenderVerifyReport(report *ops.Report) string {
	var b strings.Builder
	for _, check := range report.Checks {
		if check.Passed {
			fmt.Fprintf(&b, "%s %s\n", display.Tick(), check.Name)
			continue
		}
		fmt.Fprintf(&b, "%s %s %s\n", display.Cross(), check.Name, display.Grey(check.Detail))
	}

	if report.Passed() {
		b.WriteString(display.Green("\nThe pipeline is healthy.\n"))
	} else {
		b.WriteString(display.Red("\nThe pipeline failed verification.\n"))
	}
	return b.String()
}

func RenderDeadLetters(stats *ops.DeadLetterStats) string {
	if stats.Total() == 0 {
		return display.Greenf("%s the dead-letter queue is empty.\n", display.Tick())
	}
	return display.Goldf("%d dead letters: %d visible, %d in flight, %d delayed.\n",
		stats.Total(), stats.Visible, stats.InFlight, stats.Delayed)
}

func RenderStats(stats *apimodel.Stats) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", display.Grey("version:"), display.LightBlue(stats.Version))
	fmt.Fprintf(&b, "%s %d  %s %d  %s %d\n\n",
		display.Grey("stacks:"), stats.Stacks,
		display.Grey("managed resources:"), stats.ManagedResources,
		display.Grey("imported resources:"), stats.UnmanagedResources)

	sections := []struct {
		title  string
		values map[string]int
	}{
		{"Command", stats.Commands},
		{"State", stats.States},
		{"Resource Type", stats.ResourceTypes},
		{"Failures by Type", stats.ResourceErrors},
	}
	for _, section := range sections {
		if len(section.values) == 0 {
			continue
		}
		out, err := renderTable([]any{section.title, "Count"}, sortedCounts(section.values))
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}

	if len(stats.Plugins) > 0 {
		data := make([][]string, 0, len(stats.Plugins))
		for _, p := range stats.Plugins {
			data = append(data, []string{p.Namespace, fmt.Sprintf("%d", p.ResourceTypes), fmt.Sprintf("%d", p.MaxRequestsPerSecond)})
		}
		out, err := renderTable([]any{"Plugin", "Resource Types", "Requests/s"}, data)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}

	return b.String(), nil
}

func sortedCounts(values map[string]int) [][]string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([][]string, 0, len(keys))
	for _, k := range keys {
		data = append(data, []string{k, fmt.Sprintf("%d", values[k])})
	}
	return data
}
