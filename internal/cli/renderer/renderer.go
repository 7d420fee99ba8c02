// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package renderer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ddddddO/gtree"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/display"
)

func RenderSimulation(s *apimodel.Simulation) (string, error) {
	renderHeader := func(cmd apimodel.Command) string {
		return fmt.Sprintf("%s %s %s", cmd.Command, display.Grey("of stack"), display.LightBlue(cmd.Stack)) + display.Grey(" will")
	}
	return renderCommand(s.Command, renderHeader, formatSimulatedResourceUpdate)
}

func RenderStatus(s *apimodel.ListCommandStatusResponse) (string, error) {
	if len(s.Commands) == 0 {
		return display.Gold("No commands found.\n"), nil
	}

	renderHeader := func(cmd apimodel.Command) string {
		totalDuration := display.Grey("(total duration: ") + display.LightBlue(formatDuration(calculateDuration(cmd))) + display.Grey(")")
		return fmt.Sprintf("%s %s %s %s %s: %s %s",
			cmd.Command,
			display.Grey("of stack"),
			display.LightBlue(cmd.Stack),
			display.Grey("with ID"),
			display.LightBlue(cmd.CommandID),
			coloredCommandState(cmd.State),
			totalDuration)
	}

	var result strings.Builder
	for _, cmd := range s.Commands {
		out, err := renderCommand(cmd, renderHeader, formatResourceUpdate)
		if err != nil {
			return "", err
		}
		result.WriteString("\n" + out)
	}

	return result.String(), nil
}

func RenderStatusSummary(status *apimodel.ListCommandStatusResponse) (string, error) {
	if len(status.Commands) == 0 {
		return display.Gold("No commands found.\n"), nil
	}

	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})))

	table.Header(display.LightBlue("ID"),
		"Command",
		"Stack",
		"Status",
		"Change",
		display.Grey("Wait"),
		"Progress",
		display.Green("Success"),
		display.Gold("Retry"),
		display.Red("Fail"),
		display.LightBlue("Started At"),
		display.LightBlue("Time"))

	data := make([][]string, 0, len(status.Commands))
	for _, command := range status.Commands {
		counts := countUpdateStates(command.ResourceUpdates)
		data = append(data, []string{
			display.LightBlue(command.CommandID),
			command.Command,
			command.Stack,
			coloredCommandState(command.State),
			fmt.Sprintf("%d", counts.total),
			display.Greyf("%d", counts.waiting),
			fmt.Sprintf("%d", counts.inProgress),
			display.Greenf("%d", counts.success),
			display.Goldf("%d", counts.retrying),
			display.Redf("%d", counts.failed),
			display.LightBlue(command.StartTs.Local().Format("01/02/2006 3:04PM")),
			display.LightBlue(formatDuration(calculateDuration(command))),
		})
	}

	if err := table.Bulk(data); err != nil {
		return "", fmt.Errorf("error formatting status summary: %v", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("error rendering status summary: %v", err)
	}

	return buf.String(), nil
}

type updateCounts struct {
	total, waiting, inProgress, retrying, success, failed int
}

// countUpdateStates counts the changing updates of a command by state. Reads of imported
// resources change nothing and are left out.
func countUpdateStates(updates []apimodel.ResourceUpdate) updateCounts {
	var counts updateCounts
	for _, ru := range updates {
		if ru.Operation == apimodel.OperationRead {
			continue
		}
		counts.total++

		switch ru.State {
		case apimodel.ResourceUpdateStateNotStarted:
			counts.waiting++
		case apimodel.ResourceUpdateStateInProgress:
			if ru.CurrentAttempt > 1 {
				counts.retrying++
			} else {
				counts.inProgress++
			}
		case apimodel.ResourceUpdateStateSuccess:
			counts.success++
		case apimodel.ResourceUpdateStateFailed, apimodel.ResourceUpdateStateRejected:
			counts.failed++
		}
	}
	return counts
}

func renderCommand(cmd apimodel.Command, renderHeader func(apimodel.Command) string, renderResourceUpdate func(*gtree.Node, apimodel.ResourceUpdate)) (string, error) {
	root := gtree.NewRoot(renderHeader(cmd))

	for _, ru := range cmd.ResourceUpdates {
		renderResourceUpdate(root, ru)
	}

	var buf strings.Builder
	if err := gtree.OutputFromRoot(&buf, root); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func formatSimulatedResourceUpdate(root *gtree.Node, ru apimodel.ResourceUpdate) {
	if ru.Operation == apimodel.OperationRead {
		node := root.Add(display.Greyf("%s imported resource %s", display.LightBlue("verify"), ru.ResourceLabel))
		node.Add(display.Greyf("of type %s", ru.ResourceType))
		return
	}

	node := root.Add(display.Greyf("%s resource %s", coloredOperation(ru.Operation), ru.ResourceLabel))
	node.Add(display.Greyf("of type %s", ru.ResourceType))
	if ru.NativeID != "" {
		node.Add(display.Grey("identified by ") + ru.NativeID)
	}
	if ru.Reason != "" && ru.Operation == apimodel.OperationReplace {
		node.Add(display.Grey("because ") + display.Gold(ru.Reason))
	}

	if ru.Operation == apimodel.OperationUpdate && len(ru.PatchDocument) > 0 {
		propertiesNode := node.Add(display.Grey("by doing the following:"))
		FormatPatchDocument(propertiesNode, ru.PatchDocument, ru.OldProperties)
	}
}

func formatResourceUpdate(root *gtree.Node, ru apimodel.ResourceUpdate) {
	line := display.Greyf("%s resource %s", coloredOperation(ru.Operation), ru.ResourceLabel)
	line += ": " + coloredUpdateState(ru.State)
	line += formatDurationLine(ru.Duration)

	node := root.Add(line)
	node.Add(display.Greyf("of type %s", ru.ResourceType))
	addStatusDetails(node, ru)
}

func addStatusDetails(node *gtree.Node, ru apimodel.ResourceUpdate) {
	switch ru.State {
	case apimodel.ResourceUpdateStateFailed, apimodel.ResourceUpdateStateRejected:
		if ru.ErrorMessage != "" {
			node.Add(display.Grey("reason for failure: ") + display.Red(ru.ErrorMessage))
		}
	case apimodel.ResourceUpdateStateInProgress:
		if ru.MaxAttempts > 0 {
			node.Add(display.Greyf("attempt: %d/%d", ru.CurrentAttempt, ru.MaxAttempts))
		}
		if ru.StatusMessage != "" {
			node.Add(display.Grey("reason: ") + display.Gold(ru.StatusMessage))
		}
	}
}

func coloredOperation(operation string) string {
	switch operation {
	case apimodel.OperationReplace, apimodel.OperationDelete:
		return display.Red(operation)
	case apimodel.OperationUpdate:
		return display.Gold(operation)
	case apimodel.OperationRead:
		return display.LightBlue(operation)
	default:
		return display.Green(operation)
	}
}

func coloredCommandState(state string) string {
	switch state {
	case "Success":
		return display.Green(state)
	case "Failed":
		return display.Red(state)
	default:
		return display.Grey(state)
	}
}

func coloredUpdateState(state string) string {
	switch state {
	case apimodel.ResourceUpdateStateSuccess:
		return display.Green(state)
	case apimodel.ResourceUpdateStateFailed, apimodel.ResourceUpdateStateRejected:
		return display.Red(state)
	default:
		return display.Grey(state)
	}
}

func calculateDuration(cmd apimodel.Command) int64 {
	if cmd.EndTs.IsZero() || cmd.State == "InProgress" || cmd.State == "Pending" {
		return time.Since(cmd.StartTs).Milliseconds()
	}
	return cmd.EndTs.Sub(cmd.StartTs).Milliseconds()
}

func formatDuration(millis int64) string {
	duration := time.Duration(millis) * time.Millisecond
	if duration > time.Second {
		duration = duration.Round(time.Second)
	} else {
		duration = duration.Truncate(time.Millisecond)
	}
	return duration.String()
}

func formatDurationLine(duration int64) string {
	if duration <= 0 {
		return ""
	}
	return display.Greyf(" (duration: %s)", display.LightBlue(formatDuration(duration)))
}

// PromptForOperations summarizes the changes of cmd as a confirmation question. It is
// empty when cmd changes nothing.
func PromptForOperations(cmd *apimodel.Command) string {
	var creates, updates, deletes, replaces int
	for _, ru := range cmd.ResourceUpdates {
		switch ru.Operation {
		case apimodel.OperationCreate:
			creates++
		case apimodel.OperationUpdate:
			updates++
		case apimodel.OperationDelete:
			deletes++
		case apimodel.OperationReplace:
			replaces++
		}
	}

	var parts []string
	if deletes > 0 {
		parts = append(parts, display.Redf("delete %d resource(s)", deletes))
	}
	if replaces > 0 {
		parts = append(parts, display.Redf("replace %d resource(s)", replaces))
	}
	if creates > 0 {
		parts = append(parts, display.Greenf("create %d resource(s)", creates))
	}
	if updates > 0 {
		parts = append(parts, display.Goldf("update %d resource(s)", updates))
	}
	if len(parts) == 0 {
		return ""
	}

	joined := parts[0]
	if len(parts) > 1 {
		joined = strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}

	return fmt.Sprintf("This operation will %s.\n\nDo you want to continue?", joined)
}
