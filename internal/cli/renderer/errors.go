// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ddddddO/gtree"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/display"
)

// RenderErrorMessage renders the known command errors for humans. Any other error is
// returned as is.
func RenderErrorMessage(err error) (string, error) {
	var conflicting apimodel.ConflictingCommandsError
	if errors.As(err, &conflicting) {
		return renderConflictingCommandsErrorMessage(&conflicting)
	}

	var cycles apimodel.CyclesDetectedError
	if errors.As(err, &cycles) {
		msg := display.Red("command rejected because one or more cycles were found between the resources")
		if len(cycles.Operations) > 0 {
			msg += display.Red(": ") + display.LightBlue(strings.Join(cycles.Operations, ", "))
		}
		return msg + "\n", nil
	}

	var missingFields apimodel.RequiredFieldMissingOnCreateError
	if errors.As(err, &missingFields) {
		return renderRequiredFieldMissingOnCreateError(&missingFields)
	}

	var stateTooNew apimodel.StateVersionTooNewError
	if errors.As(err, &stateTooNew) {
		return display.Redf("the local state was written by version %s, upgrade %s (currently %s) before continuing\n",
			stateTooNew.StateVersion, display.Tool, stateTooNew.ToolVersion), nil
	}

	var references apimodel.ReferencedResourcesNotFoundError
	if errors.As(err, &references) {
		return renderReferencedResourcesNotFoundError(&references)
	}

	var stackNotFound apimodel.StackNotFoundError
	if errors.As(err, &stackNotFound) {
		return display.Redf("stack `%s` was not found, deploy it first or check the stack name in your configuration.\n", stackNotFound.StackLabel), nil
	}

	var commandNotFound apimodel.CommandNotFoundError
	if errors.As(err, &commandNotFound) {
		return display.Redf("command `%s` was not found.\n", commandNotFound.CommandID), nil
	}

	return "", err
}

func renderConflictingCommandsErrorMessage(conflicting *apimodel.ConflictingCommandsError) (string, error) {
	commandIds := make([]string, 0, len(conflicting.ConflictingCommands))
	statuses := make([]string, 0, len(conflicting.ConflictingCommands))
	for _, conflict := range conflicting.ConflictingCommands {
		commandIds = append(commandIds, conflict.CommandID)
		status, err := RenderStatus(&apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{conflict}})
		if err != nil {
			return "", err
		}
		statuses = append(statuses, status)
	}

	return display.Red("command rejected because the following command has not finished modifying the stack: ") +
		display.LightBluef("%s\n\n", strings.Join(commandIds, ",")) + strings.Join(statuses, "\n") + "\n", nil
}

func renderReferencedResourcesNotFoundError(references *apimodel.ReferencedResourcesNotFoundError) (string, error) {
	root := gtree.NewRoot(display.Red("the following references could not be resolved:"))
	for _, ref := range references.References {
		root.Add(ref)
	}

	var buf strings.Builder
	if err := gtree.OutputFromRoot(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderRequiredFieldMissingOnCreateError(missing *apimodel.RequiredFieldMissingOnCreateError) (string, error) {
	root := gtree.NewRoot(display.Redf("resource %s cannot be created because required fields are missing:", missing.Label))
	root.Add(display.Grey("of type ") + missing.Type)
	root.Add(display.Grey("in stack ") + missing.Stack)
	fields := root.Add(display.Grey("missing:"))
	for _, field := range missing.MissingFields {
		fields.Add(display.Gold(field))
	}

	var buf strings.Builder
	if err := gtree.OutputFromRoot(&buf, root); err != nil {
		return "", fmt.Errorf("error rendering missing fields: %w", err)
	}
	return buf.String(), nil
}
