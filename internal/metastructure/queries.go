// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package metastructure

import (
	"context"
	"fmt"
	"log/slog"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/patch"
	"github.com/resuralph/ralphstack/internal/metastructure/plugin_operation"
	"github.com/resuralph/ralphstack/internal/metastructure/resolver"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// Drift reads every managed resource of the stack from the provider and compares the live
// properties with the recorded ones. Nothing is changed, neither in the cloud nor in the
// datastore.
func (m *Metastructure) Drift(ctx context.Context, stackLabel string) (*apimodel.DriftResponse, error) {
	existing, err := m.loadResources(stackLabel)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, apimodel.StackNotFoundError{StackLabel: stackLabel}
	}

	target := m.Target(stackLabel)
	response := &apimodel.DriftResponse{Stack: stackLabel, Drifted: []apimodel.DriftedResource{}}

	for _, r := range existing {
		if !r.Managed || r.NativeID == "" {
			continue
		}
		response.Checked++

		progress := m.operator.Run(ctx, r.Namespace(), plugin_operation.Request{
			Operation:    resource.OperationRead,
			ResourceType: r.Type,
			NativeID:     r.NativeID,
			Target:       target,
		}, nil)

		if drifted, ok := compareLive(r, progress); ok {
			slog.Info("Resource drifted", "label", r.Label, "type", r.Type, "missing", drifted.Missing)
			response.Drifted = append(response.Drifted, drifted)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	response.CheckedAt = util.TimeNow()

	return response, nil
}

// compareLive returns the difference between the recorded state of r and the result of
// reading it.
func compareLive(r pkgmodel.Resource, progress resource.ProgressResult) (apimodel.DriftedResource, bool) {
	drifted := apimodel.DriftedResource{Label: r.Label, Type: r.Type, NativeID: r.NativeID}

	if progress.ErrorCode == resource.OperationErrorCodeNotFound {
		drifted.Missing = true
		return drifted, true
	}
	if !progress.FinishedSuccessfully() {
		drifted.ErrorMessage = fmt.Sprintf("%s: %s", progress.ErrorCode, progress.StatusMessage)
		return drifted, true
	}

	recorded, err := resolver.ConvertToPluginFormat(r.Properties)
	if err != nil {
		drifted.ErrorMessage = err.Error()
		return drifted, true
	}

	patchDoc, _, err := patch.GeneratePatch(progress.ResourceProperties, recorded, resolver.NewResolvableProperties(), r.Schema, patch.ModeDrift)
	if err != nil {
		drifted.ErrorMessage = err.Error()
		return drifted, true
	}
	if patchDoc == nil {
		return drifted, false
	}
	drifted.PatchDocument = patchDoc

	return drifted, true
}

// Outputs resolves the declared outputs of a deployed stack against its recorded
// resources.
func (m *Metastructure) Outputs(stackLabel string) (*apimodel.ListOutputsResponse, error) {
	stack, err := m.Datastore.GetStackByLabel(stackLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack %s: %w", stackLabel, err)
	}
	if stack == nil {
		return nil, apimodel.StackNotFoundError{StackLabel: stackLabel}
	}

	known, err := m.loadResources(stackLabel)
	if err != nil {
		return nil, err
	}

	response := &apimodel.ListOutputsResponse{Stack: stackLabel, Outputs: []apimodel.Output{}}
	var unresolved []string
	for _, output := range stack.Outputs {
		value, err := resolver.ResolveValue(output.Value, known)
		if err != nil {
			slog.Debug("Output is not resolvable yet", "key", output.Key, "error", err)
			unresolved = append(unresolved, output.Key)
			continue
		}
		response.Outputs = append(response.Outputs, apimodel.Output{
			Key:         output.Key,
			Description: output.Description,
			Value:       fmt.Sprint(value),
		})
	}
	if len(unresolved) > 0 {
		return response, apimodel.ReferencedResourcesNotFoundError{References: unresolved}
	}

	return response, nil
}

func (m *Metastructure) Status(query *datastore.StatusQuery) (*apimodel.ListCommandStatusResponse, error) {
	if query == nil {
		query = &datastore.StatusQuery{}
	}
	if query.N <= 0 {
		query.N = datastore.DefaultStackCommandsQueryLimit
	}

	commands, err := m.Datastore.QueryStackCommands(query)
	if err != nil {
		slog.Error("Failed to query stack commands", "error", err)
		return nil, fmt.Errorf("failed to query stack commands: %w", err)
	}
	if query.CommandID != nil && query.CommandID.Constraint == datastore.Required && len(commands) == 0 {
		return nil, apimodel.CommandNotFoundError{CommandID: query.CommandID.Item}
	}

	response := &apimodel.ListCommandStatusResponse{Commands: make([]apimodel.Command, 0, len(commands))}
	for _, cmd := range commands {
		response.Commands = append(response.Commands, TranslateToAPICommand(cmd))
	}

	return response, nil
}

// Inventory lists the recorded resources of a stack, or of every stack when stackLabel is
// empty.
func (m *Metastructure) Inventory(stackLabel string) (*apimodel.ListResourcesResponse, error) {
	query := &datastore.ResourceQuery{}
	if stackLabel != "" {
		query.Stack = &datastore.QueryItem[string]{Item: stackLabel, Constraint: datastore.Required}
	}

	resources, err := m.Datastore.QueryResources(query)
	if err != nil {
		slog.Error("Failed to query resources", "stack", stackLabel, "error", err)
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}

	response := &apimodel.ListResourcesResponse{Stack: stackLabel, Resources: make([]apimodel.Resource, 0, len(resources))}
	for _, r := range resources {
		properties, err := resolver.StripResolvedValues(r.Properties)
		if err != nil {
			properties = r.Properties
		}
		response.Resources = append(response.Resources, apimodel.Resource{
			Label:              r.Label,
			Type:               r.Type,
			Stack:              r.Stack,
			NativeID:           r.NativeID,
			Managed:            r.Managed,
			Properties:         properties,
			ReadOnlyProperties: r.ReadOnlyProperties,
			Ksuid:              r.Ksuid,
		})
	}

	return response, nil
}

// OutputValue extracts one output value from a response, "" when absent.
func OutputValue(outputs *apimodel.ListOutputsResponse, key string) string {
	for _, o := range outputs.Outputs {
		if o.Key == key {
			return o.Value
		}
	}
	return ""
}
