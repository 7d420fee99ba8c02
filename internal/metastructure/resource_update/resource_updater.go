// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource_update

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/resuralph/ralphstack/internal/metastructure/patch"
	"github.com/resuralph/ralphstack/internal/metastructure/plugin_operation"
	"github.com/resuralph/ralphstack/internal/metastructure/resolver"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// ProgressFunc observes a resource update every time a provider operation reports
// progress. It receives a copy that is safe to retain.
type ProgressFunc func(ru ResourceUpdate)

// ResourceUpdater drives a ResourceUpdate through its provider operations: the read of an
// imported or synced resource, or the delete, create and update of a managed one.
type ResourceUpdater struct {
	operator *plugin_operation.Operator
}

func NewResourceUpdater(operator *plugin_operation.Operator) *ResourceUpdater {
	return &ResourceUpdater{operator: operator}
}

// Run executes the remaining provider operations of ru and returns it in its final state.
// known is the current state of every resource ru may reference.
func (u *ResourceUpdater) Run(ctx context.Context, ru ResourceUpdate, known []pkgmodel.Resource, onProgress ProgressFunc) ResourceUpdate {
	ru.State = ResourceUpdateStateInProgress
	if ru.StartTs.IsZero() {
		ru.StartTs = util.TimeNow()
	}

	for _, op := range ru.RequiredOperations() {
		if found, progress := ru.FindProgress(op); found && progress.FinishedSuccessfully() {
			continue
		}

		var ok bool
		switch op {
		case resource.OperationRead:
			ok = u.read(ctx, &ru, onProgress)
		case resource.OperationDelete:
			ok = u.delete(ctx, &ru, onProgress)
		case resource.OperationCreate:
			ok = u.create(ctx, &ru, known, onProgress)
		case resource.OperationUpdate:
			ok = u.update(ctx, &ru, known, onProgress)
		}
		if !ok {
			break
		}
	}

	ru.UpdateState()
	switch ru.State {
	case ResourceUpdateStateSuccess:
		ru.MarkAsSuccess()
	case ResourceUpdateStateFailed:
		ru.MarkAsFailed(ru.MostRecentFailureMessage())
	default:
		ru.MarkAsFailed(fmt.Sprintf("%s of %s did not finish", ru.Operation, ru.Label()))
	}

	return ru
}

func (u *ResourceUpdater) read(ctx context.Context, ru *ResourceUpdate, onProgress ProgressFunc) bool {
	nativeID := ru.Resource.NativeID
	if nativeID == "" {
		nativeID = ru.ExistingResource.NativeID
	}
	if nativeID == "" {
		return u.recordSynthetic(ru, resource.OperationRead, resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("%s has no native identifier to read", ru.Label()), onProgress)
	}

	progress := u.operator.Run(ctx, ru.Namespace(), plugin_operation.Request{
		Operation:    resource.OperationRead,
		ResourceType: ru.Type(),
		NativeID:     nativeID,
		Target:       ru.Target,
		// Syncing a managed resource that no longer exists is not an error; an imported
		// resource that is missing is.
		TreatNotFoundAsSuccess: ru.Resource.Managed,
	}, u.recorder(ru, onProgress))

	return progress.FinishedSuccessfully()
}

func (u *ResourceUpdater) delete(ctx context.Context, ru *ResourceUpdate, onProgress ProgressFunc) bool {
	existing := ru.ExistingResource
	if !existing.Managed || existing.NativeID == "" {
		slog.Info("Forgetting resource without deleting it", "label", existing.Label, "type", existing.Type, "managed", existing.Managed)
		return u.recordSynthetic(ru, resource.OperationDelete, resource.OperationErrorCodeNotSet, "", onProgress)
	}

	progress := u.operator.Run(ctx, ru.Namespace(), plugin_operation.Request{
		Operation:              resource.OperationDelete,
		ResourceType:           existing.Type,
		NativeID:               existing.NativeID,
		Target:                 ru.Target,
		TreatNotFoundAsSuccess: true,
	}, u.recorder(ru, onProgress))

	return progress.FinishedSuccessfully()
}

func (u *ResourceUpdater) create(ctx context.Context, ru *ResourceUpdate, known []pkgmodel.Resource, onProgress ProgressFunc) bool {
	desired, err := u.resolve(ru, known)
	if err != nil {
		return u.recordSynthetic(ru, resource.OperationCreate, resource.OperationErrorCodeUnresolvable, err.Error(), onProgress)
	}

	progress := u.operator.Run(ctx, ru.Namespace(), plugin_operation.Request{
		Operation:    resource.OperationCreate,
		ResourceType: ru.Type(),
		Resource:     desired,
		Target:       ru.Target,
	}, u.recorder(ru, onProgress))

	return progress.FinishedSuccessfully()
}

func (u *ResourceUpdater) update(ctx context.Context, ru *ResourceUpdate, known []pkgmodel.Resource, onProgress ProgressFunc) bool {
	desired, err := u.resolve(ru, known)
	if err != nil {
		return u.recordSynthetic(ru, resource.OperationUpdate, resource.OperationErrorCodeUnresolvable, err.Error(), onProgress)
	}

	// The patch is recomputed now that references carry their current values; an upstream
	// replacement may have changed them since the plan was made.
	props, err := resolver.LoadResolvableProperties(ru.Resource, known)
	if err != nil {
		return u.recordSynthetic(ru, resource.OperationUpdate, resource.OperationErrorCodeUnresolvable, err.Error(), onProgress)
	}
	patchDoc, _, err := patch.GeneratePatch(ru.ExistingResource.Properties, ru.Resource.Properties, props, ru.Resource.Schema, patch.ModeReconcile)
	if err != nil {
		return u.recordSynthetic(ru, resource.OperationUpdate, resource.OperationErrorCodeUnforeseenError, err.Error(), onProgress)
	}
	if patchDoc == nil {
		slog.Debug("Nothing to update after resolving references", "label", ru.Label())
		ru.Resource.PatchDocument = nil
		return u.recordSynthetic(ru, resource.OperationUpdate, resource.OperationErrorCodeNotSet, "", onProgress)
	}
	ru.Resource.PatchDocument = patchDoc
	slog.Debug("Updating resource", "label", ru.Label(), "patch", util.InlineJSON(patchDoc))

	prior := ru.ExistingResource
	if prior.Properties, err = resolver.ConvertToPluginFormat(prior.Properties); err != nil {
		return u.recordSynthetic(ru, resource.OperationUpdate, resource.OperationErrorCodeUnresolvable, err.Error(), onProgress)
	}

	progress := u.operator.Run(ctx, ru.Namespace(), plugin_operation.Request{
		Operation:     resource.OperationUpdate,
		ResourceType:  ru.Type(),
		NativeID:      ru.Resource.NativeID,
		Resource:      desired,
		PriorResource: prior,
		PatchDocument: string(patchDoc),
		Target:        ru.Target,
	}, u.recorder(ru, onProgress))

	return progress.FinishedSuccessfully()
}

// resolve sets the value of every reference in the desired properties and returns the
// resource in plugin format.
func (u *ResourceUpdater) resolve(ru *ResourceUpdate, known []pkgmodel.Resource) (pkgmodel.Resource, error) {
	props, err := resolver.LoadResolvableProperties(ru.Resource, known)
	if err != nil {
		return pkgmodel.Resource{}, fmt.Errorf("failed to resolve references of %s: %w", ru.Label(), err)
	}
	resolved, err := props.Apply(ru.Resource.Properties)
	if err != nil {
		return pkgmodel.Resource{}, fmt.Errorf("failed to resolve references of %s: %w", ru.Label(), err)
	}
	pluginProperties, err := resolver.ConvertToPluginFormat(resolved)
	if err != nil {
		return pkgmodel.Resource{}, fmt.Errorf("failed to resolve references of %s: %w", ru.Label(), err)
	}

	ru.Resource.Properties = resolved
	desired := ru.Resource
	desired.Properties = pluginProperties

	return desired, nil
}

func (u *ResourceUpdater) recorder(ru *ResourceUpdate, onProgress ProgressFunc) plugin_operation.ProgressFunc {
	return func(progress resource.ProgressResult) {
		u.record(ru, progress, onProgress)
	}
}

func (u *ResourceUpdater) record(ru *ResourceUpdate, progress resource.ProgressResult, onProgress ProgressFunc) {
	if err := ru.RecordProgress(&progress); err != nil {
		slog.Error("Failed to record progress", "label", ru.Label(), "operation", progress.Operation, "error", err)
	}
	if onProgress != nil {
		snapshot := *ru
		snapshot.ProgressResult = slices.Clone(ru.ProgressResult)
		onProgress(snapshot)
	}
}

// recordSynthetic records the outcome of an operation that never reached the provider. An
// empty code records a success.
func (u *ResourceUpdater) recordSynthetic(ru *ResourceUpdate, operation resource.Operation, code resource.OperationErrorCode, message string, onProgress ProgressFunc) bool {
	now := util.TimeNow()
	progress := resource.ProgressResult{
		Operation:       operation,
		OperationStatus: resource.OperationStatusSuccess,
		NativeID:        ru.ExistingResource.NativeID,
		ResourceType:    ru.Type(),
		StartTs:         now,
		ModifiedTs:      now,
		Attempts:        1,
		MaxAttempts:     1,
	}
	if operation != resource.OperationDelete && ru.Resource.NativeID != "" {
		progress.NativeID = ru.Resource.NativeID
	}
	if code != resource.OperationErrorCodeNotSet {
		progress.OperationStatus = resource.OperationStatusFailure
		progress.ErrorCode = code
		progress.StatusMessage = message
		slog.Error("Resource operation failed before reaching the provider", "label", ru.Label(), "operation", operation, "error", message)
	}
	u.record(ru, progress, onProgress)

	return progress.OperationStatus == resource.OperationStatusSuccess
}
