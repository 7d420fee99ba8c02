// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource_update

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/resuralph/ralphstack/internal/metastructure/resolver"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

type (
	OperationType       = types.OperationType
	ResourceUpdateState = types.ResourceUpdateState
)

const (
	OperationCreate  = types.OperationCreate
	OperationUpdate  = types.OperationUpdate
	OperationDelete  = types.OperationDelete
	OperationRead    = types.OperationRead
	OperationReplace = types.OperationReplace

	ResourceUpdateStateNotStarted = types.ResourceUpdateStateNotStarted
	ResourceUpdateStateInProgress = types.ResourceUpdateStateInProgress
	ResourceUpdateStateFailed     = types.ResourceUpdateStateFailed
	ResourceUpdateStateSuccess    = types.ResourceUpdateStateSuccess
	ResourceUpdateStateRejected   = types.ResourceUpdateStateRejected
)

// ResourceUpdate is a logical operation on one resource. A replace involves two provider
// operations, a delete followed by a create.
type ResourceUpdate struct {
	Resource                 pkgmodel.Resource         `json:"Resource"`
	ExistingResource         pkgmodel.Resource         `json:"ExistingResource"`
	Target                   pkgmodel.Target           `json:"Target"`
	Operation                OperationType             `json:"Operation"`
	State                    ResourceUpdateState       `json:"State"`
	StartTs                  time.Time                 `json:"StartTs"`
	ModifiedTs               time.Time                 `json:"ModifiedTs"`
	MostRecentProgressResult resource.ProgressResult   `json:"MostRecentProgressResult"`
	ProgressResult           []resource.ProgressResult `json:"ProgressResult"`
	Reason                   string                    `json:"Reason,omitempty"`
}

func (ru *ResourceUpdate) URI() pkgmodel.ResourceURI {
	if ru.Resource.Label == "" {
		return ru.ExistingResource.URI()
	}
	return ru.Resource.URI()
}

func (ru *ResourceUpdate) Label() string {
	if ru.Resource.Label == "" {
		return ru.ExistingResource.Label
	}
	return ru.Resource.Label
}

func (ru *ResourceUpdate) Type() string {
	if ru.Resource.Type == "" {
		return ru.ExistingResource.Type
	}
	return ru.Resource.Type
}

// Namespace is the provider namespace serving this update, e.g. "AWS".
func (ru *ResourceUpdate) Namespace() string {
	if ru.Resource.Type == "" {
		return ru.ExistingResource.Namespace()
	}
	return ru.Resource.Namespace()
}

// Dependencies lists the resources this update must be ordered against: the references
// and explicit dependencies of the state it acts on. Deletes act on the recorded state.
func (ru *ResourceUpdate) Dependencies() []pkgmodel.ResourceURI {
	r := ru.Resource
	if ru.Operation == OperationDelete {
		r = ru.ExistingResource
	}
	return dependenciesOf(r)
}

// PriorDependencies lists what the recorded state of the resource depended on.
func (ru *ResourceUpdate) PriorDependencies() []pkgmodel.ResourceURI {
	if ru.ExistingResource.Label == "" {
		return nil
	}
	return dependenciesOf(ru.ExistingResource)
}

func dependenciesOf(r pkgmodel.Resource) []pkgmodel.ResourceURI {
	var deps []pkgmodel.ResourceURI
	self := r.URI()
	add := func(uri pkgmodel.ResourceURI) {
		if uri != self && !slices.Contains(deps, uri) {
			deps = append(deps, uri)
		}
	}

	for _, uri := range resolver.ExtractResolvableURIs(r) {
		add(uri.Stripped())
	}
	for _, label := range r.DependsOn {
		add(pkgmodel.NewResourceURI(r.Stack, label, ""))
	}
	slices.Sort(deps)

	return deps
}

// ResolveValue records the value of a referenced property in the desired properties.
func (ru *ResourceUpdate) ResolveValue(uri pkgmodel.ResourceURI, value string) error {
	properties, err := resolver.ResolvePropertyReferences(uri, ru.Resource.Properties, value)
	if err != nil {
		slog.Error("Failed to resolve dynamic properties", "error", err)
		return fmt.Errorf("failed to resolve dynamic properties: %w", err)
	}
	ru.Resource.Properties = properties
	return nil
}

func (ru *ResourceUpdate) IsCreate() bool {
	return ru.Operation == OperationCreate || ru.Operation == OperationReplace
}

func (ru *ResourceUpdate) IsUpdate() bool {
	return ru.Operation == OperationUpdate
}

func (ru *ResourceUpdate) IsRead() bool {
	return ru.Operation == OperationRead
}

func (ru *ResourceUpdate) IsDelete() bool {
	return ru.Operation == OperationDelete || ru.Operation == OperationReplace
}

// IsImported reports whether the resource is only read, never created or deleted.
func (ru *ResourceUpdate) IsImported() bool {
	if ru.Resource.Label != "" {
		return !ru.Resource.Managed
	}
	return !ru.ExistingResource.Managed
}

func (ru *ResourceUpdate) FindProgress(operation resource.Operation) (bool, *resource.ProgressResult) {
	for i := range ru.ProgressResult {
		if ru.ProgressResult[i].Operation == operation {
			return true, &ru.ProgressResult[i]
		}
	}
	return false, nil
}

func (ru *ResourceUpdate) RecordProgress(progress *resource.ProgressResult) error {
	found := false
	for i, existingProgress := range ru.ProgressResult {
		if existingProgress.Operation == progress.Operation {
			ru.ProgressResult[i] = *progress
			found = true
		}
	}
	if !found {
		ru.ProgressResult = append(ru.ProgressResult, *progress)
	}
	ru.MostRecentProgressResult = *progress

	return ru.updateResourceUpdateFromProgress(progress)
}

func (ru *ResourceUpdate) updateResourceUpdateFromProgress(progress *resource.ProgressResult) error {
	ru.UpdateState()

	if progress.NativeID != "" {
		ru.Resource.NativeID = progress.NativeID
	}
	if ru.StartTs.IsZero() {
		ru.StartTs = progress.StartTs
	}
	ru.ModifiedTs = progress.ModifiedTs

	// Intermediate progress may carry partial properties.
	if !progress.FinishedSuccessfully() || len(progress.ResourceProperties) == 0 {
		return nil
	}

	if progress.Operation == resource.OperationDelete {
		return nil
	}

	return ru.updateReadOnlyProperties(progress.ResourceProperties)
}

// updateReadOnlyProperties keeps the declared properties and records every attribute the
// provider returned outside the schema fields, such as Arn and QueueUrl.
func (ru *ResourceUpdate) updateReadOnlyProperties(incoming json.RawMessage) error {
	var allProperties map[string]any
	if err := json.Unmarshal(incoming, &allProperties); err != nil {
		slog.Error("Failed to unmarshal resource properties", "error", err)
		return err
	}

	readOnly := make(map[string]any)
	for k, v := range allProperties {
		if !slices.Contains(ru.Resource.Schema.Fields, k) {
			readOnly[k] = v
		}
	}

	if len(readOnly) == 0 {
		ru.Resource.ReadOnlyProperties = nil
		return nil
	}

	readOnlyJson, err := json.Marshal(readOnly)
	if err != nil {
		slog.Error("Failed to marshal read-only properties", "error", err)
		return err
	}
	ru.Resource.ReadOnlyProperties = readOnlyJson

	return nil
}

func (ru *ResourceUpdate) Reject(reason string) {
	ru.State = ResourceUpdateStateRejected
	ru.Reason = reason
	ru.ModifiedTs = util.TimeNow()
}

func (ru *ResourceUpdate) MarkAsSuccess() {
	ru.State = ResourceUpdateStateSuccess
	ru.ModifiedTs = util.TimeNow()
}

func (ru *ResourceUpdate) MarkAsFailed(reason string) {
	ru.State = ResourceUpdateStateFailed
	if reason != "" {
		ru.Reason = reason
	}
	ru.ModifiedTs = util.TimeNow()
}

func (ru *ResourceUpdate) MostRecentFailureMessage() string {
	if ru.Reason != "" {
		return ru.Reason
	}

	for i := len(ru.ProgressResult) - 1; i >= 0; i-- {
		p := ru.ProgressResult[i]
		if p.OperationStatus == resource.OperationStatusFailure && p.StatusMessage != "" {
			return p.StatusMessage
		}
	}
	return ""
}

// UpdateState derives the state from the recorded progress.
func (ru *ResourceUpdate) UpdateState() {
	if len(ru.ProgressResult) == 0 {
		ru.State = ResourceUpdateStateNotStarted
		return
	}
	ops := ru.RequiredOperations()
	finalState := ResourceUpdateStateSuccess
	for _, op := range ops {
		found, progress := ru.FindProgress(op)
		if !found {
			finalState = ResourceUpdateStateInProgress
			continue
		}
		if progress.Failed() {
			ru.State = ResourceUpdateStateFailed
			return
		}
		if !progress.FinishedSuccessfully() {
			finalState = ResourceUpdateStateInProgress
		}
	}
	ru.State = finalState
}

// RequiredOperations lists the provider operations this update runs, in order.
func (ru *ResourceUpdate) RequiredOperations() []resource.Operation {
	switch ru.Operation {
	case OperationRead:
		return []resource.Operation{resource.OperationRead}
	case OperationCreate:
		return []resource.Operation{resource.OperationCreate}
	case OperationDelete:
		return []resource.Operation{resource.OperationDelete}
	case OperationUpdate:
		return []resource.Operation{resource.OperationUpdate}
	case OperationReplace:
		return []resource.Operation{resource.OperationDelete, resource.OperationCreate}
	default:
		slog.Error("Unknown operation type", "operation", ru.Operation)
		return nil
	}
}
