// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource_update

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/resuralph/ralphstack/internal/metastructure/patch"
	"github.com/resuralph/ralphstack/internal/metastructure/resolver"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

var ErrStackMismatch = errors.New("recorded resources belong to a different stack")

// GenerateResourceUpdates compares the desired stack with the recorded resources of that
// stack and returns the updates needed to converge. Unchanged resources produce no update.
func GenerateResourceUpdates(desired *pkgmodel.Stack, existing []pkgmodel.Resource, command pkgmodel.Command) ([]ResourceUpdate, error) {
	for _, r := range existing {
		if r.Stack != desired.Label {
			return nil, fmt.Errorf("%w: %s belongs to %s, not %s", ErrStackMismatch, r.Label, r.Stack, desired.Label)
		}
	}

	var updates []ResourceUpdate
	var err error
	switch command {
	case pkgmodel.CommandApply:
		updates, err = generateResourceUpdatesForApply(desired, existing)
	case pkgmodel.CommandDestroy:
		updates = generateResourceUpdatesForDestroy(desired.Target, existing)
	case pkgmodel.CommandSync:
		updates = generateResourceUpdatesForSync(desired.Target, existing)
	default:
		return nil, fmt.Errorf("unsupported command: %s", command)
	}
	if err != nil {
		return nil, err
	}

	slices.SortFunc(updates, func(a, b ResourceUpdate) int {
		return strings.Compare(a.Label(), b.Label())
	})

	return updates, nil
}

func generateResourceUpdatesForApply(desired *pkgmodel.Stack, existing []pkgmodel.Resource) ([]ResourceUpdate, error) {
	existingByLabel := make(map[string]pkgmodel.Resource, len(existing))
	for _, r := range existing {
		existingByLabel[r.Label] = r
	}

	var updates []ResourceUpdate
	var unchanged []pkgmodel.Resource
	declared := make(map[string]struct{}, len(desired.Resources))

	for _, r := range desired.Resources {
		declared[r.Label] = struct{}{}
		prior, found := existingByLabel[r.Label]

		if !r.Managed {
			if found {
				r.ReadOnlyProperties = prior.ReadOnlyProperties
			}
			updates = append(updates, newResourceUpdate(OperationRead, r, prior, desired.Target))
			continue
		}

		if !found || !prior.Managed || prior.NativeID == "" {
			if err := r.ValidateRequiredOnCreateFields(); err != nil {
				return nil, err
			}
			updates = append(updates, newResourceUpdate(OperationCreate, r, pkgmodel.Resource{}, desired.Target))
			continue
		}

		if prior.Type != r.Type {
			updates = append(updates, newResourceUpdate(OperationReplace, r, prior, desired.Target))
			continue
		}

		patchDoc, needsReplacement, err := patch.GeneratePatch(prior.Properties, r.Properties, resolvablePropertiesOf(r, existing), r.Schema, patch.ModeReconcile)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s with its recorded state: %w", r.Label, err)
		}

		switch {
		case patchDoc == nil:
			unchanged = append(unchanged, r)
		case needsReplacement:
			r.PatchDocument = patchDoc
			updates = append(updates, newResourceUpdate(OperationReplace, r, prior, desired.Target))
		default:
			r.NativeID = prior.NativeID
			r.ReadOnlyProperties = prior.ReadOnlyProperties
			r.PatchDocument = patchDoc
			updates = append(updates, newResourceUpdate(OperationUpdate, r, prior, desired.Target))
		}
	}

	updates = append(updates, updatesForReplacedDependencies(updates, unchanged, existingByLabel, desired.Target)...)

	for _, prior := range existing {
		if _, ok := declared[prior.Label]; !ok {
			updates = append(updates, newResourceUpdate(OperationDelete, pkgmodel.Resource{}, prior, desired.Target))
		}
	}

	return updates, nil
}

// updatesForReplacedDependencies turns unchanged resources that reference a replaced
// resource into updates; the replacement may hand out new attribute values.
func updatesForReplacedDependencies(updates []ResourceUpdate, unchanged []pkgmodel.Resource, existingByLabel map[string]pkgmodel.Resource, target pkgmodel.Target) []ResourceUpdate {
	replaced := make(map[pkgmodel.ResourceURI]struct{})
	for _, u := range updates {
		if u.Operation == OperationReplace {
			replaced[u.URI()] = struct{}{}
		}
	}
	if len(replaced) == 0 {
		return nil
	}

	var dependents []ResourceUpdate
	for _, r := range unchanged {
		for _, uri := range resolver.ExtractResolvableURIs(r) {
			if _, ok := replaced[uri.Stripped()]; !ok {
				continue
			}
			prior := existingByLabel[r.Label]
			r.NativeID = prior.NativeID
			r.ReadOnlyProperties = prior.ReadOnlyProperties
			u := newResourceUpdate(OperationUpdate, r, prior, target)
			u.Reason = fmt.Sprintf("references replaced resource %s", uri.Label())
			slog.Debug("Updating dependent of replaced resource", "label", r.Label, "dependency", uri.Label())
			dependents = append(dependents, u)
			break
		}
	}

	return dependents
}

func generateResourceUpdatesForDestroy(target pkgmodel.Target, existing []pkgmodel.Resource) []ResourceUpdate {
	updates := make([]ResourceUpdate, 0, len(existing))
	for _, prior := range existing {
		updates = append(updates, newResourceUpdate(OperationDelete, pkgmodel.Resource{}, prior, target))
	}

	return updates
}

func generateResourceUpdatesForSync(target pkgmodel.Target, existing []pkgmodel.Resource) []ResourceUpdate {
	var updates []ResourceUpdate
	for _, prior := range existing {
		if prior.NativeID == "" {
			continue
		}
		updates = append(updates, newResourceUpdate(OperationRead, prior, prior, target))
	}

	return updates
}

// resolvablePropertiesOf collects the recorded values that r references. References to
// resources without a recorded value are left out.
func resolvablePropertiesOf(r pkgmodel.Resource, existing []pkgmodel.Resource) resolver.ResolvableProperties {
	props := resolver.NewResolvableProperties()
	byURI := make(map[pkgmodel.ResourceURI]pkgmodel.Resource, len(existing))
	for _, e := range existing {
		byURI[e.URI()] = e
	}

	for _, uri := range resolver.ExtractResolvableURIs(r) {
		target, ok := byURI[uri.Stripped()]
		if !ok {
			continue
		}
		if value, found := resolver.LookupProperty(target, uri.PropertyPath()); found {
			props.Add(uri.Stripped(), uri.PropertyPath(), value)
		}
	}

	return props
}

func newResourceUpdate(operation OperationType, r pkgmodel.Resource, prior pkgmodel.Resource, target pkgmodel.Target) ResourceUpdate {
	return ResourceUpdate{
		Resource:         r,
		ExistingResource: prior,
		Target:           target,
		Operation:        operation,
		State:            ResourceUpdateStateNotStarted,
	}
}
