// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package stack_command

import (
	"time"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// StackCommand is one apply, destroy or sync run against a stack, together with the
// resource updates it executes.
type StackCommand struct {
	ID              string                           `json:"ID"`
	StackLabel      string                           `json:"StackLabel"`
	Command         pkgmodel.Command                 `json:"Command"`
	State           types.CommandState               `json:"State"`
	StartTs         time.Time                        `json:"StartTs"`
	ModifiedTs      time.Time                        `json:"ModifiedTs"`
	ResourceUpdates []resource_update.ResourceUpdate `json:"ResourceUpdates,omitempty"`
	ClientID        string                           `json:"ClientId,omitempty"`
}

func NewStackCommand(stackLabel string, command pkgmodel.Command, resourceUpdates []resource_update.ResourceUpdate, clientID string) *StackCommand {
	now := util.TimeNow()
	return &StackCommand{
		ID:              util.NewID(),
		StackLabel:      stackLabel,
		Command:         command,
		State:           types.CommandStatePending,
		StartTs:         now,
		ModifiedTs:      now,
		ResourceUpdates: resourceUpdates,
		ClientID:        clientID,
	}
}

func (sc *StackCommand) HasChanges() bool {
	return len(sc.ResourceUpdates) > 0
}

func (sc *StackCommand) IsInFinalState() bool {
	return sc.State == types.CommandStateSuccess ||
		sc.State == types.CommandStateFailed ||
		sc.State == types.CommandStateCanceled
}

// UpsertResourceUpdate replaces the update for the same resource and operation, or appends it.
func (sc *StackCommand) UpsertResourceUpdate(update resource_update.ResourceUpdate) {
	for i := range sc.ResourceUpdates {
		existing := &sc.ResourceUpdates[i]
		if existing.URI() == update.URI() && existing.Operation == update.Operation {
			*existing = update
			return
		}
	}
	sc.ResourceUpdates = append(sc.ResourceUpdates, update)
}

// Finish derives the final state from the resource updates.
func (sc *StackCommand) Finish() {
	sc.State = types.CommandStateSuccess
	for _, ru := range sc.ResourceUpdates {
		if ru.State != resource_update.ResourceUpdateStateSuccess {
			sc.State = types.CommandStateFailed
			break
		}
	}
	sc.ModifiedTs = util.TimeNow()
}

// CountByState tallies the resource updates per state.
func (sc *StackCommand) CountByState() map[resource_update.ResourceUpdateState]int {
	counts := make(map[resource_update.ResourceUpdateState]int)
	for _, ru := range sc.ResourceUpdates {
		counts[ru.State]++
	}
	return counts
}
