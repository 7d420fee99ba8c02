// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package stack_command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func update(label string, op types.OperationType, state types.ResourceUpdateState) resource_update.ResourceUpdate {
	return resource_update.ResourceUpdate{
		Resource:  pkgmodel.Resource{Label: label, Stack: "S", Type: "AWS::SQS::Queue", Managed: true},
		Operation: op,
		State:     state,
	}
}

func TestNewStackCommand(t *testing.T) {
	cmd := NewStackCommand("S", pkgmodel.CommandApply, nil, "cli")

	assert.NotEmpty(t, cmd.ID)
	assert.Equal(t, types.CommandStatePending, cmd.State)
	assert.False(t, cmd.HasChanges())
	assert.False(t, cmd.IsInFinalState())
}

func TestUpsertResourceUpdate_ReplacesSameResourceAndOperation(t *testing.T) {
	cmd := NewStackCommand("S", pkgmodel.CommandApply, []resource_update.ResourceUpdate{
		update("CommandDLQ", types.OperationDelete, types.ResourceUpdateStateNotStarted),
		update("CommandDLQ", types.OperationCreate, types.ResourceUpdateStateNotStarted),
	}, "")

	cmd.UpsertResourceUpdate(update("CommandDLQ", types.OperationCreate, types.ResourceUpdateStateSuccess))
	cmd.UpsertResourceUpdate(update("CommandQueue", types.OperationUpdate, types.ResourceUpdateStateSuccess))

	assert.Len(t, cmd.ResourceUpdates, 3)
	assert.Equal(t, types.ResourceUpdateStateNotStarted, cmd.ResourceUpdates[0].State)
	assert.Equal(t, types.ResourceUpdateStateSuccess, cmd.ResourceUpdates[1].State)
}

func TestFinish(t *testing.T) {
	cmd := NewStackCommand("S", pkgmodel.CommandApply, []resource_update.ResourceUpdate{
		update("CommandDLQ", types.OperationCreate, types.ResourceUpdateStateSuccess),
	}, "")
	cmd.Finish()
	assert.Equal(t, types.CommandStateSuccess, cmd.State)
	assert.True(t, cmd.IsInFinalState())

	cmd.UpsertResourceUpdate(update("CommandQueue", types.OperationCreate, types.ResourceUpdateStateRejected))
	cmd.Finish()
	assert.Equal(t, types.CommandStateFailed, cmd.State)
	assert.Equal(t, map[types.ResourceUpdateState]int{
		types.ResourceUpdateStateSuccess:  1,
		types.ResourceUpdateStateRejected: 1,
	}, cmd.CountByState())
}
