// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource_update

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

func queueResource() pkgmodel.Resource {
	return pkgmodel.Resource{
		Label:      "CommandQueue",
		Type:       "AWS::SQS::Queue",
		Stack:      "S",
		Managed:    true,
		Schema:     pkgmodel.Schema{Identifier: "QueueUrl", Fields: []string{"QueueName", "RedrivePolicy"}},
		Properties: json.RawMessage(`{"QueueName": "q", "RedrivePolicy": {"deadLetterTargetArn": {"$ref": "ralph://S/CommandDLQ#/Arn"}}}`),
		DependsOn:  []string{"Other", "CommandQueue"},
	}
}

func TestRecordProgress_CreateSuccessRecordsAttributes(t *testing.T) {
	now := time.Now()
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationCreate, State: ResourceUpdateStateNotStarted}

	err := ru.RecordProgress(&resource.ProgressResult{
		Operation:          resource.OperationCreate,
		OperationStatus:    resource.OperationStatusSuccess,
		NativeID:           "https://sqs.us-east-1.amazonaws.com/1/q",
		ResourceProperties: json.RawMessage(`{"QueueName": "q", "Arn": "arn:aws:sqs:us-east-1:1:q", "QueueUrl": "https://sqs.us-east-1.amazonaws.com/1/q"}`),
		StartTs:            now,
		ModifiedTs:         now,
	})
	require.NoError(t, err)

	assert.Equal(t, ResourceUpdateStateSuccess, ru.State)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/1/q", ru.Resource.NativeID)
	assert.JSONEq(t, `{"Arn": "arn:aws:sqs:us-east-1:1:q", "QueueUrl": "https://sqs.us-east-1.amazonaws.com/1/q"}`, string(ru.Resource.ReadOnlyProperties))
	assert.Contains(t, string(ru.Resource.Properties), "$ref", "declared properties are kept")
	assert.Equal(t, now, ru.StartTs)
}

func TestRecordProgress_InProgressKeepsProperties(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationCreate}

	err := ru.RecordProgress(&resource.ProgressResult{
		Operation:          resource.OperationCreate,
		OperationStatus:    resource.OperationStatusInProgress,
		RequestID:          "req-1",
		ResourceProperties: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	assert.Equal(t, ResourceUpdateStateInProgress, ru.State)
	assert.Nil(t, ru.Resource.ReadOnlyProperties)
	assert.Equal(t, "req-1", ru.MostRecentProgressResult.RequestID)
}

func TestUpdateState_ReplaceNeedsBothOperations(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationReplace}

	require.NoError(t, ru.RecordProgress(&resource.ProgressResult{
		Operation:       resource.OperationDelete,
		OperationStatus: resource.OperationStatusSuccess,
	}))
	assert.Equal(t, ResourceUpdateStateInProgress, ru.State)

	require.NoError(t, ru.RecordProgress(&resource.ProgressResult{
		Operation:       resource.OperationCreate,
		OperationStatus: resource.OperationStatusSuccess,
		NativeID:        "new",
	}))
	assert.Equal(t, ResourceUpdateStateSuccess, ru.State)
	assert.Len(t, ru.ProgressResult, 2)
}

func TestUpdateState_NonRecoverableFailure(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationUpdate}

	require.NoError(t, ru.RecordProgress(&resource.ProgressResult{
		Operation:       resource.OperationUpdate,
		OperationStatus: resource.OperationStatusFailure,
		ErrorCode:       resource.OperationErrorCodeAccessDenied,
		StatusMessage:   "not authorized",
	}))

	assert.Equal(t, ResourceUpdateStateFailed, ru.State)
	assert.Equal(t, "not authorized", ru.MostRecentFailureMessage())
}

func TestUpdateState_RecoverableFailureIsStillInProgress(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationUpdate}

	require.NoError(t, ru.RecordProgress(&resource.ProgressResult{
		Operation:       resource.OperationUpdate,
		OperationStatus: resource.OperationStatusFailure,
		ErrorCode:       resource.OperationErrorCodeThrottling,
		Attempts:        1,
		MaxAttempts:     3,
	}))

	assert.Equal(t, ResourceUpdateStateInProgress, ru.State)
}

func TestDependencies_CombinesReferencesAndExplicitDependencies(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationCreate}

	assert.Equal(t, []pkgmodel.ResourceURI{
		"ralph://S/CommandDLQ#",
		"ralph://S/Other#",
	}, ru.Dependencies())
}

func TestDependencies_DeleteUsesRecordedState(t *testing.T) {
	prior := queueResource()
	prior.DependsOn = nil
	ru := &ResourceUpdate{ExistingResource: prior, Operation: OperationDelete}

	assert.Equal(t, []pkgmodel.ResourceURI{"ralph://S/CommandDLQ#"}, ru.Dependencies())
	assert.Equal(t, "CommandQueue", ru.Label())
	assert.Equal(t, pkgmodel.ResourceURI("ralph://S/CommandQueue#"), ru.URI())
	assert.Equal(t, "AWS", ru.Namespace())
}

func TestResolveValue(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationCreate}

	require.NoError(t, ru.ResolveValue("ralph://S/CommandDLQ#/Arn", "arn:dlq"))
	assert.Contains(t, string(ru.Resource.Properties), `"$value":"arn:dlq"`)

	assert.Error(t, ru.ResolveValue("ralph://S/Missing#/Arn", "x"))
}

func TestIsImported(t *testing.T) {
	r := queueResource()
	assert.False(t, (&ResourceUpdate{Resource: r}).IsImported())

	r.Managed = false
	assert.True(t, (&ResourceUpdate{Resource: r}).IsImported())
	assert.True(t, (&ResourceUpdate{ExistingResource: r}).IsImported())
}

func TestReject(t *testing.T) {
	ru := &ResourceUpdate{Resource: queueResource(), Operation: OperationCreate}
	ru.Reject("upstream failed")

	assert.Equal(t, ResourceUpdateStateRejected, ru.State)
	assert.Equal(t, "upstream failed", ru.MostRecentFailureMessage())
	assert.False(t, ru.ModifiedTs.IsZero())
}
