// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package resource_update

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/metastructure/plugin_operation"
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/internal/provider/fake"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const (
	dlqArn      = "arn:aws:sqs:us-east-1:123456789012:resuralph-command-dlq"
	commandsURL = "https://sqs.us-east-1.amazonaws.com/123456789012/resuralph-commands"
	policyArn   = "arn:aws:iam::123456789012:policy/resuralph-shared"
)

var testTarget = pkgmodel.Target{Label: "aws", Namespace: fake.Namespace, Region: "us-east-1"}

func newTestUpdater(provider *fake.Provider) *ResourceUpdater {
	return NewResourceUpdater(plugin_operation.NewOperator(plugin.NewManager(provider), pkgmodel.RetryConfig{
		StatusCheckInterval: time.Millisecond,
		MaxRetries:          2,
		RetryDelay:          time.Millisecond,
	}))
}

func schemaOf(t *testing.T, resourceType string) pkgmodel.Schema {
	schema, ok := descriptors.Lookup(resourceType)
	require.True(t, ok)
	return schema
}

func deployedDLQ(t *testing.T) pkgmodel.Resource {
	return pkgmodel.Resource{
		Label:              "CommandDLQ",
		Type:               descriptors.SQSQueue,
		Stack:              "S",
		Managed:            true,
		Schema:             schemaOf(t, descriptors.SQSQueue),
		Properties:         json.RawMessage(`{"QueueName":"resuralph-command-dlq"}`),
		ReadOnlyProperties: json.RawMessage(`{"Arn":"` + dlqArn + `"}`),
		NativeID:           "https://sqs.us-east-1.amazonaws.com/123456789012/resuralph-command-dlq",
	}
}

func commandQueue(t *testing.T, visibilityTimeout int) pkgmodel.Resource {
	props, err := json.Marshal(map[string]any{
		"QueueName":         "resuralph-commands",
		"VisibilityTimeout": visibilityTimeout,
		"RedrivePolicy": map[string]any{
			"deadLetterTargetArn": map[string]any{"$ref": "ralph://S/CommandDLQ#/Arn"},
			"maxReceiveCount":     3,
		},
	})
	require.NoError(t, err)

	return pkgmodel.Resource{
		Label:      "CommandQueue",
		Type:       descriptors.SQSQueue,
		Stack:      "S",
		Managed:    true,
		Schema:     schemaOf(t, descriptors.SQSQueue),
		Properties: props,
	}
}

// deployedCommandQueue is the command queue as the executor records it after a create:
// references keep their resolved value next to the $ref.
func deployedCommandQueue(t *testing.T, visibilityTimeout int) pkgmodel.Resource {
	r := commandQueue(t, visibilityTimeout)
	props, err := json.Marshal(map[string]any{
		"QueueName":         "resuralph-commands",
		"VisibilityTimeout": visibilityTimeout,
		"RedrivePolicy": map[string]any{
			"deadLetterTargetArn": map[string]any{"$ref": "ralph://S/CommandDLQ#/Arn", "$value": dlqArn},
			"maxReceiveCount":     3,
		},
	})
	require.NoError(t, err)
	r.Properties = props
	r.NativeID = commandsURL
	return r
}

func TestResourceUpdater_CreateResolvesReferences(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	var snapshots []ResourceUpdate
	ru := ResourceUpdate{Resource: commandQueue(t, 30), Operation: OperationCreate, Target: testTarget}
	result := updater.Run(context.Background(), ru, []pkgmodel.Resource{deployedDLQ(t)}, func(s ResourceUpdate) {
		snapshots = append(snapshots, s)
	})

	assert.Equal(t, ResourceUpdateStateSuccess, result.State)
	assert.Equal(t, commandsURL, result.Resource.NativeID)
	assert.Contains(t, string(result.Resource.Properties), `"$value"`, "stored properties keep the resolved reference")
	assert.Contains(t, string(result.Resource.ReadOnlyProperties), "QueueUrl")
	require.NotEmpty(t, snapshots)

	stored, ok := provider.Properties(commandsURL)
	require.True(t, ok)
	redrive := stored["RedrivePolicy"].(map[string]any)
	assert.Equal(t, dlqArn, redrive["deadLetterTargetArn"], "the provider receives plain values")
}

func TestResourceUpdater_CreateWithUnresolvableReferenceFails(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	ru := ResourceUpdate{Resource: commandQueue(t, 30), Operation: OperationCreate, Target: testTarget}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateFailed, result.State)
	assert.Equal(t, resource.OperationErrorCodeUnresolvable, result.MostRecentProgressResult.ErrorCode)
	assert.Empty(t, provider.Calls())
}

func TestResourceUpdater_CreateFailureIsReported(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)
	provider.Seed(descriptors.SQSQueue, commandsURL, map[string]any{"QueueName": "resuralph-commands"})

	ru := ResourceUpdate{Resource: commandQueue(t, 30), Operation: OperationCreate, Target: testTarget}
	result := updater.Run(context.Background(), ru, []pkgmodel.Resource{deployedDLQ(t)}, nil)

	assert.Equal(t, ResourceUpdateStateFailed, result.State)
	assert.Equal(t, resource.OperationErrorCodeAlreadyExists, result.MostRecentProgressResult.ErrorCode)
	assert.Contains(t, result.Reason, "already exists")
}

func TestResourceUpdater_UpdateSendsPatch(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)
	provider.Seed(descriptors.SQSQueue, commandsURL, map[string]any{"QueueName": "resuralph-commands", "VisibilityTimeout": 30})

	existing := deployedCommandQueue(t, 30)
	desired := commandQueue(t, 900)
	desired.NativeID = commandsURL

	ru := ResourceUpdate{Resource: desired, ExistingResource: existing, Operation: OperationUpdate, Target: testTarget}
	result := updater.Run(context.Background(), ru, []pkgmodel.Resource{deployedDLQ(t)}, nil)

	require.Equal(t, ResourceUpdateStateSuccess, result.State, result.Reason)
	require.NotEmpty(t, result.Resource.PatchDocument)
	assert.Contains(t, string(result.Resource.PatchDocument), "/VisibilityTimeout")
	assert.NotContains(t, string(result.Resource.PatchDocument), "RedrivePolicy", "unchanged references stay out of the patch")

	stored, ok := provider.Properties(commandsURL)
	require.True(t, ok)
	assert.EqualValues(t, 900, stored["VisibilityTimeout"])
}

func TestResourceUpdater_ReplaceDeletesThenCreates(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)
	oldURL := "https://sqs.us-east-1.amazonaws.com/123456789012/resuralph-commands-old"
	provider.Seed(descriptors.SQSQueue, oldURL, map[string]any{"QueueName": "resuralph-commands-old"})

	existing := deployedCommandQueue(t, 30)
	existing.NativeID = oldURL

	ru := ResourceUpdate{Resource: commandQueue(t, 30), ExistingResource: existing, Operation: OperationReplace, Target: testTarget}
	result := updater.Run(context.Background(), ru, []pkgmodel.Resource{deployedDLQ(t)}, nil)

	require.Equal(t, ResourceUpdateStateSuccess, result.State, result.Reason)
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, resource.OperationDelete, calls[0].Operation)
	assert.Equal(t, oldURL, calls[0].NativeID)
	assert.Equal(t, resource.OperationCreate, calls[1].Operation)
	assert.Equal(t, commandsURL, result.Resource.NativeID)
}

func TestResourceUpdater_DeleteOfMissingResourceSucceeds(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	existing := deployedDLQ(t)
	ru := ResourceUpdate{ExistingResource: existing, Operation: OperationDelete, Target: testTarget}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateSuccess, result.State)
	assert.Len(t, provider.Calls(), 1)
}

func TestResourceUpdater_DeleteOfImportedResourceOnlyForgets(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)
	provider.Seed(descriptors.IAMManagedPolicy, policyArn, map[string]any{"PolicyArn": policyArn})

	ru := ResourceUpdate{
		ExistingResource: pkgmodel.Resource{Label: "SharedPolicy", Type: descriptors.IAMManagedPolicy, Stack: "S", NativeID: policyArn},
		Operation:        OperationDelete,
		Target:           testTarget,
	}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateSuccess, result.State)
	assert.Empty(t, provider.Calls())
	_, stillThere := provider.Properties(policyArn)
	assert.True(t, stillThere)
}

func TestResourceUpdater_ReadImportedResource(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)
	provider.Seed(descriptors.IAMManagedPolicy, policyArn, map[string]any{"PolicyArn": policyArn, "PolicyName": "resuralph-shared"})

	ru := ResourceUpdate{
		Resource: pkgmodel.Resource{
			Label:      "SharedPolicy",
			Type:       descriptors.IAMManagedPolicy,
			Stack:      "S",
			Schema:     schemaOf(t, descriptors.IAMManagedPolicy),
			Properties: json.RawMessage(`{"PolicyArn":"` + policyArn + `"}`),
			NativeID:   policyArn,
		},
		Operation: OperationRead,
		Target:    testTarget,
	}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateSuccess, result.State)
	assert.JSONEq(t, `{"PolicyName":"resuralph-shared"}`, string(result.Resource.ReadOnlyProperties))
}

func TestResourceUpdater_ReadMissingImportedResourceFails(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	ru := ResourceUpdate{
		Resource:  pkgmodel.Resource{Label: "SharedPolicy", Type: descriptors.IAMManagedPolicy, Stack: "S", NativeID: policyArn},
		Operation: OperationRead,
		Target:    testTarget,
	}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateFailed, result.State)
	assert.Equal(t, resource.OperationErrorCodeNotFound, result.MostRecentProgressResult.ErrorCode)
}

func TestResourceUpdater_SyncOfVanishedResourceReportsNotFound(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	ru := ResourceUpdate{Resource: deployedDLQ(t), Operation: OperationRead, Target: testTarget}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateSuccess, result.State)
	assert.Equal(t, resource.OperationErrorCodeNotFound, result.MostRecentProgressResult.ErrorCode)
	assert.Len(t, provider.Calls(), 1)
}

func TestResourceUpdater_ReadWithoutNativeIDFails(t *testing.T) {
	provider := fake.New()
	updater := newTestUpdater(provider)

	ru := ResourceUpdate{Resource: pkgmodel.Resource{Label: "SharedPolicy", Type: descriptors.IAMManagedPolicy, Stack: "S"}, Operation: OperationRead}
	result := updater.Run(context.Background(), ru, nil, nil)

	assert.Equal(t, ResourceUpdateStateFailed, result.State)
	assert.Equal(t, resource.OperationErrorCodeInvalidRequest, result.MostRecentProgressResult.ErrorCode)
	assert.Empty(t, provider.Calls())
}
