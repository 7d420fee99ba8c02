// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package fake

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

func createQueue(t *testing.T, p *Provider, name string) *resource.ProgressResult {
	t.Helper()
	result, err := p.Create(context.Background(), &resource.CreateRequest{
		DesiredState: &model.Resource{
			Label:      name,
			Type:       descriptors.SQSQueue,
			Properties: json.RawMessage(`{"QueueName":"` + name + `"}`),
		},
		Target: &model.Target{Region: "eu-west-1"},
	})
	require.NoError(t, err)
	return result.ProgressResult
}

func TestProvider_CreateFabricatesAttributes(t *testing.T) {
	p := New()

	progress := createQueue(t, p, "jobs")

	assert.Equal(t, resource.OperationStatusSuccess, progress.OperationStatus)
	assert.Equal(t, "https://sqs.eu-west-1.amazonaws.com/123456789012/jobs", progress.NativeID)

	var props map[string]any
	require.NoError(t, json.Unmarshal(progress.ResourceProperties, &props))
	assert.Equal(t, "arn:aws:sqs:eu-west-1:123456789012:jobs", props["Arn"])
	assert.Equal(t, 1, p.Count(descriptors.SQSQueue))
}

func TestProvider_CreateTwiceFails(t *testing.T) {
	p := New()
	createQueue(t, p, "jobs")

	progress := createQueue(t, p, "jobs")

	assert.Equal(t, resource.OperationStatusFailure, progress.OperationStatus)
	assert.Equal(t, resource.OperationErrorCodeAlreadyExists, progress.ErrorCode)
}

func TestProvider_UpdateKeepsAttributes(t *testing.T) {
	p := New()
	nativeID := createQueue(t, p, "jobs").NativeID

	result, err := p.Update(context.Background(), &resource.UpdateRequest{
		NativeID: &nativeID,
		DesiredState: &model.Resource{
			Type:       descriptors.SQSQueue,
			Properties: json.RawMessage(`{"QueueName":"jobs","VisibilityTimeout":60}`),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, result.ProgressResult.OperationStatus)

	props, ok := p.Properties(nativeID)
	require.True(t, ok)
	assert.EqualValues(t, 60, props["VisibilityTimeout"])
	assert.Contains(t, props, "Arn")
}

func TestProvider_DeleteAndReadMissing(t *testing.T) {
	p := New()
	nativeID := createQueue(t, p, "jobs").NativeID

	deleted, err := p.Delete(context.Background(), &resource.DeleteRequest{NativeID: &nativeID, ResourceType: descriptors.SQSQueue})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, deleted.ProgressResult.OperationStatus)

	again, err := p.Delete(context.Background(), &resource.DeleteRequest{NativeID: &nativeID, ResourceType: descriptors.SQSQueue})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotFound, again.ProgressResult.ErrorCode)

	read, err := p.Read(context.Background(), &resource.ReadRequest{NativeID: nativeID, ResourceType: descriptors.SQSQueue})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotFound, read.ErrorCode)
}

func TestProvider_AsyncCompletesThroughStatus(t *testing.T) {
	p := New()
	p.Async = true

	progress := createQueue(t, p, "jobs")
	require.Equal(t, resource.OperationStatusInProgress, progress.OperationStatus)

	status, err := p.Status(context.Background(), &resource.StatusRequest{RequestID: progress.RequestID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, status.ProgressResult.OperationStatus)
	assert.NotEmpty(t, status.ProgressResult.ResourceProperties)

	_, err = p.Status(context.Background(), &resource.StatusRequest{RequestID: progress.RequestID})
	assert.Error(t, err)
}

func TestProvider_OverridesTakePrecedence(t *testing.T) {
	p := New()
	ctx := plugin.WithOverrides(context.Background(), &plugin.ResourcePluginOverrides{
		Create: func(*resource.CreateRequest) (*resource.CreateResult, error) {
			return nil, errors.New("boom")
		},
	})

	_, err := p.Create(ctx, &resource.CreateRequest{DesiredState: &model.Resource{Type: descriptors.SQSQueue, Properties: json.RawMessage(`{}`)}})

	assert.EqualError(t, err, "boom")
	assert.Empty(t, p.Calls())
}
