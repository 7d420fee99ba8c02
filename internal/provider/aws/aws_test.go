// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	cctypes "github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const queueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/resuralph-command-queue"

type mockCloudControl struct {
	createErr  error
	created    *cloudcontrol.CreateResourceInput
	updated    *cloudcontrol.UpdateResourceInput
	deleteErr  error
	status     cctypes.OperationStatus
	errorCode  cctypes.HandlerErrorCode
	properties string
	getErr     error
}

func (m *mockCloudControl) CreateResource(_ context.Context, params *cloudcontrol.CreateResourceInput, _ ...func(*cloudcontrol.Options)) (*cloudcontrol.CreateResourceOutput, error) {
	m.created = params
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &cloudcontrol.CreateResourceOutput{ProgressEvent: &cctypes.ProgressEvent{
		Operation:       cctypes.OperationCreate,
		OperationStatus: cctypes.OperationStatusInProgress,
		RequestToken:    aws.String("token-1"),
		TypeName:        params.TypeName,
	}}, nil
}

func (m *mockCloudControl) UpdateResource(_ context.Context, params *cloudcontrol.UpdateResourceInput, _ ...func(*cloudcontrol.Options)) (*cloudcontrol.UpdateResourceOutput, error) {
	m.updated = params
	return &cloudcontrol.UpdateResourceOutput{ProgressEvent: &cctypes.ProgressEvent{
		Operation:       cctypes.OperationUpdate,
		OperationStatus: cctypes.OperationStatusInProgress,
		Identifier:      params.Identifier,
		RequestToken:    aws.String("token-2"),
	}}, nil
}

func (m *mockCloudControl) DeleteResource(_ context.Context, params *cloudcontrol.DeleteResourceInput, _ ...func(*cloudcontrol.Options)) (*cloudcontrol.DeleteResourceOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &cloudcontrol.DeleteResourceOutput{ProgressEvent: &cctypes.ProgressEvent{
		Operation:       cctypes.OperationDelete,
		OperationStatus: cctypes.OperationStatusInProgress,
		Identifier:      params.Identifier,
		RequestToken:    aws.String("token-3"),
	}}, nil
}

func (m *mockCloudControl) GetResource(_ context.Context, params *cloudcontrol.GetResourceInput, _ ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &cloudcontrol.GetResourceOutput{
		TypeName: params.TypeName,
		ResourceDescription: &cctypes.ResourceDescription{
			Identifier: params.Identifier,
			Properties: aws.String(m.properties),
		},
	}, nil
}

func (m *mockCloudControl) GetResourceRequestStatus(_ context.Context, params *cloudcontrol.GetResourceRequestStatusInput, _ ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceRequestStatusOutput, error) {
	return &cloudcontrol.GetResourceRequestStatusOutput{ProgressEvent: &cctypes.ProgressEvent{
		OperationStatus: m.status,
		ErrorCode:       m.errorCode,
		Identifier:      aws.String(queueURL),
		RequestToken:    params.RequestToken,
		EventTime:       aws.Time(time.Now()),
		StatusMessage:   aws.String("handler message"),
	}}, nil
}

func newTestAWS(api cloudControlAPI) *AWS {
	return &AWS{newClient: func(context.Context, *Config) (*Client, error) {
		return &Client{api: api}, nil
	}}
}

func queueResource() *model.Resource {
	schema, _ := descriptors.Lookup(descriptors.SQSQueue)
	return &model.Resource{
		Label:      "CommandQueue",
		Type:       descriptors.SQSQueue,
		Stack:      "ResuralphPythonStack",
		Schema:     schema,
		Properties: []byte(`{"QueueName":"resuralph-command-queue","VisibilityTimeout":60}`),
		Managed:    true,
	}
}

func TestAWS_SupportsDeclaredResourceTypes(t *testing.T) {
	a := New()

	var types []string
	for _, d := range a.SupportedResources() {
		types = append(types, d.Type)
	}
	assert.Contains(t, types, descriptors.SQSQueue)
	assert.Contains(t, types, descriptors.LambdaFunction)
	assert.Contains(t, types, descriptors.IAMManagedPolicy)

	_, err := a.SchemaForResourceType("AWS::EC2::VPC")
	assert.Error(t, err)
	assert.Equal(t, MaxRequestsPerSecond, a.Throttling().MaxRequestsPerSecondForNamespace)
}

func TestCreate_SendsDesiredStateAndReturnsRequestToken(t *testing.T) {
	api := &mockCloudControl{}
	result, err := newTestAWS(api).Create(context.Background(), &resource.CreateRequest{DesiredState: queueResource()})
	require.NoError(t, err)

	assert.Equal(t, descriptors.SQSQueue, aws.ToString(api.created.TypeName))
	assert.JSONEq(t, `{"QueueName":"resuralph-command-queue","VisibilityTimeout":60}`, aws.ToString(api.created.DesiredState))
	assert.NotEmpty(t, aws.ToString(api.created.ClientToken))
	assert.Equal(t, resource.OperationStatusInProgress, result.ProgressResult.OperationStatus)
	assert.Equal(t, "token-1", result.ProgressResult.RequestID)
}

func TestCreate_MapsSynchronousExceptions(t *testing.T) {
	api := &mockCloudControl{createErr: &smithy.GenericAPIError{Code: "AlreadyExistsException", Message: "exists"}}
	result, err := newTestAWS(api).Create(context.Background(), &resource.CreateRequest{DesiredState: queueResource()})
	require.NoError(t, err)

	assert.Equal(t, resource.OperationStatusFailure, result.ProgressResult.OperationStatus)
	assert.Equal(t, resource.OperationErrorCodeAlreadyExists, result.ProgressResult.ErrorCode)
}

func TestCreate_ReturnsNonAPIErrors(t *testing.T) {
	api := &mockCloudControl{createErr: errors.New("connection reset")}
	_, err := newTestAWS(api).Create(context.Background(), &resource.CreateRequest{DesiredState: queueResource()})
	assert.ErrorContains(t, err, "connection reset")
}

func TestUpdate_SendsPatchDocument(t *testing.T) {
	api := &mockCloudControl{}
	patch := `[{"op":"replace","path":"/VisibilityTimeout","value":900}]`
	result, err := newTestAWS(api).Update(context.Background(), &resource.UpdateRequest{
		NativeID:      aws.String(queueURL),
		DesiredState:  queueResource(),
		PatchDocument: &patch,
	})
	require.NoError(t, err)

	assert.Equal(t, queueURL, aws.ToString(api.updated.Identifier))
	assert.Equal(t, patch, aws.ToString(api.updated.PatchDocument))
	assert.Equal(t, "token-2", result.ProgressResult.RequestID)
}

func TestUpdate_EmptyPatchSucceedsWithoutCall(t *testing.T) {
	api := &mockCloudControl{}
	result, err := newTestAWS(api).Update(context.Background(), &resource.UpdateRequest{
		NativeID:     aws.String(queueURL),
		DesiredState: queueResource(),
	})
	require.NoError(t, err)

	assert.Nil(t, api.updated)
	assert.True(t, result.ProgressResult.FinishedSuccessfully())
}

func TestDelete_MissingResourceReportsNotFound(t *testing.T) {
	api := &mockCloudControl{deleteErr: &smithy.GenericAPIError{Code: "ResourceNotFoundException"}}
	result, err := newTestAWS(api).Delete(context.Background(), &resource.DeleteRequest{
		NativeID:     aws.String(queueURL),
		ResourceType: descriptors.SQSQueue,
	})
	require.NoError(t, err)

	assert.Equal(t, resource.OperationErrorCodeNotFound, result.ProgressResult.ErrorCode)
	assert.Equal(t, queueURL, result.ProgressResult.NativeID)
}

func TestStatus_SuccessReadsResourceModel(t *testing.T) {
	api := &mockCloudControl{
		status:     cctypes.OperationStatusSuccess,
		properties: `{"QueueName":"resuralph-command-queue","Arn":"arn:aws:sqs:us-east-1:123456789012:resuralph-command-queue"}`,
	}
	result, err := newTestAWS(api).Status(context.Background(), &resource.StatusRequest{
		RequestID:    "token-1",
		ResourceType: descriptors.SQSQueue,
		Operation:    resource.OperationCreate,
	})
	require.NoError(t, err)

	progress := result.ProgressResult
	assert.True(t, progress.FinishedSuccessfully())
	assert.Equal(t, queueURL, progress.NativeID)
	assert.JSONEq(t, api.properties, string(progress.ResourceProperties))
}

func TestStatus_FailureCarriesHandlerErrorCode(t *testing.T) {
	api := &mockCloudControl{status: cctypes.OperationStatusFailed, errorCode: cctypes.HandlerErrorCodeThrottling}
	result, err := newTestAWS(api).Status(context.Background(), &resource.StatusRequest{
		RequestID:    "token-1",
		ResourceType: descriptors.SQSQueue,
		Operation:    resource.OperationCreate,
	})
	require.NoError(t, err)

	assert.Equal(t, resource.OperationStatusFailure, result.ProgressResult.OperationStatus)
	assert.Equal(t, resource.OperationErrorCodeThrottling, result.ProgressResult.ErrorCode)
	assert.True(t, resource.IsRecoverable(result.ProgressResult.ErrorCode))
	assert.Empty(t, result.ProgressResult.ResourceProperties)
}

func TestStatus_PendingIsStillInProgress(t *testing.T) {
	api := &mockCloudControl{status: cctypes.OperationStatusPending}
	result, err := newTestAWS(api).Status(context.Background(), &resource.StatusRequest{RequestID: "token-1", Operation: resource.OperationDelete})
	require.NoError(t, err)

	assert.True(t, result.ProgressResult.InProgress())
}

func TestRead_NotFound(t *testing.T) {
	api := &mockCloudControl{getErr: &smithy.GenericAPIError{Code: "ResourceNotFoundException"}}
	result, err := newTestAWS(api).Read(context.Background(), &resource.ReadRequest{NativeID: queueURL, ResourceType: descriptors.SQSQueue})
	require.NoError(t, err)

	assert.Equal(t, resource.OperationErrorCodeNotFound, result.ErrorCode)
}

func TestRead_ManagedPolicyIsRoutedToProvisioner(t *testing.T) {
	assert.True(t, HasProvisioner(descriptors.IAMManagedPolicy, resource.OperationRead))
	assert.False(t, HasProvisioner(descriptors.IAMManagedPolicy, resource.OperationCreate))
	assert.False(t, HasProvisioner(descriptors.SQSQueue, resource.OperationRead))
}

type mockIAM struct {
	policy *iamtypes.Policy
	err    error
}

func (m *mockIAM) GetPolicy(_ context.Context, params *iam.GetPolicyInput, _ ...func(*iam.Options)) (*iam.GetPolicyOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &iam.GetPolicyOutput{Policy: m.policy}, nil
}

func TestManagedPolicy_Read(t *testing.T) {
	arn := "arn:aws:iam::123456789012:policy/resuralph-s3-dynamodb"
	client := &mockIAM{policy: &iamtypes.Policy{
		Arn:              aws.String(arn),
		PolicyName:       aws.String("resuralph-s3-dynamodb"),
		DefaultVersionId: aws.String("v3"),
		AttachmentCount:  aws.Int32(2),
	}}

	result, err := (&ManagedPolicy{}).readWithClient(context.Background(), client, &resource.ReadRequest{
		NativeID:     arn,
		ResourceType: descriptors.IAMManagedPolicy,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"PolicyArn":"`+arn+`","PolicyName":"resuralph-s3-dynamodb","DefaultVersionId":"v3","AttachmentCount":2}`, result.Properties)
}

func TestManagedPolicy_ReadMissingPolicy(t *testing.T) {
	client := &mockIAM{err: &iamtypes.NoSuchEntityException{Message: aws.String("not found")}}

	result, err := (&ManagedPolicy{}).readWithClient(context.Background(), client, &resource.ReadRequest{
		NativeID:     "arn:aws:iam::123456789012:policy/missing",
		ResourceType: descriptors.IAMManagedPolicy,
	})
	require.NoError(t, err)

	assert.Equal(t, resource.OperationErrorCodeNotFound, result.ErrorCode)
}
