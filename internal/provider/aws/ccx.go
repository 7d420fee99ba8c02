// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	cctypes "github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/google/uuid"

	"github.com/resuralph/ralphstack/internal/metastructure/util"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

type cloudControlAPI interface {
	CreateResource(ctx context.Context, params *cloudcontrol.CreateResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.CreateResourceOutput, error)
	UpdateResource(ctx context.Context, params *cloudcontrol.UpdateResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.UpdateResourceOutput, error)
	DeleteResource(ctx context.Context, params *cloudcontrol.DeleteResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.DeleteResourceOutput, error)
	GetResource(ctx context.Context, params *cloudcontrol.GetResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceOutput, error)
	GetResourceRequestStatus(ctx context.Context, params *cloudcontrol.GetResourceRequestStatusInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceRequestStatusOutput, error)
}

// Client drives resource operations through the Cloud Control API. Create, update and
// delete return the request token; Status polls it until the handler finishes.
type Client struct {
	api cloudControlAPI
}

func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := cfg.ToAwsConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config: %w", err)
	}
	return &Client{api: cloudcontrol.NewFromConfig(awsCfg)}, nil
}

func (c *Client) CreateResource(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	desired := request.DesiredState
	out, err := c.api.CreateResource(ctx, &cloudcontrol.CreateResourceInput{
		TypeName:     aws.String(desired.Type),
		DesiredState: aws.String(string(desired.Properties)),
		ClientToken:  aws.String(uuid.NewString()),
	})
	if err != nil {
		progress, err := failureFromError(resource.OperationCreate, desired.Type, "", err)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", desired.Label, err)
		}
		return &resource.CreateResult{ProgressResult: progress}, nil
	}

	return &resource.CreateResult{ProgressResult: progressFromEvent(out.ProgressEvent, resource.OperationCreate, desired.Type)}, nil
}

func (c *Client) UpdateResource(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	nativeID := util.StringPtrToString(request.NativeID)
	resourceType := request.DesiredState.Type

	// Nothing but read-only properties changed
	if request.PatchDocument == nil || *request.PatchDocument == "" || *request.PatchDocument == "[]" {
		now := util.TimeNow()
		return &resource.UpdateResult{ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationUpdate,
			OperationStatus: resource.OperationStatusSuccess,
			NativeID:        nativeID,
			ResourceType:    resourceType,
			StartTs:         now,
			ModifiedTs:      now,
		}}, nil
	}

	out, err := c.api.UpdateResource(ctx, &cloudcontrol.UpdateResourceInput{
		TypeName:      aws.String(resourceType),
		Identifier:    aws.String(nativeID),
		PatchDocument: request.PatchDocument,
		ClientToken:   aws.String(uuid.NewString()),
	})
	if err != nil {
		progress, err := failureFromError(resource.OperationUpdate, resourceType, nativeID, err)
		if err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", nativeID, err)
		}
		return &resource.UpdateResult{ProgressResult: progress}, nil
	}

	return &resource.UpdateResult{ProgressResult: progressFromEvent(out.ProgressEvent, resource.OperationUpdate, resourceType)}, nil
}

func (c *Client) DeleteResource(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	nativeID := util.StringPtrToString(request.NativeID)
	out, err := c.api.DeleteResource(ctx, &cloudcontrol.DeleteResourceInput{
		TypeName:    aws.String(request.ResourceType),
		Identifier:  aws.String(nativeID),
		ClientToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		progress, err := failureFromError(resource.OperationDelete, request.ResourceType, nativeID, err)
		if err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", nativeID, err)
		}
		return &resource.DeleteResult{ProgressResult: progress}, nil
	}

	return &resource.DeleteResult{ProgressResult: progressFromEvent(out.ProgressEvent, resource.OperationDelete, request.ResourceType)}, nil
}

func (c *Client) ReadResource(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	out, err := c.api.GetResource(ctx, &cloudcontrol.GetResourceInput{
		TypeName:   aws.String(request.ResourceType),
		Identifier: aws.String(request.NativeID),
	})
	if err != nil {
		code, isAPIError := errorCodeOf(err)
		if !isAPIError {
			return nil, fmt.Errorf("failed to read %s: %w", request.NativeID, err)
		}
		slog.Debug("Cloud Control read failed", "type", request.ResourceType, "nativeID", request.NativeID, "error", err)
		return &resource.ReadResult{ResourceType: request.ResourceType, ErrorCode: code}, nil
	}

	var properties string
	if out.ResourceDescription != nil {
		properties = aws.ToString(out.ResourceDescription.Properties)
	}
	return &resource.ReadResult{ResourceType: request.ResourceType, Properties: properties}, nil
}

// StatusResource polls a request token. Successful creates and updates are completed with
// the current resource model so attributes such as Arn become available downstream.
func (c *Client) StatusResource(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	out, err := c.api.GetResourceRequestStatus(ctx, &cloudcontrol.GetResourceRequestStatusInput{
		RequestToken: aws.String(request.RequestID),
	})
	if err != nil {
		progress, err := failureFromError(request.Operation, request.ResourceType, request.NativeID, err)
		if err != nil {
			return nil, fmt.Errorf("failed to get status of request %s: %w", request.RequestID, err)
		}
		progress.RequestID = request.RequestID
		return &resource.StatusResult{ProgressResult: progress}, nil
	}

	progress := progressFromEvent(out.ProgressEvent, request.Operation, request.ResourceType)
	if progress.NativeID == "" {
		progress.NativeID = request.NativeID
	}
	if err := c.completeWithModel(ctx, progress); err != nil {
		return nil, err
	}

	return &resource.StatusResult{ProgressResult: progress}, nil
}

func (c *Client) completeWithModel(ctx context.Context, progress *resource.ProgressResult) error {
	if !progress.FinishedSuccessfully() || progress.Operation == resource.OperationDelete || len(progress.ResourceProperties) > 0 {
		return nil
	}

	read, err := c.ReadResource(ctx, &resource.ReadRequest{NativeID: progress.NativeID, ResourceType: progress.ResourceType})
	if err != nil {
		return err
	}
	if read.ErrorCode != resource.OperationErrorCodeNotSet {
		slog.Warn("Could not read resource after a successful operation", "type", progress.ResourceType, "nativeID", progress.NativeID, "errorCode", read.ErrorCode)
		return nil
	}
	progress.ResourceProperties = []byte(read.Properties)

	return nil
}

func progressFromEvent(event *cctypes.ProgressEvent, operation resource.Operation, resourceType string) *resource.ProgressResult {
	now := util.TimeNow()
	if event == nil {
		return &resource.ProgressResult{
			Operation:       operation,
			OperationStatus: resource.OperationStatusFailure,
			ResourceType:    resourceType,
			StartTs:         now,
			ModifiedTs:      now,
			ErrorCode:       resource.OperationErrorCodeServiceInternalError,
			StatusMessage:   "cloud control returned no progress event",
		}
	}

	progress := &resource.ProgressResult{
		Operation:       operation,
		OperationStatus: operationStatus(event.OperationStatus),
		RequestID:       aws.ToString(event.RequestToken),
		NativeID:        aws.ToString(event.Identifier),
		ResourceType:    resourceType,
		StartTs:         now,
		ModifiedTs:      now,
		ErrorCode:       handlerErrorCode(event.ErrorCode),
		StatusMessage:   aws.ToString(event.StatusMessage),
	}
	if event.EventTime != nil {
		progress.ModifiedTs = event.EventTime.UTC()
	}
	if event.ResourceModel != nil {
		progress.ResourceProperties = []byte(*event.ResourceModel)
	}
	if progress.OperationStatus == resource.OperationStatusFailure && progress.ErrorCode == resource.OperationErrorCodeNotSet {
		progress.ErrorCode = resource.OperationErrorCodeGeneralServiceException
	}

	return progress
}

func operationStatus(status cctypes.OperationStatus) resource.OperationStatus {
	switch status {
	case cctypes.OperationStatusSuccess:
		return resource.OperationStatusSuccess
	case cctypes.OperationStatusFailed, cctypes.OperationStatusCancelComplete:
		return resource.OperationStatusFailure
	case cctypes.OperationStatusPending:
		return resource.OperationStatusPending
	default:
		return resource.OperationStatusInProgress
	}
}

// failureFromError turns an AWS API exception into a failed progress result so the
// operator can decide whether to retry. Other errors are returned unchanged.
func failureFromError(operation resource.Operation, resourceType, nativeID string, err error) (*resource.ProgressResult, error) {
	code, isAPIError := errorCodeOf(err)
	if !isAPIError {
		return nil, err
	}

	now := util.TimeNow()
	return &resource.ProgressResult{
		Operation:       operation,
		OperationStatus: resource.OperationStatusFailure,
		NativeID:        nativeID,
		ResourceType:    resourceType,
		StartTs:         now,
		ModifiedTs:      now,
		ErrorCode:       code,
		StatusMessage:   err.Error(),
	}, nil
}
