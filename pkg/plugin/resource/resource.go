// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource

import (
	"encoding/json"
	"time"

	"github.com/resuralph/ralphstack/pkg/model"
)

type CreateRequest struct {
	DesiredState *model.Resource
	Target       *model.Target
}

type CreateResult struct {
	ProgressResult *ProgressResult
}

type UpdateRequest struct {
	NativeID      *string
	PriorState    *model.Resource // Previous state of the resource
	DesiredState  *model.Resource // New desired state of the resource
	PatchDocument *string
	Target        *model.Target
}

type UpdateResult struct {
	ProgressResult *ProgressResult
}

type DeleteRequest struct {
	NativeID     *string
	ResourceType string
	Target       *model.Target
}

type DeleteResult struct {
	ProgressResult *ProgressResult
}

type StatusRequest struct {
	RequestID    string
	NativeID     string // NativeID returned by initial Create/Update
	ResourceType string
	Operation    Operation
	Target       *model.Target
}

type StatusResult struct {
	ProgressResult *ProgressResult
}

type ReadRequest struct {
	NativeID     string
	ResourceType string
	Target       *model.Target
}

type ReadResult struct {
	ResourceType string
	Properties   string
	ErrorCode    OperationErrorCode `json:"ErrorCode,omitempty"`
}

type ProgressResult struct {
	Operation       Operation
	OperationStatus OperationStatus

	RequestID          string
	NativeID           string // Required - all plugins must set this
	ResourceType       string
	ResourceProperties json.RawMessage    `json:"ResourceProperties,omitempty"`
	StartTs            time.Time          `json:"StartTs"`
	ModifiedTs         time.Time          `json:"ModifiedTs"`
	ErrorCode          OperationErrorCode `json:"ErrorCode,omitempty"`
	StatusMessage      string             `json:"StatusMessage,omitempty"`
	Attempts           int                `json:"Attempts,omitempty"`
	MaxAttempts        int                `json:"MaxAttempts,omitempty"`
}

func (pr *ProgressResult) FinishedSuccessfully() bool {
	return pr.OperationStatus == OperationStatusSuccess
}

func (pr *ProgressResult) Failed() bool {
	if pr.OperationStatus != OperationStatusFailure {
		return false
	}
	return !IsRecoverable(pr.ErrorCode) || pr.Attempts >= pr.MaxAttempts
}

func (pr *ProgressResult) InProgress() bool {
	return !pr.HasFinished()
}

func (pr *ProgressResult) HasFinished() bool {
	return pr.FinishedSuccessfully() || pr.Failed()
}

type Operation string

const (
	OperationCreate       Operation = "Create"
	OperationUpdate       Operation = "Update"
	OperationDelete       Operation = "Delete"
	OperationRead         Operation = "Read"
	OperationCheckStatus  Operation = "Status"
	OperationNoOp         Operation = "NoOp"
	OperationNotSupported Operation = "NotSupported"
)

type OperationStatus string

const (
	OperationStatusSuccess    OperationStatus = "Success"
	OperationStatusFailure    OperationStatus = "Failure"
	OperationStatusInProgress OperationStatus = "InProgress"
	OperationStatusPending    OperationStatus = "Pending"
)

type OperationErrorCode string

const (
	// Handler error codes reported by the AWS Cloud Control API
	OperationErrorCodeNotUpdatable                 OperationErrorCode = "NotUpdatable"
	OperationErrorCodeInvalidRequest               OperationErrorCode = "InvalidRequest"
	OperationErrorCodeAccessDenied                 OperationErrorCode = "AccessDenied"
	OperationErrorCodeUnauthorizedTaggingOperation OperationErrorCode = "UnauthorizedTaggingOperation"
	OperationErrorCodeInvalidCredentials           OperationErrorCode = "InvalidCredentials"
	OperationErrorCodeAlreadyExists                OperationErrorCode = "AlreadyExists"
	OperationErrorCodeNotFound                     OperationErrorCode = "NotFound"
	OperationErrorCodeResourceConflict             OperationErrorCode = "ResourceConflict"
	OperationErrorCodeThrottling                   OperationErrorCode = "Throttling"
	OperationErrorCodeServiceLimitExceeded         OperationErrorCode = "ServiceLimitExceeded"
	OperationErrorCodeNotStabilized                OperationErrorCode = "NotStabilized"
	OperationErrorCodeGeneralServiceException      OperationErrorCode = "GeneralServiceException"
	OperationErrorCodeServiceInternalError         OperationErrorCode = "ServiceInternalError"
	OperationErrorCodeServiceTimeout               OperationErrorCode = "ServiceTimeout"
	OperationErrorCodeNetworkFailure               OperationErrorCode = "NetworkFailure"
	OperationErrorCodeInternalFailure              OperationErrorCode = "InternalFailure"

	// DependencyFailure is recorded when an upstream operation of the changeset fails
	OperationErrorCodeDependencyFailure OperationErrorCode = "DependencyFailure"
	OperationErrorCodeUnforeseenError   OperationErrorCode = "UnforeseenError"
	OperationErrorCodePluginNotFound    OperationErrorCode = "PluginNotFound"
	OperationErrorCodeUnresolvable      OperationErrorCode = "UnresolvableReference"
	OperationErrorCodeNotSet            OperationErrorCode = ""
)

var recoverableErrorCodes = map[OperationErrorCode]struct{}{
	OperationErrorCodeThrottling:           {},
	OperationErrorCodeNotStabilized:        {},
	OperationErrorCodeServiceInternalError: {},
	OperationErrorCodeServiceTimeout:       {},
	OperationErrorCodeNetworkFailure:       {},
	OperationErrorCodeInternalFailure:      {},
	OperationErrorCodeNotFound:             {},
}

func IsRecoverable(code OperationErrorCode) bool {
	_, found := recoverableErrorCodes[code]
	return found
}
