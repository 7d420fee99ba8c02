// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package aws

import (
	"errors"

	cctypes "github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/aws/smithy-go"

	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// API exceptions raised synchronously by Cloud Control and IAM, keyed by error code.
var exceptionCodes = map[string]resource.OperationErrorCode{
	"AlreadyExistsException":                resource.OperationErrorCodeAlreadyExists,
	"ResourceNotFoundException":             resource.OperationErrorCodeNotFound,
	"NoSuchEntity":                          resource.OperationErrorCodeNotFound,
	"ThrottlingException":                   resource.OperationErrorCodeThrottling,
	"Throttling":                            resource.OperationErrorCodeThrottling,
	"InvalidRequestException":               resource.OperationErrorCodeInvalidRequest,
	"InvalidCredentialsException":           resource.OperationErrorCodeInvalidCredentials,
	"AccessDeniedException":                 resource.OperationErrorCodeAccessDenied,
	"AccessDenied":                          resource.OperationErrorCodeAccessDenied,
	"NotUpdatableException":                 resource.OperationErrorCodeNotUpdatable,
	"NotStabilizedException":                resource.OperationErrorCodeNotStabilized,
	"NetworkFailureException":               resource.OperationErrorCodeNetworkFailure,
	"ServiceInternalErrorException":         resource.OperationErrorCodeServiceInternalError,
	"ServiceLimitExceededException":         resource.OperationErrorCodeServiceLimitExceeded,
	"ResourceConflictException":             resource.OperationErrorCodeResourceConflict,
	"ConcurrentOperationException":          resource.OperationErrorCodeResourceConflict,
	"ClientTokenConflictException":          resource.OperationErrorCodeResourceConflict,
	"GeneralServiceException":               resource.OperationErrorCodeGeneralServiceException,
	"HandlerFailureException":               resource.OperationErrorCodeGeneralServiceException,
	"HandlerInternalFailureException":       resource.OperationErrorCodeInternalFailure,
	"UnauthorizedTaggingOperationException": resource.OperationErrorCodeUnauthorizedTaggingOperation,
}

// errorCodeOf maps an AWS API error to an operation error code. The second return value
// is false for errors that did not come from an AWS API, such as a canceled context.
func errorCodeOf(err error) (resource.OperationErrorCode, bool) {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return resource.OperationErrorCodeNotSet, false
	}
	if code, ok := exceptionCodes[apiErr.ErrorCode()]; ok {
		return code, true
	}

	return resource.OperationErrorCodeGeneralServiceException, true
}

// handlerErrorCode converts the error code of an asynchronous Cloud Control request.
// Both vocabularies share the same names.
func handlerErrorCode(code cctypes.HandlerErrorCode) resource.OperationErrorCode {
	if code == "" {
		return resource.OperationErrorCodeNotSet
	}
	return resource.OperationErrorCode(code)
}
