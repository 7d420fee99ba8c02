// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package plugin_operation

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/resuralph/ralphstack/internal/metastructure/util"
	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// Operator runs a single provider operation until it reaches a final state. Every call
// blocks; progress is reported to the caller as it happens.
//
// The transitions are as follows:
//
//	NotStarted ──> Waiting ──> FinishedSuccessfully
//	    │            │  ^
//	    │            v  │
//	    └──────> Retrying ──> FinishedWithErrors
//
// Waiting polls Status every StatusCheckInterval. Retrying re-issues the operation after
// RetryDelay for as long as the error is recoverable and attempts remain.
type Operator struct {
	plugins *plugin.Manager
	config  model.RetryConfig
}

func NewOperator(plugins *plugin.Manager, config model.RetryConfig) *Operator {
	return &Operator{plugins: plugins, config: config}
}

// Request describes one provider operation. Resource and PriorResource carry properties
// in plugin format, i.e. with every reference already replaced by its value.
type Request struct {
	Operation     resource.Operation
	ResourceType  string
	NativeID      string
	Resource      model.Resource
	PriorResource model.Resource
	PatchDocument string
	Target        model.Target

	// TreatNotFoundAsSuccess is set for deletes and for syncing reads, where a resource
	// that is already gone is the desired outcome.
	TreatNotFoundAsSuccess bool
}

// ProgressFunc receives every intermediate and final result of an operation.
type ProgressFunc func(progress resource.ProgressResult)

var PluginNotFoundError = resource.ProgressResult{OperationStatus: resource.OperationStatusFailure, ErrorCode: resource.OperationErrorCodePluginNotFound, Attempts: 1, MaxAttempts: 1}

func (o *Operator) maxAttempts() int {
	return o.config.MaxRetries + 1
}

func (o *Operator) newUnforeseenError(req Request, attempts int, message string) *resource.ProgressResult {
	now := util.TimeNow()
	return &resource.ProgressResult{
		Operation:       req.Operation,
		OperationStatus: resource.OperationStatusFailure,
		NativeID:        req.NativeID,
		ResourceType:    req.ResourceType,
		StartTs:         now,
		ModifiedTs:      now,
		ErrorCode:       resource.OperationErrorCodeUnforeseenError,
		StatusMessage:   message,
		Attempts:        attempts,
		MaxAttempts:     o.maxAttempts(),
	}
}

// Run executes the operation against the plugin serving namespace and returns its final
// result.
func (o *Operator) Run(ctx context.Context, namespace string, req Request, onProgress ProgressFunc) resource.ProgressResult {
	p, err := o.plugins.ResourcePlugin(namespace)
	if err != nil {
		slog.Error("PluginOperator: failed to get resource plugin", "namespace", namespace, "error", err)
		progress := PluginNotFoundError
		progress.Operation = req.Operation
		progress.ResourceType = req.ResourceType
		progress.NativeID = req.NativeID
		progress.StatusMessage = err.Error()
		progress.StartTs = util.TimeNow()
		progress.ModifiedTs = progress.StartTs
		report(onProgress, progress)
		return progress
	}

	attempts := 1
	var lastStatusMessage string
	result := o.invoke(ctx, p, req, attempts)

	for {
		progress := o.annotate(req, result, attempts, lastStatusMessage)
		report(onProgress, progress)

		if progress.FinishedSuccessfully() {
			slog.Debug("PluginOperator: operation finished successfully", "operation", req.Operation, "type", req.ResourceType, "nativeID", progress.NativeID)
			return progress
		}

		if progress.OperationStatus == resource.OperationStatusFailure {
			if !resource.IsRecoverable(progress.ErrorCode) || attempts >= o.maxAttempts() {
				slog.Error("PluginOperator: operation failed", "operation", req.Operation, "type", req.ResourceType,
					"errorCode", progress.ErrorCode, "statusMessage", progress.StatusMessage, "attempts", attempts)
				return progress
			}

			slog.Info("PluginOperator: operation failed with recoverable error, retrying", "operation", req.Operation,
				"type", req.ResourceType, "errorCode", progress.ErrorCode, "attempt", attempts, "maxAttempts", o.maxAttempts())
			lastStatusMessage = progress.StatusMessage
			if err := wait(ctx, o.config.RetryDelay); err != nil {
				return o.cancelled(req, attempts, err, onProgress)
			}
			attempts++
			result = o.invoke(ctx, p, req, attempts)
			continue
		}

		slog.Debug("PluginOperator: operation still in progress, scheduling status check", "operation", req.Operation,
			"type", req.ResourceType, "requestID", progress.RequestID, "interval", o.config.StatusCheckInterval)
		if err := wait(ctx, o.config.StatusCheckInterval); err != nil {
			return o.cancelled(req, attempts, err, onProgress)
		}
		result = o.status(ctx, p, req, progress, attempts)
	}
}

func (o *Operator) annotate(req Request, result *resource.ProgressResult, attempts int, lastStatusMessage string) resource.ProgressResult {
	progress := *result
	if progress.Operation == "" {
		progress.Operation = req.Operation
	}
	if progress.ResourceType == "" {
		progress.ResourceType = req.ResourceType
	}
	if progress.NativeID == "" {
		progress.NativeID = req.NativeID
	}
	if progress.StartTs.IsZero() {
		progress.StartTs = util.TimeNow()
	}
	progress.Attempts = attempts
	progress.MaxAttempts = o.maxAttempts()
	progress.ModifiedTs = util.TimeNow()

	if attempts > 1 && progress.StatusMessage == "" {
		progress.StatusMessage = lastStatusMessage
	}

	if req.TreatNotFoundAsSuccess && progress.OperationStatus == resource.OperationStatusFailure &&
		progress.ErrorCode == resource.OperationErrorCodeNotFound {
		slog.Debug("PluginOperator: resource not found, marking operation as successful", "operation", req.Operation, "nativeID", progress.NativeID)
		progress.OperationStatus = resource.OperationStatusSuccess
	}

	return progress
}

func (o *Operator) invoke(ctx context.Context, p plugin.ResourcePlugin, req Request, attempts int) *resource.ProgressResult {
	switch req.Operation {
	case resource.OperationRead:
		return o.read(ctx, p, req, attempts)
	case resource.OperationCreate:
		result, err := p.Create(ctx, &resource.CreateRequest{
			DesiredState: &req.Resource,
			Target:       &req.Target,
		})
		if err != nil {
			return o.newUnforeseenError(req, attempts, err.Error())
		}
		return o.checked(req, attempts, result.ProgressResult)
	case resource.OperationUpdate:
		result, err := p.Update(ctx, &resource.UpdateRequest{
			NativeID:      &req.NativeID,
			PriorState:    &req.PriorResource,
			DesiredState:  &req.Resource,
			PatchDocument: &req.PatchDocument,
			Target:        &req.Target,
		})
		if err != nil {
			return o.newUnforeseenError(req, attempts, err.Error())
		}
		return o.checked(req, attempts, result.ProgressResult)
	case resource.OperationDelete:
		result, err := p.Delete(ctx, &resource.DeleteRequest{
			NativeID:     &req.NativeID,
			ResourceType: req.ResourceType,
			Target:       &req.Target,
		})
		if err != nil {
			return o.newUnforeseenError(req, attempts, err.Error())
		}
		return o.checked(req, attempts, result.ProgressResult)
	default:
		return o.newUnforeseenError(req, attempts, "unsupported operation "+string(req.Operation))
	}
}

func (o *Operator) read(ctx context.Context, p plugin.ResourcePlugin, req Request, attempts int) *resource.ProgressResult {
	now := util.TimeNow()
	progress := &resource.ProgressResult{
		Operation:    resource.OperationRead,
		NativeID:     req.NativeID,
		ResourceType: req.ResourceType,
		StartTs:      now,
		ModifiedTs:   now,
	}

	result, err := p.Read(ctx, &resource.ReadRequest{
		NativeID:     req.NativeID,
		ResourceType: req.ResourceType,
		Target:       &req.Target,
	})
	switch {
	case err != nil:
		slog.Debug("PluginOperator: failed to read resource", "nativeID", req.NativeID, "error", err)
		return o.newUnforeseenError(req, attempts, err.Error())
	case result.ErrorCode != resource.OperationErrorCodeNotSet:
		progress.OperationStatus = resource.OperationStatusFailure
		progress.ErrorCode = result.ErrorCode
		progress.StatusMessage = string(result.ErrorCode) + ": " + req.NativeID
	default:
		progress.OperationStatus = resource.OperationStatusSuccess
		progress.ResourceProperties = json.RawMessage(result.Properties)
	}

	return progress
}

func (o *Operator) status(ctx context.Context, p plugin.ResourcePlugin, req Request, progress resource.ProgressResult, attempts int) *resource.ProgressResult {
	result, err := p.Status(ctx, &resource.StatusRequest{
		RequestID:    progress.RequestID,
		NativeID:     progress.NativeID,
		ResourceType: req.ResourceType,
		Operation:    req.Operation,
		Target:       &req.Target,
	})
	if err != nil {
		slog.Error("PluginOperator: failed to get status of resource", "requestID", progress.RequestID, "error", err)
		return o.newUnforeseenError(req, attempts, err.Error())
	}

	return o.checked(req, attempts, result.ProgressResult)
}

func (o *Operator) checked(req Request, attempts int, progress *resource.ProgressResult) *resource.ProgressResult {
	if progress == nil {
		return o.newUnforeseenError(req, attempts, "plugin returned no progress")
	}
	return progress
}

func (o *Operator) cancelled(req Request, attempts int, err error, onProgress ProgressFunc) resource.ProgressResult {
	progress := *o.newUnforeseenError(req, attempts, err.Error())
	report(onProgress, progress)
	return progress
}

func report(onProgress ProgressFunc, progress resource.ProgressResult) {
	if onProgress != nil {
		onProgress(progress)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
