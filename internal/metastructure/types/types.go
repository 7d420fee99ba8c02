// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package types

// OperationType is the high-level operation being performed on a resource.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
	OperationRead   OperationType = "read"

	// Composite: delete + create
	OperationReplace OperationType = "replace"
)

// ResourceUpdateState represents the current state of a resource update operation
type ResourceUpdateState string

const (
	ResourceUpdateStateNotStarted ResourceUpdateState = "NotStarted"
	ResourceUpdateStateInProgress ResourceUpdateState = "InProgress"
	ResourceUpdateStateFailed     ResourceUpdateState = "Failed"
	ResourceUpdateStateSuccess    ResourceUpdateState = "Success"
	ResourceUpdateStateRejected   ResourceUpdateState = "Rejected"
)

// CommandState is the overall state of an apply or destroy run.
type CommandState string

const (
	CommandStatePending    CommandState = "Pending"
	CommandStateInProgress CommandState = "InProgress"
	CommandStateSuccess    CommandState = "Success"
	CommandStateFailed     CommandState = "Failed"
	CommandStateCanceled   CommandState = "Canceled"
)
