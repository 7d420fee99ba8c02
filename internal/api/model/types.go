// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"time"

	"github.com/goccy/go-json"
)

// SubmitCommandResponse describes a planned or executed stack command.
type SubmitCommandResponse struct {
	CommandID  string     `json:"CommandId"`
	Simulation Simulation `json:"Simulation"`
}

type Simulation struct {
	ChangesRequired bool    `json:"ChangesRequired"`
	Command         Command `json:"Command"`
}

type ListCommandStatusResponse struct {
	Commands []Command `json:"Commands"`
}

type Command struct {
	CommandID       string           `json:"CommandId"`
	Command         string           `json:"Command"`
	Stack           string           `json:"Stack"`
	State           string           `json:"State"`
	StartTs         time.Time        `json:"StartTs,omitempty"`
	EndTs           time.Time        `json:"EndTs,omitempty"`
	ResourceUpdates []ResourceUpdate `json:"ResourceUpdates,omitempty"`
}

// wrapper for machine-readable output
type CommandID struct {
	CommandID string `json:"CommandId"`
}

type ResourceUpdate struct {
	ResourceID     string          `json:"ResourceId,omitempty"`
	ResourceType   string          `json:"ResourceType"`
	ResourceLabel  string          `json:"ResourceLabel"`
	StackName      string          `json:"StackName,omitempty"`
	Operation      string          `json:"Operation"`
	PatchDocument  json.RawMessage `json:"PatchDocument,omitempty"`
	State          string          `json:"State"`
	Duration       int64           `json:"Duration,omitempty"` // milliseconds
	CurrentAttempt int             `json:"CurrentAttempt,omitempty"`
	MaxAttempts    int             `json:"MaxAttempts,omitempty"`
	ErrorMessage   string          `json:"ErrorMessage,omitempty"`
	StatusMessage  string          `json:"StateMessage,omitempty"`
	Reason         string          `json:"Reason,omitempty"`
	Properties     json.RawMessage `json:"Properties,omitempty"`
	OldProperties  json.RawMessage `json:"OldProperties,omitempty"`
	NativeID       string          `json:"NativeId,omitempty"`
}

const (
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationDelete  = "delete"
	OperationRead    = "read"
	OperationReplace = "replace" // delete + create
)

const (
	ResourceUpdateStateNotStarted = "NotStarted"
	ResourceUpdateStateInProgress = "InProgress"
	ResourceUpdateStateFailed     = "Failed"
	ResourceUpdateStateSuccess    = "Success"
	ResourceUpdateStateRejected   = "Rejected"
)

// Resource is the recorded state of one deployed resource.
type Resource struct {
	Label              string          `json:"Label"`
	Type               string          `json:"Type"`
	Stack              string          `json:"Stack"`
	NativeID           string          `json:"NativeId,omitempty"`
	Managed            bool            `json:"Managed"`
	Properties         json.RawMessage `json:"Properties,omitempty"`
	ReadOnlyProperties json.RawMessage `json:"ReadOnlyProperties,omitempty"`
	Ksuid              string          `json:"Ksuid,omitempty"`
}

type ListResourcesResponse struct {
	Stack     string     `json:"Stack"`
	Resources []Resource `json:"Resources"`
}

type Output struct {
	Key         string `json:"Key"`
	Description string `json:"Description,omitempty"`
	Value       string `json:"Value"`
}

type ListOutputsResponse struct {
	Stack   string   `json:"Stack"`
	Outputs []Output `json:"Outputs"`
}

// DriftedResource is a resource whose live properties differ from the recorded ones.
type DriftedResource struct {
	Label         string          `json:"Label"`
	Type          string          `json:"Type"`
	NativeID      string          `json:"NativeId"`
	Missing       bool            `json:"Missing,omitempty"`
	PatchDocument json.RawMessage `json:"PatchDocument,omitempty"`
	ErrorMessage  string          `json:"ErrorMessage,omitempty"`
}

type DriftResponse struct {
	Stack     string            `json:"Stack"`
	Checked   int               `json:"Checked"`
	Drifted   []DriftedResource `json:"Drifted"`
	CheckedAt time.Time         `json:"CheckedAt"`
}

type Stats struct {
	Version            string         `json:"Version"`
	Commands           map[string]int `json:"Commands"`
	States             map[string]int `json:"States"`
	Stacks             int            `json:"Stacks"`
	ManagedResources   int            `json:"Resources"`
	UnmanagedResources int            `json:"UnmanagedResources"`
	ResourceTypes      map[string]int `json:"ResourceTypes"`
	ResourceErrors     map[string]int `json:"ResourceErrors"`
	Plugins            []PluginInfo   `json:"Plugins"`
}

// PluginInfo represents information about a registered plugin
type PluginInfo struct {
	Namespace            string `json:"Namespace"`
	MaxRequestsPerSecond int    `json:"MaxRequestsPerSecond"`
	ResourceTypes        int    `json:"ResourceTypes"`
}
