// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"fmt"
	"strings"
)

type APIError string

const (
	CyclesDetected               APIError = "CyclesDetected"
	RequiredFieldMissingOnCreate APIError = "RequiredFieldMissingOnCreate"
	StateVersionTooNew           APIError = "StateVersionTooNew"
	ReferencedResourcesNotFound  APIError = "ReferencedResourcesNotFound"
	StackNotFound                APIError = "StackNotFound"
	CommandNotFound              APIError = "CommandNotFound"
	ConflictingCommands          APIError = "ConflictingCommands"
)

type ErrorResponse[T any] struct {
	ErrorType APIError `json:"error"`
	Data      T        `json:"data"`
}

// Error allows ErrorResponse satisfy the error interface
func (e ErrorResponse[T]) Error() string {
	return string(e.ErrorType)
}

// CyclesDetectedError lists the operations that wait on each other.
type CyclesDetectedError struct {
	Operations []string `json:"Operations"`
}

func (e CyclesDetectedError) Error() string {
	if len(e.Operations) == 0 {
		return "stack contains dependency cycles"
	}
	return fmt.Sprintf("stack contains dependency cycles between: %s", strings.Join(e.Operations, ", "))
}

type RequiredFieldMissingOnCreateError struct {
	MissingFields []string `json:"MissingFields"`
	Stack         string   `json:"Stack"`
	Label         string   `json:"Label"`
	Type          string   `json:"Type"`
}

func (e RequiredFieldMissingOnCreateError) Error() string {
	if len(e.MissingFields) == 1 {
		return fmt.Sprintf("resource %s (type: %s, stack: %s) cannot be created - missing required field: %s",
			e.Label, e.Type, e.Stack, e.MissingFields[0])
	}
	return fmt.Sprintf("resource %s (type: %s, stack: %s) cannot be created - missing required fields: %v",
		e.Label, e.Type, e.Stack, e.MissingFields)
}

// StateVersionTooNewError is returned when the recorded state was written by a newer major
// version of the tool.
type StateVersionTooNewError struct {
	StateVersion string `json:"StateVersion"`
	ToolVersion  string `json:"ToolVersion"`
}

func (e StateVersionTooNewError) Error() string {
	return fmt.Sprintf("state was written by version %s, which is newer than this version (%s); upgrade before continuing",
		e.StateVersion, e.ToolVersion)
}

type ReferencedResourcesNotFoundError struct {
	References []string `json:"References"`
}

func (e ReferencedResourcesNotFoundError) Error() string {
	return fmt.Sprintf("references could not be resolved: %s", strings.Join(e.References, ", "))
}

type StackNotFoundError struct {
	StackLabel string `json:"StackLabel"`
}

func (e StackNotFoundError) Error() string {
	return fmt.Sprintf("stack %s has not been deployed", e.StackLabel)
}

type CommandNotFoundError struct {
	CommandID string `json:"CommandId"`
}

func (e CommandNotFoundError) Error() string {
	return fmt.Sprintf("command %s does not exist", e.CommandID)
}

// ConflictingCommandsError is returned when an unfinished command still owns the stack.
type ConflictingCommandsError struct {
	ConflictingCommands []Command `json:"ConflictingCommands"`
}

func (e ConflictingCommandsError) Error() string {
	ids := make([]string, 0, len(e.ConflictingCommands))
	for _, c := range e.ConflictingCommands {
		ids = append(ids, c.CommandID)
	}
	return fmt.Sprintf("unfinished commands are still running against the stack: %s", strings.Join(ids, ", "))
}
