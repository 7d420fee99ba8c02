// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datastore

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/stats"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const (
	CommandsTable                  string              = "stack_commands"
	DefaultStackCommandsQueryLimit                     = 10
	Optional                       QueryItemConstraint = iota
	Required
	Excluded
)

type QueryItemConstraint int

type QueryItem[T any] struct {
	Item       T
	Constraint QueryItemConstraint
}

type StatusQuery struct {
	CommandID *QueryItem[string]
	ClientID  *QueryItem[string]
	Command   *QueryItem[string]
	Status    *QueryItem[string]
	Stack     *QueryItem[string]
	N         int
}

type ResourceQuery struct {
	Stack    *QueryItem[string]
	Type     *QueryItem[string]
	Label    *QueryItem[string]
	NativeID *QueryItem[string]
	Managed  *QueryItem[bool]
}

// Datastore persists what was asked for (stack commands and their resource updates), what
// exists in the cloud (resources), and the last applied declaration of every stack.
type Datastore interface {
	// Stack command operations

	// StoreStackCommand persists a command with all of its ResourceUpdates
	StoreStackCommand(cmd *stack_command.StackCommand) error
	// GetStackCommandByID retrieves a single command, nil if it does not exist
	GetStackCommandByID(commandID string) (*stack_command.StackCommand, error)
	// QueryStackCommands searches commands, most recent first
	QueryStackCommands(query *StatusQuery) ([]*stack_command.StackCommand, error)
	// LoadIncompleteStackCommands returns commands that never reached a final state
	LoadIncompleteStackCommands() ([]*stack_command.StackCommand, error)
	// UpdateStackCommandProgress updates only the command-level state
	UpdateStackCommandProgress(commandID string, state types.CommandState, modifiedTs time.Time) error
	// StoreResourceUpdate inserts or replaces one ResourceUpdate of a command
	StoreResourceUpdate(commandID string, update resource_update.ResourceUpdate) error

	// Resource operations - these represent actual cloud state

	// QueryResources searches the latest version of every live resource
	QueryResources(query *ResourceQuery) ([]*pkgmodel.Resource, error)
	// StoreResource records the state of a resource after a successful operation
	StoreResource(resource *pkgmodel.Resource, commandID string) (string, error)
	// DeleteResource tombstones a resource after it was deleted or forgotten
	DeleteResource(resource *pkgmodel.Resource, commandID string) (string, error)
	// LoadResource retrieves a live resource by its URI, nil if there is none
	LoadResource(uri pkgmodel.ResourceURI) (*pkgmodel.Resource, error)
	// LoadResourceByNativeID finds a live resource by its cloud identifier
	LoadResourceByNativeID(nativeID string, resourceType string) (*pkgmodel.Resource, error)
	// LoadResourcesByStack retrieves every live resource of a stack
	LoadResourcesByStack(stackLabel string) ([]*pkgmodel.Resource, error)

	// Stack operations - the last applied declaration of each stack

	// StoreStack records the declaration applied by a command (returns version string)
	StoreStack(stack *pkgmodel.Stack, commandID string) (string, error)
	// DeleteStack tombstones a stack after it was destroyed (returns version string)
	DeleteStack(label string, commandID string) (string, error)
	// GetStackByLabel retrieves the latest non-deleted declaration, nil if there is none
	GetStackByLabel(label string) (*pkgmodel.Stack, error)
	// ListAllStacks returns every non-deleted stack
	ListAllStacks() ([]*pkgmodel.Stack, error)

	// Stats returns aggregated statistics about the datastore contents
	Stats() (*stats.Stats, error)

	// Close releases database connections
	Close()
}

// resourcesAreEqual compares two resources and returns two booleans: the first one indicating whether the
// non-readonly properties of the resources are equal, and the second one indicating whether the readonly
// properties are equal.
func resourcesAreEqual(resource1, resource2 *pkgmodel.Resource) (bool, bool) {
	readWriteEqual, readOnlyEqual := true, true

	if resource1.NativeID != resource2.NativeID ||
		resource1.Stack != resource2.Stack ||
		resource1.Type != resource2.Type ||
		resource1.Label != resource2.Label ||
		resource1.Managed != resource2.Managed {
		readWriteEqual = false
	}

	if !util.JsonEqualRaw(resource1.Properties, resource2.Properties) {
		readWriteEqual = false
	}

	// Providers do not keep the order of arrays in the attributes they return
	if equal, err := util.JsonEqualIgnoreArrayOrder(resource1.ReadOnlyProperties, resource2.ReadOnlyProperties); err != nil || !equal {
		readOnlyEqual = false
	}

	return readWriteEqual, readOnlyEqual
}

// nextVersion returns a version id that sorts after previous. KSUIDs minted within the same
// second are not ordered, so the successor of previous is used when needed.
func nextVersion(previous string) string {
	next := ksuid.New()
	if previous == "" {
		return next.String()
	}
	prev, err := ksuid.Parse(previous)
	if err == nil && ksuid.Compare(next, prev) <= 0 {
		next = prev.Next()
	}
	return next.String()
}

func versionID(id, version string) string {
	return fmt.Sprintf("%s_%s", id, version)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func errorCodeOf(update resource_update.ResourceUpdate) string {
	if update.State != resource_update.ResourceUpdateStateFailed {
		return ""
	}
	return string(update.MostRecentProgressResult.ErrorCode)
}
