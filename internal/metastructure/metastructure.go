// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package metastructure reconciles a declared stack with the cloud. It plans resource
// updates against the recorded state, executes them as a changeset, and answers questions
// about what is deployed.
package metastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/resuralph/ralphstack"
	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metastructure/changeset"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/plugin_operation"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metrics"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

type MetastructureAPI interface {
	Plan(stack *pkgmodel.Stack, command pkgmodel.Command) (*stack_command.StackCommand, error)
	Apply(ctx context.Context, stack *pkgmodel.Stack, opts CommandOptions, onProgress changeset.ProgressFunc) (*stack_command.StackCommand, error)
	Destroy(ctx context.Context, stackLabel string, opts CommandOptions, onProgress changeset.ProgressFunc) (*stack_command.StackCommand, error)
	Drift(ctx context.Context, stackLabel string) (*apimodel.DriftResponse, error)
	Outputs(stackLabel string) (*apimodel.ListOutputsResponse, error)
	Status(query *datastore.StatusQuery) (*apimodel.ListCommandStatusResponse, error)
	Inventory(stackLabel string) (*apimodel.ListResourcesResponse, error)
	Stats() (*apimodel.Stats, error)
}

// CommandOptions tune a single apply or destroy.
type CommandOptions struct {
	// Simulate plans the command without executing or recording it.
	Simulate bool
}

type Metastructure struct {
	Datastore     datastore.Datastore
	PluginManager *plugin.Manager
	Cfg           *pkgmodel.Config
	Metrics       *metrics.Metrics
	ClientID      string

	operator *plugin_operation.Operator
	executor *changeset.Executor
}

var _ MetastructureAPI = (*Metastructure)(nil)

func NewMetastructure(ctx context.Context, cfg *pkgmodel.Config, pluginManager *plugin.Manager, m *metrics.Metrics) (*Metastructure, error) {
	var (
		ds  datastore.Datastore
		err error
	)

	switch cfg.Datastore.DatastoreType {
	case pkgmodel.PostgresDatastore:
		ds, err = datastore.NewDatastorePostgres(ctx, &cfg.Datastore)
	default:
		ds, err = datastore.NewDatastoreSQLite(ctx, &cfg.Datastore)
	}
	if err != nil {
		return nil, err
	}

	return NewMetastructureWithDatastore(cfg, pluginManager, ds, m), nil
}

func NewMetastructureWithDatastore(cfg *pkgmodel.Config, pluginManager *plugin.Manager, ds datastore.Datastore, m *metrics.Metrics) *Metastructure {
	operator := plugin_operation.NewOperator(pluginManager, cfg.Retry)
	limiter := changeset.NewRateLimiter(pluginManager.ListResourcePlugins()...)

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	return &Metastructure{
		Datastore:     ds,
		PluginManager: pluginManager,
		Cfg:           cfg,
		Metrics:       m,
		ClientID:      "cli",
		operator:      operator,
		executor:      changeset.NewExecutor(resource_update.NewResourceUpdater(operator), limiter, ds, m, maxParallel),
	}
}

func (m *Metastructure) Stop() {
	slog.Debug("Closing datastore")
	m.Datastore.Close()
}

// Plan computes the resource updates command would run against the recorded state of the
// stack. Nothing is executed or stored.
func (m *Metastructure) Plan(stack *pkgmodel.Stack, command pkgmodel.Command) (*stack_command.StackCommand, error) {
	existing, err := m.loadResources(stack.Label)
	if err != nil {
		return nil, err
	}

	updates, err := resource_update.GenerateResourceUpdates(stack, existing, command)
	if err != nil {
		slog.Error("Failed to generate resource updates", "stack", stack.Label, "command", command, "error", err)
		return nil, fmt.Errorf("failed to generate resource updates: %w", err)
	}

	cmd := stack_command.NewStackCommand(stack.Label, command, updates, m.ClientID)

	// Validate the dependency graph before anything runs
	if cmd.HasChanges() {
		if _, err := changeset.NewChangesetFromResourceUpdates(cmd.ResourceUpdates, cmd.ID); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

// ChangesRequired reports whether cmd modifies anything. Reads of imported resources
// validate the declaration but change nothing.
func ChangesRequired(cmd *stack_command.StackCommand) bool {
	return slices.ContainsFunc(cmd.ResourceUpdates, func(ru resource_update.ResourceUpdate) bool {
		return ru.Operation != resource_update.OperationRead
	})
}

// Apply converges the deployed resources onto stack. The declaration is recorded before
// execution so that an interrupted apply can be resumed.
func (m *Metastructure) Apply(ctx context.Context, stack *pkgmodel.Stack, opts CommandOptions, onProgress changeset.ProgressFunc) (*stack_command.StackCommand, error) {
	cmd, err := m.Plan(stack, pkgmodel.CommandApply)
	if err != nil {
		return nil, err
	}

	if opts.Simulate {
		return cmd, nil
	}

	if !ChangesRequired(cmd) {
		slog.Info("Stack is up to date", "stack", stack.Label)
		cmd.State = types.CommandStateSuccess
		return cmd, nil
	}

	if err := m.checkForConflictingCommands(stack.Label); err != nil {
		return nil, err
	}

	if _, err := m.Datastore.StoreStack(stack, cmd.ID); err != nil {
		slog.Error("Failed to store stack", "stack", stack.Label, "error", err)
		return nil, fmt.Errorf("failed to store stack %s: %w", stack.Label, err)
	}

	return cmd, m.execute(ctx, cmd, onProgress)
}

// Destroy deletes every managed resource of a deployed stack and forgets imported ones.
func (m *Metastructure) Destroy(ctx context.Context, stackLabel string, opts CommandOptions, onProgress changeset.ProgressFunc) (*stack_command.StackCommand, error) {
	stack, err := m.Datastore.GetStackByLabel(stackLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack %s: %w", stackLabel, err)
	}
	existing, err := m.loadResources(stackLabel)
	if err != nil {
		return nil, err
	}
	if stack == nil && len(existing) == 0 {
		return nil, apimodel.StackNotFoundError{StackLabel: stackLabel}
	}
	if stack == nil {
		stack = &pkgmodel.Stack{Label: stackLabel, Target: m.Target(stackLabel)}
	}

	cmd, err := m.Plan(stack, pkgmodel.CommandDestroy)
	if err != nil {
		return nil, err
	}
	if opts.Simulate || !cmd.HasChanges() {
		return cmd, nil
	}

	if err := m.checkForConflictingCommands(stackLabel); err != nil {
		return nil, err
	}

	return cmd, m.execute(ctx, cmd, onProgress)
}

// ReRunIncompleteCommands resumes commands that were interrupted before they reached a
// final state. Operations that already finished are not repeated.
func (m *Metastructure) ReRunIncompleteCommands(ctx context.Context, onProgress changeset.ProgressFunc) ([]*stack_command.StackCommand, error) {
	commands, err := m.Datastore.LoadIncompleteStackCommands()
	if err != nil {
		slog.Error("Failed to read incomplete stack commands", "error", err)
		return nil, err
	}
	if len(commands) > 0 {
		slog.Info("Resuming incomplete stack commands", "count", len(commands))
	}

	var errs []error
	for _, cmd := range commands {
		for i := range cmd.ResourceUpdates {
			cmd.ResourceUpdates[i].UpdateState()
		}
		if err := m.execute(ctx, cmd, onProgress); err != nil {
			slog.Error("Failed to resume stack command", "commandID", cmd.ID, "error", err)
			errs = append(errs, fmt.Errorf("command %s: %w", cmd.ID, err))
		}
	}

	return commands, errors.Join(errs...)
}

func (m *Metastructure) execute(ctx context.Context, cmd *stack_command.StackCommand, onProgress changeset.ProgressFunc) error {
	known, err := m.loadResources(cmd.StackLabel)
	if err != nil {
		return err
	}

	slog.Info("Executing stack command", "commandID", cmd.ID, "command", cmd.Command, "stack", cmd.StackLabel, "updates", len(cmd.ResourceUpdates))
	err = m.executor.Execute(ctx, cmd, known, onProgress)

	if cmd.Command == pkgmodel.CommandDestroy && cmd.State == types.CommandStateSuccess {
		if _, delErr := m.Datastore.DeleteStack(cmd.StackLabel, cmd.ID); delErr != nil {
			slog.Error("Failed to delete stack", "stack", cmd.StackLabel, "error", delErr)
			err = errors.Join(err, delErr)
		}
	}

	return err
}

func (m *Metastructure) checkForConflictingCommands(stackLabel string) error {
	incomplete, err := m.Datastore.LoadIncompleteStackCommands()
	if err != nil {
		slog.Error("Failed to load incomplete stack commands", "error", err)
		return fmt.Errorf("failed to load incomplete stack commands: %w", err)
	}

	var conflicting apimodel.ConflictingCommandsError
	for _, cmd := range incomplete {
		if cmd.StackLabel == stackLabel {
			conflicting.ConflictingCommands = append(conflicting.ConflictingCommands, TranslateToAPICommand(cmd))
		}
	}
	if len(conflicting.ConflictingCommands) > 0 {
		return conflicting
	}

	return nil
}

// Target is where stackLabel is deployed: the recorded target, or the configured one for
// a stack that was never deployed.
func (m *Metastructure) Target(stackLabel string) pkgmodel.Target {
	if stack, err := m.Datastore.GetStackByLabel(stackLabel); err == nil && stack != nil {
		return stack.Target
	}

	return pkgmodel.Target{
		Label:     stackLabel,
		Namespace: "AWS",
		Region:    m.Cfg.Target.Region,
		Profile:   m.Cfg.Target.Profile,
	}
}

func (m *Metastructure) loadResources(stackLabel string) ([]pkgmodel.Resource, error) {
	stored, err := m.Datastore.LoadResourcesByStack(stackLabel)
	if err != nil {
		slog.Error("Failed to load resources", "stack", stackLabel, "error", err)
		return nil, fmt.Errorf("failed to load resources of stack %s: %w", stackLabel, err)
	}

	resources := make([]pkgmodel.Resource, 0, len(stored))
	for _, r := range stored {
		resources = append(resources, *r)
	}

	return resources, nil
}

func TranslateToAPICommand(cmd *stack_command.StackCommand) apimodel.Command {
	apiCommand := apimodel.Command{
		CommandID: cmd.ID,
		Command:   string(cmd.Command),
		Stack:     cmd.StackLabel,
		State:     string(cmd.State),
		StartTs:   cmd.StartTs,
		EndTs:     cmd.ModifiedTs,
	}

	for _, ru := range cmd.ResourceUpdates {
		apiCommand.ResourceUpdates = append(apiCommand.ResourceUpdates, TranslateToAPIResourceUpdate(cmd.StackLabel, ru))
	}

	return apiCommand
}

func TranslateToAPIResourceUpdate(stackLabel string, ru resource_update.ResourceUpdate) apimodel.ResourceUpdate {
	var dur time.Duration
	if !ru.StartTs.IsZero() {
		dur = ru.ModifiedTs.Sub(ru.StartTs)
	}

	nativeID := ru.Resource.NativeID
	if nativeID == "" {
		nativeID = ru.ExistingResource.NativeID
	}

	return apimodel.ResourceUpdate{
		ResourceID:     ru.Resource.Ksuid,
		ResourceType:   ru.Type(),
		ResourceLabel:  ru.Label(),
		StackName:      stackLabel,
		Operation:      string(ru.Operation),
		PatchDocument:  ru.Resource.PatchDocument,
		State:          string(ru.State),
		Duration:       dur.Milliseconds(),
		CurrentAttempt: ru.MostRecentProgressResult.Attempts,
		MaxAttempts:    ru.MostRecentProgressResult.MaxAttempts,
		ErrorMessage:   ru.MostRecentFailureMessage(),
		StatusMessage:  ru.MostRecentProgressResult.StatusMessage,
		Reason:         ru.Reason,
		Properties:     ru.Resource.Properties,
		OldProperties:  ru.ExistingResource.Properties,
		NativeID:       nativeID,
	}
}

func (m *Metastructure) Stats() (*apimodel.Stats, error) {
	stats, err := m.Datastore.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats from datastore: %w", err)
	}

	var plugins []apimodel.PluginInfo
	for _, p := range m.PluginManager.ListResourcePlugins() {
		plugins = append(plugins, apimodel.PluginInfo{
			Namespace:            p.Namespace(),
			MaxRequestsPerSecond: p.Throttling().MaxRequestsPerSecondForNamespace,
			ResourceTypes:        len(p.SupportedResources()),
		})
	}

	return &apimodel.Stats{
		Version:            ralphstack.Version,
		Commands:           stats.Commands,
		States:             stats.States,
		Stacks:             stats.Stacks,
		ManagedResources:   stats.ManagedResources,
		UnmanagedResources: stats.UnmanagedResources,
		ResourceTypes:      stats.ResourceTypes,
		ResourceErrors:     stats.ResourceErrors,
		Plugins:            plugins,
	}, nil
}
