// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package changeset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metastructure/util"
	"github.com/resuralph/ralphstack/internal/metrics"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const (
	DefaultMaxConcurrency = 8

	// throttleWait is how long the executor waits for rate limit tokens to refill
	throttleWait = time.Second
)

var executorTracer = otel.Tracer("ralphstack/changeset")

var ErrChangesetStalled = errors.New("changeset has pending updates but none can run")

// ProgressFunc observes every change of a resource update: intermediate provider progress
// as well as the final state. It is called from the executor's goroutine only.
type ProgressFunc func(commandID string, ru resource_update.ResourceUpdate)

// Executor runs the changeset of a stack command. Ready operations run concurrently on a
// bounded pool; the executor goroutine owns the changeset and is the only writer of the
// command, the datastore and the known resources.
type Executor struct {
	updater        *resource_update.ResourceUpdater
	limiter        *RateLimiter
	store          datastore.Datastore
	metrics        *metrics.Metrics
	maxConcurrency int
}

func NewExecutor(updater *resource_update.ResourceUpdater, limiter *RateLimiter, store datastore.Datastore, m *metrics.Metrics, maxConcurrency int) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Executor{
		updater:        updater,
		limiter:        limiter,
		store:          store,
		metrics:        m,
		maxConcurrency: maxConcurrency,
	}
}

// updateEvent carries a snapshot of a running update back to the executor goroutine.
type updateEvent struct {
	key    string
	update resource_update.ResourceUpdate
	final  bool
}

type execution struct {
	*Executor
	cmd        *stack_command.StackCommand
	changeset  Changeset
	known      map[pkgmodel.ResourceURI]pkgmodel.Resource
	running    map[string]*resource_update.ResourceUpdate
	events     chan updateEvent
	onProgress ProgressFunc
}

// Execute runs every pending resource update of cmd and persists the outcome. known holds
// the recorded state of the resources the updates may reference. Updates that already
// finished, for instance in an interrupted earlier run, are not executed again.
func (e *Executor) Execute(ctx context.Context, cmd *stack_command.StackCommand, known []pkgmodel.Resource, onProgress ProgressFunc) error {
	ctx, span := executorTracer.Start(ctx, "ExecuteChangeset", trace.WithAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command", string(cmd.Command)),
		attribute.String("stack", cmd.StackLabel),
	))
	defer span.End()

	cmd.ResourceUpdates = SplitReplacements(cmd.ResourceUpdates)
	for i := range cmd.ResourceUpdates {
		// Operations interrupted mid-flight are started again; finished provider
		// operations are skipped by the resource updater.
		if cmd.ResourceUpdates[i].State == resource_update.ResourceUpdateStateInProgress {
			cmd.ResourceUpdates[i].State = resource_update.ResourceUpdateStateNotStarted
		}
	}

	cs, err := NewChangesetFromResourceUpdates(cmd.ResourceUpdates, cmd.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	x := &execution{
		Executor:   e,
		cmd:        cmd,
		changeset:  cs,
		known:      make(map[pkgmodel.ResourceURI]pkgmodel.Resource, len(known)),
		running:    make(map[string]*resource_update.ResourceUpdate),
		events:     make(chan updateEvent),
		onProgress: onProgress,
	}
	for _, r := range known {
		x.known[r.URI()] = r
	}

	cmd.State = types.CommandStateInProgress
	cmd.ModifiedTs = util.TimeNow()
	if err := e.store.StoreStackCommand(cmd); err != nil {
		return fmt.Errorf("failed to store stack command %s: %w", cmd.ID, err)
	}

	x.skipFinished()
	runErr := x.run(ctx)

	switch {
	case ctx.Err() != nil:
		x.cancelRemaining()
		cmd.State = types.CommandStateCanceled
		cmd.ModifiedTs = util.TimeNow()
	default:
		cmd.Finish()
	}
	if err := e.store.UpdateStackCommandProgress(cmd.ID, cmd.State, cmd.ModifiedTs); err != nil {
		slog.Error("Failed to store final command state", "commandID", cmd.ID, "error", err)
		runErr = errors.Join(runErr, err)
	}
	e.metrics.ObserveCommand(string(cmd.Command), string(cmd.State))

	slog.Info("Changeset finished", "commandID", cmd.ID, "state", cmd.State)
	span.SetAttributes(attribute.String("command.state", string(cmd.State)))
	if cmd.State != types.CommandStateSuccess {
		span.SetStatus(codes.Error, string(cmd.State))
	}

	return runErr
}

// skipFinished removes updates that reached a final state before this run.
func (x *execution) skipFinished() {
	for _, update := range x.changeset.Updates() {
		switch update.State {
		case resource_update.ResourceUpdateStateSuccess, resource_update.ResourceUpdateStateFailed, resource_update.ResourceUpdateStateRejected:
			if _, err := x.changeset.UpdatePipeline(update); err != nil {
				slog.Warn("Failed to skip finished update", "label", update.Label(), "error", err)
			}
		}
	}
}

func (x *execution) run(ctx context.Context) error {
	workers := pool.New().WithMaxGoroutines(x.maxConcurrency)
	defer workers.Wait()

	var throttle *time.Timer
	for {
		if ctx.Err() == nil {
			throttled := x.startReadyUpdates(ctx, workers)
			if throttled && throttle == nil {
				throttle = time.NewTimer(throttleWait)
			}
		}

		if len(x.running) == 0 {
			if ctx.Err() != nil || x.changeset.IsComplete() {
				return nil
			}
			if throttle == nil {
				slog.Error("Changeset stalled", "commandID", x.cmd.ID, "pipeline", x.changeset.PrintPipeline())
				return ErrChangesetStalled
			}
		}

		var throttleC <-chan time.Time
		if throttle != nil {
			throttleC = throttle.C
		}

		select {
		case event := <-x.events:
			x.handle(event)
		case <-throttleC:
			throttle = nil
		case <-ctx.Done():
			// Running updates observe the cancellation and report back
			if len(x.running) == 0 {
				return nil
			}
			event := <-x.events
			x.handle(event)
		}
	}
}

// startReadyUpdates hands ready updates to the pool, within the free worker slots and the
// rate limit of their namespace. It reports whether any update was held back by the rate
// limit. Updates held back for lack of a slot start when a running update finishes.
//
// The executor goroutine must never block in pool.Go: the workers occupying the slots
// wait for it to receive their events.
func (x *execution) startReadyUpdates(ctx context.Context, workers *pool.Pool) bool {
	throttled := false
	free := x.maxConcurrency - len(x.running)

	for namespace, n := range x.changeset.AvailableExecutableUpdates() {
		if !x.limiter.HasNamespace(namespace) {
			for _, update := range x.changeset.GetExecutableUpdates(namespace, n) {
				x.rejectUnservable(update, namespace)
			}
			continue
		}
		if free <= 0 {
			continue
		}

		wanted := min(n, free)
		granted := x.limiter.RequestTokens(namespace, wanted)
		if granted < wanted {
			throttled = true
		}
		for _, update := range x.changeset.GetExecutableUpdates(namespace, granted) {
			x.start(ctx, workers, update)
			free--
		}
	}

	return throttled
}

func (x *execution) start(ctx context.Context, workers *pool.Pool, update *resource_update.ResourceUpdate) {
	key := getResourceUpdateIdentifier(update)
	x.running[key] = update

	job := *update
	known := make([]pkgmodel.Resource, 0, len(x.known))
	for _, r := range x.known {
		known = append(known, r)
	}
	commandID := x.cmd.ID
	slog.Debug("Starting resource update", "commandID", commandID, "label", job.Label(), "operation", job.Operation)

	workers.Go(func() {
		ctx, span := executorTracer.Start(ctx, "ResourceUpdate", trace.WithAttributes(
			attribute.String("resource.label", job.Label()),
			attribute.String("resource.type", job.Type()),
			attribute.String("operation", string(job.Operation)),
		))
		defer span.End()

		result := x.updater.Run(ctx, job, known, func(progress resource_update.ResourceUpdate) {
			x.events <- updateEvent{key: key, update: progress}
		})
		if result.State != resource_update.ResourceUpdateStateSuccess {
			span.SetStatus(codes.Error, result.Reason)
		}
		x.events <- updateEvent{key: key, update: result, final: true}
	})
}

// rejectUnservable fails an update whose namespace has no provider.
func (x *execution) rejectUnservable(update *resource_update.ResourceUpdate, namespace string) {
	now := util.TimeNow()
	progress := resource.ProgressResult{
		Operation:       update.RequiredOperations()[0],
		OperationStatus: resource.OperationStatusFailure,
		ErrorCode:       resource.OperationErrorCodePluginNotFound,
		StatusMessage:   fmt.Sprintf("no provider for namespace %s", namespace),
		ResourceType:    update.Type(),
		StartTs:         now,
		ModifiedTs:      now,
		Attempts:        1,
		MaxAttempts:     1,
	}
	if err := update.RecordProgress(&progress); err != nil {
		slog.Error("Failed to record progress", "label", update.Label(), "error", err)
	}
	update.MarkAsFailed(progress.StatusMessage)
	x.finish(update)
}

func (x *execution) handle(event updateEvent) {
	update, ok := x.running[event.key]
	if !ok {
		slog.Warn("Received progress for an update that is not running", "update", event.key)
		return
	}
	*update = event.update

	if !event.final {
		// Intermediate progress keeps the update in progress for the pipeline
		update.State = resource_update.ResourceUpdateStateInProgress
		x.persistUpdate(*update)
		return
	}

	delete(x.running, event.key)
	x.finish(update)
}

// finish records a final update and releases or fails its downstream operations.
func (x *execution) finish(update *resource_update.ResourceUpdate) {
	if update.State == resource_update.ResourceUpdateStateSuccess {
		x.recordResource(*update)
	}

	x.persistUpdate(*update)
	x.metrics.ObserveResourceUpdate(*update)

	cascaded, err := x.changeset.UpdatePipeline(update)
	if err != nil {
		slog.Error("Failed to update pipeline", "commandID", x.cmd.ID, "error", err)
	}
	if update.State != resource_update.ResourceUpdateStateSuccess {
		slog.Warn("Resource update failed", "label", update.Label(), "operation", update.Operation, "reason", update.Reason)
	}

	for _, failed := range cascaded {
		if failed == update {
			continue
		}
		slog.Debug("Resource update failed by cascade", "label", failed.Label(), "operation", failed.Operation, "cause", update.Label())
		x.persistUpdate(*failed)
		x.metrics.ObserveResourceUpdate(*failed)
	}
}

// recordResource stores the outcome of a successful update and makes it visible to the
// references of downstream updates.
func (x *execution) recordResource(update resource_update.ResourceUpdate) {
	var err error

	switch {
	case update.Operation == resource_update.OperationDelete:
		existing := update.ExistingResource
		delete(x.known, existing.URI())
		_, err = x.store.DeleteResource(&existing, x.cmd.ID)
	case update.Operation == resource_update.OperationRead && update.MostRecentProgressResult.ErrorCode == resource.OperationErrorCodeNotFound:
		// A synced resource that no longer exists
		gone := update.Resource
		delete(x.known, gone.URI())
		_, err = x.store.DeleteResource(&gone, x.cmd.ID)
	default:
		stored := update.Resource
		stored.PatchDocument = nil
		if _, err = x.store.StoreResource(&stored, x.cmd.ID); err == nil {
			x.known[stored.URI()] = stored
		}
	}

	if err != nil {
		slog.Error("Failed to persist resource", "commandID", x.cmd.ID, "label", update.Label(), "error", err)
	}
}

func (x *execution) persistUpdate(update resource_update.ResourceUpdate) {
	x.cmd.UpsertResourceUpdate(update)
	x.cmd.ModifiedTs = util.TimeNow()
	if err := x.store.StoreResourceUpdate(x.cmd.ID, update); err != nil {
		slog.Error("Failed to persist resource update", "commandID", x.cmd.ID, "label", update.Label(), "error", err)
	}
	if x.onProgress != nil {
		x.onProgress(x.cmd.ID, update)
	}
}

// cancelRemaining fails every update that never started.
func (x *execution) cancelRemaining() {
	for _, update := range x.changeset.Updates() {
		if update.State != resource_update.ResourceUpdateStateNotStarted {
			continue
		}
		update.MarkAsFailed("command was canceled")
		x.persistUpdate(*update)
	}
}
