// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package changeset

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// Changeset orders the resource updates of one command. Every provider operation is a node
// of the pipeline; a node runs once all its upstream nodes have finished.
type Changeset struct {
	CommandID      string
	Pipeline       *ResourceUpdatePipeline
	trackedUpdates map[string]bool
}

type ResourceUpdatePipeline struct {
	ResourceUpdateGroups map[pkgmodel.ResourceURI]*ResourceUpdateGroup
}

type ResourceUpdateGroup struct {
	URI              pkgmodel.ResourceURI
	Updates          []*resource_update.ResourceUpdate
	DownstreamGroups []*ResourceUpdateGroup
	UpstreamGroups   []*ResourceUpdateGroup
}

func NewChangesetFromResourceUpdates(resourceUpdates []resource_update.ResourceUpdate, commandID string) (Changeset, error) {
	changeset := Changeset{
		CommandID:      commandID,
		Pipeline:       NewResourceUpdatePipeline(),
		trackedUpdates: make(map[string]bool),
	}

	if err := changeset.Pipeline.Init(resourceUpdates); err != nil {
		return Changeset{}, err
	}

	return changeset, nil
}

func NewResourceUpdatePipeline() *ResourceUpdatePipeline {
	return &ResourceUpdatePipeline{
		ResourceUpdateGroups: make(map[pkgmodel.ResourceURI]*ResourceUpdateGroup),
	}
}

// createOperationURI identifies the node of one operation on one resource
func createOperationURI(baseURI pkgmodel.ResourceURI, operation resource_update.OperationType) pkgmodel.ResourceURI {
	return pkgmodel.NewResourceURI(baseURI.Stack(), baseURI.Label(), string(operation))
}

// SplitReplacements expands every replace into a delete of the recorded resource followed
// by a create of the declared one. Other updates are returned unchanged.
func SplitReplacements(resourceUpdates []resource_update.ResourceUpdate) []resource_update.ResourceUpdate {
	var allOps []resource_update.ResourceUpdate
	for _, update := range resourceUpdates {
		if update.Operation != resource_update.OperationReplace {
			allOps = append(allOps, update)
			continue
		}

		reason := update.Reason
		if reason == "" {
			reason = "replacement"
		}

		deleteOp := update
		deleteOp.Operation = resource_update.OperationDelete
		deleteOp.Reason = reason
		allOps = append(allOps, deleteOp)

		createOp := update
		createOp.Operation = resource_update.OperationCreate
		createOp.Reason = reason
		createOp.Resource.NativeID = ""
		createOp.Resource.ReadOnlyProperties = nil
		allOps = append(allOps, createOp)
	}

	return allOps
}

func (p *ResourceUpdatePipeline) Init(resourceUpdates []resource_update.ResourceUpdate) error {
	allOps := SplitReplacements(resourceUpdates)

	for i := range allOps {
		update := &allOps[i]
		operationURI := createOperationURI(update.URI(), update.Operation)
		if _, exists := p.ResourceUpdateGroups[operationURI]; exists {
			return fmt.Errorf("duplicate %s operation for %s", update.Operation, update.Label())
		}

		p.ResourceUpdateGroups[operationURI] = &ResourceUpdateGroup{
			URI:              operationURI,
			Updates:          []*resource_update.ResourceUpdate{update},
			DownstreamGroups: []*ResourceUpdateGroup{},
			UpstreamGroups:   []*ResourceUpdateGroup{},
		}
	}

	p.buildOperationRelationships(allOps)

	if cycle := p.findCycle(); len(cycle) > 0 {
		return apimodel.CyclesDetectedError{Operations: cycle}
	}

	return nil
}

func (p *ResourceUpdatePipeline) buildOperationRelationships(allOps []resource_update.ResourceUpdate) {
	// Deletes run in reverse dependency order
	p.buildDeleteDependencies(allOps)

	// Creates, updates and reads run in dependency order
	p.buildForwardDependencies(allOps)

	// A replaced resource is deleted before it is created again
	p.connectDeleteToCreate(allOps)

	// A resource stops referencing a deleted resource before that resource goes away
	p.connectUpdateToDelete(allOps)
}

func (p *ResourceUpdatePipeline) group(uri pkgmodel.ResourceURI, operation resource_update.OperationType) *ResourceUpdateGroup {
	return p.ResourceUpdateGroups[createOperationURI(uri, operation)]
}

func (p *ResourceUpdatePipeline) buildDeleteDependencies(allOps []resource_update.ResourceUpdate) {
	deleteOps := make(map[pkgmodel.ResourceURI]struct{})
	for _, op := range allOps {
		if op.Operation == resource_update.OperationDelete {
			deleteOps[op.URI()] = struct{}{}
		}
	}

	for _, deleteOp := range allOps {
		if deleteOp.Operation != resource_update.OperationDelete {
			continue
		}
		dependentGroup := p.group(deleteOp.URI(), resource_update.OperationDelete)

		for _, dependency := range deleteOp.Dependencies() {
			if _, exists := deleteOps[dependency]; !exists {
				continue
			}
			// REVERSE: the dependency is deleted after its dependent
			p.group(dependency, resource_update.OperationDelete).LinkWith(dependentGroup)
		}
	}
}

func isForward(operation resource_update.OperationType) bool {
	return operation == resource_update.OperationCreate ||
		operation == resource_update.OperationUpdate ||
		operation == resource_update.OperationRead
}

func (p *ResourceUpdatePipeline) buildForwardDependencies(allOps []resource_update.ResourceUpdate) {
	forwardOps := make(map[pkgmodel.ResourceURI]resource_update.OperationType)
	for _, op := range allOps {
		if isForward(op.Operation) {
			forwardOps[op.URI()] = op.Operation
		}
	}

	for _, op := range allOps {
		if !isForward(op.Operation) {
			continue
		}
		dependentGroup := p.group(op.URI(), op.Operation)

		for _, dependency := range op.Dependencies() {
			dependencyOp, exists := forwardOps[dependency]
			if !exists {
				continue
			}
			dependentGroup.LinkWith(p.group(dependency, dependencyOp))
		}
	}
}

func (p *ResourceUpdatePipeline) connectDeleteToCreate(allOps []resource_update.ResourceUpdate) {
	for _, op := range allOps {
		if op.Operation != resource_update.OperationCreate {
			continue
		}
		deleteGroup := p.group(op.URI(), resource_update.OperationDelete)
		createGroup := p.group(op.URI(), resource_update.OperationCreate)
		if deleteGroup != nil && createGroup != nil {
			createGroup.LinkWith(deleteGroup)
		}
	}
}

func (p *ResourceUpdatePipeline) connectUpdateToDelete(allOps []resource_update.ResourceUpdate) {
	removed := make(map[pkgmodel.ResourceURI]struct{})
	for _, op := range allOps {
		// Replacements are recreated, their dependents are updated afterwards
		if op.Operation == resource_update.OperationDelete && p.group(op.URI(), resource_update.OperationCreate) == nil {
			removed[op.URI()] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return
	}

	for _, op := range allOps {
		if op.Operation != resource_update.OperationUpdate {
			continue
		}
		updateGroup := p.group(op.URI(), resource_update.OperationUpdate)
		for _, dependency := range op.PriorDependencies() {
			if _, ok := removed[dependency]; ok {
				p.group(dependency, resource_update.OperationDelete).LinkWith(updateGroup)
			}
		}
	}
}

// findCycle returns the operations of one dependency cycle, or nil.
func (p *ResourceUpdatePipeline) findCycle() []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[pkgmodel.ResourceURI]int, len(p.ResourceUpdateGroups))
	var path []pkgmodel.ResourceURI

	var visit func(group *ResourceUpdateGroup) []string
	visit = func(group *ResourceUpdateGroup) []string {
		switch state[group.URI] {
		case visited:
			return nil
		case visiting:
			start := slices.Index(path, group.URI)
			var cycle []string
			for _, uri := range path[start:] {
				cycle = append(cycle, operationName(uri))
			}
			return cycle
		}

		state[group.URI] = visiting
		path = append(path, group.URI)
		for _, downstream := range group.DownstreamGroups {
			if cycle := visit(downstream); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		state[group.URI] = visited

		return nil
	}

	for _, uri := range p.sortedURIs() {
		if cycle := visit(p.ResourceUpdateGroups[uri]); cycle != nil {
			return cycle
		}
	}

	return nil
}

func (p *ResourceUpdatePipeline) HasCycles() bool {
	return len(p.findCycle()) > 0
}

func (p *ResourceUpdatePipeline) sortedURIs() []pkgmodel.ResourceURI {
	uris := make([]pkgmodel.ResourceURI, 0, len(p.ResourceUpdateGroups))
	for uri := range p.ResourceUpdateGroups {
		uris = append(uris, uri)
	}
	slices.Sort(uris)

	return uris
}

func operationName(uri pkgmodel.ResourceURI) string {
	return fmt.Sprintf("%s %s", uri.PropertyPath(), uri.Label())
}

func (rug *ResourceUpdateGroup) LinkWith(upstream *ResourceUpdateGroup) {
	if rug.URI == upstream.URI {
		return
	}
	for _, existing := range rug.UpstreamGroups {
		if existing.URI == upstream.URI {
			return
		}
	}

	rug.UpstreamGroups = append(rug.UpstreamGroups, upstream)
	upstream.DownstreamGroups = append(upstream.DownstreamGroups, rug)
}

func (rug *ResourceUpdateGroup) RemoveUpstreamGroup(upstream *ResourceUpdateGroup) {
	for i, group := range rug.UpstreamGroups {
		if group.URI == upstream.URI {
			rug.UpstreamGroups = append(rug.UpstreamGroups[:i], rug.UpstreamGroups[i+1:]...)
			break
		}
	}
}

func (rug *ResourceUpdateGroup) HasRunningUpdate() bool {
	return len(rug.GetRunningUpdates()) > 0
}

func (rug *ResourceUpdateGroup) GetRunningUpdates() []*resource_update.ResourceUpdate {
	var updates []*resource_update.ResourceUpdate
	for _, update := range rug.Updates {
		if update.State == resource_update.ResourceUpdateStateInProgress {
			updates = append(updates, update)
		}
	}
	return updates
}

func (rug *ResourceUpdateGroup) NextUpdate() (*resource_update.ResourceUpdate, string) {
	for _, update := range rug.Updates {
		if update.State == resource_update.ResourceUpdateStateNotStarted {
			return update, getResourceUpdateIdentifier(update)
		}
	}
	return nil, ""
}

func (rug *ResourceUpdateGroup) Pop(update *resource_update.ResourceUpdate) {
	for i, u := range rug.Updates {
		if u.URI() == update.URI() && u.Operation == update.Operation {
			rug.Updates = append(rug.Updates[:i], rug.Updates[i+1:]...)
			break
		}
	}
}

func (rug *ResourceUpdateGroup) Done() bool {
	return len(rug.Updates) == 0
}

func (rug *ResourceUpdateGroup) ready() bool {
	return len(rug.UpstreamGroups) == 0 && !rug.Done() && !rug.HasRunningUpdate()
}

// Updates returns every operation still tracked by the pipeline, sorted.
func (c *Changeset) Updates() []*resource_update.ResourceUpdate {
	var updates []*resource_update.ResourceUpdate
	for _, uri := range c.Pipeline.sortedURIs() {
		updates = append(updates, c.Pipeline.ResourceUpdateGroups[uri].Updates...)
	}
	return updates
}

// GetInProgressUpdates returns all updates that are in InProgress state.
// These may be orphaned updates from a previous run that need to be resumed.
func (c *Changeset) GetInProgressUpdates() []*resource_update.ResourceUpdate {
	var updates []*resource_update.ResourceUpdate
	for _, uri := range c.Pipeline.sortedURIs() {
		updates = append(updates, c.Pipeline.ResourceUpdateGroups[uri].GetRunningUpdates()...)
	}
	return updates
}

// GetExecutableUpdates hands out at most max ready updates of a namespace and marks them
// in progress.
func (c *Changeset) GetExecutableUpdates(namespace string, max int) []*resource_update.ResourceUpdate {
	var executable []*resource_update.ResourceUpdate

	for _, uri := range c.Pipeline.sortedURIs() {
		if len(executable) >= max {
			break
		}
		group := c.Pipeline.ResourceUpdateGroups[uri]
		if !group.ready() {
			continue
		}
		nextUpdate, updateKey := group.NextUpdate()
		if nextUpdate == nil || nextUpdate.Namespace() != namespace || c.trackedUpdates[updateKey] {
			continue
		}
		executable = append(executable, nextUpdate)
		c.trackedUpdates[updateKey] = true
		nextUpdate.State = resource_update.ResourceUpdateStateInProgress
	}

	sort.Slice(executable, func(i, j int) bool {
		return string(executable[i].URI()) < string(executable[j].URI())
	})

	return executable
}

// AvailableExecutableUpdates counts ready updates per namespace.
func (c *Changeset) AvailableExecutableUpdates() map[string]int {
	result := make(map[string]int)
	for _, group := range c.Pipeline.ResourceUpdateGroups {
		if !group.ready() {
			continue
		}
		nextUpdate, updateKey := group.NextUpdate()
		if nextUpdate != nil && !c.trackedUpdates[updateKey] {
			result[nextUpdate.Namespace()]++
		}
	}

	return result
}

// UpdatePipeline removes a finished update from the pipeline. A failure fails every
// operation downstream of it; those are returned, the original failure last.
func (c *Changeset) UpdatePipeline(update *resource_update.ResourceUpdate) ([]*resource_update.ResourceUpdate, error) {
	uri := createOperationURI(update.URI(), update.Operation)
	upstream, exists := c.Pipeline.ResourceUpdateGroups[uri]
	if !exists {
		return nil, fmt.Errorf("resource group not found for URI: %s", uri)
	}

	switch update.State {
	case resource_update.ResourceUpdateStateSuccess:
		upstream.Pop(update)
		c.removeIfDone(upstream)
		return nil, nil

	case resource_update.ResourceUpdateStateFailed, resource_update.ResourceUpdateStateRejected:
		failedUpdates := c.failResourceUpdate(update)
		if len(failedUpdates) > 1 {
			slog.Debug("Cascading failure detected",
				"originalFailure", update.Label(),
				"cascadingCount", len(failedUpdates)-1)
		}

		for _, failedUpdate := range failedUpdates {
			failedURI := createOperationURI(failedUpdate.URI(), failedUpdate.Operation)
			if failedGroup, exists := c.Pipeline.ResourceUpdateGroups[failedURI]; exists {
				failedGroup.Pop(failedUpdate)
				c.removeIfDone(failedGroup)
			}
		}

		return failedUpdates, nil
	}

	return nil, nil
}

func (c *Changeset) removeIfDone(group *ResourceUpdateGroup) {
	if !group.Done() {
		return
	}
	for _, downstream := range group.DownstreamGroups {
		downstream.RemoveUpstreamGroup(group)
	}
	delete(c.Pipeline.ResourceUpdateGroups, group.URI)
}

func (c *Changeset) failResourceUpdate(update *resource_update.ResourceUpdate) []*resource_update.ResourceUpdate {
	var failedUpdates []*resource_update.ResourceUpdate
	visited := make(map[pkgmodel.ResourceURI]bool)

	c.recursivelyFailDependencies(update, update, &failedUpdates, visited)

	// Include original failed update
	failedUpdates = append(failedUpdates, update)
	return failedUpdates
}

func (c *Changeset) recursivelyFailDependencies(origin, failedUpdate *resource_update.ResourceUpdate, failedUpdates *[]*resource_update.ResourceUpdate, visited map[pkgmodel.ResourceURI]bool) {
	uri := createOperationURI(failedUpdate.URI(), failedUpdate.Operation)
	if visited[uri] {
		return
	}
	visited[uri] = true

	upstream, exists := c.Pipeline.ResourceUpdateGroups[uri]
	if !exists {
		return
	}

	for _, downstreamGroup := range upstream.DownstreamGroups {
		for _, downstreamUpdate := range downstreamGroup.Updates {
			if downstreamUpdate.State != resource_update.ResourceUpdateStateNotStarted {
				continue
			}
			downstreamUpdate.MarkAsFailed(fmt.Sprintf("%s of %s failed", origin.Operation, origin.Label()))
			*failedUpdates = append(*failedUpdates, downstreamUpdate)

			c.recursivelyFailDependencies(origin, downstreamUpdate, failedUpdates, visited)
		}
	}
}

func (c *Changeset) PrintPipeline() string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Changeset Pipeline: %s\n", c.CommandID))
	result.WriteString("========================\n")

	for _, uri := range c.Pipeline.sortedURIs() {
		group := c.Pipeline.ResourceUpdateGroups[uri]
		result.WriteString(fmt.Sprintf("Group: %s\n", uri))
		result.WriteString("  Updates:\n")
		for _, update := range group.Updates {
			result.WriteString(fmt.Sprintf("    - %s (%s)\n", update.Operation, update.State))
		}

		result.WriteString("  Upstream Dependencies:\n")
		for _, dep := range group.UpstreamGroups {
			result.WriteString(fmt.Sprintf("    - %s\n", dep.URI))
		}

		result.WriteString("  Downstream Dependents:\n")
		for _, dep := range group.DownstreamGroups {
			result.WriteString(fmt.Sprintf("    - %s\n", dep.URI))
		}

		result.WriteString("\n")
	}

	return result.String()
}

func (c *Changeset) IsComplete() bool {
	for _, group := range c.Pipeline.ResourceUpdateGroups {
		for _, update := range group.Updates {
			if update.State != resource_update.ResourceUpdateStateFailed && update.State != resource_update.ResourceUpdateStateRejected {
				return false
			}
		}
	}

	return true
}

func getResourceUpdateIdentifier(update *resource_update.ResourceUpdate) string {
	return fmt.Sprintf("%s-%s", update.URI(), update.Operation)
}
