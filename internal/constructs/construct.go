// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package constructs declares AWS resources as Go values. Constructs register low-level
// resources on a Scope, which builds them into a model.Stack for synthesis and deployment.
package constructs

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

var logicalIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Scope collects the resources and outputs of one stack.
type Scope struct {
	stack       string
	description string
	target      pkgmodel.Target

	resources  []*CfnResource
	outputs    []*Output
	ids        map[string]struct{}
	finalizers []func()
	errs       []error
}

func NewScope(stack, description string, target pkgmodel.Target) *Scope {
	return &Scope{
		stack:       stack,
		description: description,
		target:      target,
		ids:         make(map[string]struct{}),
	}
}

func (s *Scope) StackName() string {
	return s.stack
}

// CfnResource is a single resource of a CloudFormation type.
type CfnResource struct {
	LogicalID  string
	Type       string
	Properties map[string]any
	DependsOn  []string
	// Imported resources already exist; they are read but never created or deleted.
	Imported   bool
	PhysicalID string

	stack string
}

// Ref returns a reference to one of the resource's properties or attributes.
func (r *CfnResource) Ref(attribute string) Reference {
	return Reference{Stack: r.stack, LogicalID: r.LogicalID, Attribute: attribute}
}

func (r *CfnResource) AddDependency(other *CfnResource) {
	if other == nil || other.LogicalID == r.LogicalID || slices.Contains(r.DependsOn, other.LogicalID) {
		return
	}
	r.DependsOn = append(r.DependsOn, other.LogicalID)
}

// Reference marshals into a $ref object resolved once the target resource exists.
type Reference struct {
	Stack     string
	LogicalID string
	Attribute string
}

func (r Reference) URI() pkgmodel.ResourceURI {
	return pkgmodel.NewResourceURI(r.Stack, r.LogicalID, r.Attribute)
}

func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(pkgmodel.RefObject(r.URI()))
}

// NewResource registers a low-level resource. Duplicate or malformed logical IDs are
// reported when the scope is built.
func (s *Scope) NewResource(logicalID, resourceType string, properties map[string]any) *CfnResource {
	if !logicalIDPattern.MatchString(logicalID) {
		s.addError(fmt.Errorf("logical ID %q must be alphanumeric and start with a letter", logicalID))
	}
	if _, exists := s.ids[logicalID]; exists {
		s.addError(fmt.Errorf("duplicate logical ID %q in stack %s", logicalID, s.stack))
	}
	s.ids[logicalID] = struct{}{}

	if properties == nil {
		properties = map[string]any{}
	}

	resource := &CfnResource{
		LogicalID:  logicalID,
		Type:       resourceType,
		Properties: properties,
		stack:      s.stack,
	}
	s.resources = append(s.resources, resource)

	return resource
}

func (s *Scope) addError(err error) {
	s.errs = append(s.errs, err)
}

func (s *Scope) addErrorf(format string, args ...any) {
	s.addError(fmt.Errorf(format, args...))
}

func (s *Scope) onBuild(f func()) {
	s.finalizers = append(s.finalizers, f)
}

// Build converts the declared constructs into a stack model.
func (s *Scope) Build() (*pkgmodel.Stack, error) {
	for _, f := range s.finalizers {
		f()
	}
	s.finalizers = nil

	if len(s.errs) > 0 {
		return nil, errors.Join(s.errs...)
	}

	stack := &pkgmodel.Stack{
		Label:       s.stack,
		Description: s.description,
		Target:      s.target,
	}

	for _, r := range s.resources {
		properties, err := json.Marshal(r.Properties)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties of %s: %w", r.LogicalID, err)
		}

		schema, ok := descriptors.Lookup(r.Type)
		if !ok {
			return nil, fmt.Errorf("resource %s has unsupported type %s", r.LogicalID, r.Type)
		}

		resource := pkgmodel.Resource{
			Label:      r.LogicalID,
			Type:       r.Type,
			Stack:      s.stack,
			Schema:     schema,
			Properties: properties,
			Managed:    !r.Imported,
			DependsOn:  slices.Clone(r.DependsOn),
		}
		if r.Imported {
			resource.NativeID = r.PhysicalID
		}
		stack.Resources = append(stack.Resources, resource)
	}

	for _, o := range s.outputs {
		value, err := json.Marshal(o.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output %s: %w", o.ID, err)
		}
		stack.Outputs = append(stack.Outputs, pkgmodel.Output{
			Key:         o.ID,
			Description: o.Description,
			Value:       value,
		})
	}

	return stack, nil
}

// physicalName derives a deterministic resource name from the stack and logical ID.
func physicalName(stack, logicalID string, maxLength int) string {
	name := stack + "-" + logicalID
	if len(name) > maxLength {
		name = name[:maxLength]
	}
	return name
}
