// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package plugin

import (
	"context"

	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// Must remain stateless so a changeset can be resumed by a later invocation
type ResourcePlugin interface {
	Namespace() string
	SupportedResources() []ResourceDescriptor
	SchemaForResourceType(resourceType string) (model.Schema, error)
	Throttling() ThrottlingConfig

	Create(context context.Context, request *resource.CreateRequest) (*resource.CreateResult, error)
	Update(context context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error)
	Delete(context context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error)
	Read(context context.Context, request *resource.ReadRequest) (*resource.ReadResult, error)

	Status(context context.Context, request *resource.StatusRequest) (*resource.StatusResult, error)
}

type ResourceDescriptor struct {
	Type   string
	Schema model.Schema
}

// ThrottlingScope defines the granularity of rate limiting
type ThrottlingScope string

const (
	// ThrottlingScopeNamespace applies rate limiting at the plugin namespace level
	ThrottlingScopeNamespace ThrottlingScope = "Namespace"
)

// ThrottlingConfig specifies rate limiting behavior for a plugin
type ThrottlingConfig struct {
	Scope                            ThrottlingScope
	MaxRequestsPerSecondForNamespace int
}

type overridesContextKey struct{}

// ResourcePluginOverrides replace plugin operations in tests. A nil function, or one
// returning a nil result, falls through to the plugin.
type ResourcePluginOverrides struct {
	Create func(request *resource.CreateRequest) (*resource.CreateResult, error)
	Update func(request *resource.UpdateRequest) (*resource.UpdateResult, error)
	Delete func(request *resource.DeleteRequest) (*resource.DeleteResult, error)
	Read   func(request *resource.ReadRequest) (*resource.ReadResult, error)
	Status func(request *resource.StatusRequest) (*resource.StatusResult, error)
}

func WithOverrides(ctx context.Context, overrides *ResourcePluginOverrides) context.Context {
	return context.WithValue(ctx, overridesContextKey{}, overrides)
}

func OverridesFromContext(ctx context.Context) *ResourcePluginOverrides {
	if o, ok := ctx.Value(overridesContextKey{}).(*ResourcePluginOverrides); ok {
		return o
	}
	return nil
}
