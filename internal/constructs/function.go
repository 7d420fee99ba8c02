// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import (
	"maps"
	"slices"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
)

const (
	minMemorySizeMB  = 128
	maxMemorySizeMB  = 10240
	maxTimeoutSecond = 900

	lambdaServicePrincipal = "lambda.amazonaws.com"
	basicExecutionPolicy   = "service-role/AWSLambdaBasicExecutionRole"
)

type Architecture string

const (
	ARM64  Architecture = "arm64"
	X86_64 Architecture = "x86_64"
)

// ImageCode points a function at a container image, optionally overriding its
// entrypoint and command.
type ImageCode struct {
	ImageURI string
	// AssetDirectory is the docker build context the image was built from.
	AssetDirectory string
	EntryPoint     []string
	Cmd            []string
}

type FunctionProps struct {
	FunctionName string
	Code         ImageCode
	MemorySize   int
	Timeout      Duration
	Architecture Architecture
	Environment  map[string]any
	Description  string
}

type DockerImageFunction struct {
	scope    *Scope
	resource *CfnResource
	role     *Role

	environment map[string]any
}

// NewDockerImageFunction declares a container image function with its own execution role.
func NewDockerImageFunction(scope *Scope, id string, props FunctionProps) *DockerImageFunction {
	role := NewRole(scope, id+"ServiceRole", RoleProps{
		AssumedBy:       lambdaServicePrincipal,
		ManagedPolicies: []ManagedPolicy{AwsManagedPolicy(basicExecutionPolicy)},
	})

	if props.Code.ImageURI == "" {
		scope.addErrorf("%s: image URI is required", id)
	}

	name := props.FunctionName
	if name == "" {
		name = physicalName(scope.StackName(), id, 64)
	}

	properties := map[string]any{
		"FunctionName": name,
		"PackageType":  "Image",
		"Code":         map[string]any{"ImageUri": props.Code.ImageURI},
		"Role":         role.Arn(),
	}

	imageConfig := map[string]any{}
	if len(props.Code.EntryPoint) > 0 {
		imageConfig["EntryPoint"] = props.Code.EntryPoint
	}
	if len(props.Code.Cmd) > 0 {
		imageConfig["Command"] = props.Code.Cmd
	}
	if len(imageConfig) > 0 {
		properties["ImageConfig"] = imageConfig
	}

	if props.MemorySize != 0 {
		if props.MemorySize < minMemorySizeMB || props.MemorySize > maxMemorySizeMB {
			scope.addErrorf("%s: memory size must be between %d and %d MB, got %d", id, minMemorySizeMB, maxMemorySizeMB, props.MemorySize)
		}
		properties["MemorySize"] = props.MemorySize
	}

	if props.Timeout.IsSet() {
		seconds := props.Timeout.ToSeconds()
		if seconds < 1 || seconds > maxTimeoutSecond {
			scope.addErrorf("%s: timeout must be between 1 and %d seconds, got %d", id, maxTimeoutSecond, seconds)
		}
		properties["Timeout"] = seconds
	}

	if props.Architecture != "" {
		properties["Architectures"] = []string{string(props.Architecture)}
	}

	if props.Description != "" {
		properties["Description"] = props.Description
	}

	resource := scope.NewResource(id, descriptors.LambdaFunction, properties)
	resource.AddDependency(role.Resource())

	fn := &DockerImageFunction{
		scope:       scope,
		resource:    resource,
		role:        role,
		environment: maps.Clone(props.Environment),
	}
	if fn.environment == nil {
		fn.environment = map[string]any{}
	}

	// Permissions granted later must be in place before the function is created
	scope.onBuild(func() {
		if len(fn.environment) > 0 {
			resource.Properties["Environment"] = map[string]any{"Variables": fn.environment}
		}
		resource.AddDependency(role.DefaultPolicy())
	})

	return fn
}

// AddEnvironment sets a variable; value is a string or a Reference.
func (f *DockerImageFunction) AddEnvironment(key string, value any) {
	f.environment[key] = value
}

func (f *DockerImageFunction) EnvironmentKeys() []string {
	return slices.Sorted(maps.Keys(f.environment))
}

func (f *DockerImageFunction) Arn() Reference {
	return f.resource.Ref("Arn")
}

func (f *DockerImageFunction) FunctionName() Reference {
	return f.resource.Ref("FunctionName")
}

func (f *DockerImageFunction) Role() *Role {
	return f.role
}

func (f *DockerImageFunction) GrantPrincipal() *Role {
	return f.role
}

func (f *DockerImageFunction) Resource() *CfnResource {
	return f.resource
}

func (f *DockerImageFunction) AddEventSource(source EventSource) {
	source.Bind(f)
}
