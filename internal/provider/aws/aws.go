// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package aws provisions resources through the AWS Cloud Control API. Types Cloud Control
// cannot serve are routed to a registered Provisioner.
package aws

import (
	"context"
	"fmt"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const Namespace = "AWS"

// MaxRequestsPerSecond is shared by all Cloud Control requests of a command.
const MaxRequestsPerSecond = 4

type AWS struct {
	newClient func(ctx context.Context, cfg *Config) (*Client, error)
}

// Compile time check to satisfy protocol
var _ plugin.ResourcePlugin = &AWS{}

func New() *AWS {
	return &AWS{newClient: NewClient}
}

func (a *AWS) Namespace() string {
	return Namespace
}

func (a *AWS) SupportedResources() []plugin.ResourceDescriptor {
	return descriptors.All()
}

func (a *AWS) SchemaForResourceType(resourceType string) (model.Schema, error) {
	schema, ok := descriptors.Lookup(resourceType)
	if !ok {
		return model.Schema{}, fmt.Errorf("unsupported resource type %s", resourceType)
	}
	return schema, nil
}

func (a *AWS) Throttling() plugin.ThrottlingConfig {
	return plugin.ThrottlingConfig{
		Scope:                            plugin.ThrottlingScopeNamespace,
		MaxRequestsPerSecondForNamespace: MaxRequestsPerSecond,
	}
}

func (a *AWS) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	cfg := FromTarget(request.Target)
	if HasProvisioner(request.DesiredState.Type, resource.OperationCreate) {
		return provisionerFor(request.DesiredState.Type, cfg).Create(ctx, request)
	}

	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return client.CreateResource(ctx, request)
}

func (a *AWS) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	cfg := FromTarget(request.Target)
	if HasProvisioner(request.DesiredState.Type, resource.OperationUpdate) {
		return provisionerFor(request.DesiredState.Type, cfg).Update(ctx, request)
	}

	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return client.UpdateResource(ctx, request)
}

func (a *AWS) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	cfg := FromTarget(request.Target)
	if HasProvisioner(request.ResourceType, resource.OperationDelete) {
		return provisionerFor(request.ResourceType, cfg).Delete(ctx, request)
	}

	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return client.DeleteResource(ctx, request)
}

func (a *AWS) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	cfg := FromTarget(request.Target)
	if HasProvisioner(request.ResourceType, resource.OperationRead) {
		return provisionerFor(request.ResourceType, cfg).Read(ctx, request)
	}

	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return client.ReadResource(ctx, request)
}

func (a *AWS) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	cfg := FromTarget(request.Target)
	if request.ResourceType != "" && HasProvisioner(request.ResourceType, resource.OperationCheckStatus) {
		return provisionerFor(request.ResourceType, cfg).Status(ctx, request)
	}

	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return client.StatusResource(ctx, request)
}
