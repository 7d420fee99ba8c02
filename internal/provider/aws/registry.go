// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package aws

import (
	"context"
	"slices"
	"sync"

	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// Provisioner handles resource types Cloud Control cannot serve.
type Provisioner interface {
	Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error)
	Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error)
	Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error)
	Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error)
	Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error)
}

type ProvisionerFactory func(cfg *Config) Provisioner

type registration struct {
	operations []resource.Operation
	factory    ProvisionerFactory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

// Register routes the given operations of a resource type to a provisioner.
func Register(resourceType string, operations []resource.Operation, factory ProvisionerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[resourceType] = registration{operations: operations, factory: factory}
}

func HasProvisioner(resourceType string, operation resource.Operation) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[resourceType]
	return ok && slices.Contains(r.operations, operation)
}

func provisionerFor(resourceType string, cfg *Config) Provisioner {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[resourceType].factory(cfg)
}
