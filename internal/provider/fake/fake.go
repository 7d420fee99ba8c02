// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package fake is an in-memory AWS provider. It serves the same resource types as the
// Cloud Control provider and fabricates the attributes AWS would return.
package fake

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/resuralph/ralphstack/internal/metastructure/util"
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

const (
	Namespace     = "AWS"
	AccountID     = "123456789012"
	defaultRegion = "us-east-1"
)

// MaxRequestsPerSecond allows tests to control the rate limit
var MaxRequestsPerSecond = 5

// Call records one operation the provider received.
type Call struct {
	Operation    resource.Operation
	ResourceType string
	NativeID     string
}

type stored struct {
	resourceType string
	properties   map[string]any
}

type Provider struct {
	mu        sync.Mutex
	resources map[string]stored
	pending   map[string]resource.ProgressResult
	calls     []Call

	// Async makes create, update and delete report InProgress; Status completes them.
	Async bool
}

var _ plugin.ResourcePlugin = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		resources: make(map[string]stored),
		pending:   make(map[string]resource.ProgressResult),
	}
}

func (p *Provider) Namespace() string {
	return Namespace
}

func (p *Provider) SupportedResources() []plugin.ResourceDescriptor {
	return descriptors.All()
}

func (p *Provider) SchemaForResourceType(resourceType string) (model.Schema, error) {
	schema, ok := descriptors.Lookup(resourceType)
	if !ok {
		return model.Schema{}, fmt.Errorf("unsupported resource type %s", resourceType)
	}
	return schema, nil
}

func (p *Provider) Throttling() plugin.ThrottlingConfig {
	return plugin.ThrottlingConfig{
		Scope:                            plugin.ThrottlingScopeNamespace,
		MaxRequestsPerSecondForNamespace: MaxRequestsPerSecond,
	}
}

// Seed records a resource that exists outside of any stack, such as a managed policy.
func (p *Provider) Seed(resourceType, nativeID string, properties map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources[nativeID] = stored{resourceType: resourceType, properties: maps.Clone(properties)}
}

// Properties returns the recorded properties of a resource.
func (p *Provider) Properties(nativeID string) (map[string]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[nativeID]
	return maps.Clone(r.properties), ok
}

// Count returns how many resources of a type exist.
func (p *Provider) Count(resourceType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.resources {
		if r.resourceType == resourceType {
			n++
		}
	}
	return n
}

func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) record(operation resource.Operation, resourceType, nativeID string) {
	p.calls = append(p.calls, Call{Operation: operation, ResourceType: resourceType, NativeID: nativeID})
}

func (p *Provider) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	if o := plugin.OverridesFromContext(ctx); o != nil && o.Create != nil {
		if ret, err := o.Create(request); err != nil || ret != nil {
			return ret, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	desired := request.DesiredState
	var properties map[string]any
	if err := json.Unmarshal(desired.Properties, &properties); err != nil {
		return nil, fmt.Errorf("invalid properties for %s: %w", desired.Label, err)
	}

	nativeID, attributes := fabricate(desired.Type, desired.Label, region(request.Target), properties)
	p.record(resource.OperationCreate, desired.Type, nativeID)
	if _, exists := p.resources[nativeID]; exists {
		return &resource.CreateResult{ProgressResult: p.failure(resource.OperationCreate, desired.Type, nativeID,
			resource.OperationErrorCodeAlreadyExists, fmt.Sprintf("%s already exists", nativeID))}, nil
	}
	maps.Copy(properties, attributes)
	p.resources[nativeID] = stored{resourceType: desired.Type, properties: properties}

	return &resource.CreateResult{ProgressResult: p.progress(resource.OperationCreate, desired.Type, nativeID, properties)}, nil
}

func (p *Provider) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	if o := plugin.OverridesFromContext(ctx); o != nil && o.Update != nil {
		if ret, err := o.Update(request); err != nil || ret != nil {
			return ret, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	nativeID := util.StringPtrToString(request.NativeID)
	resourceType := request.DesiredState.Type
	p.record(resource.OperationUpdate, resourceType, nativeID)

	existing, ok := p.resources[nativeID]
	if !ok {
		return &resource.UpdateResult{ProgressResult: p.failure(resource.OperationUpdate, resourceType, nativeID,
			resource.OperationErrorCodeNotFound, fmt.Sprintf("%s does not exist", nativeID))}, nil
	}

	var desired map[string]any
	if err := json.Unmarshal(request.DesiredState.Properties, &desired); err != nil {
		return nil, fmt.Errorf("invalid properties for %s: %w", request.DesiredState.Label, err)
	}
	schema, _ := descriptors.Lookup(resourceType)
	properties := make(map[string]any, len(existing.properties))
	for k, v := range existing.properties {
		if schema.IsAttribute(k) {
			properties[k] = v
		}
	}
	maps.Copy(properties, desired)
	p.resources[nativeID] = stored{resourceType: resourceType, properties: properties}

	return &resource.UpdateResult{ProgressResult: p.progress(resource.OperationUpdate, resourceType, nativeID, properties)}, nil
}

func (p *Provider) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	if o := plugin.OverridesFromContext(ctx); o != nil && o.Delete != nil {
		if ret, err := o.Delete(request); err != nil || ret != nil {
			return ret, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	nativeID := util.StringPtrToString(request.NativeID)
	p.record(resource.OperationDelete, request.ResourceType, nativeID)
	if _, ok := p.resources[nativeID]; !ok {
		return &resource.DeleteResult{ProgressResult: p.failure(resource.OperationDelete, request.ResourceType, nativeID,
			resource.OperationErrorCodeNotFound, fmt.Sprintf("%s does not exist", nativeID))}, nil
	}
	delete(p.resources, nativeID)

	return &resource.DeleteResult{ProgressResult: p.progress(resource.OperationDelete, request.ResourceType, nativeID, nil)}, nil
}

func (p *Provider) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	if o := plugin.OverridesFromContext(ctx); o != nil && o.Read != nil {
		if ret, err := o.Read(request); err != nil || ret != nil {
			return ret, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(resource.OperationRead, request.ResourceType, request.NativeID)
	r, ok := p.resources[request.NativeID]
	if !ok || r.resourceType != request.ResourceType {
		return &resource.ReadResult{ResourceType: request.ResourceType, ErrorCode: resource.OperationErrorCodeNotFound}, nil
	}

	properties, err := json.Marshal(r.properties)
	if err != nil {
		return nil, err
	}
	return &resource.ReadResult{ResourceType: request.ResourceType, Properties: string(properties)}, nil
}

func (p *Provider) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	if o := plugin.OverridesFromContext(ctx); o != nil && o.Status != nil {
		if ret, err := o.Status(request); err != nil || ret != nil {
			return ret, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	final, ok := p.pending[request.RequestID]
	if !ok {
		return nil, fmt.Errorf("unknown request %s", request.RequestID)
	}
	delete(p.pending, request.RequestID)
	final.ModifiedTs = util.TimeNow()

	return &resource.StatusResult{ProgressResult: &final}, nil
}

// progress returns the successful result, or an InProgress result whose outcome is
// reported by Status when the provider is asynchronous.
func (p *Provider) progress(operation resource.Operation, resourceType, nativeID string, properties map[string]any) *resource.ProgressResult {
	now := util.TimeNow()
	result := resource.ProgressResult{
		Operation:       operation,
		OperationStatus: resource.OperationStatusSuccess,
		RequestID:       uuid.NewString(),
		NativeID:        nativeID,
		ResourceType:    resourceType,
		StartTs:         now,
		ModifiedTs:      now,
	}
	if properties != nil {
		result.ResourceProperties, _ = json.Marshal(properties)
	}

	if !p.Async {
		return &result
	}

	p.pending[result.RequestID] = result
	inProgress := result
	inProgress.OperationStatus = resource.OperationStatusInProgress
	inProgress.ResourceProperties = nil
	return &inProgress
}

func (p *Provider) failure(operation resource.Operation, resourceType, nativeID string, code resource.OperationErrorCode, message string) *resource.ProgressResult {
	now := util.TimeNow()
	return &resource.ProgressResult{
		Operation:       operation,
		OperationStatus: resource.OperationStatusFailure,
		RequestID:       uuid.NewString(),
		NativeID:        nativeID,
		ResourceType:    resourceType,
		StartTs:         now,
		ModifiedTs:      now,
		ErrorCode:       code,
		StatusMessage:   message,
	}
}

func region(target *model.Target) string {
	if target == nil || target.Region == "" {
		return defaultRegion
	}
	return target.Region
}

// fabricate derives the identifier and read-only attributes AWS would assign.
func fabricate(resourceType, label, region string, properties map[string]any) (string, map[string]any) {
	name := func(field string) string {
		if s, ok := properties[field].(string); ok && s != "" {
			return s
		}
		return label
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	switch resourceType {
	case descriptors.SQSQueue:
		queueName := name("QueueName")
		url := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", region, AccountID, queueName)
		return url, map[string]any{
			"QueueUrl": url,
			"Arn":      fmt.Sprintf("arn:aws:sqs:%s:%s:%s", region, AccountID, queueName),
		}
	case descriptors.IAMRole:
		roleName := name("RoleName")
		return roleName, map[string]any{
			"Arn":    fmt.Sprintf("arn:aws:iam::%s:role/%s", AccountID, roleName),
			"RoleId": "AROA" + strings.ToUpper(id[:17]),
		}
	case descriptors.IAMRolePolicy:
		return fmt.Sprintf("%s|%s", name("PolicyName"), name("RoleName")), map[string]any{}
	case descriptors.LambdaFunction:
		functionName := name("FunctionName")
		return functionName, map[string]any{
			"Arn": fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, AccountID, functionName),
		}
	case descriptors.LambdaURL:
		functionArn := name("TargetFunctionArn")
		return functionArn, map[string]any{
			"FunctionArn": functionArn,
			"FunctionUrl": fmt.Sprintf("https://%s.lambda-url.%s.on.aws/", id, region),
		}
	case descriptors.LambdaEventSourceMapping:
		return id, map[string]any{
			"Id":                    id,
			"EventSourceMappingArn": fmt.Sprintf("arn:aws:lambda:%s:%s:event-source-mapping:%s", region, AccountID, id),
		}
	default:
		return id, map[string]any{"Id": id}
	}
}
