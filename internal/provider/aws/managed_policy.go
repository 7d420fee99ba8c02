// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/goccy/go-json"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/pkg/plugin/resource"
)

// ManagedPolicy reads customer managed policies that the stack imports by ARN. Cloud
// Control cannot look them up by ARN, and the stack never creates or deletes them.
type ManagedPolicy struct {
	cfg *Config
}

type iamClientInterface interface {
	GetPolicy(ctx context.Context, params *iam.GetPolicyInput, optFns ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
}

var _ Provisioner = &ManagedPolicy{}

func init() {
	Register(descriptors.IAMManagedPolicy, []resource.Operation{resource.OperationRead}, func(cfg *Config) Provisioner {
		return &ManagedPolicy{cfg: cfg}
	})
}

func (m *ManagedPolicy) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	cfg, err := m.cfg.ToAwsConfig(ctx)
	if err != nil {
		slog.Error("Failed to load AWS config", "error", err)
		return nil, fmt.Errorf("unable to load aws config: %w", err)
	}

	return m.readWithClient(ctx, iam.NewFromConfig(cfg), request)
}

// readWithClient allows for DI of the IAM client for testing
func (m *ManagedPolicy) readWithClient(ctx context.Context, client iamClientInterface, request *resource.ReadRequest) (*resource.ReadResult, error) {
	if request.NativeID == "" {
		return nil, fmt.Errorf("policy arn required for reading a managed policy")
	}

	out, err := client.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: aws.String(request.NativeID)})
	if err != nil {
		code, isAPIError := errorCodeOf(err)
		if !isAPIError {
			return nil, fmt.Errorf("failed to get policy %s: %w", request.NativeID, err)
		}
		return &resource.ReadResult{ResourceType: request.ResourceType, ErrorCode: code}, nil
	}

	props := map[string]any{
		"PolicyArn": request.NativeID,
	}
	if p := out.Policy; p != nil {
		props["PolicyName"] = aws.ToString(p.PolicyName)
		props["DefaultVersionId"] = aws.ToString(p.DefaultVersionId)
		props["AttachmentCount"] = aws.ToInt32(p.AttachmentCount)
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy %s: %w", request.NativeID, err)
	}

	return &resource.ReadResult{ResourceType: request.ResourceType, Properties: string(data)}, nil
}

func (m *ManagedPolicy) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	return nil, fmt.Errorf("create not supported - managed policies are imported")
}

func (m *ManagedPolicy) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	return nil, fmt.Errorf("update not supported - managed policies are imported")
}

func (m *ManagedPolicy) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	return nil, fmt.Errorf("delete not supported - managed policies are imported")
}

func (m *ManagedPolicy) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return nil, fmt.Errorf("status not supported - managed policies are imported")
}
