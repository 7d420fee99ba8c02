// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package ops

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"

	"github.com/resuralph/ralphstack/internal/stack"
)

const preflightOrigin = "https://discord.com"

type Check struct {
	Name   string `json:"Name"`
	Passed bool   `json:"Passed"`
	Detail string `json:"Detail,omitempty"`
}

type Report struct {
	Checks []Check `json:"Checks"`
}

func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// expect records a check from a list of mismatches.
func (r *Report) expect(name string, mismatches []string, err error) {
	switch {
	case err != nil:
		r.Checks = append(r.Checks, Check{Name: name, Detail: err.Error()})
	case len(mismatches) > 0:
		r.Checks = append(r.Checks, Check{Name: name, Detail: fmt.Sprint(mismatches)})
	default:
		r.Checks = append(r.Checks, Check{Name: name, Passed: true})
	}
}

func mismatch[T comparable](field string, want, got T) []string {
	if want == got {
		return nil
	}
	return []string{fmt.Sprintf("%s: want %v, got %v", field, want, got)}
}

// Verify reads back the deployed configuration and sends a preflight to the public endpoint. A
// failing check does not stop the others.
func (i *Inspector) Verify(ctx context.Context, targets Targets) (*Report, error) {
	if err := targets.validate(); err != nil {
		return nil, err
	}

	entryEnv := func(cfg *lambda.GetFunctionConfigurationOutput) []string {
		var env map[string]string
		if cfg.Environment != nil {
			env = cfg.Environment.Variables
		}
		return mismatch(stack.QueueURLEnvironmentKey, targets.QueueURL, env[stack.QueueURLEnvironmentKey])
	}
	processorCommand := func(cfg *lambda.GetFunctionConfigurationOutput) []string {
		var command []string
		if cfg.ImageConfigResponse != nil && cfg.ImageConfigResponse.ImageConfig != nil {
			command = cfg.ImageConfigResponse.ImageConfig.Command
		}
		return mismatch("Command", fmt.Sprint([]string{stack.ProcessorHandler}), fmt.Sprint(command))
	}

	checks := []struct {
		name string
		run  func() ([]string, error)
	}{
		{"command queue attributes", func() ([]string, error) { return i.checkCommandQueue(ctx, targets) }},
		{"dead-letter queue", func() ([]string, error) { return i.checkDeadLetterQueue(ctx, targets) }},
		{"entry function configuration", func() ([]string, error) {
			return i.checkFunction(ctx, targets.EntryFunction, stack.EntryTimeoutSeconds, entryEnv)
		}},
		{"processor function configuration", func() ([]string, error) {
			return i.checkFunction(ctx, targets.ProcessorFunction, stack.ProcessorTimeoutSeconds, processorCommand)
		}},
		{"processor event source", func() ([]string, error) { return i.checkEventSource(ctx, targets) }},
		{"function URL configuration", func() ([]string, error) { return i.checkFunctionURL(ctx, targets) }},
		{"CORS preflight", func() ([]string, error) { return i.checkPreflight(ctx, targets) }},
	}

	report := &Report{}
	for _, c := range checks {
		mismatches, err := c.run()
		report.expect(c.name, mismatches, err)
	}

	return report, nil
}

func (i *Inspector) queueAttributes(ctx context.Context, queueURL string) (map[string]string, error) {
	out, err := i.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes of %s: %w", queueURL, err)
	}
	return out.Attributes, nil
}

func (i *Inspector) checkCommandQueue(ctx context.Context, targets Targets) ([]string, error) {
	attrs, err := i.queueAttributes(ctx, targets.QueueURL)
	if err != nil {
		return nil, err
	}

	var problems []string
	problems = append(problems, mismatch("VisibilityTimeout", strconv.Itoa(stack.CommandQueueVisibilitySeconds), attrs[string(sqstypes.QueueAttributeNameVisibilityTimeout)])...)
	problems = append(problems, mismatch("MessageRetentionPeriod", strconv.Itoa(stack.CommandQueueRetentionDays*24*60*60), attrs[string(sqstypes.QueueAttributeNameMessageRetentionPeriod)])...)

	var redrive struct {
		DeadLetterTargetArn string `json:"deadLetterTargetArn"`
		MaxReceiveCount     any    `json:"maxReceiveCount"`
	}
	if err := json.Unmarshal([]byte(attrs[string(sqstypes.QueueAttributeNameRedrivePolicy)]), &redrive); err != nil {
		return append(problems, "RedrivePolicy: missing or invalid"), nil
	}
	problems = append(problems, mismatch("deadLetterTargetArn", targets.DLQArn, redrive.DeadLetterTargetArn)...)
	problems = append(problems, mismatch("maxReceiveCount", strconv.Itoa(stack.CommandQueueMaxReceiveCount), fmt.Sprint(redrive.MaxReceiveCount))...)

	return problems, nil
}

func (i *Inspector) checkDeadLetterQueue(ctx context.Context, targets Targets) ([]string, error) {
	attrs, err := i.queueAttributes(ctx, targets.DLQURL)
	if err != nil {
		return nil, err
	}
	return mismatch("QueueArn", targets.DLQArn, attrs[string(sqstypes.QueueAttributeNameQueueArn)]), nil
}

func (i *Inspector) checkFunction(ctx context.Context, name string, timeout int, extra func(*lambda.GetFunctionConfigurationOutput) []string) ([]string, error) {
	cfg, err := i.lambda.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{FunctionName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration of %s: %w", name, err)
	}

	var problems []string
	problems = append(problems, mismatch("PackageType", lambdatypes.PackageTypeImage, cfg.PackageType)...)
	problems = append(problems, mismatch("MemorySize", int32(stack.FunctionMemorySizeMB), aws.ToInt32(cfg.MemorySize))...)
	problems = append(problems, mismatch("Timeout", int32(timeout), aws.ToInt32(cfg.Timeout))...)
	if !slices.Equal(cfg.Architectures, []lambdatypes.Architecture{lambdatypes.ArchitectureArm64}) {
		problems = append(problems, fmt.Sprintf("Architectures: want [arm64], got %v", cfg.Architectures))
	}
	return append(problems, extra(cfg)...), nil
}

func (i *Inspector) checkEventSource(ctx context.Context, targets Targets) ([]string, error) {
	out, err := i.lambda.ListEventSourceMappings(ctx, &lambda.ListEventSourceMappingsInput{
		FunctionName:   aws.String(targets.ProcessorFunction),
		EventSourceArn: aws.String(targets.QueueArn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list event source mappings of %s: %w", targets.ProcessorFunction, err)
	}
	if len(out.EventSourceMappings) != 1 {
		return []string{fmt.Sprintf("want exactly one mapping from the command queue, got %d", len(out.EventSourceMappings))}, nil
	}

	mapping := out.EventSourceMappings[0]
	problems := mismatch("BatchSize", int32(stack.ProcessorBatchSize), aws.ToInt32(mapping.BatchSize))
	return append(problems, mismatch("State", "Enabled", aws.ToString(mapping.State))...), nil
}

func (i *Inspector) checkFunctionURL(ctx context.Context, targets Targets) ([]string, error) {
	out, err := i.lambda.GetFunctionUrlConfig(ctx, &lambda.GetFunctionUrlConfigInput{FunctionName: aws.String(targets.EntryFunction)})
	if err != nil {
		return nil, fmt.Errorf("failed to get function URL of %s: %w", targets.EntryFunction, err)
	}

	problems := mismatch("AuthType", lambdatypes.FunctionUrlAuthTypeNone, out.AuthType)
	if targets.FunctionURL != "" {
		problems = append(problems, mismatch("FunctionUrl", targets.FunctionURL, aws.ToString(out.FunctionUrl))...)
	}
	if out.Cors == nil {
		return append(problems, "Cors: not configured"), nil
	}
	for field, values := range map[string][]string{
		"AllowOrigins": out.Cors.AllowOrigins,
		"AllowMethods": out.Cors.AllowMethods,
		"AllowHeaders": out.Cors.AllowHeaders,
	} {
		if !slices.Equal(values, []string{"*"}) {
			problems = append(problems, fmt.Sprintf("Cors.%s: want [*], got %v", field, values))
		}
	}
	slices.Sort(problems)

	return problems, nil
}

// checkPreflight sends the OPTIONS request a browser would send before a cross-origin
// POST; the endpoint must allow any origin.
func (i *Inspector) checkPreflight(ctx context.Context, targets Targets) ([]string, error) {
	if targets.FunctionURL == "" {
		return []string{"function URL unknown"}, nil
	}

	resp, err := i.http.R().
		SetContext(ctx).
		SetHeader("Origin", preflightOrigin).
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		SetHeader("Access-Control-Request-Headers", "content-type").
		Options(targets.FunctionURL)
	if err != nil {
		return nil, fmt.Errorf("preflight to %s failed: %w", targets.FunctionURL, err)
	}

	//nolint:errcheck
	defer resp.Body.Close()

	var problems []string
	if resp.StatusCode() >= http.StatusBadRequest {
		problems = append(problems, fmt.Sprintf("status: %d", resp.StatusCode()))
	}
	allowed := resp.Header().Get("Access-Control-Allow-Origin")
	if allowed != "*" && allowed != preflightOrigin {
		problems = append(problems, fmt.Sprintf("Access-Control-Allow-Origin: want * or %s, got %q", preflightOrigin, allowed))
	}

	return problems, nil
}
