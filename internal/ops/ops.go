// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package ops inspects a deployed pipeline: it reads back the live configuration of
// its queues and functions, checks the public endpoint, and drains the dead-letter queue.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"resty.dev/v3"
)

// Targets names the deployed resources to inspect.
type Targets struct {
	QueueURL          string
	QueueArn          string
	DLQURL            string
	DLQArn            string
	EntryFunction     string
	ProcessorFunction string
	FunctionURL       string
}

var ErrNotDeployed = errors.New("the pipeline is not deployed")

func (t Targets) validate() error {
	if t.QueueURL == "" || t.DLQURL == "" || t.EntryFunction == "" || t.ProcessorFunction == "" {
		return ErrNotDeployed
	}
	return nil
}

type sqsClient interface {
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	StartMessageMoveTask(ctx context.Context, params *sqs.StartMessageMoveTaskInput, optFns ...func(*sqs.Options)) (*sqs.StartMessageMoveTaskOutput, error)
}

type lambdaClient interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	ListEventSourceMappings(ctx context.Context, params *lambda.ListEventSourceMappingsInput, optFns ...func(*lambda.Options)) (*lambda.ListEventSourceMappingsOutput, error)
	GetFunctionUrlConfig(ctx context.Context, params *lambda.GetFunctionUrlConfigInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionUrlConfigOutput, error)
}

// Option is a functional option for configuring an [Inspector].
type Option func(*options)

type options struct {
	maxRetryAttempts int
	maxBackoffDelay  time.Duration
	httpTimeout      time.Duration
	sqsClient        sqsClient    // Optional: injected for testing
	lambdaClient     lambdaClient // Optional: injected for testing
	httpClient       *http.Client
}

func newOptions() *options {
	return &options{
		maxRetryAttempts: 5,
		maxBackoffDelay:  10 * time.Second,
		httpTimeout:      10 * time.Second,
	}
}

func (o *options) validate() error {
	if o.maxRetryAttempts < 0 || o.maxRetryAttempts > 10 {
		return errors.New("max AWS API retry attempts must be between 0 and 10")
	}
	if o.httpTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	return nil
}

// WithMaxRetryAttempts bounds retries of throttled AWS API calls. Default: 5.
func WithMaxRetryAttempts(attempts int) Option {
	return func(o *options) { o.maxRetryAttempts = attempts }
}

// WithHTTPTimeout bounds the preflight request. Default: 10s.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(o *options) { o.httpTimeout = timeout }
}

// WithHTTPClient replaces the transport used for the preflight request.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithSQSClient injects an SQS client.
func WithSQSClient(client sqsClient) Option {
	return func(o *options) { o.sqsClient = client }
}

// WithLambdaClient injects a Lambda client.
func WithLambdaClient(client lambdaClient) Option {
	return func(o *options) { o.lambdaClient = client }
}

// Inspector runs read-only checks and dead-letter operations against a deployed pipeline.
type Inspector struct {
	sqs    sqsClient
	lambda lambdaClient
	http   *resty.Client
}

func New(awsCfg aws.Config, opts ...Option) (*Inspector, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	i := &Inspector{sqs: o.sqsClient, lambda: o.lambdaClient}
	if i.sqs == nil {
		i.sqs = sqs.NewFromConfig(awsCfg, func(so *sqs.Options) {
			so.Retryer = retry.AddWithMaxBackoffDelay(so.Retryer, o.maxBackoffDelay)
			so.Retryer = retry.AddWithMaxAttempts(so.Retryer, o.maxRetryAttempts)
		})
	}
	if i.lambda == nil {
		i.lambda = lambda.NewFromConfig(awsCfg, func(lo *lambda.Options) {
			lo.Retryer = retry.AddWithMaxBackoffDelay(lo.Retryer, o.maxBackoffDelay)
			lo.Retryer = retry.AddWithMaxAttempts(lo.Retryer, o.maxRetryAttempts)
		})
	}

	if o.httpClient != nil {
		i.http = resty.NewWithClient(o.httpClient)
	} else {
		i.http = resty.New()
	}
	i.http.SetTimeout(o.httpTimeout)

	return i, nil
}

func (i *Inspector) Close() error {
	return i.http.Close()
}
