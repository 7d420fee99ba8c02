// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import (
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
)

const (
	defaultSqsBatchSize = 10
	maxSqsBatchSize     = 10000
)

type EventSource interface {
	Bind(target *DockerImageFunction)
}

type SqsEventSourceProps struct {
	// BatchSize defaults to 10 when zero.
	BatchSize int
	Disabled  bool
}

type SqsEventSource struct {
	queue *Queue
	props SqsEventSourceProps
}

func NewSqsEventSource(queue *Queue, props SqsEventSourceProps) *SqsEventSource {
	return &SqsEventSource{queue: queue, props: props}
}

// Bind creates the event source mapping and grants the function permission to consume.
func (s *SqsEventSource) Bind(target *DockerImageFunction) {
	scope := target.scope

	batchSize := s.props.BatchSize
	if batchSize == 0 {
		batchSize = defaultSqsBatchSize
	}
	if batchSize < 1 || batchSize > maxSqsBatchSize {
		scope.addErrorf("%s: SQS batch size must be between 1 and %d, got %d", target.resource.LogicalID, maxSqsBatchSize, batchSize)
	}

	s.queue.GrantConsumeMessages(target)

	mapping := scope.NewResource(target.resource.LogicalID+"SqsEventSource"+s.queue.resource.LogicalID, descriptors.LambdaEventSourceMapping, map[string]any{
		"EventSourceArn": s.queue.Arn(),
		"FunctionName":   target.FunctionName(),
		"BatchSize":      batchSize,
		"Enabled":        !s.props.Disabled,
	})
	mapping.AddDependency(target.Role().DefaultPolicy())
}
