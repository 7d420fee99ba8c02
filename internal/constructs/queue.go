// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import (
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
)

const (
	maxVisibilityTimeoutSeconds = 12 * 60 * 60
	minRetentionPeriodSeconds   = 60
	maxRetentionPeriodSeconds   = 14 * 24 * 60 * 60
	maxMaxReceiveCount          = 1000
)

type DeadLetterQueue struct {
	Queue *Queue
	// MaxReceiveCount is the number of receives before a message moves to the dead-letter queue.
	MaxReceiveCount int
}

type QueueProps struct {
	QueueName         string
	VisibilityTimeout Duration
	RetentionPeriod   Duration
	DeadLetterQueue   *DeadLetterQueue
}

type Queue struct {
	scope    *Scope
	resource *CfnResource
}

func NewQueue(scope *Scope, id string, props QueueProps) *Queue {
	properties := map[string]any{}

	if props.QueueName != "" {
		properties["QueueName"] = props.QueueName
	}

	if props.VisibilityTimeout.IsSet() {
		seconds := props.VisibilityTimeout.ToSeconds()
		if seconds < 0 || seconds > maxVisibilityTimeoutSeconds {
			scope.addErrorf("%s: visibility timeout must be between 0 and %d seconds, got %d", id, maxVisibilityTimeoutSeconds, seconds)
		}
		properties["VisibilityTimeout"] = seconds
	}

	if props.RetentionPeriod.IsSet() {
		seconds := props.RetentionPeriod.ToSeconds()
		if seconds < minRetentionPeriodSeconds || seconds > maxRetentionPeriodSeconds {
			scope.addErrorf("%s: retention period must be between %d and %d seconds, got %d", id, minRetentionPeriodSeconds, maxRetentionPeriodSeconds, seconds)
		}
		properties["MessageRetentionPeriod"] = seconds
	}

	resource := scope.NewResource(id, descriptors.SQSQueue, properties)

	if dlq := props.DeadLetterQueue; dlq != nil {
		if dlq.Queue == nil {
			scope.addErrorf("%s: dead-letter queue is missing its queue", id)
		} else {
			if dlq.MaxReceiveCount < 1 || dlq.MaxReceiveCount > maxMaxReceiveCount {
				scope.addErrorf("%s: max receive count must be between 1 and %d, got %d", id, maxMaxReceiveCount, dlq.MaxReceiveCount)
			}
			properties["RedrivePolicy"] = map[string]any{
				"deadLetterTargetArn": dlq.Queue.Arn(),
				"maxReceiveCount":     dlq.MaxReceiveCount,
			}
		}
	}

	return &Queue{scope: scope, resource: resource}
}

func (q *Queue) Arn() Reference {
	return q.resource.Ref("Arn")
}

func (q *Queue) URL() Reference {
	return q.resource.Ref("QueueUrl")
}

func (q *Queue) Resource() *CfnResource {
	return q.resource
}

// GrantSendMessages lets the grantee enqueue messages.
func (q *Queue) GrantSendMessages(grantee Grantable) {
	if err := grant(grantee, q.Arn(), "sqs:SendMessage", "sqs:GetQueueAttributes", "sqs:GetQueueUrl"); err != nil {
		q.scope.addError(err)
	}
}

// GrantConsumeMessages lets the grantee receive and delete messages.
func (q *Queue) GrantConsumeMessages(grantee Grantable) {
	if err := grant(grantee, q.Arn(),
		"sqs:ReceiveMessage",
		"sqs:ChangeMessageVisibility",
		"sqs:GetQueueUrl",
		"sqs:DeleteMessage",
		"sqs:GetQueueAttributes",
	); err != nil {
		q.scope.addError(err)
	}
}
