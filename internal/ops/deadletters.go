// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// DeadLetterStats are approximate, as reported by SQS.
type DeadLetterStats struct {
	Visible  int `json:"Visible"`
	InFlight int `json:"InFlight"`
	Delayed  int `json:"Delayed"`
}

func (s DeadLetterStats) Total() int {
	return s.Visible + s.InFlight + s.Delayed
}

func (i *Inspector) DeadLetters(ctx context.Context, targets Targets) (*DeadLetterStats, error) {
	if targets.DLQURL == "" {
		return nil, ErrNotDeployed
	}

	out, err := i.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(targets.DLQURL),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dead-letter queue depth: %w", err)
	}

	count := func(name sqstypes.QueueAttributeName) int {
		n, err := strconv.Atoi(out.Attributes[string(name)])
		if err != nil {
			return 0
		}
		return n
	}

	return &DeadLetterStats{
		Visible:  count(sqstypes.QueueAttributeNameApproximateNumberOfMessages),
		InFlight: count(sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		Delayed:  count(sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

// Redrive starts moving dead letters back to the command queue and returns the task
// handle. SQS runs the move asynchronously.
func (i *Inspector) Redrive(ctx context.Context, targets Targets) (string, error) {
	if targets.DLQArn == "" || targets.QueueArn == "" {
		return "", ErrNotDeployed
	}

	out, err := i.sqs.StartMessageMoveTask(ctx, &sqs.StartMessageMoveTaskInput{
		SourceArn:      aws.String(targets.DLQArn),
		DestinationArn: aws.String(targets.QueueArn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start redrive: %w", err)
	}

	handle := aws.ToString(out.TaskHandle)
	slog.Info("Started dead-letter redrive", "source", targets.DLQArn, "destination", targets.QueueArn, "task", handle)

	return handle, nil
}
