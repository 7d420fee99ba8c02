// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build integration

package ops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/resuralph/ralphstack/internal/stack"
)

func startLocalStack(t *testing.T, ctx context.Context) *sqs.Client {
	container, err := localstack.Run(ctx,
		"localstack/localstack:3.8",
		testcontainers.WithEnv(map[string]string{"SERVICES": "sqs"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(terminateCtx); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566/tcp")
	require.NoError(t, err)

	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("test", "test", ""),
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("http://%s:%s", host, port.Port()))
	})
}

func createQueue(t *testing.T, ctx context.Context, client *sqs.Client, name string, attrs map[string]string) (string, string) {
	created, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name), Attributes: attrs})
	require.NoError(t, err)

	out, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       created.QueueUrl,
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	require.NoError(t, err)

	return aws.ToString(created.QueueUrl), out.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]
}

func TestDeadLetters_AgainstLocalStack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := startLocalStack(t, ctx)

	dlqURL, dlqArn := createQueue(t, ctx, client, stack.CommandDLQName, nil)
	queueURL, queueArn := createQueue(t, ctx, client, stack.CommandQueueName, map[string]string{
		"VisibilityTimeout": "60",
		"RedrivePolicy":     fmt.Sprintf(`{"deadLetterTargetArn":"%s","maxReceiveCount":"3"}`, dlqArn),
	})

	for n := range 3 {
		_, err := client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(dlqURL),
			MessageBody: aws.String(fmt.Sprintf(`{"command":"summarize","n":%d}`, n)),
		})
		require.NoError(t, err)
	}

	inspector, err := New(aws.Config{Region: "us-east-1"}, WithSQSClient(client))
	require.NoError(t, err)
	defer inspector.Close() //nolint:errcheck

	targets := Targets{QueueURL: queueURL, QueueArn: queueArn, DLQURL: dlqURL, DLQArn: dlqArn}

	stats, err := inspector.DeadLetters(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total())

	handle, err := inspector.Redrive(ctx, targets)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	assert.Eventually(t, func() bool {
		stats, err := inspector.DeadLetters(ctx, targets)
		return err == nil && stats.Total() == 0
	}, 30*time.Second, time.Second)
}
