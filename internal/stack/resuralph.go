// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package stack declares the command pipeline: a public entry function enqueues commands
// that a queue-triggered processor consumes one at a time.
package stack

import (
	"errors"

	"github.com/resuralph/ralphstack/internal/constructs"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const (
	CommandQueueName = "resuralph-command-queue"
	CommandDLQName   = "resuralph-command-dlq"

	CommandQueueVisibilitySeconds = 60
	CommandQueueRetentionDays     = 14
	CommandQueueMaxReceiveCount   = 3

	FunctionMemorySizeMB     = 1024
	EntryTimeoutSeconds      = 10
	ProcessorTimeoutSeconds  = 60
	ProcessorBatchSize       = 1
	ProcessorEntryPoint      = "/lambda-entrypoint.sh"
	ProcessorHandler         = "command_processor.handler"
	DefaultAssetDirectory    = "./src"
	QueueURLEnvironmentKey   = "COMMAND_QUEUE_URL"
	FunctionURLOutputKey     = "FunctionUrl"
	CommandQueueURLOutputKey = "CommandQueueUrl"
)

// Logical IDs of the declared resources.
const (
	CommandDLQID      = "CommandDLQ"
	CommandQueueID    = "CommandQueue"
	SharedPolicyID    = "S3DynamoDBPolicy"
	EntryFunctionID   = "DockerFunction"
	ProcessorID       = "CommandProcessorFunction"
	EntryFunctionURL  = EntryFunctionID + "FunctionUrl"
	ProcessorMapping  = ProcessorID + "SqsEventSource" + CommandQueueID
	EntryFunctionRole = EntryFunctionID + "ServiceRole"
	ProcessorRole     = ProcessorID + "ServiceRole"
)

var ErrMissingPolicyArn = errors.New("RESURALPH_IAM_POLICY must name the managed policy attached to both functions")

// Environment carries the values forwarded verbatim into both functions, plus the ARN of
// the shared managed policy.
type Environment struct {
	DiscordPublicKey  string
	BucketRegion      string
	S3BucketName      string
	DynamoDBTableName string
	OpenAIAPIKey      string
	HypothesisAPIKey  string
	IAMPolicyArn      string
}

func EnvironmentFromConfig(env pkgmodel.FunctionEnvironment) Environment {
	return Environment{
		DiscordPublicKey:  env.DiscordPublicKey,
		BucketRegion:      env.BucketRegion,
		S3BucketName:      env.S3BucketName,
		DynamoDBTableName: env.DynamoDBTableName,
		OpenAIAPIKey:      env.OpenAIAPIKey,
		HypothesisAPIKey:  env.HypothesisAPIKey,
		IAMPolicyArn:      env.IAMPolicyArn,
	}
}

// Variables returns the forwarded function environment. Values are not validated.
func (e Environment) Variables() map[string]any {
	return map[string]any{
		"DISCORD_PUBLIC_KEY":  e.DiscordPublicKey,
		"BUCKET_REGION":       e.BucketRegion,
		"S3_BUCKET_NAME":      e.S3BucketName,
		"DYNAMODB_TABLE_NAME": e.DynamoDBTableName,
		"OPENAI_API_KEY":      e.OpenAIAPIKey,
		"HYPOTHESIS_API_KEY":  e.HypothesisAPIKey,
	}
}

// Image is the container image both functions run.
type Image struct {
	URI       string
	Directory string
}

type Props struct {
	StackName   string
	Target      pkgmodel.Target
	Environment Environment
	Image       Image
}

// New declares the command pipeline and builds it into a stack model.
func New(props Props) (*pkgmodel.Stack, error) {
	if props.Environment.IAMPolicyArn == "" {
		return nil, ErrMissingPolicyArn
	}

	scope := constructs.NewScope(props.StackName, "Serverless command pipeline: function URL -> SQS -> processor", props.Target)

	dlq := constructs.NewQueue(scope, CommandDLQID, constructs.QueueProps{
		QueueName: CommandDLQName,
	})

	queue := constructs.NewQueue(scope, CommandQueueID, constructs.QueueProps{
		QueueName:         CommandQueueName,
		VisibilityTimeout: constructs.Seconds(CommandQueueVisibilitySeconds),
		RetentionPeriod:   constructs.Days(CommandQueueRetentionDays),
		DeadLetterQueue: &constructs.DeadLetterQueue{
			Queue:           dlq,
			MaxReceiveCount: CommandQueueMaxReceiveCount,
		},
	})

	sharedPolicy := constructs.ManagedPolicyFromArn(scope, SharedPolicyID, props.Environment.IAMPolicyArn)

	directory := props.Image.Directory
	if directory == "" {
		directory = DefaultAssetDirectory
	}

	entry := constructs.NewDockerImageFunction(scope, EntryFunctionID, constructs.FunctionProps{
		Code: constructs.ImageCode{
			ImageURI:       props.Image.URI,
			AssetDirectory: directory,
		},
		MemorySize:   FunctionMemorySizeMB,
		Timeout:      constructs.Seconds(EntryTimeoutSeconds),
		Architecture: constructs.ARM64,
		Environment:  props.Environment.Variables(),
	})
	entry.AddEnvironment(QueueURLEnvironmentKey, queue.URL())
	entry.Role().AddManagedPolicy(sharedPolicy)
	queue.GrantSendMessages(entry)

	processor := constructs.NewDockerImageFunction(scope, ProcessorID, constructs.FunctionProps{
		Code: constructs.ImageCode{
			ImageURI:       props.Image.URI,
			AssetDirectory: directory,
			EntryPoint:     []string{ProcessorEntryPoint},
			Cmd:            []string{ProcessorHandler},
		},
		MemorySize:   FunctionMemorySizeMB,
		Timeout:      constructs.Seconds(ProcessorTimeoutSeconds),
		Architecture: constructs.ARM64,
		Environment:  props.Environment.Variables(),
	})
	processor.Role().AddManagedPolicy(sharedPolicy)
	processor.AddEventSource(constructs.NewSqsEventSource(queue, constructs.SqsEventSourceProps{
		BatchSize: ProcessorBatchSize,
	}))

	url := entry.AddFunctionURL(constructs.FunctionURLOptions{
		AuthType: constructs.FunctionURLAuthTypeNone,
		Cors: &constructs.FunctionURLCorsOptions{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []constructs.HttpMethod{constructs.HttpMethodAll},
			AllowedHeaders: []string{"*"},
		},
	})

	constructs.NewOutput(scope, FunctionURLOutputKey, url.URL(), "URL of the command entry function")
	constructs.NewOutput(scope, CommandQueueURLOutputKey, queue.URL(), "URL of the command queue")

	return scope.Build()
}
