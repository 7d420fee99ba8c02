// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const testPolicyArn = "arn:aws:iam::123456789012:policy/resuralph-s3-dynamodb"
const testImageURI = "123456789012.dkr.ecr.us-east-1.amazonaws.com/resuralph:abc123"

func newTestStack(t *testing.T) *pkgmodel.Stack {
	t.Helper()

	s, err := New(Props{
		StackName: "ResuralphPythonStack",
		Target:    pkgmodel.Target{Label: "aws", Namespace: "AWS", Region: "us-east-1"},
		Environment: Environment{
			DiscordPublicKey:  "discord-key",
			BucketRegion:      "us-east-1",
			S3BucketName:      "bucket",
			DynamoDBTableName: "table",
			OpenAIAPIKey:      "openai",
			HypothesisAPIKey:  "hypothesis",
			IAMPolicyArn:      testPolicyArn,
		},
		Image: Image{URI: testImageURI},
	})
	require.NoError(t, err)

	return s
}

func properties(t *testing.T, s *pkgmodel.Stack, label string) gjson.Result {
	t.Helper()
	r, ok := s.Resource(label)
	require.True(t, ok, "resource %s not declared", label)
	return gjson.ParseBytes(r.Properties)
}

func resourceOfType(t *testing.T, s *pkgmodel.Stack, label, resourceType string) *pkgmodel.Resource {
	t.Helper()
	r, ok := s.Resource(label)
	require.True(t, ok, "resource %s not declared", label)
	assert.Equal(t, resourceType, r.Type)
	return r
}

func TestNew_DeclaresExpectedResources(t *testing.T) {
	s := newTestStack(t)

	types := map[string]string{}
	for _, r := range s.Resources {
		types[r.Label] = r.Type
	}

	assert.Equal(t, map[string]string{
		CommandDLQID:                          "AWS::SQS::Queue",
		CommandQueueID:                        "AWS::SQS::Queue",
		SharedPolicyID:                        "AWS::IAM::ManagedPolicy",
		EntryFunctionRole:                     "AWS::IAM::Role",
		EntryFunctionRole + "DefaultPolicy":   "AWS::IAM::RolePolicy",
		EntryFunctionID:                       "AWS::Lambda::Function",
		ProcessorRole:                         "AWS::IAM::Role",
		ProcessorRole + "DefaultPolicy":       "AWS::IAM::RolePolicy",
		ProcessorID:                           "AWS::Lambda::Function",
		ProcessorMapping:                      "AWS::Lambda::EventSourceMapping",
		EntryFunctionURL:                      "AWS::Lambda::Url",
		EntryFunctionID + "InvokeFunctionUrl": "AWS::Lambda::Permission",
	}, types)
}

func TestNew_CommandQueueConfiguration(t *testing.T) {
	s := newTestStack(t)

	queue := properties(t, s, CommandQueueID)
	assert.Equal(t, "resuralph-command-queue", queue.Get("QueueName").String())
	assert.Equal(t, int64(60), queue.Get("VisibilityTimeout").Int())
	assert.Equal(t, int64(14*24*60*60), queue.Get("MessageRetentionPeriod").Int())
	assert.Equal(t, int64(3), queue.Get("RedrivePolicy.maxReceiveCount").Int())
	assert.Equal(t, "ralph://ResuralphPythonStack/CommandDLQ#/Arn", queue.Get(`RedrivePolicy.deadLetterTargetArn.$ref`).String())

	dlq := properties(t, s, CommandDLQID)
	assert.Equal(t, "resuralph-command-dlq", dlq.Get("QueueName").String())
	assert.False(t, dlq.Get("RedrivePolicy").Exists())
}

func TestNew_EntryFunctionConfiguration(t *testing.T) {
	s := newTestStack(t)

	fn := properties(t, s, EntryFunctionID)
	assert.Equal(t, "Image", fn.Get("PackageType").String())
	assert.Equal(t, testImageURI, fn.Get("Code.ImageUri").String())
	assert.Equal(t, int64(1024), fn.Get("MemorySize").Int())
	assert.Equal(t, int64(10), fn.Get("Timeout").Int())
	assert.Equal(t, `["arm64"]`, fn.Get("Architectures").Raw)
	assert.False(t, fn.Get("ImageConfig").Exists())

	vars := fn.Get("Environment.Variables")
	assert.Equal(t, "discord-key", vars.Get("DISCORD_PUBLIC_KEY").String())
	assert.Equal(t, "us-east-1", vars.Get("BUCKET_REGION").String())
	assert.Equal(t, "bucket", vars.Get("S3_BUCKET_NAME").String())
	assert.Equal(t, "table", vars.Get("DYNAMODB_TABLE_NAME").String())
	assert.Equal(t, "openai", vars.Get("OPENAI_API_KEY").String())
	assert.Equal(t, "hypothesis", vars.Get("HYPOTHESIS_API_KEY").String())
	assert.Equal(t, "ralph://ResuralphPythonStack/CommandQueue#/QueueUrl", vars.Get(`COMMAND_QUEUE_URL.$ref`).String())
}

func TestNew_ProcessorFunctionConfiguration(t *testing.T) {
	s := newTestStack(t)

	fn := properties(t, s, ProcessorID)
	assert.Equal(t, testImageURI, fn.Get("Code.ImageUri").String())
	assert.Equal(t, `["/lambda-entrypoint.sh"]`, fn.Get("ImageConfig.EntryPoint").Raw)
	assert.Equal(t, `["command_processor.handler"]`, fn.Get("ImageConfig.Command").Raw)
	assert.Equal(t, int64(1024), fn.Get("MemorySize").Int())
	assert.Equal(t, int64(60), fn.Get("Timeout").Int())
	assert.Equal(t, `["arm64"]`, fn.Get("Architectures").Raw)
	assert.False(t, fn.Get("Environment.Variables.COMMAND_QUEUE_URL").Exists())
	assert.Len(t, fn.Get("Environment.Variables").Map(), 6)

	mapping := properties(t, s, ProcessorMapping)
	assert.Equal(t, int64(1), mapping.Get("BatchSize").Int())
	assert.True(t, mapping.Get("Enabled").Bool())
	assert.Equal(t, "ralph://ResuralphPythonStack/CommandQueue#/Arn", mapping.Get(`EventSourceArn.$ref`).String())
	assert.Equal(t, "ralph://ResuralphPythonStack/CommandProcessorFunction#/FunctionName", mapping.Get(`FunctionName.$ref`).String())
}

func TestNew_SharedPolicyAttachedToBothRoles(t *testing.T) {
	s := newTestStack(t)

	policy := resourceOfType(t, s, SharedPolicyID, "AWS::IAM::ManagedPolicy")
	assert.False(t, policy.Managed)
	assert.Equal(t, testPolicyArn, policy.NativeID)

	for _, role := range []string{EntryFunctionRole, ProcessorRole} {
		props := properties(t, s, role)
		arns := []string{}
		for _, a := range props.Get("ManagedPolicyArns").Array() {
			arns = append(arns, a.String())
		}
		assert.Contains(t, arns, testPolicyArn, role)
		assert.Contains(t, arns, "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole", role)
	}
}

func TestNew_QueuePermissions(t *testing.T) {
	s := newTestStack(t)

	send := properties(t, s, EntryFunctionRole+"DefaultPolicy")
	var sendActions []string
	for _, a := range send.Get("PolicyDocument.Statement.0.Action").Array() {
		sendActions = append(sendActions, a.String())
	}
	assert.ElementsMatch(t, []string{"sqs:SendMessage", "sqs:GetQueueAttributes", "sqs:GetQueueUrl"}, sendActions)

	consume := properties(t, s, ProcessorRole+"DefaultPolicy")
	var consumeActions []string
	for _, a := range consume.Get("PolicyDocument.Statement.0.Action").Array() {
		consumeActions = append(consumeActions, a.String())
	}
	assert.ElementsMatch(t, []string{
		"sqs:ReceiveMessage",
		"sqs:ChangeMessageVisibility",
		"sqs:GetQueueUrl",
		"sqs:DeleteMessage",
		"sqs:GetQueueAttributes",
	}, consumeActions)
}

func TestNew_PublicFunctionURL(t *testing.T) {
	s := newTestStack(t)

	url := properties(t, s, EntryFunctionURL)
	assert.Equal(t, "NONE", url.Get("AuthType").String())
	assert.Equal(t, `["*"]`, url.Get("Cors.AllowOrigins").Raw)
	assert.Equal(t, `["*"]`, url.Get("Cors.AllowMethods").Raw)
	assert.Equal(t, `["*"]`, url.Get("Cors.AllowHeaders").Raw)
	assert.Equal(t, "ralph://ResuralphPythonStack/DockerFunction#/Arn", url.Get(`TargetFunctionArn.$ref`).String())

	permission := properties(t, s, EntryFunctionID+"InvokeFunctionUrl")
	assert.Equal(t, "lambda:InvokeFunctionUrl", permission.Get("Action").String())
	assert.Equal(t, "*", permission.Get("Principal").String())
	assert.Equal(t, "NONE", permission.Get("FunctionUrlAuthType").String())
}

func TestNew_Outputs(t *testing.T) {
	s := newTestStack(t)

	require.Len(t, s.Outputs, 2)
	assert.Equal(t, FunctionURLOutputKey, s.Outputs[0].Key)
	assert.JSONEq(t, `{"$ref": "ralph://ResuralphPythonStack/DockerFunctionFunctionUrl#/FunctionUrl"}`, string(s.Outputs[0].Value))
	assert.Equal(t, CommandQueueURLOutputKey, s.Outputs[1].Key)
	assert.JSONEq(t, `{"$ref": "ralph://ResuralphPythonStack/CommandQueue#/QueueUrl"}`, string(s.Outputs[1].Value))
}

func TestNew_RequiresPolicyArn(t *testing.T) {
	_, err := New(Props{StackName: "S", Image: Image{URI: testImageURI}})
	assert.ErrorIs(t, err, ErrMissingPolicyArn)
}

func TestNew_MappingWaitsForConsumePermissions(t *testing.T) {
	s := newTestStack(t)

	mapping, ok := s.Resource(ProcessorMapping)
	require.True(t, ok)
	assert.Contains(t, mapping.DependsOn, ProcessorRole+"DefaultPolicy")

	processor, ok := s.Resource(ProcessorID)
	require.True(t, ok)
	assert.Contains(t, processor.DependsOn, ProcessorRole+"DefaultPolicy")
}
