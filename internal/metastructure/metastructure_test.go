// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package metastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	"github.com/resuralph/ralphstack/internal/metrics"
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
	"github.com/resuralph/ralphstack/internal/provider/fake"
	"github.com/resuralph/ralphstack/internal/stack"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

const (
	testStackName = "ResuralphPythonStack"
	testPolicyArn = "arn:aws:iam::123456789012:policy/resuralph-s3-dynamodb"
	testImageURI  = "123456789012.dkr.ecr.us-east-1.amazonaws.com/resuralph:abc123"
)

func newTestMetastructure(t *testing.T) (*Metastructure, *fake.Provider) {
	t.Helper()

	provider := fake.New()
	provider.Seed(descriptors.IAMManagedPolicy, testPolicyArn, map[string]any{
		"PolicyArn":  testPolicyArn,
		"PolicyName": "resuralph-s3-dynamodb",
	})

	cfg := &pkgmodel.Config{
		StackName: testStackName,
		Target:    pkgmodel.TargetConfig{Region: "us-east-1"},
		Datastore: pkgmodel.DatastoreConfig{
			DatastoreType: pkgmodel.SqliteDatastore,
			Sqlite:        pkgmodel.SqliteConfig{FilePath: ":memory:"},
		},
		Retry: pkgmodel.RetryConfig{
			StatusCheckInterval: time.Millisecond,
			MaxRetries:          1,
			RetryDelay:          time.Millisecond,
		},
		MaxParallel: 4,
	}

	m, err := NewMetastructure(context.Background(), cfg, plugin.NewManager(provider), metrics.New())
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	return m, provider
}

func declaredStack(t *testing.T, mutate func(*stack.Props)) *pkgmodel.Stack {
	t.Helper()

	props := stack.Props{
		StackName: testStackName,
		Target:    pkgmodel.Target{Label: testStackName, Namespace: "AWS", Region: "us-east-1"},
		Environment: stack.Environment{
			DiscordPublicKey:  "discord-key",
			BucketRegion:      "us-east-1",
			S3BucketName:      "bucket",
			DynamoDBTableName: "table",
			OpenAIAPIKey:      "openai",
			HypothesisAPIKey:  "hypothesis",
			IAMPolicyArn:      testPolicyArn,
		},
		Image: stack.Image{URI: testImageURI},
	}
	if mutate != nil {
		mutate(&props)
	}

	s, err := stack.New(props)
	require.NoError(t, err)

	return s
}

func applyStack(t *testing.T, m *Metastructure, s *pkgmodel.Stack) *stack_command.StackCommand {
	t.Helper()

	cmd, err := m.Apply(context.Background(), s, CommandOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, types.CommandStateSuccess, cmd.State, "apply failed: %+v", cmd.ResourceUpdates)

	return cmd
}

func TestApply_DeploysThePipelineAndResolvesOutputs(t *testing.T) {
	m, provider := newTestMetastructure(t)

	cmd := applyStack(t, m, declaredStack(t, nil))

	for _, ru := range cmd.ResourceUpdates {
		assert.Equal(t, resource_update.ResourceUpdateStateSuccess, ru.State, "%s", ru.Label())
	}
	assert.Equal(t, 2, provider.Count(descriptors.SQSQueue))
	assert.Equal(t, 2, provider.Count(descriptors.LambdaFunction))
	assert.Equal(t, 1, provider.Count(descriptors.LambdaURL))
	assert.Equal(t, 1, provider.Count(descriptors.LambdaEventSourceMapping))

	outputs, err := m.Outputs(testStackName)
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123456789012/resuralph-command-queue", OutputValue(outputs, stack.CommandQueueURLOutputKey))
	assert.Contains(t, OutputValue(outputs, stack.FunctionURLOutputKey), ".lambda-url.us-east-1.on.aws/")
}

func TestApply_SecondApplyChangesNothing(t *testing.T) {
	m, provider := newTestMetastructure(t)
	applyStack(t, m, declaredStack(t, nil))
	callsAfterFirstApply := len(provider.Calls())

	cmd, err := m.Apply(context.Background(), declaredStack(t, nil), CommandOptions{}, nil)
	require.NoError(t, err)

	assert.False(t, ChangesRequired(cmd))
	assert.Equal(t, callsAfterFirstApply, len(provider.Calls()))
}

func TestApply_SimulateDoesNotTouchTheProvider(t *testing.T) {
	m, provider := newTestMetastructure(t)

	cmd, err := m.Apply(context.Background(), declaredStack(t, nil), CommandOptions{Simulate: true}, nil)
	require.NoError(t, err)

	assert.True(t, ChangesRequired(cmd))
	assert.Empty(t, provider.Calls())
	assert.Equal(t, types.CommandStatePending, cmd.State)

	status, err := m.Status(nil)
	require.NoError(t, err)
	assert.Empty(t, status.Commands)
}

func TestApply_ChangedImageUpdatesBothFunctions(t *testing.T) {
	m, _ := newTestMetastructure(t)
	applyStack(t, m, declaredStack(t, nil))

	cmd, err := m.Apply(context.Background(), declaredStack(t, func(p *stack.Props) {
		p.Image.URI = "123456789012.dkr.ecr.us-east-1.amazonaws.com/resuralph:def456"
	}), CommandOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, types.CommandStateSuccess, cmd.State)

	changed := map[string]resource_update.OperationType{}
	for _, ru := range cmd.ResourceUpdates {
		if ru.Operation != resource_update.OperationRead {
			changed[ru.Label()] = ru.Operation
		}
	}
	assert.Equal(t, map[string]resource_update.OperationType{
		stack.EntryFunctionID: resource_update.OperationUpdate,
		stack.ProcessorID:     resource_update.OperationUpdate,
	}, changed)
}

func TestApply_RejectsConflictingCommand(t *testing.T) {
	m, _ := newTestMetastructure(t)
	running := stack_command.NewStackCommand(testStackName, pkgmodel.CommandApply, nil, "other")
	running.State = types.CommandStateInProgress
	require.NoError(t, m.Datastore.StoreStackCommand(running))

	_, err := m.Apply(context.Background(), declaredStack(t, nil), CommandOptions{}, nil)

	var conflict apimodel.ConflictingCommandsError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, running.ID, conflict.ConflictingCommands[0].CommandID)
}

func TestDestroy_RemovesManagedResourcesAndKeepsThePolicy(t *testing.T) {
	m, provider := newTestMetastructure(t)
	applyStack(t, m, declaredStack(t, nil))

	cmd, err := m.Destroy(context.Background(), testStackName, CommandOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.CommandStateSuccess, cmd.State)

	assert.Zero(t, provider.Count(descriptors.SQSQueue))
	assert.Zero(t, provider.Count(descriptors.LambdaFunction))
	assert.Zero(t, provider.Count(descriptors.IAMRole))
	assert.Equal(t, 1, provider.Count(descriptors.IAMManagedPolicy))

	inventory, err := m.Inventory(testStackName)
	require.NoError(t, err)
	assert.Empty(t, inventory.Resources)

	_, err = m.Outputs(testStackName)
	assert.ErrorAs(t, err, &apimodel.StackNotFoundError{})
}

func TestDestroy_UnknownStack(t *testing.T) {
	m, _ := newTestMetastructure(t)

	_, err := m.Destroy(context.Background(), "missing", CommandOptions{}, nil)

	assert.ErrorAs(t, err, &apimodel.StackNotFoundError{})
}

func TestDrift_ReportsChangedAndMissingResources(t *testing.T) {
	m, provider := newTestMetastructure(t)
	applyStack(t, m, declaredStack(t, nil))

	queue, err := m.Datastore.LoadResource(pkgmodel.NewResourceURI(testStackName, stack.CommandQueueID, ""))
	require.NoError(t, err)
	live, ok := provider.Properties(queue.NativeID)
	require.True(t, ok)
	live["VisibilityTimeout"] = 30
	provider.Seed(descriptors.SQSQueue, queue.NativeID, live)

	dlq, err := m.Datastore.LoadResource(pkgmodel.NewResourceURI(testStackName, stack.CommandDLQID, ""))
	require.NoError(t, err)
	provider.Seed("AWS::SQS::Deleted", dlq.NativeID, nil)

	drift, err := m.Drift(context.Background(), testStackName)
	require.NoError(t, err)

	byLabel := map[string]apimodel.DriftedResource{}
	for _, d := range drift.Drifted {
		byLabel[d.Label] = d
	}
	require.Len(t, byLabel, 2)
	assert.Contains(t, string(byLabel[stack.CommandQueueID].PatchDocument), "VisibilityTimeout")
	assert.True(t, byLabel[stack.CommandDLQID].Missing)
	assert.Greater(t, drift.Checked, 2)
}

func TestDrift_NothingChanged(t *testing.T) {
	m, _ := newTestMetastructure(t)
	applyStack(t, m, declaredStack(t, nil))

	drift, err := m.Drift(context.Background(), testStackName)
	require.NoError(t, err)

	assert.Empty(t, drift.Drifted)
}

func TestStatusAndInventory(t *testing.T) {
	m, _ := newTestMetastructure(t)
	cmd := applyStack(t, m, declaredStack(t, nil))

	status, err := m.Status(&datastore.StatusQuery{
		CommandID: &datastore.QueryItem[string]{Item: cmd.ID, Constraint: datastore.Required},
	})
	require.NoError(t, err)
	require.Len(t, status.Commands, 1)
	assert.Equal(t, string(types.CommandStateSuccess), status.Commands[0].State)
	assert.Equal(t, testStackName, status.Commands[0].Stack)

	_, err = m.Status(&datastore.StatusQuery{
		CommandID: &datastore.QueryItem[string]{Item: "unknown", Constraint: datastore.Required},
	})
	assert.ErrorAs(t, err, &apimodel.CommandNotFoundError{})

	inventory, err := m.Inventory(testStackName)
	require.NoError(t, err)
	labels := make([]string, 0, len(inventory.Resources))
	for _, r := range inventory.Resources {
		labels = append(labels, r.Label)
		assert.NotContains(t, string(r.Properties), "$value")
	}
	assert.Contains(t, labels, stack.SharedPolicyID)
	assert.Contains(t, labels, stack.EntryFunctionURL)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stacks)
	assert.Equal(t, 1, stats.UnmanagedResources)
	require.Len(t, stats.Plugins, 1)
	assert.Equal(t, fake.Namespace, stats.Plugins[0].Namespace)
}

func TestReRunIncompleteCommands_ResumesInterruptedApply(t *testing.T) {
	m, provider := newTestMetastructure(t)
	s := declaredStack(t, nil)

	cmd, err := m.Plan(s, pkgmodel.CommandApply)
	require.NoError(t, err)
	cmd.State = types.CommandStateInProgress
	require.NoError(t, m.Datastore.StoreStackCommand(cmd))
	_, err = m.Datastore.StoreStack(s, cmd.ID)
	require.NoError(t, err)

	resumed, err := m.ReRunIncompleteCommands(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, types.CommandStateSuccess, resumed[0].State)
	assert.Equal(t, 2, provider.Count(descriptors.SQSQueue))

	incomplete, err := m.Datastore.LoadIncompleteStackCommands()
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}
