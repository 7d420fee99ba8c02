// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package renderer

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ddddddO/gtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/display"
	"github.com/resuralph/ralphstack/internal/ops"
)

func TestMain(m *testing.M) {
	display.NoColor()
	os.Exit(m.Run())
}

func simulatedCommand() apimodel.Command {
	return apimodel.Command{
		CommandID: "cmd-1",
		Command:   "apply",
		Stack:     "ResuralphPythonStack",
		State:     "Pending",
		ResourceUpdates: []apimodel.ResourceUpdate{
			{ResourceLabel: "CommandQueue", ResourceType: "AWS::SQS::Queue", Operation: apimodel.OperationCreate, State: apimodel.ResourceUpdateStateNotStarted},
			{
				ResourceLabel: "ProcessorFunction",
				ResourceType:  "AWS::Lambda::Function",
				Operation:     apimodel.OperationUpdate,
				State:         apimodel.ResourceUpdateStateNotStarted,
				PatchDocument: json.RawMessage(`[{"op":"replace","path":"/Timeout","value":900}]`),
				OldProperties: json.RawMessage(`{"Timeout":600}`),
			},
			{ResourceLabel: "EntryFunctionUrl", ResourceType: "AWS::Lambda::Url", Operation: apimodel.OperationReplace, Reason: "TargetFunctionArn is create-only", State: apimodel.ResourceUpdateStateNotStarted},
			{ResourceLabel: "SharedPolicy", ResourceType: "AWS::IAM::ManagedPolicy", Operation: apimodel.OperationRead, State: apimodel.ResourceUpdateStateNotStarted},
		},
	}
}

func TestRenderSimulation(t *testing.T) {
	out, err := RenderSimulation(&apimodel.Simulation{ChangesRequired: true, Command: simulatedCommand()})
	require.NoError(t, err)

	assert.Contains(t, out, "apply of stack ResuralphPythonStack will")
	assert.Contains(t, out, "create resource CommandQueue")
	assert.Contains(t, out, `change property "Timeout" from "600" to "900"`)
	assert.Contains(t, out, "replace resource EntryFunctionUrl")
	assert.Contains(t, out, "because TargetFunctionArn is create-only")
	assert.Contains(t, out, "verify imported resource SharedPolicy")
}

func TestRenderStatus(t *testing.T) {
	t.Run("no commands", func(t *testing.T) {
		out, err := RenderStatus(&apimodel.ListCommandStatusResponse{})
		require.NoError(t, err)
		assert.Contains(t, out, "No commands found")
	})

	t.Run("failed update shows its reason", func(t *testing.T) {
		cmd := simulatedCommand()
		cmd.State = "Failed"
		cmd.StartTs = time.Now().Add(-time.Minute)
		cmd.EndTs = time.Now()
		cmd.ResourceUpdates[0].State = apimodel.ResourceUpdateStateFailed
		cmd.ResourceUpdates[0].ErrorMessage = "AccessDenied"
		cmd.ResourceUpdates[1].State = apimodel.ResourceUpdateStateInProgress
		cmd.ResourceUpdates[1].CurrentAttempt = 2
		cmd.ResourceUpdates[1].MaxAttempts = 5

		out, err := RenderStatus(&apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{cmd}})
		require.NoError(t, err)

		assert.Contains(t, out, "with ID cmd-1: Failed")
		assert.Contains(t, out, "reason for failure: AccessDenied")
		assert.Contains(t, out, "attempt: 2/5")
	})
}

func TestRenderStatusSummary(t *testing.T) {
	cmd := simulatedCommand()
	cmd.StartTs = time.Now()
	cmd.ResourceUpdates[0].State = apimodel.ResourceUpdateStateSuccess

	out, err := RenderStatusSummary(&apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{cmd}})
	require.NoError(t, err)

	assert.Contains(t, out, "cmd-1")
	assert.Contains(t, out, "ResuralphPythonStack")
}

func TestCountUpdateStates(t *testing.T) {
	updates := simulatedCommand().ResourceUpdates
	updates[0].State = apimodel.ResourceUpdateStateSuccess
	updates[1].State = apimodel.ResourceUpdateStateInProgress
	updates[1].CurrentAttempt = 3
	updates[2].State = apimodel.ResourceUpdateStateRejected

	counts := countUpdateStates(updates)

	assert.Equal(t, updateCounts{total: 3, success: 1, retrying: 1, failed: 1}, counts)
}

func TestPromptForOperations(t *testing.T) {
	cmd := simulatedCommand()
	prompt := PromptForOperations(&cmd)

	assert.Equal(t, "This operation will replace 1 resource(s), create 1 resource(s) and update 1 resource(s).\n\nDo you want to continue?", prompt)

	empty := apimodel.Command{ResourceUpdates: []apimodel.ResourceUpdate{{Operation: apimodel.OperationRead}}}
	assert.Empty(t, PromptForOperations(&empty))
}

func TestFormatPatchDocument(t *testing.T) {
	format := func(patch, old string) string {
		root := gtree.NewRoot("root")
		FormatPatchDocument(root, json.RawMessage(patch), json.RawMessage(old))
		var buf strings.Builder
		require.NoError(t, gtree.OutputFromRoot(&buf, root))
		return buf.String()
	}

	t.Run("add property", func(t *testing.T) {
		out := format(`[{"op":"add","path":"/RedrivePolicy","value":{"maxReceiveCount":3}}]`, `{}`)
		assert.Contains(t, out, `add new property "RedrivePolicy" with the value "{"maxReceiveCount":3}"`)
	})

	t.Run("add array entry", func(t *testing.T) {
		out := format(`[{"op":"add","path":"/Layers/-","value":"arn:layer"}]`, `{}`)
		assert.Contains(t, out, `add new entry "arn:layer" to "Layers"`)
	})

	t.Run("replace nested value", func(t *testing.T) {
		out := format(`[{"op":"replace","path":"/Environment/Variables/LOG_LEVEL","value":"DEBUG"}]`, `{"Environment":{"Variables":{"LOG_LEVEL":"INFO"}}}`)
		assert.Contains(t, out, `change property "Environment.Variables.LOG_LEVEL" from "INFO" to "DEBUG"`)
	})

	t.Run("remove with previous value", func(t *testing.T) {
		out := format(`[{"op":"remove","path":"/ReservedConcurrentExecutions"}]`, `{"ReservedConcurrentExecutions":5}`)
		assert.Contains(t, out, `remove "5" from "ReservedConcurrentExecutions"`)
	})

	t.Run("invalid document", func(t *testing.T) {
		out := format(`{`, ``)
		assert.Contains(t, out, "Error parsing patch document")
	})
}

func TestCleanPatchPath(t *testing.T) {
	assert.Equal(t, "Tags[3].Value", cleanPatchPath("/Tags/3/Value"))
	assert.Equal(t, "Layers[-]", cleanPatchPath("/Layers/-"))
	assert.Equal(t, "a/b", cleanPatchPath("/a~1b"))
	assert.Equal(t, "Statement", stripArrayIndices("Statement[1]"))
}

func TestRenderErrorMessage(t *testing.T) {
	t.Run("stack not found", func(t *testing.T) {
		msg, err := RenderErrorMessage(apimodel.StackNotFoundError{StackLabel: "Missing"})
		require.NoError(t, err)
		assert.Contains(t, msg, "stack `Missing` was not found")
	})

	t.Run("conflicting commands lists their status", func(t *testing.T) {
		conflict := simulatedCommand()
		conflict.State = "InProgress"
		conflict.StartTs = time.Now()

		msg, err := RenderErrorMessage(apimodel.ConflictingCommandsError{ConflictingCommands: []apimodel.Command{conflict}})
		require.NoError(t, err)
		assert.Contains(t, msg, "has not finished modifying the stack: cmd-1")
		assert.Contains(t, msg, "with ID cmd-1")
	})

	t.Run("missing required fields", func(t *testing.T) {
		msg, err := RenderErrorMessage(apimodel.RequiredFieldMissingOnCreateError{
			MissingFields: []string{"Code"}, Label: "EntryFunction", Type: "AWS::Lambda::Function", Stack: "S",
		})
		require.NoError(t, err)
		assert.Contains(t, msg, "resource EntryFunction cannot be created")
		assert.Contains(t, msg, "Code")
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		original := assert.AnError
		msg, err := RenderErrorMessage(original)
		assert.Empty(t, msg)
		assert.Same(t, original, err)
	})
}

func TestRenderInventory(t *testing.T) {
	inventory := &apimodel.ListResourcesResponse{
		Stack: "S",
		Resources: []apimodel.Resource{
			{Label: "SharedPolicy", Type: "AWS::IAM::ManagedPolicy"},
			{Label: "CommandQueue", Type: "AWS::SQS::Queue", Managed: true, NativeID: "https://sqs/CommandQueue"},
			{Label: "CommandDLQ", Type: "AWS::SQS::Queue", Managed: true},
		},
	}

	out, err := RenderInventory(inventory, 2)
	require.NoError(t, err)

	assert.Contains(t, out, "CommandDLQ")
	assert.Contains(t, out, "CommandQueue")
	assert.NotContains(t, out, "SharedPolicy")
	assert.Contains(t, out, "and 1 more")

	empty, err := RenderInventory(&apimodel.ListResourcesResponse{Stack: "S"}, 0)
	require.NoError(t, err)
	assert.Contains(t, empty, "No resources found for stack S")
}

func TestRenderOutputs(t *testing.T) {
	out, err := RenderOutputs(&apimodel.ListOutputsResponse{
		Stack:   "S",
		Outputs: []apimodel.Output{{Key: "FunctionUrl", Value: "https://abc.lambda-url.us-east-1.on.aws/"}},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "FunctionUrl")
	assert.Contains(t, out, "https://abc.lambda-url.us-east-1.on.aws/")
}

func TestRenderDrift(t *testing.T) {
	t.Run("in sync", func(t *testing.T) {
		out, err := RenderDrift(&apimodel.DriftResponse{Stack: "S", Checked: 9})
		require.NoError(t, err)
		assert.Contains(t, out, "all 9 resources of stack S match")
	})

	t.Run("drifted", func(t *testing.T) {
		out, err := RenderDrift(&apimodel.DriftResponse{
			Stack:   "S",
			Checked: 9,
			Drifted: []apimodel.DriftedResource{
				{Label: "CommandDLQ", Type: "AWS::SQS::Queue", NativeID: "https://sqs/dlq", Missing: true},
				{Label: "CommandQueue", Type: "AWS::SQS::Queue", PatchDocument: json.RawMessage(`[{"op":"replace","path":"/VisibilityTimeout","value":5400}]`)},
			},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "2 of 9 resources of stack S drifted")
		assert.Contains(t, out, "missing CommandDLQ")
		assert.Contains(t, out, `change property "VisibilityTimeout" to "5400"`)
	})
}

func TestRenderVerifyReport(t *testing.T) {
	out := RenderVerifyReport(&ops.Report{Checks: []ops.Check{
		{Name: "command queue", Passed: true},
		{Name: "function url", Detail: "[AuthType: want NONE, got AWS_IAM]"},
	}})

	assert.Contains(t, out, "✓ command queue")
	assert.Contains(t, out, "✗ function url")
	assert.Contains(t, out, "failed verification")
}

func TestRenderDeadLetters(t *testing.T) {
	assert.Contains(t, RenderDeadLetters(&ops.DeadLetterStats{}), "empty")
	assert.Contains(t, RenderDeadLetters(&ops.DeadLetterStats{Visible: 2, InFlight: 1}), "3 dead letters")
}

func TestRenderStats(t *testing.T) {
	out, err := RenderStats(&apimodel.Stats{
		Version:          "0.0.0",
		Stacks:           1,
		ManagedResources: 9,
		Commands:         map[string]int{"apply": 2},
		Plugins:          []apimodel.PluginInfo{{Namespace: "AWS", MaxRequestsPerSecond: 5, ResourceTypes: 8}},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "managed resources: 9")
	assert.Contains(t, out, "apply")
	assert.Contains(t, out, "AWS")
}

func TestProgress(t *testing.T) {
	var buf strings.Builder
	p := NewProgress(&buf)

	ru := apimodel.ResourceUpdate{ResourceLabel: "CommandQueue", ResourceType: "AWS::SQS::Queue", Operation: apimodel.OperationCreate}

	ru.State = apimodel.ResourceUpdateStateNotStarted
	p.Update(ru)
	ru.State = apimodel.ResourceUpdateStateInProgress
	ru.CurrentAttempt = 1
	p.Update(ru)
	p.Update(ru)
	ru.CurrentAttempt = 2
	ru.MaxAttempts = 5
	p.Update(ru)
	ru.State = apimodel.ResourceUpdateStateSuccess
	p.Update(ru)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "… create CommandQueue")
	assert.Contains(t, lines[1], "(attempt 2/5)")
	assert.Contains(t, lines[2], "✓ create CommandQueue")
}
