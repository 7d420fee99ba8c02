// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/stack"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	assetDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "Dockerfile"), []byte("FROM public.ecr.aws/lambda/python:3.12\n"), 0o644))

	a := NewApp()
	a.Config.Datastore.Sqlite.FilePath = ":memory:"
	a.Config.Assets.Directory = assetDir
	a.Config.Environment.IAMPolicyArn = "arn:aws:iam::123456789012:policy/resuralph"
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestPlannedImageURI(t *testing.T) {
	assert.Equal(t, "ralphstack-container-assets:abc", PlannedImageURI("", "abc"))
	assert.Equal(t, "123456789012.dkr.ecr.us-east-1.amazonaws.com/assets:abc",
		PlannedImageURI("123456789012.dkr.ecr.us-east-1.amazonaws.com/assets:old", "abc"))
	assert.Equal(t, "localhost:5000/assets:abc", PlannedImageURI("localhost:5000/assets", "abc"))
}

func TestImageURIOf(t *testing.T) {
	resources := []*pkgmodel.Resource{
		{Label: stack.CommandQueueID, Properties: json.RawMessage(`{}`)},
		{Label: stack.EntryFunctionID, Properties: json.RawMessage(`{"Code":{"ImageUri":"repo:tag"}}`)},
	}

	assert.Equal(t, "repo:tag", imageURIOf(resources))
	assert.Empty(t, imageURIOf(resources[:1]))
}

func TestResolveImage(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit uri wins", func(t *testing.T) {
		a := newTestApp(t)
		a.Config.Assets.ImageURI = "configured:1"

		uri, err := a.ResolveImage(ctx, ImageOptions{URI: "explicit:1", SkipAssets: true})
		require.NoError(t, err)
		assert.Equal(t, "explicit:1", uri)
	})

	t.Run("configured uri", func(t *testing.T) {
		a := newTestApp(t)
		a.Config.Assets.ImageURI = "configured:1"

		uri, err := a.ResolveImage(ctx, ImageOptions{})
		require.NoError(t, err)
		assert.Equal(t, "configured:1", uri)
	})

	t.Run("skip assets needs a deployed image", func(t *testing.T) {
		a := newTestApp(t)

		_, err := a.ResolveImage(ctx, ImageOptions{SkipAssets: true})
		assert.ErrorIs(t, err, ErrNoDeployedImage)
	})

	t.Run("planned image is tagged with the fingerprint", func(t *testing.T) {
		a := newTestApp(t)

		uri, err := a.ResolveImage(ctx, ImageOptions{})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(uri, PlaceholderRepository+":"), uri)
	})
}

func TestPlanOfNewStackCreatesEveryResource(t *testing.T) {
	a := newTestApp(t)

	simulation, err := a.Plan(context.Background(), ImageOptions{URI: "repo:tag"})
	require.NoError(t, err)

	assert.True(t, simulation.ChangesRequired)
	assert.Equal(t, a.StackName(), simulation.Command.Stack)

	operations := map[string]string{}
	for _, ru := range simulation.Command.ResourceUpdates {
		operations[ru.ResourceLabel] = ru.Operation
	}
	assert.Equal(t, apimodel.OperationCreate, operations[stack.CommandQueueID])
	assert.Equal(t, apimodel.OperationCreate, operations[stack.EntryFunctionID])
	assert.Equal(t, apimodel.OperationRead, operations[stack.SharedPolicyID])
}

func TestPlanRejectsMissingPolicy(t *testing.T) {
	a := newTestApp(t)
	a.Config.Environment.IAMPolicyArn = ""

	_, err := a.Plan(context.Background(), ImageOptions{URI: "repo:tag"})
	assert.ErrorIs(t, err, stack.ErrMissingPolicyArn)
}

func TestQueriesOfUndeployedStack(t *testing.T) {
	a := newTestApp(t)

	inventory, err := a.Inventory()
	require.NoError(t, err)
	assert.Empty(t, inventory.Resources)

	_, err = a.Outputs()
	assert.ErrorAs(t, err, &apimodel.StackNotFoundError{})

	status, err := a.Status("", 5)
	require.NoError(t, err)
	assert.Empty(t, status.Commands)
}

func TestCloseWritesMetricsFile(t *testing.T) {
	a := NewApp()
	a.MetricsFile = filepath.Join(t.TempDir(), "nested", "ralphstack.prom")
	a.Metrics.ObserveCommand("apply", "Success")

	require.NoError(t, a.Close())

	data, err := os.ReadFile(a.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ralphstack_commands_total")
}

func TestPlanDestroyOfUndeployedStack(t *testing.T) {
	a := newTestApp(t)

	_, err := a.PlanDestroy(context.Background())
	assert.ErrorAs(t, err, &apimodel.StackNotFoundError{})
}
