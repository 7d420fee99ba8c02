// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/metastructure"
	"github.com/resuralph/ralphstack/internal/metastructure/changeset"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metrics"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type FakeMetastructure struct {
	stacks       map[string]bool
	commands     []apimodel.Command
	lastQuery    *datastore.StatusQuery
	drifted      []apimodel.DriftedResource
	unresolvable bool
}

var _ metastructure.MetastructureAPI = (*FakeMetastructure)(nil)

func (m *FakeMetastructure) Plan(*pkgmodel.Stack, pkgmodel.Command) (*stack_command.StackCommand, error) {
	return nil, errors.New("not served")
}

func (m *FakeMetastructure) Apply(context.Context, *pkgmodel.Stack, metastructure.CommandOptions, changeset.ProgressFunc) (*stack_command.StackCommand, error) {
	return nil, errors.New("not served")
}

func (m *FakeMetastructure) Destroy(context.Context, string, metastructure.CommandOptions, changeset.ProgressFunc) (*stack_command.StackCommand, error) {
	return nil, errors.New("not served")
}

func (m *FakeMetastructure) Drift(_ context.Context, stackLabel string) (*apimodel.DriftResponse, error) {
	if !m.stacks[stackLabel] {
		return nil, apimodel.StackNotFoundError{StackLabel: stackLabel}
	}
	return &apimodel.DriftResponse{Stack: stackLabel, Checked: 9, Drifted: m.drifted, CheckedAt: time.Now()}, nil
}

func (m *FakeMetastructure) Outputs(stackLabel string) (*apimodel.ListOutputsResponse, error) {
	if !m.stacks[stackLabel] {
		return nil, apimodel.StackNotFoundError{StackLabel: stackLabel}
	}
	if m.unresolvable {
		return nil, apimodel.ReferencedResourcesNotFoundError{References: []string{"FunctionUrl"}}
	}
	return &apimodel.ListOutputsResponse{
		Stack: stackLabel,
		Outputs: []apimodel.Output{
			{Key: "FunctionUrl", Value: "https://abc.lambda-url.us-east-1.on.aws/"},
			{Key: "CommandQueueUrl", Value: "https://sqs.us-east-1.amazonaws.com/123456789012/CommandQueue"},
		},
	}, nil
}

func (m *FakeMetastructure) Status(query *datastore.StatusQuery) (*apimodel.ListCommandStatusResponse, error) {
	m.lastQuery = query
	if query.CommandID != nil {
		for _, c := range m.commands {
			if c.CommandID == query.CommandID.Item {
				return &apimodel.ListCommandStatusResponse{Commands: []apimodel.Command{c}}, nil
			}
		}
		return nil, apimodel.CommandNotFoundError{CommandID: query.CommandID.Item}
	}
	return &apimodel.ListCommandStatusResponse{Commands: m.commands}, nil
}

func (m *FakeMetastructure) Inventory(stackLabel string) (*apimodel.ListResourcesResponse, error) {
	response := &apimodel.ListResourcesResponse{Stack: stackLabel, Resources: []apimodel.Resource{}}
	if m.stacks[stackLabel] {
		response.Resources = append(response.Resources,
			apimodel.Resource{Label: "CommandQueue", Type: "AWS::SQS::Queue", Stack: stackLabel, Managed: true},
			apimodel.Resource{Label: "SharedPolicy", Type: "AWS::IAM::ManagedPolicy", Stack: stackLabel})
	}
	return response, nil
}

func (m *FakeMetastructure) Stats() (*apimodel.Stats, error) {
	return &apimodel.Stats{
		Version:            "0.0.0",
		Commands:           map[string]int{"apply": 3},
		States:             map[string]int{"Success": 2, "Failed": 1},
		Stacks:             len(m.stacks),
		ManagedResources:   9,
		UnmanagedResources: 1,
		ResourceTypes:      map[string]int{"AWS::Lambda::Function": 2},
		ResourceErrors:     map[string]int{},
		Plugins:            []apimodel.PluginInfo{{Namespace: "AWS", MaxRequestsPerSecond: 5, ResourceTypes: 8}},
	}, nil
}

func newTestServer(t *testing.T, fake *FakeMetastructure) (*Client, *metrics.Metrics, string) {
	t.Helper()

	m := metrics.New()
	server := NewServer(context.Background(), fake, &pkgmodel.ServerConfig{}, nil, m)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, nil)
	t.Cleanup(func() { _ = client.Close() })

	return client, m, ts.URL
}

func deployedStack() *FakeMetastructure {
	return &FakeMetastructure{
		stacks: map[string]bool{"ResuralphPythonStack": true},
		commands: []apimodel.Command{
			{CommandID: "cmd-2", Command: "apply", Stack: "ResuralphPythonStack", State: "Success"},
			{CommandID: "cmd-1", Command: "apply", Stack: "ResuralphPythonStack", State: "Failed"},
		},
	}
}

func TestServer_Health(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	assert.True(t, client.WaitOnAvailable(2*time.Second))
}

func TestServer_Outputs(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	outputs, err := client.Outputs("ResuralphPythonStack")
	require.NoError(t, err)

	assert.Equal(t, "ResuralphPythonStack", outputs.Stack)
	assert.Equal(t, "https://abc.lambda-url.us-east-1.on.aws/", metastructure.OutputValue(outputs, "FunctionUrl"))
}

func TestServer_OutputsOfUnknownStackIsNotFound(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	_, err := client.Outputs("Unknown")

	var notFound apimodel.StackNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Unknown", notFound.StackLabel)
}

func TestServer_UnresolvableOutputsAreAConflict(t *testing.T) {
	fake := deployedStack()
	fake.unresolvable = true
	client, _, _ := newTestServer(t, fake)

	_, err := client.Outputs("ResuralphPythonStack")

	var unresolved apimodel.ReferencedResourcesNotFoundError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"FunctionUrl"}, unresolved.References)
}

func TestServer_Inventory(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	inventory, err := client.Inventory("ResuralphPythonStack")
	require.NoError(t, err)
	assert.Len(t, inventory.Resources, 2)

	_, err = client.Inventory("Unknown")
	assert.ErrorAs(t, err, &apimodel.StackNotFoundError{})
}

func TestServer_ListCommandStatusPassesFilters(t *testing.T) {
	fake := deployedStack()
	client, _, _ := newTestServer(t, fake)

	status, err := client.Status("ResuralphPythonStack", 5)
	require.NoError(t, err)
	assert.Len(t, status.Commands, 2)

	require.NotNil(t, fake.lastQuery)
	require.NotNil(t, fake.lastQuery.Stack)
	assert.Equal(t, "ResuralphPythonStack", fake.lastQuery.Stack.Item)
	assert.Equal(t, datastore.Required, fake.lastQuery.Stack.Constraint)
	assert.Equal(t, "cli", fake.lastQuery.ClientID.Item)
	assert.Nil(t, fake.lastQuery.Command)
	assert.Equal(t, 5, fake.lastQuery.N)
}

func TestServer_ListCommandStatusDefaultsLimit(t *testing.T) {
	fake := deployedStack()
	client, _, _ := newTestServer(t, fake)

	_, err := client.Status("", 0)
	require.NoError(t, err)

	assert.Nil(t, fake.lastQuery.Stack)
	assert.Equal(t, datastore.DefaultStackCommandsQueryLimit, fake.lastQuery.N)
}

func TestServer_ListCommandStatusRejectsInvalidLimit(t *testing.T) {
	_, _, url := newTestServer(t, deployedStack())

	resp, err := http.Get(url + CommandsRoute + "?max_results=many")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CommandStatus(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	status, err := client.CommandStatus("cmd-1")
	require.NoError(t, err)
	require.Len(t, status.Commands, 1)
	assert.Equal(t, "Failed", status.Commands[0].State)

	_, err = client.CommandStatus("cmd-9")
	var notFound apimodel.CommandNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "cmd-9", notFound.CommandID)
}

func TestServer_Drift(t *testing.T) {
	fake := deployedStack()
	fake.drifted = []apimodel.DriftedResource{{Label: "CommandDLQ", Type: "AWS::SQS::Queue", Missing: true}}
	client, _, _ := newTestServer(t, fake)

	drift, err := client.Drift("ResuralphPythonStack")
	require.NoError(t, err)

	assert.Equal(t, 9, drift.Checked)
	require.Len(t, drift.Drifted, 1)
	assert.True(t, drift.Drifted[0].Missing)
}

func TestServer_Stats(t *testing.T) {
	client, _, _ := newTestServer(t, deployedStack())

	stats, err := client.Stats()
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Stacks)
	assert.Equal(t, 9, stats.ManagedResources)
	assert.Equal(t, "AWS", stats.Plugins[0].Namespace)
}

func TestServer_MetricsExposesStatsAndOperations(t *testing.T) {
	_, m, url := newTestServer(t, deployedStack())
	m.ObserveCommand("apply", "Success")

	resp, err := http.Get(url + MetricsRoute)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ralphstack_stats_stacks 1")
	assert.Contains(t, string(body), `ralphstack_stats_resources{managed="false"} 1`)
	assert.Contains(t, string(body), `ralphstack_stats_command_states{state="Failed"} 1`)
	assert.Contains(t, string(body), `ralphstack_build_info{version="0.0.0"} 1`)
	assert.Contains(t, string(body), `ralphstack_commands_total{command="apply",state="Success"} 1`)
}

func TestStatsToPrometheusMetrics(t *testing.T) {
	fake := deployedStack()
	stats, err := fake.Stats()
	require.NoError(t, err)

	// build info, stacks, two resource gauges, one command, two states, one type, one plugin
	assert.Len(t, statsToPrometheusMetrics(stats), 9)
}
