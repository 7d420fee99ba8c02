// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/tidwall/gjson"

	"github.com/resuralph/ralphstack/internal/api"
	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/assets"
	"github.com/resuralph/ralphstack/internal/config"
	"github.com/resuralph/ralphstack/internal/metastructure"
	"github.com/resuralph/ralphstack/internal/metastructure/changeset"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metrics"
	"github.com/resuralph/ralphstack/internal/ops"
	awsprovider "github.com/resuralph/ralphstack/internal/provider/aws"
	"github.com/resuralph/ralphstack/internal/stack"
	"github.com/resuralph/ralphstack/internal/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

// PlaceholderRepository names the image of a stack that was never published.
const PlaceholderRepository = "ralphstack-container-assets"

var ErrNoDeployedImage = errors.New("no deployed image found, deploy without --skip-assets or pass --image-uri")

type App struct {
	Config        *pkgmodel.Config
	PluginManager *plugin.Manager
	Metrics       *metrics.Metrics

	// Endpoint, when set, sends read-only queries to a running server instead of the
	// local datastore.
	Endpoint    string
	MetricsFile string

	// Out receives docker build and push output.
	Out io.Writer

	metastructure   *metastructure.Metastructure
	shutdownTracing func()
}

func NewApp() *App {
	return &App{
		Config:        config.DefaultConfig(),
		PluginManager: plugin.NewManager(awsprovider.New()),
		Metrics:       metrics.New(),
		Out:           os.Stderr,
	}
}

func (a *App) LoadConfig(path string) error {
	cfg, err := config.Load(util.ExpandHomePath(path))
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// Metastructure opens the datastore on first use.
func (a *App) Metastructure(ctx context.Context) (*metastructure.Metastructure, error) {
	if a.metastructure != nil {
		return a.metastructure, nil
	}

	if a.Config.Datastore.DatastoreType == pkgmodel.SqliteDatastore {
		if err := util.EnsureFileFolderHierarchy(a.Config.Datastore.Sqlite.FilePath); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// The tracer provider has to be global before the database drivers register
	a.shutdownTracing = api.SetupGlobalTracerProvider(&a.Config.OTel)

	ms, err := metastructure.NewMetastructure(ctx, a.Config, a.PluginManager, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	a.metastructure = ms

	return ms, nil
}

// Close writes the metrics textfile when requested and releases the datastore.
func (a *App) Close() error {
	var errs []error
	if a.MetricsFile != "" {
		path := util.ExpandHomePath(a.MetricsFile)
		if err := util.EnsureFileFolderHierarchy(path); err != nil {
			errs = append(errs, err)
		} else if err := a.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics file: %w", err))
		}
	}
	if a.metastructure != nil {
		a.metastructure.Stop()
		a.metastructure = nil
	}
	if a.shutdownTracing != nil {
		a.shutdownTracing()
		a.shutdownTracing = nil
	}
	return errors.Join(errs...)
}

func (a *App) StackName() string {
	return a.Config.StackName
}

func (a *App) Target() pkgmodel.Target {
	return pkgmodel.Target{
		Label:     strings.ToLower(awsprovider.Namespace),
		Namespace: awsprovider.Namespace,
		Region:    a.Config.Target.Region,
		Profile:   a.Config.Target.Profile,
	}
}

func (a *App) AWSConfig(ctx context.Context) (aws.Config, error) {
	target := a.Target()
	cfg, err := awsprovider.FromTarget(&target).ToAwsConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return cfg, nil
}

// ImageOptions selects where the function image comes from. In order of precedence:
// an explicit URI, the configured URI, the image already deployed (SkipAssets), a
// freshly published image (Publish), and otherwise the URI a publish would produce.
type ImageOptions struct {
	URI        string
	SkipAssets bool
	Publish    bool
}

func (a *App) ResolveImage(ctx context.Context, opts ImageOptions) (string, error) {
	if opts.URI != "" {
		return opts.URI, nil
	}
	if a.Config.Assets.ImageURI != "" {
		return a.Config.Assets.ImageURI, nil
	}

	deployed, err := a.DeployedImageURI(ctx)
	if err != nil {
		return "", err
	}

	if opts.SkipAssets {
		if deployed == "" {
			return "", ErrNoDeployedImage
		}
		return deployed, nil
	}

	if opts.Publish {
		awsCfg, err := a.AWSConfig(ctx)
		if err != nil {
			return "", err
		}
		publisher, err := assets.NewPublisher(awsCfg, a.Config.Assets, a.Out)
		if err != nil {
			return "", err
		}
		published, err := publisher.Publish(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to publish image assets: %w", err)
		}
		slog.Info("Image assets ready", "image", published.ImageURI, "pushed", published.Pushed)
		return published.ImageURI, nil
	}

	fingerprint, err := assets.Fingerprint(a.Config.Assets.Directory, assets.BuildOptions{
		Dockerfile: a.Config.Assets.Dockerfile,
		Platform:   a.Config.Assets.Platform,
	})
	if err != nil {
		return "", err
	}
	return PlannedImageURI(deployed, fingerprint), nil
}

// PlannedImageURI is the URI publishing the fingerprint would produce: the deployed
// repository tagged with the fingerprint, or a placeholder repository before the first
// deploy.
func PlannedImageURI(deployed, fingerprint string) string {
	repository := PlaceholderRepository
	if deployed != "" {
		repository = deployed
		if i := strings.LastIndex(deployed, ":"); i > strings.LastIndex(deployed, "/") {
			repository = deployed[:i]
		}
	}
	return repository + ":" + fingerprint
}

// DeployedImageURI returns the image of the deployed entry function, empty when the
// stack has not been deployed.
func (a *App) DeployedImageURI(ctx context.Context) (string, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return "", err
	}
	resources, err := ms.Datastore.LoadResourcesByStack(a.StackName())
	if err != nil {
		return "", fmt.Errorf("failed to load deployed resources: %w", err)
	}
	return imageURIOf(resources), nil
}

func imageURIOf(resources []*pkgmodel.Resource) string {
	for _, r := range resources {
		if r.Label == stack.EntryFunctionID {
			return gjson.GetBytes(r.Properties, "Code.ImageUri").String()
		}
	}
	return ""
}

// DeclaredStack builds the command pipeline with the resolved image.
func (a *App) DeclaredStack(ctx context.Context, opts ImageOptions) (*pkgmodel.Stack, error) {
	imageURI, err := a.ResolveImage(ctx, opts)
	if err != nil {
		return nil, err
	}

	return stack.New(stack.Props{
		StackName:   a.StackName(),
		Target:      a.Target(),
		Environment: stack.EnvironmentFromConfig(a.Config.Environment),
		Image: stack.Image{
			URI:       imageURI,
			Directory: a.Config.Assets.Directory,
		},
	})
}

// Plan simulates a deploy of the declared stack.
func (a *App) Plan(ctx context.Context, opts ImageOptions) (*apimodel.Simulation, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, err
	}

	declared, err := a.DeclaredStack(ctx, opts)
	if err != nil {
		return nil, err
	}
	cmd, err := ms.Plan(declared, pkgmodel.CommandApply)
	if err != nil {
		return nil, err
	}
	return &apimodel.Simulation{ChangesRequired: metastructure.ChangesRequired(cmd), Command: metastructure.TranslateToAPICommand(cmd)}, nil
}

// PlanDestroy simulates a destroy from the recorded state only.
func (a *App) PlanDestroy(ctx context.Context) (*apimodel.Simulation, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, err
	}

	cmd, err := ms.Destroy(ctx, a.StackName(), metastructure.CommandOptions{Simulate: true}, nil)
	if err != nil {
		return nil, err
	}
	return &apimodel.Simulation{ChangesRequired: cmd.HasChanges(), Command: metastructure.TranslateToAPICommand(cmd)}, nil
}

// ProgressFunc receives every resource update transition of a running command.
type ProgressFunc func(apimodel.ResourceUpdate)

func (a *App) progress(onProgress ProgressFunc) changeset.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	stackName := a.StackName()
	return func(_ string, ru resource_update.ResourceUpdate) {
		onProgress(metastructure.TranslateToAPIResourceUpdate(stackName, ru))
	}
}

// Deploy applies the declared stack. A command is returned along with the error when
// execution started but did not succeed.
func (a *App) Deploy(ctx context.Context, opts ImageOptions, onProgress ProgressFunc) (*apimodel.Command, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, err
	}
	declared, err := a.DeclaredStack(ctx, opts)
	if err != nil {
		return nil, err
	}

	cmd, err := ms.Apply(ctx, declared, metastructure.CommandOptions{}, a.progress(onProgress))
	if cmd == nil {
		return nil, err
	}
	result := metastructure.TranslateToAPICommand(cmd)
	return &result, err
}

func (a *App) Destroy(ctx context.Context, onProgress ProgressFunc) (*apimodel.Command, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, err
	}

	cmd, err := ms.Destroy(ctx, a.StackName(), metastructure.CommandOptions{}, a.progress(onProgress))
	if cmd == nil {
		return nil, err
	}
	result := metastructure.TranslateToAPICommand(cmd)
	return &result, err
}

func (a *App) client() *api.Client {
	return api.NewClient(a.Endpoint, nil)
}

// Status lists the recent commands of the stack, or the one command with commandID.
func (a *App) Status(commandID string, n int) (*apimodel.ListCommandStatusResponse, error) {
	if a.Endpoint != "" {
		client := a.client()
		defer client.Close() //nolint:errcheck
		if commandID != "" {
			return client.CommandStatus(commandID)
		}
		return client.Status(a.StackName(), n)
	}

	ms, err := a.Metastructure(context.Background())
	if err != nil {
		return nil, err
	}
	query := &datastore.StatusQuery{N: n}
	if commandID != "" {
		query.CommandID = &datastore.QueryItem[string]{Item: commandID, Constraint: datastore.Required}
	} else {
		query.Stack = &datastore.QueryItem[string]{Item: a.StackName(), Constraint: datastore.Required}
	}
	return ms.Status(query)
}

func (a *App) Inventory() (*apimodel.ListResourcesResponse, error) {
	if a.Endpoint != "" {
		client := a.client()
		defer client.Close() //nolint:errcheck
		return client.Inventory(a.StackName())
	}

	ms, err := a.Metastructure(context.Background())
	if err != nil {
		return nil, err
	}
	return ms.Inventory(a.StackName())
}

func (a *App) Outputs() (*apimodel.ListOutputsResponse, error) {
	if a.Endpoint != "" {
		client := a.client()
		defer client.Close() //nolint:errcheck
		return client.Outputs(a.StackName())
	}

	ms, err := a.Metastructure(context.Background())
	if err != nil {
		return nil, err
	}
	return ms.Outputs(a.StackName())
}

func (a *App) Drift(ctx context.Context) (*apimodel.DriftResponse, error) {
	if a.Endpoint != "" {
		client := a.client()
		defer client.Close() //nolint:errcheck
		return client.Drift(a.StackName())
	}

	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, err
	}
	return ms.Drift(ctx, a.StackName())
}

// Inspector reads the deployed pipeline through the service APIs. The targets come
// from the recorded resources of the stack.
func (a *App) Inspector(ctx context.Context) (*ops.Inspector, ops.Targets, error) {
	ms, err := a.Metastructure(ctx)
	if err != nil {
		return nil, ops.Targets{}, err
	}
	resources, err := ms.Datastore.LoadResourcesByStack(a.StackName())
	if err != nil {
		return nil, ops.Targets{}, fmt.Errorf("failed to load deployed resources: %w", err)
	}
	if len(resources) == 0 {
		return nil, ops.Targets{}, apimodel.StackNotFoundError{StackLabel: a.StackName()}
	}

	awsCfg, err := a.AWSConfig(ctx)
	if err != nil {
		return nil, ops.Targets{}, err
	}
	inspector, err := ops.New(awsCfg)
	if err != nil {
		return nil, ops.Targets{}, err
	}
	return inspector, ops.TargetsFromResources(resources), nil
}

func (a *App) Stats() (*apimodel.Stats, error) {
	if a.Endpoint != "" {
		client := a.client()
		defer client.Close() //nolint:errcheck
		return client.Stats()
	}

	ms, err := a.Metastructure(context.Background())
	if err != nil {
		return nil, err
	}
	return ms.Stats()
}
