// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

type BuildOptions struct {
	Dockerfile string
	Platform   string
}

type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	Close() error
}

// Docker builds and pushes images through the local docker engine.
type Docker struct {
	api dockerAPI
	out io.Writer
}

// NewDocker connects to the engine configured by DOCKER_HOST and friends. Progress of
// builds and pushes is streamed to out.
func NewDocker(out io.Writer) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	return &Docker{api: cli, out: out}, nil
}

func (d *Docker) Build(ctx context.Context, dir, tag string, opts BuildOptions) error {
	buildContext, err := archive.TarWithOptions(dir, &archive.TarOptions{ExcludePatterns: excludePatterns()})
	if err != nil {
		return fmt.Errorf("failed to archive build context %s: %w", dir, err)
	}
	defer buildContext.Close()

	slog.Info("Building image", "directory", dir, "tag", tag, "platform", opts.Platform)
	resp, err := d.api.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: opts.Dockerfile,
		Platform:   opts.Platform,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, d.out, 0, false, nil); err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	return nil
}

func (d *Docker) Push(ctx context.Context, source, target, registryAuth string) error {
	if err := d.api.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("image tag: %w", err)
	}

	slog.Info("Pushing image", "image", target)
	rc, err := d.api.ImagePush(ctx, target, image.PushOptions{RegistryAuth: registryAuth})
	if err != nil {
		return fmt.Errorf("image push: %w", err)
	}
	defer rc.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(rc, d.out, 0, false, nil); err != nil {
		return fmt.Errorf("image push: %w", err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.api.Close()
}
