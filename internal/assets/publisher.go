// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package assets turns the function source directory into a container image in ECR.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type imageBuilder interface {
	Build(ctx context.Context, dir, tag string, opts BuildOptions) error
	Push(ctx context.Context, source, target, registryAuth string) error
}

// Publisher builds the asset directory once per content fingerprint and pushes the
// image to a repository of the target account.
type Publisher struct {
	cfg     pkgmodel.AssetsConfig
	region  string
	ecr     ecrAPI
	sts     stsAPI
	builder imageBuilder
}

// Published describes an image ready to be referenced by a function.
type Published struct {
	ImageURI    string
	Fingerprint string
	// Pushed is false when the registry already held the fingerprint.
	Pushed bool
}

func NewPublisher(awsCfg aws.Config, cfg pkgmodel.AssetsConfig, out io.Writer) (*Publisher, error) {
	docker, err := NewDocker(out)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		cfg:     cfg,
		region:  awsCfg.Region,
		ecr:     ecr.NewFromConfig(awsCfg),
		sts:     sts.NewFromConfig(awsCfg),
		builder: docker,
	}, nil
}

// RepositoryName returns the configured repository, or one derived from the account
// and region so stacks in different accounts never share it.
func (p *Publisher) RepositoryName(ctx context.Context) (string, error) {
	if p.cfg.Repository != "" {
		return p.cfg.Repository, nil
	}

	identity, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve account: %w", err)
	}
	return fmt.Sprintf("ralphstack-container-assets-%s-%s", aws.ToString(identity.Account), p.region), nil
}

func (p *Publisher) Publish(ctx context.Context) (*Published, error) {
	opts := BuildOptions{Dockerfile: p.cfg.Dockerfile, Platform: p.cfg.Platform}
	fingerprint, err := Fingerprint(p.cfg.Directory, opts)
	if err != nil {
		return nil, err
	}

	name, err := p.RepositoryName(ctx)
	if err != nil {
		return nil, err
	}
	repositoryURI, err := ensureRepository(ctx, p.ecr, name)
	if err != nil {
		return nil, err
	}
	imageURI := repositoryURI + ":" + fingerprint

	exists, err := imageExists(ctx, p.ecr, name, fingerprint)
	if err != nil {
		return nil, err
	}
	if exists {
		slog.Info("Image is up to date", "image", imageURI)
		return &Published{ImageURI: imageURI, Fingerprint: fingerprint}, nil
	}

	localTag := "ralphstack-asset:" + fingerprint
	if err := p.builder.Build(ctx, p.cfg.Directory, localTag, opts); err != nil {
		return nil, err
	}
	auth, err := registryAuth(ctx, p.ecr)
	if err != nil {
		return nil, err
	}
	if err := p.builder.Push(ctx, localTag, imageURI, auth); err != nil {
		return nil, err
	}

	return &Published{ImageURI: imageURI, Fingerprint: fingerprint, Pushed: true}, nil
}
