// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type Config struct {
	Region  string
	Profile string
}

func (c *Config) ToAwsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func FromTarget(target *pkgmodel.Target) *Config {
	if target == nil {
		return &Config{}
	}
	return &Config{Region: target.Region, Profile: target.Profile}
}
