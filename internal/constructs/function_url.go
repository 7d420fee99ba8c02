// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import (
	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
)

type FunctionURLAuthType string

const (
	FunctionURLAuthTypeNone   FunctionURLAuthType = "NONE"
	FunctionURLAuthTypeAwsIam FunctionURLAuthType = "AWS_IAM"
)

type HttpMethod string

const HttpMethodAll HttpMethod = "*"

type FunctionURLCorsOptions struct {
	AllowedOrigins []string
	AllowedMethods []HttpMethod
	AllowedHeaders []string
}

type FunctionURLOptions struct {
	AuthType FunctionURLAuthType
	Cors     *FunctionURLCorsOptions
}

type FunctionURL struct {
	resource   *CfnResource
	permission *CfnResource
}

// AddFunctionURL exposes the function over HTTPS. An unauthenticated URL also gets a
// resource policy allowing anyone to invoke it.
func (f *DockerImageFunction) AddFunctionURL(opts FunctionURLOptions) *FunctionURL {
	authType := opts.AuthType
	if authType == "" {
		authType = FunctionURLAuthTypeAwsIam
	}

	properties := map[string]any{
		"TargetFunctionArn": f.Arn(),
		"AuthType":          string(authType),
	}

	if opts.Cors != nil {
		methods := make([]string, 0, len(opts.Cors.AllowedMethods))
		for _, m := range opts.Cors.AllowedMethods {
			methods = append(methods, string(m))
		}

		cors := map[string]any{}
		if len(opts.Cors.AllowedOrigins) > 0 {
			cors["AllowOrigins"] = opts.Cors.AllowedOrigins
		}
		if len(methods) > 0 {
			cors["AllowMethods"] = methods
		}
		if len(opts.Cors.AllowedHeaders) > 0 {
			cors["AllowHeaders"] = opts.Cors.AllowedHeaders
		}
		properties["Cors"] = cors
	}

	id := f.resource.LogicalID
	url := &FunctionURL{
		resource: f.scope.NewResource(id+"FunctionUrl", descriptors.LambdaURL, properties),
	}

	if authType == FunctionURLAuthTypeNone {
		url.permission = f.scope.NewResource(id+"InvokeFunctionUrl", descriptors.LambdaPermission, map[string]any{
			"Action":              "lambda:InvokeFunctionUrl",
			"FunctionName":        f.Arn(),
			"Principal":           "*",
			"FunctionUrlAuthType": string(FunctionURLAuthTypeNone),
		})
	}

	return url
}

func (u *FunctionURL) URL() Reference {
	return u.resource.Ref("FunctionUrl")
}

func (u *FunctionURL) Resource() *CfnResource {
	return u.resource
}

// Permission is nil for IAM-authenticated URLs.
func (u *FunctionURL) Permission() *CfnResource {
	return u.permission
}
