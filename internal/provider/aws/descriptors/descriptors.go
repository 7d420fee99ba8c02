// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package descriptors holds the schema of every AWS resource type the stack can declare.
package descriptors

import (
	"slices"
	"strings"

	"github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

const (
	SQSQueue                 = "AWS::SQS::Queue"
	IAMRole                  = "AWS::IAM::Role"
	IAMRolePolicy            = "AWS::IAM::RolePolicy"
	IAMManagedPolicy         = "AWS::IAM::ManagedPolicy"
	LambdaFunction           = "AWS::Lambda::Function"
	LambdaURL                = "AWS::Lambda::Url"
	LambdaPermission         = "AWS::Lambda::Permission"
	LambdaEventSourceMapping = "AWS::Lambda::EventSourceMapping"
)

var schemas = map[string]model.Schema{
	SQSQueue: {
		Identifier: "QueueUrl",
		Fields:     []string{"QueueName", "VisibilityTimeout", "MessageRetentionPeriod", "DelaySeconds", "RedrivePolicy", "Tags"},
		Attributes: []string{"Arn", "QueueUrl"},
		Hints: map[string]model.FieldHint{
			"QueueName":              {CreateOnly: true},
			"VisibilityTimeout":      {HasProviderDefault: true},
			"MessageRetentionPeriod": {HasProviderDefault: true},
			"DelaySeconds":           {HasProviderDefault: true},
			"Tags":                   {UpdateMethod: model.FieldUpdateMethodEntitySet, IndexField: "Key"},
		},
	},
	IAMRole: {
		Identifier: "RoleName",
		Fields:     []string{"RoleName", "AssumeRolePolicyDocument", "ManagedPolicyArns", "Path", "Description", "MaxSessionDuration"},
		Attributes: []string{"Arn", "RoleId"},
		Hints: map[string]model.FieldHint{
			"RoleName":                 {CreateOnly: true},
			"Path":                     {CreateOnly: true, HasProviderDefault: true},
			"AssumeRolePolicyDocument": {Required: true, RequiredOnCreate: true},
			"MaxSessionDuration":       {HasProviderDefault: true},
		},
	},
	IAMRolePolicy: {
		Identifier: "PolicyName",
		Fields:     []string{"PolicyName", "RoleName", "PolicyDocument"},
		Hints: map[string]model.FieldHint{
			"PolicyName":     {CreateOnly: true, Required: true, RequiredOnCreate: true},
			"RoleName":       {CreateOnly: true, Required: true, RequiredOnCreate: true},
			"PolicyDocument": {Required: true},
		},
	},
	IAMManagedPolicy: {
		Identifier:       "PolicyArn",
		Fields:           []string{"PolicyArn"},
		Attributes:       []string{"PolicyArn", "PolicyName", "DefaultVersionId", "AttachmentCount"},
		Hints:            map[string]model.FieldHint{},
		Nonprovisionable: true,
	},
	LambdaFunction: {
		Identifier: "FunctionName",
		Fields:     []string{"FunctionName", "PackageType", "Code", "ImageConfig", "MemorySize", "Timeout", "Architectures", "Role", "Environment", "Description"},
		Attributes: []string{"Arn"},
		Hints: map[string]model.FieldHint{
			"FunctionName":  {CreateOnly: true},
			"PackageType":   {CreateOnly: true},
			"Code":          {WriteOnly: true, Required: true, RequiredOnCreate: true},
			"Role":          {Required: true, RequiredOnCreate: true},
			"Architectures": {UpdateMethod: model.FieldUpdateMethodArray, HasProviderDefault: true},
			"MemorySize":    {HasProviderDefault: true},
			"Timeout":       {HasProviderDefault: true},
		},
	},
	LambdaURL: {
		Identifier: "FunctionArn",
		Fields:     []string{"TargetFunctionArn", "AuthType", "Cors", "InvokeMode", "Qualifier"},
		Attributes: []string{"FunctionArn", "FunctionUrl"},
		Hints: map[string]model.FieldHint{
			"TargetFunctionArn": {CreateOnly: true, Required: true, RequiredOnCreate: true},
			"Qualifier":         {CreateOnly: true},
			"AuthType":          {Required: true},
			"InvokeMode":        {HasProviderDefault: true},
		},
	},
	LambdaPermission: {
		Identifier: "Id",
		Fields:     []string{"Action", "FunctionName", "Principal", "FunctionUrlAuthType", "SourceArn", "SourceAccount"},
		Attributes: []string{"Id"},
		Hints: map[string]model.FieldHint{
			"Action":              {CreateOnly: true, Required: true},
			"FunctionName":        {CreateOnly: true, Required: true},
			"Principal":           {CreateOnly: true, Required: true},
			"FunctionUrlAuthType": {CreateOnly: true},
			"SourceArn":           {CreateOnly: true},
			"SourceAccount":       {CreateOnly: true},
		},
	},
	LambdaEventSourceMapping: {
		Identifier: "Id",
		Fields:     []string{"EventSourceArn", "FunctionName", "BatchSize", "Enabled", "MaximumBatchingWindowInSeconds"},
		Attributes: []string{"Id", "EventSourceMappingArn"},
		Hints: map[string]model.FieldHint{
			"EventSourceArn":                 {CreateOnly: true},
			"FunctionName":                   {Required: true},
			"MaximumBatchingWindowInSeconds": {HasProviderDefault: true},
		},
	},
}

// Lookup returns the schema of a resource type and whether the type is known.
func Lookup(resourceType string) (model.Schema, bool) {
	schema, ok := schemas[resourceType]
	return schema, ok
}

// All returns a descriptor per supported type, sorted by type.
func All() []plugin.ResourceDescriptor {
	descriptors := make([]plugin.ResourceDescriptor, 0, len(schemas))
	for t, s := range schemas {
		descriptors = append(descriptors, plugin.ResourceDescriptor{Type: t, Schema: s})
	}
	slices.SortFunc(descriptors, func(a, b plugin.ResourceDescriptor) int {
		return strings.Compare(a.Type, b.Type)
	})

	return descriptors
}
