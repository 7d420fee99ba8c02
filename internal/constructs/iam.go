// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import (
	"fmt"
	"strings"

	"github.com/resuralph/ralphstack/internal/provider/aws/descriptors"
)

const policyDocumentVersion = "2012-10-17"

// ManagedPolicy is anything whose ARN can be attached to a role.
type ManagedPolicy interface {
	ManagedPolicyArn() any
}

type awsManagedPolicy struct {
	name string
}

// AwsManagedPolicy refers to a policy owned by AWS, e.g. "service-role/AWSLambdaBasicExecutionRole".
func AwsManagedPolicy(name string) ManagedPolicy {
	return awsManagedPolicy{name: name}
}

func (p awsManagedPolicy) ManagedPolicyArn() any {
	return "arn:aws:iam::aws:policy/" + p.name
}

// ImportedManagedPolicy is an existing customer managed policy. It is read during
// deployment to check that it exists but is never modified.
type ImportedManagedPolicy struct {
	arn      string
	resource *CfnResource
}

func ManagedPolicyFromArn(scope *Scope, id, arn string) *ImportedManagedPolicy {
	if !strings.HasPrefix(arn, "arn:") || !strings.Contains(arn, ":policy/") {
		scope.addErrorf("%s: %q is not an IAM policy ARN", id, arn)
	}

	resource := scope.NewResource(id, descriptors.IAMManagedPolicy, map[string]any{
		"PolicyArn": arn,
	})
	resource.Imported = true
	resource.PhysicalID = arn

	return &ImportedManagedPolicy{arn: arn, resource: resource}
}

// ManagedPolicyArn is the literal ARN; imported values need no resolution.
func (p *ImportedManagedPolicy) ManagedPolicyArn() any {
	return p.arn
}

func (p *ImportedManagedPolicy) Resource() *CfnResource {
	return p.resource
}

type PolicyStatement struct {
	Effect   string
	Actions  []string
	Resource []any
}

func (s PolicyStatement) toDocument() map[string]any {
	effect := s.Effect
	if effect == "" {
		effect = "Allow"
	}

	var action any = s.Actions
	if len(s.Actions) == 1 {
		action = s.Actions[0]
	}

	var resource any = s.Resource
	if len(s.Resource) == 1 {
		resource = s.Resource[0]
	}

	return map[string]any{
		"Effect":   effect,
		"Action":   action,
		"Resource": resource,
	}
}

type RoleProps struct {
	AssumedBy       string
	ManagedPolicies []ManagedPolicy
	Description     string
}

type Role struct {
	scope    *Scope
	resource *CfnResource

	managedPolicyArns []any
	defaultPolicy     *CfnResource
	statements        []PolicyStatement
}

func NewRole(scope *Scope, id string, props RoleProps) *Role {
	if props.AssumedBy == "" {
		scope.addErrorf("%s: role requires a trusted service principal", id)
	}

	resource := scope.NewResource(id, descriptors.IAMRole, map[string]any{
		"RoleName": physicalName(scope.StackName(), id, 64),
		"AssumeRolePolicyDocument": map[string]any{
			"Version": policyDocumentVersion,
			"Statement": []any{
				map[string]any{
					"Effect":    "Allow",
					"Principal": map[string]any{"Service": props.AssumedBy},
					"Action":    "sts:AssumeRole",
				},
			},
		},
	})
	if props.Description != "" {
		resource.Properties["Description"] = props.Description
	}

	role := &Role{scope: scope, resource: resource}
	for _, p := range props.ManagedPolicies {
		role.AddManagedPolicy(p)
	}

	return role
}

func (r *Role) AddManagedPolicy(policy ManagedPolicy) {
	r.managedPolicyArns = append(r.managedPolicyArns, policy.ManagedPolicyArn())
	r.resource.Properties["ManagedPolicyArns"] = r.managedPolicyArns

	if imported, ok := policy.(*ImportedManagedPolicy); ok {
		r.resource.AddDependency(imported.resource)
	}
}

// AddToPolicy appends a statement to the role's inline default policy, creating it on first use.
func (r *Role) AddToPolicy(statement PolicyStatement) {
	if r.defaultPolicy == nil {
		id := r.resource.LogicalID + "DefaultPolicy"
		r.defaultPolicy = r.scope.NewResource(id, descriptors.IAMRolePolicy, map[string]any{
			"PolicyName": physicalName(r.scope.StackName(), id, 128),
			"RoleName":   r.RoleName(),
		})
	}

	r.statements = append(r.statements, statement)

	documents := make([]any, 0, len(r.statements))
	for _, s := range r.statements {
		documents = append(documents, s.toDocument())
	}
	r.defaultPolicy.Properties["PolicyDocument"] = map[string]any{
		"Version":   policyDocumentVersion,
		"Statement": documents,
	}
}

func (r *Role) Arn() Reference {
	return r.resource.Ref("Arn")
}

func (r *Role) RoleName() Reference {
	return r.resource.Ref("RoleName")
}

func (r *Role) Resource() *CfnResource {
	return r.resource
}

// DefaultPolicy is nil until a statement has been added.
func (r *Role) DefaultPolicy() *CfnResource {
	return r.defaultPolicy
}

// Grantable principals can receive permissions.
type Grantable interface {
	GrantPrincipal() *Role
}

func (r *Role) GrantPrincipal() *Role {
	return r
}

func grant(grantee Grantable, resource any, actions ...string) error {
	if grantee == nil || grantee.GrantPrincipal() == nil {
		return fmt.Errorf("grant of %v requires a principal", actions)
	}
	grantee.GrantPrincipal().AddToPolicy(PolicyStatement{
		Actions:  actions,
		Resource: []any{resource},
	})
	return nil
}
