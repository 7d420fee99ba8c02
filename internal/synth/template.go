// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package synth renders a stack model as a CloudFormation template.
package synth

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const templateFormatVersion = "2010-09-09"

type Template struct {
	AWSTemplateFormatVersion string                      `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                      `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]TemplateResource `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]TemplateOutput   `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

type TemplateResource struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

type TemplateOutput struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Synthesize converts resources into template entries. References to declared resources
// become Ref or Fn::GetAtt; imported resources are not part of the template and their
// references are inlined as literals.
func Synthesize(stack *pkgmodel.Stack) (*Template, error) {
	s := &synthesizer{
		resources: make(map[string]*pkgmodel.Resource, len(stack.Resources)),
	}
	for i := range stack.Resources {
		s.resources[stack.Resources[i].Label] = &stack.Resources[i]
	}

	template := &Template{
		AWSTemplateFormatVersion: templateFormatVersion,
		Description:              stack.Description,
		Resources:                make(map[string]TemplateResource),
	}

	for _, r := range stack.Resources {
		if !r.Managed {
			continue
		}

		var properties map[string]any
		if err := json.Unmarshal(r.Properties, &properties); err != nil {
			return nil, fmt.Errorf("failed to parse properties of %s: %w", r.Label, err)
		}

		converted, err := s.convert(properties)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.Label, err)
		}

		var dependsOn []string
		for _, d := range r.DependsOn {
			if target, ok := s.resources[d]; ok && target.Managed {
				dependsOn = append(dependsOn, d)
			}
		}

		template.Resources[r.Label] = TemplateResource{
			Type:       r.Type,
			Properties: converted.(map[string]any),
			DependsOn:  dependsOn,
		}
	}

	if len(stack.Outputs) > 0 {
		template.Outputs = make(map[string]TemplateOutput, len(stack.Outputs))
	}
	for _, o := range stack.Outputs {
		var value any
		if err := json.Unmarshal(o.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to parse output %s: %w", o.Key, err)
		}
		converted, err := s.convert(value)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Key, err)
		}
		template.Outputs[o.Key] = TemplateOutput{Description: o.Description, Value: converted}
	}

	return template, nil
}

// Render writes the template in the requested format.
func (t *Template) Render(format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(t, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported template format: %s", format)
	}
}

type synthesizer struct {
	resources map[string]*pkgmodel.Resource
}

func (s *synthesizer) convert(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			return s.intrinsic(pkgmodel.ResourceURI(ref))
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			converted, err := s.convert(val)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, val := range v {
			converted, err := s.convert(val)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case string:
		if strings.Contains(v, "${AWS::") {
			return map[string]any{"Fn::Sub": v}, nil
		}
		return v, nil
	default:
		return v, nil
	}
}

func (s *synthesizer) intrinsic(uri pkgmodel.ResourceURI) (any, error) {
	if !uri.IsValid() {
		return nil, fmt.Errorf("invalid reference %q", uri)
	}

	target, ok := s.resources[uri.Label()]
	if !ok {
		return nil, fmt.Errorf("reference to undeclared resource %s", uri.Label())
	}

	attribute := uri.PropertyPath()
	if !target.Managed {
		value, found := target.GetProperty(attribute)
		if !found {
			return target.NativeID, nil
		}
		return value, nil
	}

	if attribute == target.Schema.Identifier {
		return map[string]any{"Ref": target.Label}, nil
	}

	return map[string]any{"Fn::GetAtt": []any{target.Label, attribute}}, nil
}
