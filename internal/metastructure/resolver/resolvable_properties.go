// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resolver

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// ResolvableProperties holds the referenced values of other resources, keyed by resource
// URI and property name.
type ResolvableProperties struct {
	props map[pkgmodel.ResourceURI]map[string]string
}

func NewResolvableProperties() ResolvableProperties {
	return ResolvableProperties{
		props: make(map[pkgmodel.ResourceURI]map[string]string),
	}
}

func (p *ResolvableProperties) Add(resource pkgmodel.ResourceURI, property, value string) {
	if _, ok := p.props[resource]; !ok {
		p.props[resource] = make(map[string]string)
	}
	p.props[resource][property] = value
}

func (p *ResolvableProperties) Get(resource pkgmodel.ResourceURI, property string) (string, bool) {
	if resourceProps, ok := p.props[resource]; ok {
		if value, ok := resourceProps[property]; ok {
			return value, true
		}
	}
	return "", false
}

// LookupProperty finds a referenceable value on a resource: read-only attributes first,
// then declared properties, then the native ID when the property is the identifier.
func LookupProperty(target pkgmodel.Resource, property string) (string, bool) {
	if len(target.ReadOnlyProperties) > 0 {
		if extracted := gjson.GetBytes(target.ReadOnlyProperties, property); extracted.Exists() {
			return extracted.String(), true
		}
	}

	if len(target.Properties) > 0 {
		extracted := gjson.GetBytes(target.Properties, property)
		if extracted.Exists() && !extracted.IsObject() {
			return extracted.String(), true
		}
	}

	if property == target.Schema.Identifier && target.NativeID != "" {
		return target.NativeID, true
	}

	return "", false
}

// LoadResolvableProperties collects the values every reference of resource points at.
// known holds the current state of the resources that may be referenced.
func LoadResolvableProperties(resource pkgmodel.Resource, known []pkgmodel.Resource) (ResolvableProperties, error) {
	res := NewResolvableProperties()

	byURI := make(map[pkgmodel.ResourceURI]pkgmodel.Resource, len(known))
	for _, r := range known {
		byURI[r.URI()] = r
	}

	for _, uri := range ExtractResolvableURIs(resource) {
		target, exists := byURI[uri.Stripped()]
		if !exists {
			return res, fmt.Errorf("resource %s not found", uri.Stripped())
		}

		value, found := LookupProperty(target, uri.PropertyPath())
		if !found {
			return res, fmt.Errorf("property %s not found in resource %s", uri.PropertyPath(), target.Label)
		}
		res.Add(uri.Stripped(), uri.PropertyPath(), value)
	}

	return res, nil
}

// Apply sets every reference in properties that p has a value for.
func (p *ResolvableProperties) Apply(properties json.RawMessage) (json.RawMessage, error) {
	resolver := newPropertyResolver(properties)
	for _, uri := range resolver.getResolvableURIs() {
		value, ok := p.Get(uri.Stripped(), uri.PropertyPath())
		if !ok {
			continue
		}
		if err := resolver.setRefValue(uri, value); err != nil {
			return nil, err
		}
	}

	return resolver.resolveReferences(properties)
}

// ResolveValue resolves a standalone value, such as a stack output, which may itself be a
// bare reference.
func ResolveValue(value json.RawMessage, known []pkgmodel.Resource) (any, error) {
	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": value})
	if err != nil {
		return nil, err
	}

	holder := pkgmodel.Resource{Properties: wrapped}
	props, err := LoadResolvableProperties(holder, known)
	if err != nil {
		return nil, err
	}

	resolved, err := props.Apply(wrapped)
	if err != nil {
		return nil, err
	}
	flat, err := ConvertToPluginFormat(resolved)
	if err != nil {
		return nil, err
	}

	return gjson.GetBytes(flat, "value").Value(), nil
}
