// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package resolver fills in and flattens the $ref objects embedded in resource properties.
package resolver

import (
	"fmt"
	"log/slog"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// ResolvePropertyReferences records value as the resolved value of every reference to uri
// in properties. value may be a bare string, or a JSON object from which the referenced
// property is extracted.
func ResolvePropertyReferences(uri pkgmodel.ResourceURI, properties json.RawMessage, value string) (json.RawMessage, error) {
	resolver := newPropertyResolver(properties)
	if !resolver.has(uri) {
		slog.Error("Failed to set property value", "uri", uri)
		return nil, fmt.Errorf("failed to set property value for %s", uri)
	}
	if err := resolver.setRefValue(uri, value); err != nil {
		return nil, fmt.Errorf("failed to set property value for %s: %w", uri, err)
	}

	return resolver.resolveReferences(properties)
}

// ConvertToPluginFormat replaces every resolved $ref object with its plain value. Unresolved
// references are an error: a provider must never receive a $ref.
func ConvertToPluginFormat(properties json.RawMessage) (json.RawMessage, error) {
	resolver := newPropertyResolver(properties)
	if unresolved := resolver.unresolved(); len(unresolved) > 0 {
		return nil, &UnresolvedReferencesError{URIs: unresolved}
	}

	return resolver.toPluginFormat(properties)
}

// ExtractResolvableURIs returns the distinct property URIs referenced by a resource, sorted.
func ExtractResolvableURIs(resource pkgmodel.Resource) []pkgmodel.ResourceURI {
	resolver := newPropertyResolverFromResource(resource)
	return resolver.getResolvableURIs()
}

// UnresolvedURIs returns references in properties that carry no $value yet.
func UnresolvedURIs(properties json.RawMessage) []pkgmodel.ResourceURI {
	return newPropertyResolver(properties).unresolved()
}

// StripResolvedValues removes every $value from $ref objects, leaving the declared form.
func StripResolvedValues(properties json.RawMessage) (json.RawMessage, error) {
	resolver := newPropertyResolver(properties)
	out := string(properties)
	var err error
	for _, ref := range resolver.refs {
		if ref.ResolvedValue == nil {
			continue
		}
		out, err = sjson.Delete(out, ref.TargetPath+".$value")
		if err != nil {
			return nil, err
		}
	}

	return json.RawMessage(out), nil
}

type UnresolvedReferencesError struct {
	URIs []pkgmodel.ResourceURI
}

func (e *UnresolvedReferencesError) Error() string {
	return fmt.Sprintf("unresolved references: %v", e.URIs)
}

type propertyParser struct {
	HasRef    bool
	HasValue  bool
	Reference string
	Value     any
}

func (pp *propertyParser) Parse(result gjson.Result) bool {
	ref := result.Get("$ref")
	pp.HasRef = ref.Exists()
	if !pp.HasRef {
		return false
	}

	pp.Reference = ref.String()
	if value := result.Get("$value"); value.Exists() {
		pp.HasValue = true
		pp.Value = value.Value()
	}

	return true
}

func (pp *propertyParser) CreateRef(currentPath string) pkgmodel.Ref {
	uri := pkgmodel.ResourceURI(pp.Reference)

	ref := pkgmodel.Ref{
		PropertyURI:        uri,
		ResourceURI:        uri.Stripped(),
		SourcePropertyName: uri.PropertyPath(),
		TargetPath:         currentPath,
	}
	if pp.HasValue {
		ref.ResolvedValue = pp.Value
	}

	return ref
}

// propertyResolver indexes references by the path they occupy, so one URI may be
// resolved in several places at once.
type propertyResolver struct {
	refs map[string]pkgmodel.Ref
}

func newPropertyResolver(properties json.RawMessage) *propertyResolver {
	resolver := &propertyResolver{refs: make(map[string]pkgmodel.Ref)}
	if len(properties) > 0 {
		resolver.extractFromJson(gjson.ParseBytes(properties), "")
	}

	return resolver
}

func newPropertyResolverFromResource(resource pkgmodel.Resource) *propertyResolver {
	resolver := newPropertyResolver(resource.Properties)
	if len(resource.ReadOnlyProperties) > 0 {
		resolver.extractFromJson(gjson.ParseBytes(resource.ReadOnlyProperties), "")
	}

	return resolver
}

func buildPath(currentPath, key string) string {
	if currentPath == "" {
		return key
	}
	return currentPath + "." + key
}

func (pr *propertyResolver) extractFromJson(result gjson.Result, currentPath string) {
	if result.IsObject() {
		parser := &propertyParser{}
		if parser.Parse(result) {
			pr.refs[currentPath] = parser.CreateRef(currentPath)
			return
		}
	}

	if result.IsObject() || result.IsArray() {
		result.ForEach(func(key, val gjson.Result) bool {
			pr.extractFromJson(val, buildPath(currentPath, key.String()))
			return true
		})
	}
}

func extractResolvedValue(ref pkgmodel.Ref) any {
	resolvedJSON, ok := ref.ResolvedValue.(string)
	if !ok {
		return ref.ResolvedValue
	}

	resolvedData := gjson.Parse(resolvedJSON)
	if !resolvedData.IsObject() {
		return resolvedJSON
	}
	if value := resolvedData.Get("$value"); value.Exists() {
		return value.Value()
	}
	if specificProperty := resolvedData.Get(ref.SourcePropertyName); specificProperty.Exists() {
		return specificProperty.Value()
	}

	return resolvedJSON
}

func (pr *propertyResolver) resolveReferences(properties json.RawMessage) (json.RawMessage, error) {
	result := string(properties)

	for _, path := range pr.sortedPaths() {
		ref := pr.refs[path]
		if ref.ResolvedValue == nil {
			slog.Debug("No resolved value set for ref", "uri", ref.PropertyURI, "targetPath", ref.TargetPath)
			continue
		}

		var err error
		result, err = sjson.Set(result, ref.TargetPath+".$value", extractResolvedValue(ref))
		if err != nil {
			slog.Error("Failed to set reference value", "path", ref.TargetPath, "error", err)
			return nil, err
		}
	}

	return json.RawMessage(result), nil
}

func (pr *propertyResolver) setRefValue(uri pkgmodel.ResourceURI, value string) error {
	var found bool
	for path, ref := range pr.refs {
		if ref.PropertyURI != uri {
			continue
		}
		ref.ResolvedValue = value
		pr.refs[path] = ref
		found = true
	}

	if !found {
		return fmt.Errorf("reference not found: %s", uri)
	}

	return nil
}

func (pr *propertyResolver) has(uri pkgmodel.ResourceURI) bool {
	for _, ref := range pr.refs {
		if ref.PropertyURI == uri {
			return true
		}
	}
	return false
}

func (pr *propertyResolver) toPluginFormat(properties json.RawMessage) (json.RawMessage, error) {
	out := string(properties)
	var err error

	for _, path := range pr.sortedPaths() {
		ref := pr.refs[path]
		out, err = sjson.Set(out, ref.TargetPath, extractResolvedValue(ref))
		if err != nil {
			slog.Error("ToPluginFormat: failed to set value for ref", "path", ref.TargetPath, "error", err)
			return nil, err
		}
	}

	return json.RawMessage(out), nil
}

func (pr *propertyResolver) unresolved() []pkgmodel.ResourceURI {
	seen := make(map[pkgmodel.ResourceURI]struct{})
	for _, ref := range pr.refs {
		if ref.ResolvedValue == nil {
			seen[ref.PropertyURI] = struct{}{}
		}
	}

	return sortedURIs(seen)
}

func (pr *propertyResolver) getResolvableURIs() []pkgmodel.ResourceURI {
	seen := make(map[pkgmodel.ResourceURI]struct{}, len(pr.refs))
	for _, ref := range pr.refs {
		seen[ref.PropertyURI] = struct{}{}
	}

	return sortedURIs(seen)
}

func (pr *propertyResolver) sortedPaths() []string {
	paths := make([]string, 0, len(pr.refs))
	for path := range pr.refs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

func sortedURIs(set map[pkgmodel.ResourceURI]struct{}) []pkgmodel.ResourceURI {
	uris := make([]pkgmodel.ResourceURI, 0, len(set))
	for uri := range set {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })

	return uris
}
