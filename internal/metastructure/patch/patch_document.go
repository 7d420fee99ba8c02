// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package patch computes JSON patch documents between a resource's recorded and desired
// properties.
package patch

import (
	"fmt"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/platform-engineering-labs/jsonpatch"

	"github.com/resuralph/ralphstack/internal/metastructure/resolver"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

type Mode string

const (
	// ModeReconcile diffs recorded properties against the desired declaration. The result
	// converges the resource onto the declaration exactly.
	ModeReconcile Mode = "reconcile"

	// ModeDrift diffs live properties against the recorded ones. Only recorded fields are
	// checked; fields the provider adds on its own are not drift.
	ModeDrift Mode = "drift"
)

var defaultIgnoredFields = []jsonpatch.Path{}

// GeneratePatch returns the patch operations turning document into patch, and whether any
// of them touches a create-only field. A nil patch means there is nothing to do.
func GeneratePatch(document []byte, patch []byte, properties resolver.ResolvableProperties, schema pkgmodel.Schema, mode Mode) (json.RawMessage, bool, error) {
	return generatePatch(document, patch, properties, schema, mode)
}

func collectionSemanticsFromFieldHints(hints map[string]pkgmodel.FieldHint) jsonpatch.Collections {
	collections := jsonpatch.Collections{
		EntitySets: jsonpatch.EntitySets{},
		Arrays:     []jsonpatch.Path{},
	}

	for field, hint := range hints {
		path := jsonpatch.Path(fmt.Sprintf("$.%s", field))
		switch hint.UpdateMethod {
		case pkgmodel.FieldUpdateMethodEntitySet:
			collections.EntitySets[path] = jsonpatch.Key(hint.IndexField)
		case pkgmodel.FieldUpdateMethodArray:
			collections.Arrays = append(collections.Arrays, path)
		}
	}

	return collections
}

func generatePatch(document []byte, patch []byte, properties resolver.ResolvableProperties, schema pkgmodel.Schema, mode Mode) (json.RawMessage, bool, error) {
	flattenedDocument, flattenedPatch, err := flattenAndResolveRefs(document, patch, properties)
	if err != nil {
		return nil, false, fmt.Errorf("failed to flatten and resolve refs: %w", err)
	}

	var strategy jsonpatch.PatchStrategy
	var writeOnly []string
	switch mode {
	case ModeReconcile:
		strategy = jsonpatch.PatchStrategyExactMatch
	case ModeDrift:
		strategy = jsonpatch.PatchStrategyEnsureExists
		writeOnly = schema.WriteOnly()
	default:
		return nil, false, fmt.Errorf("unable to generate patch document for mode: %s", mode)
	}

	patchOps, err := createPatchDocument(flattenedDocument, flattenedPatch, schema.Fields, writeOnly, schema.HasProviderDefault(), collectionSemanticsFromFieldHints(schema.Hints), defaultIgnoredFields, strategy)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create patch document: %w", err)
	}

	if len(patchOps) == 0 {
		return nil, false, nil
	}

	needsReplacement := containsCreateOnlyFields(patchOps, schema.CreateOnly())
	patchJson, err := json.Marshal(patchOps)
	if err != nil {
		return nil, false, fmt.Errorf("failed to serialize patch document: %w", err)
	}

	return json.RawMessage(patchJson), needsReplacement, nil
}

func createPatchDocument(document []byte, patch []byte, schemaFields []string, writeOnlyFields []string, hasProviderDefaultFields []string, collections jsonpatch.Collections, ignoredFields []jsonpatch.Path, strategy jsonpatch.PatchStrategy) ([]jsonpatch.JsonPatchOperation, error) {
	patchWithSchemaFieldsOnly, err := removeNonSchemaFields(patch, schemaFields)
	if err != nil {
		return nil, err
	}

	// Write-only fields never come back from a read, so they can't be compared.
	patchWithoutWriteOnly, err := removeFields(patchWithSchemaFieldsOnly, writeOnlyFields)
	if err != nil {
		return nil, err
	}

	documentWithoutProviderDefaults, err := removeProviderDefaultFields(document, patchWithoutWriteOnly, hasProviderDefaultFields)
	if err != nil {
		return nil, err
	}

	patchDoc, err := jsonpatch.CreatePatch(documentWithoutProviderDefaults, patchWithoutWriteOnly, collections, ignoredFields, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON patch: %w", err)
	}

	return patchDoc, nil
}

// removeFields drops dotted field paths, e.g. "Code.ImageUri", from a document.
func removeFields(document []byte, fields []string) ([]byte, error) {
	if len(fields) == 0 {
		return document, nil
	}

	var deserialized map[string]any
	if err := json.Unmarshal(document, &deserialized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	for _, fieldPath := range fields {
		removeNestedField(deserialized, strings.Split(fieldPath, "."))
	}

	return json.Marshal(deserialized)
}

func removeNestedField(obj map[string]any, path []string) {
	if len(path) == 0 {
		return
	}

	if len(path) == 1 {
		delete(obj, path[0])
		return
	}

	if nested, ok := obj[path[0]].(map[string]any); ok {
		removeNestedField(nested, path[1:])
	}
}

// removeProviderDefaultFields drops provider-defaulted fields from the document unless the
// desired state sets them, so that an unset field never produces a remove.
func removeProviderDefaultFields(document []byte, patch []byte, hasProviderDefaultFields []string) ([]byte, error) {
	if len(hasProviderDefaultFields) == 0 {
		return document, nil
	}

	var docMap map[string]any
	if err := json.Unmarshal(document, &docMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	var patchMap map[string]any
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch: %w", err)
	}

	for _, fieldPath := range hasProviderDefaultFields {
		pathParts := strings.Split(fieldPath, ".")
		if !fieldExistsInMap(patchMap, pathParts) {
			removeNestedField(docMap, pathParts)
		}
	}

	return json.Marshal(docMap)
}

func fieldExistsInMap(obj map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}

	val, exists := obj[path[0]]
	if !exists {
		return false
	}

	if len(path) == 1 {
		return true
	}

	if nested, ok := val.(map[string]any); ok {
		return fieldExistsInMap(nested, path[1:])
	}

	return false
}

func removeNonSchemaFields(patch []byte, schemaFields []string) ([]byte, error) {
	var deserialized map[string]any
	if err := json.Unmarshal(patch, &deserialized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource properties: %w", err)
	}
	modified := make(map[string]any)
	for _, field := range schemaFields {
		if val, ok := deserialized[field]; ok && hasValue(val) {
			modified[field] = val
		}
	}

	return json.Marshal(modified)
}

// containsCreateOnlyFields matches top-level and nested create-only paths; an operation
// below a create-only field also forces replacement.
func containsCreateOnlyFields(patchOps []jsonpatch.JsonPatchOperation, createOnlyFields []string) bool {
	for _, op := range patchOps {
		path := strings.ReplaceAll(cleanPath(op.Path), "/", ".")
		if slices.ContainsFunc(createOnlyFields, func(field string) bool {
			return path == field || strings.HasPrefix(path, field+".")
		}) {
			return true
		}
	}

	return false
}

func hasValue(val any) bool {
	if val == nil {
		return false
	}
	switch v := val.(type) {
	case string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func cleanPath(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}

	return path
}

// resolveRefs sets $value on every reference in v that properties can resolve. References
// to resources that do not exist yet stay unresolved.
func resolveRefs(v any, resolvableProperties resolver.ResolvableProperties) {
	switch val := v.(type) {
	case map[string]any:
		if ref, hasRef := val["$ref"].(string); hasRef {
			if _, resolved := val["$value"]; resolved {
				return
			}
			uri := pkgmodel.ResourceURI(ref)
			if resolvedValue, found := resolvableProperties.Get(uri.Stripped(), uri.PropertyPath()); found {
				val["$value"] = resolvedValue
			}
			return
		}
		for _, elem := range val {
			resolveRefs(elem, resolvableProperties)
		}
	case []any:
		for _, elem := range val {
			resolveRefs(elem, resolvableProperties)
		}
	}
}

// flattenRefs replaces $ref objects with their $value. A reference that is still unresolved
// flattens to an empty string so that it always differs from a real value.
func flattenRefs(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		if _, hasRef := vv["$ref"]; hasRef {
			if val, hasVal := vv["$value"]; hasVal {
				return val
			}
			return ""
		}
		for k, elem := range vv {
			vv[k] = flattenRefs(elem)
		}
		return vv
	case []any:
		for i, elem := range vv {
			vv[i] = flattenRefs(elem)
		}
		return vv
	default:
		return v
	}
}

func flattenAndResolveRefs(document []byte, patch []byte, resolvableProperties resolver.ResolvableProperties) ([]byte, []byte, error) {
	current := map[string]any{}
	if len(document) > 0 {
		if err := json.Unmarshal(document, &current); err != nil {
			return nil, nil, err
		}
	}
	var mod map[string]any
	if err := json.Unmarshal(patch, &mod); err != nil {
		return nil, nil, err
	}
	resolveRefs(mod, resolvableProperties)
	flattenRefs(current)
	flattenRefs(mod)

	currentRes, err := json.Marshal(current)
	if err != nil {
		return nil, nil, err
	}
	modRes, err := json.Marshal(mod)
	if err != nil {
		return nil, nil, err
	}

	return currentRes, modRes, nil
}
