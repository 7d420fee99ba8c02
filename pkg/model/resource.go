// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/theory/jsonpath"
	"github.com/theory/jsonpath/registry"
	"github.com/tidwall/gjson"
)

// jsonpathParser is a package-level parser with RFC 9535 function extensions
var jsonpathParser = jsonpath.NewParser(jsonpath.WithRegistry(registry.New()))

type Resource struct {
	Label              string          `json:"Label"`
	Type               string          `json:"Type"`
	Stack              string          `json:"Stack"`
	Schema             Schema          `json:"Schema"`
	Properties         json.RawMessage `json:"Properties"`
	ReadOnlyProperties json.RawMessage `json:"ReadOnlyProperties,omitempty"`
	PatchDocument      json.RawMessage `json:"PatchDocument,omitempty"` // Need this for CLI patch display
	NativeID           string          `json:"NativeID,omitempty"`
	Managed            bool            `json:"Managed"` // Imported resources are read but never created or deleted
	DependsOn          []string        `json:"DependsOn,omitempty"`
	Ksuid              string          `json:"Ksuid,omitempty"`
}

func (r *Resource) URI() ResourceURI {
	return NewResourceURI(r.Stack, r.Label, "")
}

func (r *Resource) Namespace() string {
	frags := strings.Split(r.Type, "::")

	return frags[0]
}

// Service returns the middle segment of the type, e.g. "SQS" for AWS::SQS::Queue.
func (r *Resource) Service() string {
	frags := strings.Split(r.Type, "::")
	if len(frags) < 2 {
		return ""
	}

	return frags[1]
}

// GetPropertyJSONPath evaluates a JSONPath query against the properties, then against the
// read-only properties. Plain field names are accepted, e.g. "FunctionUrl".
func (r *Resource) GetPropertyJSONPath(query string) (string, bool) {
	if val, found := r.getPropertyFromJSON(query, r.Properties); found {
		return val, true
	}

	if len(r.ReadOnlyProperties) > 0 {
		if val, found := r.getPropertyFromJSON(query, r.ReadOnlyProperties); found {
			return val, true
		}
	}

	return "", false
}

// GetProperty retrieves a property value from the resource's Properties field using a query path.
// Returns the property value as a string and a boolean indicating whether the property was found.
// Note: null values are treated as not found.
func (r *Resource) GetProperty(query string) (string, bool) {
	value := r.getProperty(query)
	if !value.Exists() || value.Type == gjson.Null {
		return "", false
	}
	return value.String(), true
}

func (r *Resource) ValidateRequiredOnCreateFields() error {
	missingFields := r.GetMissingRequiredOnCreateFields()

	if len(missingFields) > 0 {
		return fmt.Errorf("resource %s of type %s cannot be created - missing required fields: %v",
			r.Label, r.Type, missingFields)
	}

	return nil
}

func (r *Resource) GetMissingRequiredOnCreateFields() []string {
	requiredOnCreateFields := r.Schema.RequiredOnCreate()
	if len(requiredOnCreateFields) == 0 {
		return nil
	}

	var missingFields []string
	for _, field := range requiredOnCreateFields {
		value := r.getProperty(field)
		if !value.Exists() || value.Type == gjson.Null || (value.Type == gjson.String && value.Str == "") {
			missingFields = append(missingFields, field)
		}
	}
	slices.Sort(missingFields)

	return missingFields
}

func (r *Resource) getPropertyFromJSON(query string, properties json.RawMessage) (string, bool) {
	if len(properties) == 0 {
		return "", false
	}

	var data any
	if err := json.Unmarshal(properties, &data); err != nil {
		slog.Error("failed to unmarshal properties", "error", err)
		return "", false
	}
	// Simple field names are normalized to JSONPath, e.g. "QueueUrl" becomes "$.QueueUrl"
	if !strings.HasPrefix(query, "$") {
		query = "$." + query
	}
	path, err := jsonpathParser.Parse(query)
	if err != nil {
		slog.Error("failed to parse jsonpath query", "query", query, "error", err)
		return "", false
	}
	nodes := path.Select(data)
	if len(nodes) == 0 {
		return "", false
	}
	if strVal, ok := nodes[0].(string); ok {
		return strVal, true
	}
	return fmt.Sprintf("%v", nodes[0]), true
}

func (r *Resource) getProperty(query string) gjson.Result {
	result := gjson.Get(string(r.Properties), query)
	if result.Exists() {
		return result
	}

	if len(r.ReadOnlyProperties) > 0 {
		return gjson.Get(string(r.ReadOnlyProperties), query)
	}

	return gjson.Result{}
}
