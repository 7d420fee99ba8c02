// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package renderer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ddddddO/gtree"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/resuralph/ralphstack/internal/cli/display"
)

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type PropertyChange struct {
	Path      string
	Value     string
	OldValue  string
	Operation string
	HasOld    bool
}

// FormatPatchDocument adds one line per JSON Patch operation below node.
func FormatPatchDocument(node *gtree.Node, patchDoc json.RawMessage, previousProperties json.RawMessage) {
	var patches []patchOperation
	if err := json.Unmarshal(patchDoc, &patches); err != nil {
		node.Add(display.Red("Error parsing patch document: " + err.Error()))
		return
	}

	for _, patch := range patches {
		if patch.Op == "" || patch.Path == "" {
			continue
		}
		node.Add(formatPropertyChange(extractPropertyChange(patch, previousProperties)))
	}
}

func extractPropertyChange(patch patchOperation, previousProperties json.RawMessage) PropertyChange {
	change := PropertyChange{
		Path:      cleanPatchPath(patch.Path),
		Operation: patch.Op,
	}

	if patch.Value != nil && patch.Value != "" {
		change.Value = formatPatchValue(patch.Value)
	} else {
		change.Value = "(empty)"
	}

	if patch.Op == "replace" || patch.Op == "remove" {
		if oldValue, ok := extractPreviousValue(previousProperties, patch.Path); ok {
			change.OldValue = oldValue
			change.HasOld = true
		}
	}

	return change
}

func formatPropertyChange(change PropertyChange) string {
	displayPath := stripArrayIndices(change.Path)

	switch change.Operation {
	case "add":
		if isArrayProperty(change.Path) {
			return display.Green(fmt.Sprintf(`add new entry "%s" to "%s"`, change.Value, displayPath))
		}
		return display.Green(fmt.Sprintf(`add new property "%s" with the value "%s"`, displayPath, change.Value))
	case "remove":
		if change.HasOld {
			return display.Red(fmt.Sprintf(`remove "%s" from "%s"`, change.OldValue, displayPath))
		}
		return display.Red(fmt.Sprintf(`remove property "%s"`, displayPath))
	case "replace":
		if change.HasOld {
			return display.Gold(fmt.Sprintf(`change property "%s" from "%s" to "%s"`, displayPath, change.OldValue, change.Value))
		}
		return display.Gold(fmt.Sprintf(`change property "%s" to "%s"`, displayPath, change.Value))
	default:
		return display.Grey(fmt.Sprintf(`%s property "%s"`, change.Operation, displayPath))
	}
}

// cleanPatchPath turns a JSON Pointer into dotted form, e.g. "/Tags/3/Value" into
// "Tags[3].Value".
func cleanPatchPath(path string) string {
	path = strings.TrimPrefix(path, "/")

	var parts []string
	for _, segment := range strings.Split(path, "/") {
		segment = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		if len(parts) > 0 {
			if _, err := strconv.Atoi(segment); err == nil || segment == "-" {
				parts[len(parts)-1] += "[" + segment + "]"
				continue
			}
		}
		parts = append(parts, segment)
	}

	return strings.Join(parts, ".")
}

func extractPreviousValue(previousProperties json.RawMessage, path string) (string, bool) {
	if len(previousProperties) == 0 {
		return "", false
	}

	jsonPath := strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", ".")
	result := gjson.GetBytes(previousProperties, jsonPath)
	if !result.Exists() {
		return "", false
	}

	return formatPatchValue(result.Value()), true
}

func formatPatchValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	case map[string]any, []any:
		if bytes, err := json.Marshal(v); err == nil {
			return string(bytes)
		}
	}
	return fmt.Sprintf("%v", value)
}

func isArrayProperty(path string) bool {
	return strings.HasSuffix(path, "]")
}

// stripArrayIndices drops the index brackets, "Statement[1]" reads as "Statement".
func stripArrayIndices(path string) string {
	parts := strings.Split(path, "[")
	if len(parts) == 1 {
		return path
	}

	result := parts[0]
	for _, part := range parts[1:] {
		if bracketEnd := strings.Index(part, "]"); bracketEnd != -1 {
			result += part[bracketEnd+1:]
		}
	}
	return result
}
