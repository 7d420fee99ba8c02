// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

type Ref struct {
	// What we're referencing, e.g. "ralph://ResuralphPythonStack/CommandQueue#/Arn"
	PropertyURI ResourceURI

	ResourceURI ResourceURI

	// Property name on the source resource, e.g. "Arn"
	SourcePropertyName string

	// Path in consuming resource, e.g. "RedrivePolicy.deadLetterTargetArn"
	TargetPath string

	ResolvedValue any
}

// RefObject is the JSON form of a reference embedded in resource properties.
func RefObject(uri ResourceURI) map[string]any {
	return map[string]any{"$ref": string(uri)}
}
