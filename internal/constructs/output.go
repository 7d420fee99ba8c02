// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

type Output struct {
	ID          string
	Description string
	Value       any
}

// NewOutput exports a value, usually a Reference, once the stack is deployed.
func NewOutput(scope *Scope, id string, value any, description string) *Output {
	for _, o := range scope.outputs {
		if o.ID == id {
			scope.addErrorf("duplicate output %q", id)
		}
	}

	output := &Output{ID: id, Description: description, Value: value}
	scope.outputs = append(scope.outputs, output)

	return output
}
