// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package ops

import (
	"github.com/resuralph/ralphstack/internal/stack"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// TargetsFromResources picks the pipeline resources out of the recorded state of a stack.
// Resources that were never deployed leave their fields empty.
func TargetsFromResources(resources []*pkgmodel.Resource) Targets {
	byLabel := make(map[string]*pkgmodel.Resource, len(resources))
	for _, r := range resources {
		byLabel[r.Label] = r
	}

	attr := func(label, attribute string) string {
		r, ok := byLabel[label]
		if !ok {
			return ""
		}
		value, _ := r.GetPropertyJSONPath(attribute)
		return value
	}
	nativeID := func(label string) string {
		if r, ok := byLabel[label]; ok {
			return r.NativeID
		}
		return ""
	}

	return Targets{
		QueueURL:          nativeID(stack.CommandQueueID),
		QueueArn:          attr(stack.CommandQueueID, "Arn"),
		DLQURL:            nativeID(stack.CommandDLQID),
		DLQArn:            attr(stack.CommandDLQID, "Arn"),
		EntryFunction:     nativeID(stack.EntryFunctionID),
		ProcessorFunction: nativeID(stack.ProcessorID),
		FunctionURL:       attr(stack.EntryFunctionURL, "FunctionUrl"),
	}
}
