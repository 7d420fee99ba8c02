// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package util

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/segmentio/ksuid"
)

// NewID generates a sortable unique ID for commands and resources.
func NewID() string {
	return ksuid.New().String()
}

// InlineJSON renders data on a single line for log attributes.
func InlineJSON(data any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error marshalling: %v", err)
	}
	return string(b)
}

func StringPtrToString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
