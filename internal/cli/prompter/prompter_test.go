// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package prompter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirm(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  bool
	}{
		{"Y\n", true},
		{"Y", true},
		{"y\n", false},
		{"yes\n", false},
		{"\n", false},
		{"", false},
	} {
		var out bytes.Buffer
		got := NewPrompter(strings.NewReader(tc.input), &out).Confirm("Continue?")

		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Equal(t, "Continue? (Y): ", out.String())
	}
}
