// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureFileFolderHierarchy_CreatesParentDirectories(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "state", "nested", "ralphstack.db")

	require.NoError(t, EnsureFileFolderHierarchy(file))

	info, err := os.Stat(filepath.Join(root, "state", "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureFileFolderHierarchy_BareFileName(t *testing.T) {
	assert.NoError(t, EnsureFileFolderHierarchy("ralphstack.db"))
}

func TestExpandHomePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ralphstack/log"), ExpandHomePath("~/.ralphstack/log"))
	assert.Equal(t, "/var/lib/ralphstack", ExpandHomePath("/var/lib/ralphstack"))
}
