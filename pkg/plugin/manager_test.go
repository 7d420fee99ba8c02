// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/provider/fake"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

func TestManager_ResourcePluginMatchesNamespaceCaseInsensitively(t *testing.T) {
	provider := fake.New()
	manager := plugin.NewManager(provider)

	found, err := manager.ResourcePlugin("aws")
	require.NoError(t, err)
	assert.Same(t, provider, found)

	_, err = manager.ResourcePlugin("GCP")
	assert.ErrorContains(t, err, "no resource plugin found for namespace GCP")
}
