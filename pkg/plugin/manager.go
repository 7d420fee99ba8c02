// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package plugin

import (
	"fmt"
	"strings"
)

// Manager holds the resource plugins available to a run, one per namespace.
type Manager struct {
	resourcePlugins []ResourcePlugin
}

func NewManager(plugins ...ResourcePlugin) *Manager {
	return &Manager{resourcePlugins: plugins}
}

func (m *Manager) ListResourcePlugins() []ResourcePlugin {
	return m.resourcePlugins
}

func (m *Manager) ResourcePlugin(namespace string) (ResourcePlugin, error) {
	for _, plugin := range m.resourcePlugins {
		if strings.EqualFold(plugin.Namespace(), namespace) {
			return plugin, nil
		}
	}

	return nil, fmt.Errorf("no resource plugin found for namespace %s", namespace)
}
