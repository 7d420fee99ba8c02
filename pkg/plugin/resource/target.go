// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resource

import "github.com/resuralph/ralphstack/pkg/model"

type TargetBehavior interface {
	// UpdateTargetAllowed is called when a stack is redeployed against a different target
	UpdateTargetAllowed(current *model.Target, desired *model.Target) error
}
