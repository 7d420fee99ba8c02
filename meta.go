// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package ralphstack

var Version = "0.0.0"

const DefaultStackName = "ResuralphPythonStack"
