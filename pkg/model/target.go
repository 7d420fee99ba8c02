// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

type Target struct {
	Label     string `json:"Label"`
	Namespace string `json:"Namespace"`
	Region    string `json:"Region"`
	Profile   string `json:"Profile,omitempty"`
}
