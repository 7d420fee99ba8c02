// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"encoding/json"
	"time"
)

type Stack struct {
	Label       string     `json:"Label"`
	Description string     `json:"Description"`
	Target      Target     `json:"Target"`
	Resources   []Resource `json:"Resources"`
	Outputs     []Output   `json:"Outputs,omitempty"`
	UpdatedAt   time.Time  `json:"UpdatedAt,omitempty"`
}

type Output struct {
	Key         string `json:"Key"`
	Description string `json:"Description,omitempty"`
	// Value is either a literal or a $ref object pointing at a resource property.
	Value json.RawMessage `json:"Value"`
}

// ResolvedOutput is an output whose value has been read from deployed state.
type ResolvedOutput struct {
	Key         string `json:"Key" yaml:"key"`
	Description string `json:"Description,omitempty" yaml:"description,omitempty"`
	Value       string `json:"Value" yaml:"value"`
}

func (s *Stack) Resource(label string) (*Resource, bool) {
	for i := range s.Resources {
		if s.Resources[i].Label == label {
			return &s.Resources[i], true
		}
	}

	return nil, false
}

func (s *Stack) ManagedResources() []Resource {
	var managed []Resource
	for _, r := range s.Resources {
		if r.Managed {
			managed = append(managed, r)
		}
	}

	return managed
}
