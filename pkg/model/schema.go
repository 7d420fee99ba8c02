// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import "slices"

type Schema struct {
	// Identifier is the property Cloud Control returns as the primary identifier.
	Identifier string `json:"Identifier"`
	// Fields are the writable properties of the type.
	Fields []string `json:"Fields"`
	// Attributes are read-only properties available after creation, e.g. Arn.
	Attributes []string             `json:"Attributes,omitempty"`
	Hints      map[string]FieldHint `json:"Hints"`
	// Nonprovisionable types can only be read, never created or deleted.
	Nonprovisionable bool `json:"Nonprovisionable"`
}

type FieldHint struct {
	CreateOnly         bool `json:"CreateOnly"`
	WriteOnly          bool `json:"WriteOnly"`
	Required           bool `json:"Required"`
	RequiredOnCreate   bool `json:"RequiredOnCreate"`
	HasProviderDefault bool `json:"HasProviderDefault"`

	IndexField   string            `json:"IndexField"`
	UpdateMethod FieldUpdateMethod `json:"UpdateMethod"`
}

type FieldUpdateMethod string

const FieldUpdateMethodArray FieldUpdateMethod = "Array"
const FieldUpdateMethodEntitySet FieldUpdateMethod = "EntitySet"
const FieldUpdateMethodSet FieldUpdateMethod = "Set"
const FieldUpdateMethodNone FieldUpdateMethod = ""

func filterFields[T bool](s Schema, selector func(FieldHint) T, value T) []string {
	var result []string

	for k, v := range s.Hints {
		if selector(v) == value {
			result = append(result, k)
		}
	}
	slices.Sort(result)

	return result
}

func (s Schema) CreateOnly() []string {
	return filterFields(s, func(h FieldHint) bool { return h.CreateOnly }, true)
}

func (s Schema) Required() []string {
	return filterFields(s, func(h FieldHint) bool { return h.Required }, true)
}

func (s Schema) RequiredOnCreate() []string {
	return filterFields(s, func(h FieldHint) bool { return h.RequiredOnCreate }, true)
}

func (s Schema) WriteOnly() []string {
	return filterFields(s, func(h FieldHint) bool { return h.WriteOnly }, true)
}

func (s Schema) HasProviderDefault() []string {
	return filterFields(s, func(h FieldHint) bool { return h.HasProviderDefault }, true)
}

func (s Schema) IsAttribute(name string) bool {
	return slices.Contains(s.Attributes, name)
}
