// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const uriScheme = "ralph://"

// ResourceURI addresses a resource, or one of its properties, within a stack:
// ralph://<stack>/<label>#/<property>
type ResourceURI string

func NewResourceURI(stack, label, property string) ResourceURI {
	if property == "" {
		return ResourceURI(fmt.Sprintf("%s%s/%s#", uriScheme, stack, label))
	}
	return ResourceURI(fmt.Sprintf("%s%s/%s#/%s", uriScheme, stack, label, property))
}

func (u ResourceURI) IsValid() bool {
	stack, label, ok := u.split()
	if !ok {
		return false
	}
	if stack == "" || label == "" {
		return false
	}

	_, fragment, _ := strings.Cut(string(u), "#")
	return fragment == "" || strings.HasPrefix(fragment, "/")
}

func (u ResourceURI) Stack() string {
	stack, _, _ := u.split()
	return stack
}

func (u ResourceURI) Label() string {
	_, label, _ := u.split()
	return label
}

func (u ResourceURI) PropertyPath() string {
	s := string(u)
	if !strings.HasPrefix(s, uriScheme) {
		return ""
	}

	_, fragment, found := strings.Cut(s, "#")
	if !found || fragment == "" || fragment == "/" {
		return ""
	}

	return strings.TrimPrefix(fragment, "/")
}

// Stripped drops the property fragment, leaving the resource address.
func (u ResourceURI) Stripped() ResourceURI {
	return NewResourceURI(u.Stack(), u.Label(), "")
}

func (u ResourceURI) split() (string, string, bool) {
	s := string(u)
	if !strings.HasPrefix(s, uriScheme) {
		return "", "", false
	}

	remainder, _, found := strings.Cut(s[len(uriScheme):], "#")
	if !found {
		return "", "", false
	}

	stack, label, found := strings.Cut(remainder, "/")
	if !found {
		return "", "", false
	}

	return stack, label, true
}

// FindReferences walks a properties document and returns every URI held in a $ref object.
func FindReferences(properties []byte) []ResourceURI {
	var refs []ResourceURI
	findReferencesRecursive(gjson.ParseBytes(properties), &refs)

	return refs
}

func findReferencesRecursive(value gjson.Result, refs *[]ResourceURI) {
	if value.IsObject() {
		if ref := value.Get("$ref"); ref.Exists() {
			*refs = append(*refs, ResourceURI(ref.String()))
			return
		}
	}

	if value.IsObject() || value.IsArray() {
		value.ForEach(func(_, val gjson.Result) bool {
			findReferencesRecursive(val, refs)
			return true
		})
	}
}
