/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"sort"
	"strings"
)

// Responses maps question ids (and derived field ids) to answers.
//
// A missing key means "not answered".  An empty string, a zero, an
// empty list, and nil are all answers.
//
// Values are strings, numbers, []string, *Address, *FileRef, or
// nil.  Values that arrive as JSON can also be []interface{} or
// map[string]interface{}.
type Responses map[string]interface{}

// NewResponses makes empty Responses.
func NewResponses() Responses {
	return make(Responses, 16)
}

// Copy makes a copy of the Responses.
//
// Lists, maps, addresses, and file references are copied, too, so
// that the copy can be handed to a reader without sharing anything
// mutable.
func (rs Responses) Copy() Responses {
	acc := make(Responses, len(rs))
	for k, v := range rs {
		acc[k] = CopyValue(v)
	}
	return acc
}

// CopyValue copies an answer so that the copy shares nothing
// mutable with the original.
func CopyValue(x interface{}) interface{} {
	switch vv := x.(type) {
	case []string:
		acc := make([]string, len(vv))
		copy(acc, vv)
		return acc
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, y := range vv {
			acc[i] = CopyValue(y)
		}
		return acc
	case map[string]interface{}:
		acc := make(map[string]interface{}, len(vv))
		for k, y := range vv {
			acc[k] = CopyValue(y)
		}
		return acc
	case *Address:
		if vv == nil {
			return vv
		}
		a := *vv
		return &a
	case *FileRef:
		if vv == nil {
			return vv
		}
		f := *vv
		return &f
	default:
		return x
	}
}

// Has reports whether the given id has been answered.
func (rs Responses) Has(id string) bool {
	_, have := rs[id]
	return have
}

// Get returns the answer for the given id and whether there is one.
func (rs Responses) Get(id string) (interface{}, bool) {
	x, have := rs[id]
	return x, have
}

// Keys returns the answered ids in lexical order.
func (rs Responses) Keys() []string {
	acc := make([]string, 0, len(rs))
	for k := range rs {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}

// Canonical returns a JSON-shaped deep copy, suitable for handing to
// an interpreter.  Addresses and file references become maps, and
// []string becomes []interface{}.
func (rs Responses) Canonical() (map[string]interface{}, error) {
	x, err := Canonicalize(map[string]interface{}(rs))
	if err != nil {
		return nil, err
	}
	m, is := x.(map[string]interface{})
	if !is {
		return make(map[string]interface{}), nil
	}
	return m, nil
}

// Address is a structured postal address answer.
type Address struct {
	Line1      string `json:"line1,omitempty" yaml:"line1,omitempty"`
	Line2      string `json:"line2,omitempty" yaml:"line2,omitempty"`
	City       string `json:"city,omitempty" yaml:"city,omitempty"`
	Region     string `json:"region,omitempty" yaml:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty" yaml:"postalCode,omitempty"`
	Country    string `json:"country,omitempty" yaml:"country,omitempty"`
}

// Empty reports whether every field is blank.
func (a *Address) Empty() bool {
	if a == nil {
		return true
	}
	for _, s := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// FileRef is the answer to a file upload question: a stable
// reference returned by the upload endpoint.
type FileRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// UploadPending is a pseudo-answer that says an upload for a
// question has started.  It is never stored in Responses.
type UploadPending struct{}

// UploadFailed is a pseudo-answer that says an upload for a question
// did not work out.  It is never stored in Responses.
type UploadFailed struct {
	Err error
}

func (u UploadFailed) Error() string {
	if u.Err == nil {
		return "upload failed"
	}
	return "upload failed: " + u.Err.Error()
}

// IsEmptyAnswer reports whether the given answer counts as "no
// answer" for a required question: nil, a blank string, an empty
// list, an empty address, or a file reference without a URL.
//
// Numbers are never empty.
func IsEmptyAnswer(x interface{}) bool {
	switch vv := x.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(vv) == ""
	case []string:
		return len(vv) == 0
	case []interface{}:
		return len(vv) == 0
	case map[string]interface{}:
		return len(vv) == 0
	case *Address:
		return vv.Empty()
	case Address:
		return vv.Empty()
	case *FileRef:
		return vv == nil || vv.URL == ""
	case FileRef:
		return vv.URL == ""
	default:
		return false
	}
}
