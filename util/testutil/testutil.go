/* Copyright 2018-2024 Comcast Cable Communications Management, LLC
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

// Package testutil has small helpers for tests: JSON rendering and
// comparison, answers written as JSON, and a tiny condition language
// (see Equals).
//
// It does not import any other package in this repo, so every
// package can use it in its own tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
)

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		log.Printf("warning: testutil.JS error %s for %#v", err, x)
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Answers parses a JSON object of answers keyed by question id.
// Numbers come back as float64.  Panics if js isn't an object.
func Answers(js string) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(js), &m); err != nil || m == nil {
		panic(fmt.Sprintf("not a JSON object: %s (%v)", js, err))
	}
	return m
}

// SameJSON reports whether x, rendered as JSON, is the same value as
// the given JSON.  Key order and number types don't matter, so
// Responses can be compared with what a test writes down.
func SameJSON(x interface{}, want string) bool {
	var w interface{}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		panic(fmt.Sprintf("bad JSON %s: %v", want, err))
	}
	return reflect.DeepEqual(canonical(x), w)
}

// canonical round-trips x through JSON.
func canonical(x interface{}) interface{} {
	js, err := json.Marshal(&x)
	if err != nil {
		return x
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return x
	}
	return y
}
