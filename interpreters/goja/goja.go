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

// Package goja evaluates branching conditions and derived fields as
// ECMAScript expressions using Goja.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/Comcast/formflow/core"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned when an evaluation is interrupted
	// by its context or by the interpreter's Timeout.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout is the Timeout for NewInterpreter.
	DefaultTimeout = 100 * time.Millisecond
)

// Interpreter implements core.ConditionEvaluator and core.Computer.
//
// Every answered question whose id is a valid identifier is a global
// variable (unless that name is already a global like "Object").
// The following properties are available at _:
//
//	responses: the map of all responses.
//	answered(id): whether id has a non-empty answer.
//	has(id, x): whether id's answer is x or is a list containing x.
//	count(id): the number of items in id's answer.
//	cronNext(expr): the next time (RFC3339) for the cron expression.
//	log(x): log x as JSON.
//
// An expression that refers to an unanswered question throws a
// ReferenceError, which a condition evaluator reports as an error
// (and so the condition is false).
type Interpreter struct {
	// Timeout, if positive, bounds each evaluation.
	Timeout time.Duration

	// Prelude, if not empty, is source that runs before each
	// expression.  Use it to define helper functions.
	Prelude string

	// Testing exposes sleep(ms).
	Testing bool

	sync.Mutex
	programs map[string]*goja.Program
	prelude  *goja.Program
}

// NewInterpreter makes a new Interpreter with the DefaultTimeout.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Timeout: DefaultTimeout,
	}
}

// Compile compiles the expression (or returns the cached compilation).
func (i *Interpreter) Compile(ctx context.Context, expr string) (*goja.Program, error) {
	i.Lock()
	defer i.Unlock()

	if i.programs == nil {
		i.programs = make(map[string]*goja.Program, 32)
	}
	if p, have := i.programs[expr]; have {
		return p, nil
	}

	if i.Prelude != "" && i.prelude == nil {
		p, err := goja.Compile("prelude", i.Prelude, false)
		if err != nil {
			return nil, fmt.Errorf("prelude: %w", err)
		}
		i.prelude = p
	}

	p, err := goja.Compile("", expr, false)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + expr)
	}
	i.programs[expr] = p

	return p, nil
}

// Evaluate implements core.ConditionEvaluator.
//
// The expression's value is converted to a boolean according to
// ECMAScript's ToBoolean: "", 0, NaN, null, and undefined are false.
func (i *Interpreter) Evaluate(ctx context.Context, expr string, rs core.Responses) (bool, error) {
	v, err := i.run(ctx, expr, rs)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// Compute implements core.Computer.
//
// The result is canonicalized (so numbers are float64s), and
// undefined becomes nil.
func (i *Interpreter) Compute(ctx context.Context, expr string, rs core.Responses) (interface{}, error) {
	v, err := i.run(ctx, expr, rs)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return core.Canonicalize(v.Export())
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func (i *Interpreter) run(ctx context.Context, expr string, rs core.Responses) (goja.Value, error) {
	p, err := i.Compile(ctx, expr)
	if err != nil {
		return nil, err
	}

	responses, err := rs.Canonical()
	if err != nil {
		return nil, err
	}

	o := goja.New()

	for k, v := range responses {
		if !identifier.MatchString(k) {
			continue
		}
		if o.Get(k) != nil {
			continue
		}
		if err := o.Set(k, v); err != nil {
			return nil, err
		}
	}

	env := map[string]interface{}{
		"responses": responses,
	}

	env["answered"] = func(id string) bool {
		x, have := rs[id]
		return have && !core.IsEmptyAnswer(x)
	}

	env["has"] = func(id string, x goja.Value) bool {
		answer, have := responses[id]
		if !have {
			return false
		}
		want, err := core.Canonicalize(x.Export())
		if err != nil {
			protest(o, err.Error())
		}
		if xs, is := answer.([]interface{}); is {
			for _, y := range xs {
				if reflect.DeepEqual(y, want) {
					return true
				}
			}
			return false
		}
		return reflect.DeepEqual(answer, want)
	}

	env["count"] = func(id string) int {
		x, have := responses[id]
		if !have || core.IsEmptyAnswer(x) {
			return 0
		}
		if xs, is := x.([]interface{}); is {
			return len(xs)
		}
		return 1
	}

	env["cronNext"] = func(x goja.Value) string {
		cronExpr, is := x.Export().(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["log"] = func(x goja.Value) goja.Value {
		y := x.Export()
		js, err := json.Marshal(&y)
		if err != nil {
			log.Println("goja.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	}

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	o.Set("_", env)

	// The interruption is a no-op if RunProgram has already
	// returned.
	stop := context.AfterFunc(ctx, func() {
		o.Interrupt(InterruptedMessage)
	})
	defer stop()

	if 0 < i.Timeout {
		timer := time.AfterFunc(i.Timeout, func() {
			o.Interrupt(InterruptedMessage)
		})
		defer timer.Stop()
	}

	if i.prelude != nil {
		if _, err := o.RunProgram(i.prelude); err != nil {
			return nil, interrupted(err)
		}
	}

	v, err := o.RunProgram(p)
	if err != nil {
		return nil, interrupted(err)
	}

	return v, nil
}

func interrupted(err error) error {
	if _, is := err.(*goja.InterruptedError); is {
		return Interrupted
	}
	return err
}
