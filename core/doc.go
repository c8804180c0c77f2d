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

// Package core provides the core gear for form sessions: the
// authored structure of a form, the map of collected responses, and
// the two pure functions that everything else is built on.
//
// The primary type is Form, which is an ordered list of Questions.
// A Question can carry BranchingRules, each of which is a set of
// condition expressions evaluated against the current Responses.
//
// IsVisible decides whether a Question should be shown given the
// Responses collected so far.  FindNextVisible (and its mirror
// FindPrevVisible) walks the Form's questions in SequenceIndex order
// to find the next question that IsVisible approves.  Neither
// function has state; they receive everything as parameters and
// return values only.  A nil result from FindNextVisible is the
// completion signal.
//
// Condition expressions are opaque to this package.  A
// ConditionEvaluator knows how to evaluate them.  See package
// interpreters for implementations.  Any failure to evaluate a
// condition is treated as false, so a broken expression can hide a
// question but cannot abort a session.
//
// To use this package, make a Form. Then Compile() it.  Then, given
// some Responses, ask for the next visible Question.
package core
