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

// Package session has the state machine for a single form-filling
// session.
//
// An Engine owns the session's current question and display state.
// Presentation layers (see drivers/wizard and drivers/conversational)
// call the Engine's commands
//
//	BeginSession
//	StartInteraction
//	RecordAnswer
//	Advance
//	Restart
//
// and watch Snapshots, either by polling or as an Observer.  These
// commands are the only way to change a session.
//
// The Engine does no IO when handling RecordAnswer, Advance, or
// Restart.  Instead, it accumulates Intents (partial saves, final
// saves, and checkpoints) in an outbox.  Callers drain the outbox
// with TakeIntents and hand the Intents to something (typically a
// persist.Scheduler) that does the work asynchronously.
//
// An Engine is not safe for concurrent use.  Callers serialize
// commands for a session.
package session
