// Package formflow provides the machinery for running multi-question
// form sessions.
//
// The core code is in package 'core' (questions, branching rules,
// visibility, navigation), the session state machine is in
// 'session', and persistence is in 'persist'.  Presentation drivers
// live under 'drivers', and some command-line tools are in `cmd`.
package formflow
