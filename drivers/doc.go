// Package drivers holds the presentation drivers that turn user
// gestures into session.Engine commands.
//
// Both drivers resolve the next question only through
// core.FindNextVisible (via the Engine) and write answers only
// through Engine.RecordAnswer.  After every command they hand the
// Engine's Intents to a session.Dispatcher.
//
// Only one driver should be used with an Engine at a time.
package drivers

import (
	"context"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"
)

// Dispatch hands the Engine's pending Intents to the Dispatcher.  If
// the Dispatcher is nil, the Intents are discarded.
func Dispatch(e *session.Engine, d session.Dispatcher) {
	is := e.TakeIntents()
	if d == nil || len(is) == 0 {
		return
	}
	d.Enqueue(is...)
}

// Settle advances past a current question that isn't visible.  That
// happens when the Engine has LazyFirstQuestion set, and when an
// earlier answer changes after the session has moved on.
func Settle(ctx context.Context, e *session.Engine) error {
	if e.State() != session.Active {
		return nil
	}
	for {
		q := e.Current()
		if q == nil || core.IsVisible(ctx, e.Evaluator, q, e.Responses()) {
			return nil
		}
		if _, err := e.Advance(ctx); err != nil {
			return err
		}
	}
}
