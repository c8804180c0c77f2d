package persist

import (
	"context"
	"log"
)

// Sink is a remote store for Records.
//
// Save should return only after the store has accepted the Record (or
// failed to).
type Sink interface {
	Save(ctx context.Context, r *Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r *Record) error

func (f SinkFunc) Save(ctx context.Context, r *Record) error {
	return f(ctx, r)
}

// Multi sends each Record to every Sink in turn.  Every Sink is tried
// even if an earlier one fails.  The first error is returned.
type Multi []Sink

func (m Multi) Save(ctx context.Context, r *Record) error {
	var first error
	for _, s := range m {
		if err := s.Save(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Noop is a Sink that discards everything.
type Noop struct {
	// Verbose logs each discarded Record.
	Verbose bool
}

func (n *Noop) Save(ctx context.Context, r *Record) error {
	if n.Verbose {
		log.Printf("persist.Noop discarding %s %s", r.SessionId, r.Status)
	}
	return nil
}
