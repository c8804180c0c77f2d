package service

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Sweeper periodically evicts idle Clients from a Service.
type Sweeper struct {
	Service  *Service
	Schedule *cronexpr.Expression

	// IdleTTL is how long a Client can go unused.
	IdleTTL time.Duration
}

// NewSweeper parses the cron schedule.
func NewSweeper(s *Service, schedule string, ttl time.Duration) (*Sweeper, error) {
	x, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		Service:  s,
		Schedule: x,
		IdleTTL:  ttl,
	}, nil
}

// Sweep evicts the Clients that have been idle for more than
// IdleTTL as of the given time.
func (w *Sweeper) Sweep(now time.Time) []string {
	evicted := w.Service.Evict(now.Add(-w.IdleTTL))
	if 0 < len(evicted) {
		log.Printf("Sweeper evicted %d clients", len(evicted))
	}
	return evicted
}

// Run sweeps on schedule until the context is done.
func (w *Sweeper) Run(ctx context.Context) error {
	for {
		now := time.Now()
		next := w.Schedule.Next(now)
		if next.IsZero() {
			log.Printf("Sweeper schedule has no next time")
			return nil
		}
		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case now = <-t.C:
			w.Sweep(now)
		}
	}
}
