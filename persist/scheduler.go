package persist

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"
)

var (
	DefaultShards    = 8
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second

	// NotRunning is returned by Stop when the Scheduler hasn't
	// been started.
	NotRunning = errors.New("scheduler not running")
)

// Stats are running counts of what a Scheduler has done.
type Stats struct {
	Enqueued    atomic.Int64
	Dropped     atomic.Int64
	Saved       atomic.Int64
	Failed      atomic.Int64
	Checkpoints atomic.Int64
}

// Scheduler hands Intents to worker goroutines.  It implements
// session.Dispatcher.
type Scheduler struct {
	// Sink receives partial and final Records.
	Sink Sink

	// Shards is the number of workers.
	Shards int

	// QueueSize is the capacity of each worker's queue.
	QueueSize int

	// Timeout bounds each save.
	Timeout time.Duration

	// Metrics, if not nil, are updated as Intents are handled.
	Metrics *Metrics

	// Verbose turns on logging.
	Verbose bool

	Stats Stats

	sync.RWMutex
	ctx    context.Context
	queues []chan *session.Intent
	wg     sync.WaitGroup
}

// NewScheduler makes a Scheduler with the default shards, queue size,
// and timeout.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		Sink:      sink,
		Shards:    DefaultShards,
		QueueSize: DefaultQueueSize,
		Timeout:   DefaultTimeout,
	}
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.Verbose {
		log.Printf("persist.Scheduler."+format, args...)
	}
}

// Start launches the workers, which use the given context for their
// saves.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.queues != nil {
		return errors.New("scheduler already running")
	}

	n := s.Shards
	if n <= 0 {
		n = 1
	}
	size := s.QueueSize
	if size < 0 {
		size = 0
	}

	s.ctx = ctx
	s.queues = make([]chan *session.Intent, n)
	for i := range s.queues {
		q := make(chan *session.Intent, size)
		s.queues[i] = q
		s.wg.Add(1)
		go s.work(q)
	}

	s.logf("Start shards=%d size=%d", n, size)

	return nil
}

// Stop stops accepting Intents and waits for the queued ones to be
// handled (or for the given context to be done).
func (s *Scheduler) Stop(ctx context.Context) error {
	s.Lock()
	if s.queues == nil {
		s.Unlock()
		return NotRunning
	}
	for _, q := range s.queues {
		close(q)
	}
	s.queues = nil
	s.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logf("Stop drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Enqueue implements session.Dispatcher.  It never blocks: an Intent
// that doesn't fit in its queue is dropped (and logged and counted).
func (s *Scheduler) Enqueue(is ...*session.Intent) {
	s.RLock()
	defer s.RUnlock()

	for _, i := range is {
		if i == nil {
			continue
		}
		if s.queues == nil {
			s.drop(i, "not running")
			continue
		}
		q := s.queues[shard(i.Key(), len(s.queues))]
		select {
		case q <- i:
			s.Stats.Enqueued.Add(1)
		default:
			s.drop(i, "queue full")
		}
	}
}

func (s *Scheduler) drop(i *session.Intent, why string) {
	log.Printf("persist.Scheduler dropping %s for %s (%s)", i.Kind, i.Key(), why)
	s.Stats.Dropped.Add(1)
	if s.Metrics != nil {
		s.Metrics.Dropped.WithLabelValues(string(i.Kind)).Inc()
	}
}

// SavePartial schedules saving one answer.
func (s *Scheduler) SavePartial(sessionId, questionId string, value interface{}, testMode bool) {
	s.Enqueue(&session.Intent{
		Kind:       session.IntentPartial,
		SessionId:  sessionId,
		QuestionId: questionId,
		Value:      value,
		TestMode:   testMode,
	})
}

// SaveFinal schedules saving all of a completed session's responses.
func (s *Scheduler) SaveFinal(sessionId string, all core.Responses, testMode bool) {
	s.Enqueue(&session.Intent{
		Kind:      session.IntentFinal,
		SessionId: sessionId,
		Responses: all,
		TestMode:  testMode,
	})
}

func (s *Scheduler) work(q chan *session.Intent) {
	defer s.wg.Done()
	for i := range q {
		s.handle(i)
	}
}

func (s *Scheduler) handle(i *session.Intent) {
	ctx := s.ctx
	if 0 < s.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	then := time.Now()
	err := s.save(ctx, i)
	elapsed := time.Since(then)

	status := "ok"
	if err != nil {
		status = "error"
		s.Stats.Failed.Add(1)
		log.Printf("persist.Scheduler %s save error %s for %s", i.Kind, err, i.Key())
	} else {
		s.Stats.Saved.Add(1)
		s.logf("handle %s %s %v", i.Kind, i.Key(), elapsed)
	}

	if s.Metrics != nil {
		s.Metrics.Saves.WithLabelValues(string(i.Kind), status).Inc()
		s.Metrics.Latency.WithLabelValues(string(i.Kind)).Observe(elapsed.Seconds())
	}
}

func (s *Scheduler) save(ctx context.Context, i *session.Intent) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic: %v", x)
		}
	}()

	switch i.Kind {
	case session.IntentCheckpoint:
		s.Stats.Checkpoints.Add(1)
		if i.Continuity == nil || i.Checkpoint == nil {
			return nil
		}
		return i.Continuity.Save(ctx, i.Checkpoint)
	case session.IntentPartial, session.IntentFinal:
		if s.Sink == nil {
			return nil
		}
		return s.Sink.Save(ctx, RecordOf(i))
	default:
		return fmt.Errorf("unknown intent kind '%s'", i.Kind)
	}
}
