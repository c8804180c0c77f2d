package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type recording struct {
	sync.Mutex
	records []*Record
}

func (r *recording) Save(ctx context.Context, rec *Record) error {
	r.Lock()
	defer r.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recording) values(sessionId, questionId string) []interface{} {
	r.Lock()
	defer r.Unlock()
	var acc []interface{}
	for _, rec := range r.records {
		if rec.SessionId == sessionId && rec.QuestionId == questionId {
			acc = append(acc, rec.Value)
		}
	}
	return acc
}

func start(t *testing.T, s *Scheduler) {
	require.NoError(t, s.Start(context.Background()))
}

func TestSameKeyOrdering(t *testing.T) {
	sink := &recording{}
	s := NewScheduler(sink)
	s.Shards = 4
	s.QueueSize = 1000
	start(t, s)

	for n := 0; n < 100; n++ {
		for _, q := range []string{"Q1", "Q2", "Q3"} {
			s.SavePartial("s1", q, n, false)
		}
	}

	require.NoError(t, s.Stop(context.Background()))

	for _, q := range []string{"Q1", "Q2", "Q3"} {
		vs := sink.values("s1", q)
		require.Len(t, vs, 100)
		for n, v := range vs {
			require.Equal(t, n, v, "question %s", q)
		}
	}
	require.EqualValues(t, 300, s.Stats.Saved.Load())
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	var (
		gate    = make(chan struct{})
		started = make(chan struct{}, 10)
	)
	sink := SinkFunc(func(ctx context.Context, r *Record) error {
		started <- struct{}{}
		<-gate
		return nil
	})

	s := NewScheduler(sink)
	s.Shards = 1
	s.QueueSize = 1
	s.Metrics = NewMetrics(prometheus.NewRegistry())
	start(t, s)

	s.SavePartial("s", "Q1", "a", false)
	<-started // The worker has the first one.

	done := make(chan struct{})
	go func() {
		s.SavePartial("s", "Q1", "b", false) // Queued.
		s.SavePartial("s", "Q1", "c", false) // Dropped.
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}

	close(gate)
	require.NoError(t, s.Stop(context.Background()))

	require.EqualValues(t, 1, s.Stats.Dropped.Load())
	require.EqualValues(t, 2, s.Stats.Saved.Load())
}

func TestFailuresAreCountedNotRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	sink := SinkFunc(func(ctx context.Context, r *Record) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if r.QuestionId == "boom" {
			panic("sink exploded")
		}
		return errors.New("remote unavailable")
	})

	s := NewScheduler(sink)
	s.Metrics = NewMetrics(nil)
	start(t, s)

	s.SavePartial("s", "Q1", "a", false)
	s.SaveFinal("s", core.Responses{"Q1": "a"}, false)
	s.SavePartial("s", "boom", "a", false)

	require.NoError(t, s.Stop(context.Background()))

	require.Equal(t, 3, calls)
	require.EqualValues(t, 3, s.Stats.Failed.Load())
	require.EqualValues(t, 0, s.Stats.Saved.Load())
}

type continuity struct {
	sync.Mutex
	saved []*session.Checkpoint
}

func (c *continuity) Load(ctx context.Context, formId string) (*session.Checkpoint, error) {
	return nil, nil
}

func (c *continuity) Save(ctx context.Context, cp *session.Checkpoint) error {
	c.Lock()
	defer c.Unlock()
	c.saved = append(c.saved, cp)
	return nil
}

func (c *continuity) Remove(ctx context.Context, formId string) error {
	return nil
}

func TestEngineIntents(t *testing.T) {
	f := &core.Form{
		Id: "f",
		Questions: []*core.Question{
			{Id: "Q1", Type: core.TypeShortText},
			{Id: "Q2", Type: core.TypeShortText},
		},
	}
	require.NoError(t, f.Compile())

	ctx := context.Background()
	c := &continuity{}
	e := session.NewEngine(nil)
	e.Continuity = c

	_, err := e.BeginSession(ctx, f, "", nil, true)
	require.NoError(t, err)
	require.NoError(t, e.StartInteraction(ctx, session.Wizard))
	require.NoError(t, e.RecordAnswer(ctx, "Q1", "a"))
	_, err = e.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, e.RecordAnswer(ctx, "Q2", "b"))
	next, err := e.Advance(ctx)
	require.NoError(t, err)
	require.Nil(t, next)

	sink := &recording{}
	s := NewScheduler(sink)
	start(t, s)
	s.Enqueue(e.TakeIntents()...)
	require.NoError(t, s.Stop(ctx))

	require.Len(t, sink.records, 3)
	var final *Record
	for _, r := range sink.records {
		require.True(t, r.TestMode)
		if !r.IsPartial {
			final = r
		}
	}
	require.NotNil(t, final)
	require.Equal(t, StatusCompleted, final.Status)
	require.Equal(t, "b", final.AllResponses["Q2"])

	require.NotEmpty(t, c.saved)
	last := c.saved[len(c.saved)-1]
	require.Equal(t, session.Saved, last.State)
}

func TestNotRunning(t *testing.T) {
	s := NewScheduler(&Noop{})
	s.SavePartial("s", "q", 1, false)
	require.EqualValues(t, 1, s.Stats.Dropped.Load())
	require.Equal(t, NotRunning, s.Stop(context.Background()))

	start(t, s)
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestMulti(t *testing.T) {
	a, b := &recording{}, &recording{}
	failing := SinkFunc(func(ctx context.Context, r *Record) error {
		return fmt.Errorf("nope")
	})
	m := Multi{a, failing, b}

	err := m.Save(context.Background(), &Record{SessionId: "s"})
	require.Error(t, err)
	require.Len(t, a.records, 1)
	require.Len(t, b.records, 1)
}

func TestRecordJSON(t *testing.T) {
	partial := RecordOf(&session.Intent{
		Kind:       session.IntentPartial,
		SessionId:  "s",
		FormId:     "f",
		QuestionId: "Q1",
		Value:      "",
	})
	js, err := json.Marshal(partial)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(js, &m))
	require.Equal(t, "Q1", m["questionId"])
	require.Equal(t, "", m["value"])
	require.Equal(t, true, m["isPartial"])
	require.Equal(t, "in_progress", m["status"])
	require.Equal(t, false, m["testMode"])
	require.NotContains(t, m, "allResponses")

	require.Nil(t, RecordOf(&session.Intent{Kind: session.IntentCheckpoint}))
}
