package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Comcast/formflow/interpreters"
	"github.com/Comcast/formflow/interpreters/goja"
	"github.com/Comcast/formflow/persist"
	httpsink "github.com/Comcast/formflow/persist/http"
	"github.com/Comcast/formflow/persist/mongo"
	"github.com/Comcast/formflow/persist/mqtt"
	"github.com/Comcast/formflow/service"
	"github.com/Comcast/formflow/storage"
	"github.com/Comcast/formflow/storage/bolt"
	"github.com/Comcast/formflow/storage/redis"
	"github.com/Comcast/formflow/upload"

	"github.com/prometheus/client_golang/prometheus"
)

// App is everything a Config asks for, wired together.
type App struct {
	Config    *service.Config
	Service   *service.Service
	Scheduler *persist.Scheduler
	Sweeper   *service.Sweeper
	Registry  *prometheus.Registry

	closers []func(context.Context) error
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

// Close releases connections and files in reverse order of their
// acquisition.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; 0 <= i; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Printf("close error %s", err)
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

// Build makes an App from the Config.  Connections to external
// services are made here.  Call Close when done (even after an
// error).
func Build(ctx context.Context, c *service.Config) (*App, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}

	a := &App{
		Config:   c,
		Registry: prometheus.NewRegistry(),
	}

	i, err := interpreter(c)
	if err != nil {
		return a, err
	}

	forms := service.NewRegistry(c.FormsDir)
	forms.Verbose = c.Verbose
	if c.FormsDir != "" {
		if err = forms.Load(ctx); err != nil {
			log.Printf("forms load warning: %s", err)
		}
	}

	s := service.NewService(forms, i)
	s.LazyFirstQuestion = c.LazyFirstQuestion
	s.Verbose = c.Verbose
	s.Metrics = service.NewMetrics(a.Registry)
	a.Service = s

	var db *bolt.Storage
	openBolt := func(filename string) (*bolt.Storage, error) {
		if db != nil && (filename == "" || filename == c.Storage.File) {
			return db, nil
		}
		b, err := bolt.NewStorage(filename)
		if err != nil {
			return nil, err
		}
		if err = b.Open(ctx); err != nil {
			return nil, err
		}
		a.onClose(b.Close)
		return b, nil
	}

	switch c.Storage.Kind {
	case "", "memory":
		s.Store = storage.NewMemory()
	case "none":
		s.Store = &storage.Noop{}
	case "bolt":
		if db, err = openBolt(c.Storage.File); err != nil {
			return a, err
		}
		s.Store = db
	case "redis":
		client, err := redis.Connect(ctx, c.Storage.URL)
		if err != nil {
			return a, err
		}
		a.onClose(func(context.Context) error {
			return client.Close()
		})
		r := redis.NewStorage(client)
		if r.TTL, err = service.Duration(c.Storage.TTL, redis.DefaultTTL); err != nil {
			return a, err
		}
		r.Debug = c.Verbose
		s.Store = r
	}

	sinks := make(persist.Multi, 0, len(c.Sinks))
	for _, sc := range c.Sinks {
		sink, err := a.sink(ctx, sc, openBolt)
		if err != nil {
			return a, fmt.Errorf("sink %s: %w", sc.Kind, err)
		}
		sinks = append(sinks, sink)
	}

	var sink persist.Sink = sinks
	switch len(sinks) {
	case 0:
		sink = &persist.Noop{}
	case 1:
		sink = sinks[0]
	}

	sched := persist.NewScheduler(sink)
	if 0 < c.Scheduler.Shards {
		sched.Shards = c.Scheduler.Shards
	}
	if 0 < c.Scheduler.QueueSize {
		sched.QueueSize = c.Scheduler.QueueSize
	}
	if sched.Timeout, err = service.Duration(c.Scheduler.Timeout, persist.DefaultTimeout); err != nil {
		return a, err
	}
	sched.Metrics = persist.NewMetrics(a.Registry)
	sched.Verbose = c.Verbose
	a.Scheduler = sched
	s.Dispatcher = sched

	switch {
	case c.Uploads.URL != "":
		u := upload.NewHTTP(c.Uploads.URL)
		u.Debug = c.Verbose
		s.Uploader = u
	case c.Uploads.Dir != "":
		u := upload.NewDir(c.Uploads.Dir)
		u.BaseURL = c.Uploads.BaseURL
		s.Uploader = u
	}

	if c.Sweep.Schedule != "" {
		ttl, err := service.Duration(c.Sweep.IdleTTL, 30*time.Minute)
		if err != nil {
			return a, err
		}
		if a.Sweeper, err = service.NewSweeper(s, c.Sweep.Schedule, ttl); err != nil {
			return a, fmt.Errorf("sweep schedule: %w", err)
		}
	}

	return a, nil
}

func interpreter(c *service.Config) (interpreters.Interpreter, error) {
	timeout, err := service.Duration(c.EvalTimeout, goja.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	is := interpreters.Standard()
	g := goja.NewInterpreter()
	g.Timeout = timeout
	g.Prelude = c.Prelude
	for _, name := range []string{"goja", "ecmascript", "ecmascript-5.1"} {
		is[name] = g
	}

	return is.Find(c.Interpreter)
}

func (a *App) sink(ctx context.Context, sc *service.SinkConfig, openBolt func(string) (*bolt.Storage, error)) (persist.Sink, error) {
	switch sc.Kind {
	case "log":
		return &persist.Noop{Verbose: true}, nil

	case "http":
		s, err := httpsink.NewSink(sc.URL)
		if err != nil {
			return nil, err
		}
		h := make(http.Header, len(sc.Headers))
		for k, v := range sc.Headers {
			h.Set(k, v)
		}
		s.Headers = h
		s.Debug = a.Config.Verbose
		return s, nil

	case "mqtt":
		client, err := mqtt.Connect(&mqtt.Options{
			Broker:    sc.Broker,
			ClientId:  sc.ClientId,
			Reconnect: true,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			client.Disconnect(250)
			return nil
		})
		s := mqtt.NewSink(client)
		if sc.Topic != "" {
			s.Topic = sc.Topic
		}
		if 0 < sc.QoS {
			s.QoS = byte(sc.QoS)
		}
		return s, nil

	case "mongo":
		client, err := mongo.Connect(ctx, sc.URL)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Disconnect)
		database, collection := sc.Database, sc.Collection
		if database == "" {
			database = "formflow"
		}
		if collection == "" {
			collection = "responses"
		}
		return mongo.NewSink(client, database, collection), nil

	case "bolt":
		return openBolt(sc.File)

	default:
		return nil, fmt.Errorf("unknown sink kind '%s'", sc.Kind)
	}
}
