// Package main is a form session server.
//
// Forms are read from a directory (see service.Registry).  Each
// respondent is a client with an id chosen by the caller, and the
// HTTP API (see service.Router) drives either a wizard or a
// conversation for that client.
//
// Configuration comes from an optional YAML or JSON file (see
// service.Config).  Flags override the file.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/formflow/service"

	"golang.org/x/sync/errgroup"
)

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC)
}

func main() {

	var (
		configFile = flag.String("c", "", "optional configuration file (YAML or JSON)")
		addr       = flag.String("h", "", "HTTP service address (overrides config)")
		formsDir   = flag.String("f", "", "forms directory (overrides config)")
		watch      = flag.Bool("w", false, "reload forms when their files change")
		verbose    = flag.Bool("v", false, "verbose logging")
	)

	flag.Parse()

	c := service.DefaultConfig()
	if *configFile != "" {
		var err error
		if c, err = service.LoadConfig(*configFile); err != nil {
			log.Fatalf("config error %s", err)
		}
	}
	if *addr != "" {
		c.Addr = *addr
	}
	if *formsDir != "" {
		c.FormsDir = *formsDir
	}
	if *watch {
		c.Watch = true
	}
	if *verbose {
		c.Verbose = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c); err != nil {
		log.Fatalf("error %s", err)
	}
}

func run(ctx context.Context, c *service.Config) error {
	a, err := Build(ctx, c)
	defer func() {
		if a == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(ctx)
	}()
	if err != nil {
		return err
	}

	log.Printf("serving %d forms from '%s' on %s", len(a.Service.Forms.Ids()), c.FormsDir, c.Addr)

	if err = a.Scheduler.Start(context.Background()); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              c.Addr,
		Handler:           a.Service.Router(a.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if c.Watch && c.FormsDir != "" {
		g.Go(func() error {
			return a.Service.Forms.Watch(ctx)
		})
	}

	if a.Sweeper != nil {
		g.Go(func() error {
			return a.Sweeper.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			log.Printf("http shutdown error %s", err)
		}
		// Drain queued saves.
		return a.Scheduler.Stop(shutdown)
	})

	return g.Wait()
}
