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

// Package service hosts form sessions for many clients behind an
// HTTP API and a WebSocket chat endpoint.
//
// Each client (a respondent, a device, or whatever the caller wants
// to call it) gets its own session.Engine with a wizard and a
// conversational driver.  Only one driver is mounted at a time.
// Checkpoints are kept in a storage.Store scoped by client id, so a
// client that goes away (or is evicted) can resume later.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/drivers/conversational"
	"github.com/Comcast/formflow/drivers/wizard"
	"github.com/Comcast/formflow/interpreters"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/storage"
	"github.com/Comcast/formflow/upload"
)

var (
	// NotMounted occurs when a command is for the driver that
	// isn't mounted.
	NotMounted = errors.New("driver not mounted")

	// NoSession occurs when a client doesn't have a session yet.
	NoSession = errors.New("no session")
)

// UnknownForm occurs when a form isn't in the Registry.
type UnknownForm struct {
	FormId string
}

func (e *UnknownForm) Error() string {
	return fmt.Sprintf(`unknown form "%s"`, e.FormId)
}

// Client is one respondent's session and drivers.
type Client struct {
	sync.Mutex

	Id           string
	Engine       *session.Engine
	Wizard       *wizard.Wizard
	Conversation *conversational.Conversation

	// Mounted is the driver in use ("" before Start).
	Mounted session.Mode

	touched time.Time
}

// Touched returns when the Client was last used.
func (c *Client) Touched() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.touched
}

// Service manages Clients.
type Service struct {
	Forms *Registry

	// Interpreter evaluates conditions and computes derived
	// fields.
	Interpreter interpreters.Interpreter

	// Store, if not nil, keeps checkpoints.
	Store storage.Store

	// Dispatcher receives Intents (usually a *persist.Scheduler).
	Dispatcher session.Dispatcher

	Uploader upload.Uploader

	LazyFirstQuestion bool

	Metrics *Metrics

	Verbose bool

	sync.Mutex
	clients map[string]*Client
}

func NewService(forms *Registry, i interpreters.Interpreter) *Service {
	return &Service{
		Forms:       forms,
		Interpreter: i,
		clients:     make(map[string]*Client, 1024),
	}
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Verbose {
		log.Printf("Service."+format, args...)
	}
}

// Client returns the Client with the given id, making one if
// necessary.
func (s *Service) Client(id string) *Client {
	s.Lock()
	defer s.Unlock()

	if c, have := s.clients[id]; have {
		return c
	}

	s.logf("Client new %s", id)

	e := session.NewEngine(s.Interpreter)
	e.Computer = s.Interpreter
	e.LazyFirstQuestion = s.LazyFirstQuestion
	e.Verbose = s.Verbose
	if s.Store != nil {
		e.Continuity = storage.Scope(s.Store, id)
	}
	if s.Metrics != nil {
		m := s.Metrics
		e.Subscribe(session.ObserverFunc(func(snap *session.Snapshot) {
			if snap.DisplayState == session.Completed {
				m.Completed.WithLabelValues(e.FormId()).Inc()
			}
		}))
	}

	w := wizard.NewWizard(e, s.Dispatcher)
	w.Uploader = s.Uploader
	w.Verbose = s.Verbose

	conv := conversational.NewConversation(e, s.Dispatcher)
	conv.Uploader = s.Uploader
	conv.Verbose = s.Verbose

	c := &Client{
		Id:           id,
		Engine:       e,
		Wizard:       w,
		Conversation: conv,
		touched:      time.Now(),
	}
	s.clients[id] = c
	if s.Metrics != nil {
		s.Metrics.Clients.Set(float64(len(s.clients)))
	}

	return c
}

// Forget removes the Client.  Its checkpoint, if any, stays in the
// Store.
func (s *Service) Forget(id string) bool {
	s.Lock()
	defer s.Unlock()
	_, have := s.clients[id]
	delete(s.clients, id)
	if s.Metrics != nil {
		s.Metrics.Clients.Set(float64(len(s.clients)))
	}
	return have
}

// Evict forgets Clients that haven't been used since the given time.
func (s *Service) Evict(before time.Time) []string {
	s.Lock()
	defer s.Unlock()

	var evicted []string
	for id, c := range s.clients {
		if c.TryLock() {
			idle := c.touched.Before(before)
			c.Unlock()
			if idle {
				delete(s.clients, id)
				evicted = append(evicted, id)
			}
		}
	}

	if s.Metrics != nil {
		s.Metrics.Evicted.Add(float64(len(evicted)))
		s.Metrics.Clients.Set(float64(len(s.clients)))
	}

	return evicted
}

// Clients returns the number of Clients in memory.
func (s *Service) Clients() int {
	s.Lock()
	defer s.Unlock()
	return len(s.clients)
}

// Do runs the function with the Client locked.
func (s *Service) Do(ctx context.Context, op, id string, f func(c *Client) error) error {
	c := s.Client(id)

	c.Lock()
	c.touched = time.Now()
	err := f(c)
	c.Unlock()

	if s.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.Metrics.Commands.WithLabelValues(op, outcome).Inc()
	}
	if err != nil {
		s.logf("Do %s %s error %s", op, id, err)
	}

	return err
}

// StartRequest asks to begin (or resume) a session.
type StartRequest struct {
	FormId   string         `json:"formId"`
	Mode     session.Mode   `json:"mode"`
	Initial  core.Responses `json:"initial,omitempty"`
	TestMode bool           `json:"testMode,omitempty"`
}

// Start begins or resumes a session for the client with the
// requested driver mounted.  The caller should hold the Client's
// lock.
func (s *Service) Start(ctx context.Context, c *Client, r *StartRequest) error {
	f := s.Forms.Get(r.FormId)
	if f == nil {
		return &UnknownForm{FormId: r.FormId}
	}
	mode := r.Mode
	if mode == "" {
		mode = session.Wizard
	}
	var err error
	switch mode {
	case session.Wizard:
		_, err = c.Wizard.Start(ctx, f, r.FormId, r.Initial, r.TestMode)
	case session.Conversational:
		_, err = c.Conversation.Start(ctx, f, r.FormId, r.Initial, r.TestMode)
	default:
		return &session.BadTransition{Op: "start", State: c.Engine.State(), Reason: "unknown mode '" + string(mode) + "'"}
	}
	if err != nil {
		return err
	}
	c.Mounted = mode
	return nil
}

func (c *Client) mounted(m session.Mode) error {
	if c.Engine.SessionId() == "" {
		return NoSession
	}
	if c.Mounted != m {
		return NotMounted
	}
	return nil
}

// View is what a client sees after a command.
type View struct {
	SessionId string       `json:"sessionId"`
	FormId    string       `json:"formId"`
	Mode      session.Mode `json:"mode,omitempty"`
	TestMode  bool         `json:"testMode"`
	Fatal     bool         `json:"fatal,omitempty"`

	*session.Snapshot

	// Question is the wizard's page or the conversation's
	// current question.
	Question *core.Question `json:"question,omitempty"`

	// Position and Total are the wizard's progress.
	Position int `json:"position,omitempty"`
	Total    int `json:"total,omitempty"`

	Transcript []conversational.Entry `json:"transcript,omitempty"`
}

// View reports the Client's state.  The caller should hold the
// Client's lock.
func (c *Client) View(ctx context.Context) *View {
	e := c.Engine
	v := &View{
		SessionId: e.SessionId(),
		FormId:    e.FormId(),
		Mode:      e.Mode(),
		TestMode:  e.TestMode(),
		Fatal:     e.Fatal(),
		Snapshot:  e.Snapshot(),
	}
	switch c.Mounted {
	case session.Wizard:
		v.Question = c.Wizard.Page()
		v.Position, v.Total = c.Wizard.Progress(ctx)
	case session.Conversational:
		v.Question = c.Conversation.Current()
		v.Transcript = c.Conversation.Transcript()
	default:
		v.Question = c.Engine.Current()
	}
	return v
}
