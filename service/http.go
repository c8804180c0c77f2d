package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/drivers/conversational"
	"github.com/Comcast/formflow/drivers/wizard"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/tools"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxUpload is the largest file the HTTP API accepts.
var MaxUpload int64 = 32 << 20

// Router returns the HTTP API.
//
// The metrics endpoint serves the given gatherer (if not nil).
func (s *Service) Router(g prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": s.Clients(),
		})
	}).Methods("GET")

	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods("GET")
	}

	r.HandleFunc("/forms", s.listForms).Methods("GET")
	r.HandleFunc("/forms", s.putForm).Methods("POST")
	r.HandleFunc("/forms/{fid}", s.getForm).Methods("GET")
	r.HandleFunc("/forms/{fid}/analysis", s.analyzeForm).Methods("GET")
	r.HandleFunc("/forms/{fid}/doc", s.formDoc).Methods("GET")

	c := r.PathPrefix("/clients/{cid}").Subrouter()
	c.HandleFunc("", s.view).Methods("GET")
	c.HandleFunc("", s.forget).Methods("DELETE")
	c.HandleFunc("/session", s.start).Methods("POST")
	c.HandleFunc("/restart", s.restart).Methods("POST")

	c.HandleFunc("/wizard/answer", s.wizardAnswer).Methods("POST")
	c.HandleFunc("/wizard/continue", s.wizardCommand("continue", (*wizard.Wizard).Continue)).Methods("POST")
	c.HandleFunc("/wizard/back", s.wizardCommand("back", (*wizard.Wizard).Back)).Methods("POST")
	c.HandleFunc("/wizard/upload", s.wizardUpload).Methods("POST")

	c.HandleFunc("/chat/reply", s.chatReply).Methods("POST")
	c.HandleFunc("/chat/continue", s.chatContinue).Methods("POST")
	c.HandleFunc("/chat/upload/{qid}", s.chatUpload).Methods("POST")
	c.HandleFunc("/chat/ws", s.chat).Methods("GET")

	return r
}

// Problem is the body of an error response.
type Problem struct {
	Error string `json:"error"`
	*View
}

func reply(w http.ResponseWriter, status int, x interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(x); err != nil {
		log.Printf("Service reply error %s", err)
	}
}

// StatusOf maps an error to an HTTP status code.
func StatusOf(err error) int {
	var (
		ve *core.ValidationError
		bt *session.BadTransition
		ri *session.ResolutionInconsistency
		uf *UnknownForm
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &uf):
		return http.StatusNotFound
	case errors.As(err, &bt),
		errors.Is(err, conversational.ErrStaleTurn),
		errors.Is(err, NotMounted),
		errors.Is(err, NoSession),
		errors.Is(err, wizard.NoPage):
		return http.StatusConflict
	case errors.As(err, &ri):
		return http.StatusInternalServerError
	case errors.Is(err, wizard.NoUploader), errors.Is(err, conversational.NoUploader):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, x interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(x)
}

func cid(r *http.Request) string {
	return mux.Vars(r)["cid"]
}

// do runs the command for the client and replies with the client's
// View (and the error, if any).
func (s *Service) do(w http.ResponseWriter, r *http.Request, op string, f func(ctx context.Context, c *Client) error) {
	var (
		ctx = r.Context()
		v   *View
	)
	err := s.Do(ctx, op, cid(r), func(c *Client) error {
		err := f(ctx, c)
		v = c.View(ctx)
		return err
	})
	if err != nil {
		reply(w, StatusOf(err), &Problem{Error: err.Error(), View: v})
		return
	}
	reply(w, http.StatusOK, v)
}

func (s *Service) listForms(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusOK, s.Forms.Ids())
}

func (s *Service) getForm(w http.ResponseWriter, r *http.Request) {
	if f := s.form(w, r); f != nil {
		reply(w, http.StatusOK, f)
	}
}

func (s *Service) form(w http.ResponseWriter, r *http.Request) *core.Form {
	id := mux.Vars(r)["fid"]
	f := s.Forms.Get(id)
	if f == nil {
		reply(w, http.StatusNotFound, &Problem{Error: (&UnknownForm{FormId: id}).Error()})
	}
	return f
}

func (s *Service) analyzeForm(w http.ResponseWriter, r *http.Request) {
	f := s.form(w, r)
	if f == nil {
		return
	}
	a, err := tools.Analyze(f)
	if err != nil {
		reply(w, http.StatusInternalServerError, &Problem{Error: err.Error()})
		return
	}
	reply(w, http.StatusOK, map[string]interface{}{
		"analysis": a,
		"warnings": a.Warnings(),
	})
}

func (s *Service) formDoc(w http.ResponseWriter, r *http.Request) {
	f := s.form(w, r)
	if f == nil {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tools.RenderFormPage(f, w, r.URL.Query()["css"], false); err != nil {
		log.Printf("service.formDoc %s error %s", f.Id, err)
	}
}

func (s *Service) putForm(w http.ResponseWriter, r *http.Request) {
	var f core.Form
	if err := decode(r, &f); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	if err := s.Forms.Put(&f); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	reply(w, http.StatusCreated, map[string]string{"id": f.Id})
}

func (s *Service) view(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, "view", func(ctx context.Context, c *Client) error {
		return nil
	})
}

func (s *Service) forget(w http.ResponseWriter, r *http.Request) {
	if !s.Forget(cid(r)) {
		reply(w, http.StatusNotFound, &Problem{Error: "unknown client"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decode(r, &req); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	s.do(w, r, "start", func(ctx context.Context, c *Client) error {
		return s.Start(ctx, c, &req)
	})
}

func (s *Service) restart(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, "restart", func(ctx context.Context, c *Client) error {
		if c.Engine.SessionId() == "" {
			return NoSession
		}
		var err error
		switch c.Mounted {
		case session.Conversational:
			_, err = c.Conversation.Restart(ctx)
		default:
			_, err = c.Wizard.Restart(ctx)
			c.Mounted = session.Wizard
		}
		return err
	})
}

// Answer is the body of a wizard answer.
type Answer struct {
	Value interface{} `json:"value"`
}

func (s *Service) wizardAnswer(w http.ResponseWriter, r *http.Request) {
	var a Answer
	if err := decode(r, &a); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	s.do(w, r, "wizard.answer", func(ctx context.Context, c *Client) error {
		if err := c.mounted(session.Wizard); err != nil {
			return err
		}
		_, err := c.Wizard.Answer(ctx, a.Value)
		return err
	})
}

func (s *Service) wizardCommand(op string, f func(*wizard.Wizard, context.Context) (*core.Question, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.do(w, r, "wizard."+op, func(ctx context.Context, c *Client) error {
			if err := c.mounted(session.Wizard); err != nil {
				return err
			}
			_, err := f(c.Wizard, ctx)
			return err
		})
	}
}

func (s *Service) wizardUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	defer file.Close()

	s.do(w, r, "wizard.upload", func(ctx context.Context, c *Client) error {
		if err := c.mounted(session.Wizard); err != nil {
			return err
		}
		_, err := c.Wizard.Upload(ctx, header.Filename, file)
		return err
	})
}

func (s *Service) chatReply(w http.ResponseWriter, r *http.Request) {
	var t conversational.Turn
	if err := decode(r, &t); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	s.do(w, r, "chat.reply", func(ctx context.Context, c *Client) error {
		if err := c.mounted(session.Conversational); err != nil {
			return err
		}
		return c.Conversation.Reply(ctx, t)
	})
}

func (s *Service) chatContinue(w http.ResponseWriter, r *http.Request) {
	var t conversational.Turn
	if err := decode(r, &t); err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	s.do(w, r, "chat.continue", func(ctx context.Context, c *Client) error {
		if err := c.mounted(session.Conversational); err != nil {
			return err
		}
		_, err := c.Conversation.Continue(ctx, t.QuestionId)
		return err
	})
}

func (s *Service) chatUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		reply(w, http.StatusBadRequest, &Problem{Error: err.Error()})
		return
	}
	defer file.Close()

	qid := mux.Vars(r)["qid"]
	s.do(w, r, "chat.upload", func(ctx context.Context, c *Client) error {
		if err := c.mounted(session.Conversational); err != nil {
			return err
		}
		_, err := c.Conversation.Upload(ctx, qid, header.Filename, file)
		return err
	})
}
