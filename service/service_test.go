package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/interpreters/goja"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/storage"
	"github.com/Comcast/formflow/upload"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var survey = `
id: survey
name: Survey
questions:
  - id: likes
    type: single_choice
    prompt: Do you like it?
    options: ["yes", "no"]
  - id: why
    type: short_text
    prompt: Why not?
    branchingRules:
      - conditions: ['likes == "yes"']
        action: hide
  - id: photo
    type: file_upload
  - id: comments
    type: short_text
derived:
  - id: happy
    expr: 'likes == "yes"'
`

// dispatcher saves checkpoints immediately and remembers
// everything.
type dispatcher struct {
	sync.Mutex
	intents []*session.Intent
}

func (d *dispatcher) Enqueue(is ...*session.Intent) {
	d.Lock()
	defer d.Unlock()
	for _, i := range is {
		d.intents = append(d.intents, i)
		if i.Kind == session.IntentCheckpoint && i.Continuity != nil {
			i.Continuity.Save(context.Background(), i.Checkpoint)
		}
	}
}

func (d *dispatcher) finals() []*session.Intent {
	d.Lock()
	defer d.Unlock()
	var acc []*session.Intent
	for _, i := range d.intents {
		if i.Kind == session.IntentFinal {
			acc = append(acc, i)
		}
	}
	return acc
}

type fixture struct {
	svc *Service
	d   *dispatcher
	ts  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	reg := NewRegistry("")
	f, err := ParseForm("survey.yaml", []byte(survey))
	require.NoError(t, err)
	require.NoError(t, reg.Put(f))

	d := &dispatcher{}
	s := NewService(reg, goja.NewInterpreter())
	s.Store = storage.NewMemory()
	s.Dispatcher = d
	s.Uploader = upload.NewDir(t.TempDir())

	pr := prometheus.NewRegistry()
	s.Metrics = NewMetrics(pr)

	ts := httptest.NewServer(s.Router(pr))
	t.Cleanup(ts.Close)

	return &fixture{
		svc: s,
		d:   d,
		ts:  ts,
	}
}

func (f *fixture) post(t *testing.T, path string, body interface{}, want int) *View {
	js, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(js))
	require.NoError(t, err)
	return check(t, resp, want)
}

func (f *fixture) get(t *testing.T, path string, want int) *View {
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	return check(t, resp, want)
}

func check(t *testing.T, resp *http.Response, want int) *View {
	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, resp.StatusCode, string(bs))
	var v View
	require.NoError(t, json.Unmarshal(bs, &v), string(bs))
	return &v
}

func questionId(v *View) string {
	if v.Question == nil {
		return ""
	}
	return v.Question.Id
}

func TestWizardOverHTTP(t *testing.T) {
	f := newFixture(t)

	v := f.post(t, "/clients/alice/session", &StartRequest{FormId: "survey", Mode: session.Wizard}, 200)
	require.Equal(t, "likes", questionId(v))
	require.Equal(t, session.Active, v.DisplayState)
	require.Equal(t, 1, v.Position)

	// Single choice continues by itself.
	v = f.post(t, "/clients/alice/wizard/answer", &Answer{Value: "no"}, 200)
	require.Equal(t, "why", questionId(v))

	v = f.post(t, "/clients/alice/wizard/answer", &Answer{Value: "too loud"}, 200)
	require.Equal(t, "why", questionId(v))

	v = f.post(t, "/clients/alice/wizard/back", nil, 200)
	require.Equal(t, "likes", questionId(v))
	require.Equal(t, "why", v.CurrentQuestionId)

	v = f.post(t, "/clients/alice/wizard/continue", nil, 200)
	require.Equal(t, "why", questionId(v))
	v = f.post(t, "/clients/alice/wizard/continue", nil, 200)
	require.Equal(t, "photo", questionId(v))

	// Upload a photo.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "cat.jpg")
	require.NoError(t, err)
	part.Write([]byte("meow"))
	require.NoError(t, mw.Close())
	resp, err := http.Post(f.ts.URL+"/clients/alice/wizard/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	v = check(t, resp, 200)
	ref, is := v.Responses["photo"].(map[string]interface{})
	require.True(t, is, "%#v", v.Responses["photo"])
	require.Equal(t, "cat.jpg", ref["name"])

	f.post(t, "/clients/alice/wizard/continue", nil, 200)
	f.post(t, "/clients/alice/wizard/answer", &Answer{Value: ""}, 200)
	v = f.post(t, "/clients/alice/wizard/continue", nil, 200)
	require.Equal(t, session.Saved, v.DisplayState)
	require.Nil(t, v.Question)

	finals := f.d.finals()
	require.Len(t, finals, 1)
	require.Equal(t, false, finals[0].Responses["happy"])
	require.Equal(t, "too loud", finals[0].Responses["why"])
}

func TestErrors(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/clients/bob/session", &StartRequest{FormId: "nope"}, 404)
	f.post(t, "/clients/bob/wizard/continue", nil, 409)

	f.post(t, "/clients/bob/session", &StartRequest{FormId: "survey", Mode: session.Conversational}, 200)

	// Wrong driver.
	f.post(t, "/clients/bob/wizard/continue", nil, 409)

	// Stale turn.
	f.post(t, "/clients/bob/chat/reply", &map[string]interface{}{"questionId": "why", "text": "x"}, 409)

	resp, err := http.Post(f.ts.URL+"/clients/bob/chat/reply", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 400, resp.StatusCode)
}

func TestChatOverHTTP(t *testing.T) {
	f := newFixture(t)

	v := f.post(t, "/clients/carol/session", &StartRequest{FormId: "survey", Mode: session.Conversational, TestMode: true}, 200)
	require.Equal(t, "likes", questionId(v))
	require.True(t, v.TestMode)
	require.Len(t, v.Transcript, 1)

	v = f.post(t, "/clients/carol/chat/reply", &map[string]interface{}{"questionId": "likes", "text": "yes"}, 200)
	// No auto-advance.
	require.Equal(t, "likes", questionId(v))

	v = f.post(t, "/clients/carol/chat/continue", &map[string]interface{}{"questionId": "likes"}, 200)
	require.Equal(t, "photo", questionId(v))

	v = f.get(t, "/clients/carol", 200)
	require.Equal(t, "photo", v.CurrentQuestionId)
	require.Equal(t, "yes", v.Responses["likes"])

	v = f.post(t, "/clients/carol/restart", nil, 200)
	require.Equal(t, "likes", questionId(v))
	require.Empty(t, v.Responses)
}

func TestChatWebSocket(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/clients/dave/chat/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	send := func(op *ChatOp) map[string]interface{} {
		require.NoError(t, c.WriteJSON(op))
		var m map[string]interface{}
		require.NoError(t, c.ReadJSON(&m))
		return m
	}

	m := send(&ChatOp{Op: "start", FormId: "survey"})
	require.Equal(t, "likes", m["currentQuestionId"])

	m = send(&ChatOp{Op: "reply", QuestionId: "likes", Text: "no"})
	require.Nil(t, m["error"])

	m = send(&ChatOp{Op: "continue", QuestionId: "likes"})
	require.Equal(t, "why", m["currentQuestionId"])

	m = send(&ChatOp{Op: "continue", QuestionId: "likes"})
	require.Equal(t, "stale turn", m["error"])

	m = send(&ChatOp{Op: "dance"})
	require.Contains(t, m["error"], "unknown op")
}

func TestRemountDriver(t *testing.T) {
	f := newFixture(t)

	v := f.post(t, "/clients/hal/session", &StartRequest{FormId: "survey", Mode: session.Wizard}, 200)
	require.Equal(t, session.Wizard, v.Mode)
	v = f.post(t, "/clients/hal/wizard/answer", &Answer{Value: "no"}, 200)
	require.Equal(t, "why", questionId(v))

	v = f.post(t, "/clients/hal/session", &StartRequest{FormId: "survey", Mode: session.Conversational}, 200)
	require.Equal(t, session.Conversational, v.Mode)
	require.Equal(t, "why", v.CurrentQuestionId)
	require.Equal(t, "no", v.Responses["likes"])

	f.post(t, "/clients/hal/wizard/continue", nil, 409)
	v = f.get(t, "/clients/hal", 200)
	require.Equal(t, session.Conversational, v.Mode)
}

func TestResumeAfterEviction(t *testing.T) {
	f := newFixture(t)

	v := f.post(t, "/clients/erin/session", &StartRequest{FormId: "survey"}, 200)
	sid := v.SessionId
	f.post(t, "/clients/erin/wizard/answer", &Answer{Value: "no"}, 200)

	evicted := f.svc.Evict(time.Now().Add(time.Second))
	require.Equal(t, []string{"erin"}, evicted)
	require.Equal(t, 0, f.svc.Clients())

	v = f.post(t, "/clients/erin/session", &StartRequest{FormId: "survey"}, 200)
	require.Equal(t, sid, v.SessionId)
	require.Equal(t, "why", v.CurrentQuestionId)
	require.Equal(t, "no", v.Responses["likes"])

	// Another client doesn't see erin's session.
	v = f.post(t, "/clients/frank/session", &StartRequest{FormId: "survey"}, 200)
	require.NotEqual(t, sid, v.SessionId)
}

func TestForgetAndForms(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/clients/gina/session", &StartRequest{FormId: "survey"}, 200)

	req, err := http.NewRequest("DELETE", f.ts.URL+"/clients/gina", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/forms")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	resp.Body.Close()
	require.Equal(t, []string{"survey"}, ids)

	form := &core.Form{
		Id:        "tiny",
		Questions: []*core.Question{{Id: "q", Type: core.TypeDate}},
	}
	js, _ := json.Marshal(form)
	resp, err = http.Post(f.ts.URL+"/forms", "application/json", bytes.NewReader(js))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, f.svc.Forms.Get("tiny"))

	resp, err = http.Post(f.ts.URL+"/forms", "application/json", strings.NewReader(`{"id":"bad","questions":[{"id":"q","type":"essay"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFormDocAndAnalysis(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/forms/survey/analysis")
	require.NoError(t, err)
	var got struct {
		Analysis struct {
			QuestionCount int
			Conditional   []string
			Dependencies  map[string][]string
		} `json:"analysis"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	require.Equal(t, 4, got.Analysis.QuestionCount)
	require.Equal(t, []string{"why"}, got.Analysis.Conditional)
	require.Equal(t, []string{"likes"}, got.Analysis.Dependencies["happy"])
	require.Empty(t, got.Warnings)

	resp, err = http.Get(f.ts.URL + "/forms/survey/doc?css=/x.css")
	require.NoError(t, err)
	bs, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(bs), `<span id="photo" class="questionId">photo</span>`)
	require.Contains(t, string(bs), `href="/x.css"`)

	resp, err = http.Get(f.ts.URL + "/forms/nope/doc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/clients/hal/session", &StartRequest{FormId: "survey"}, 200)

	resp, err := http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	bs, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(bs), `formflow_service_commands_total{op="start",outcome="ok"} 1`)
	require.Contains(t, string(bs), "formflow_service_clients 1")
}

func TestSweeper(t *testing.T) {
	f := newFixture(t)
	f.svc.Client("old")

	_, err := NewSweeper(f.svc, "not cron", time.Minute)
	require.Error(t, err)

	w, err := NewSweeper(f.svc, "* * * * *", time.Minute)
	require.NoError(t, err)

	require.Empty(t, w.Sweep(time.Now()))
	require.Equal(t, []string{"old"}, w.Sweep(time.Now().Add(2*time.Minute)))
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Check())

	c := DefaultConfig()
	err := ParseConfig("formd.yaml", []byte(`
addr: ":9090"
storage:
  kind: bolt
  file: /tmp/formd.db
sinks:
  - kind: mqtt
    broker: tcp://localhost:1883
    topic: "forms/{form}/{session}"
  - kind: bolt
sweep:
  idleTTL: 1h
`), c)
	require.NoError(t, err)
	require.NoError(t, c.Check())
	require.Equal(t, ":9090", c.Addr)
	require.Equal(t, "bolt", c.Storage.Kind)
	require.Len(t, c.Sinks, 2)
	require.Equal(t, "forms/{form}/{session}", c.Sinks[0].Topic)
	require.Equal(t, "goja", c.Interpreter)

	ttl, err := Duration(c.Sweep.IdleTTL, 0)
	require.NoError(t, err)
	require.Equal(t, time.Hour, ttl)

	c.Storage.Kind = "tape"
	require.Error(t, c.Check())

	c = DefaultConfig()
	c.Scheduler.Timeout = "soon"
	require.Error(t, c.Check())

	c = DefaultConfig()
	require.NoError(t, ParseConfig("formd.json", []byte(`{"sinks":[{"kind":"http"}]}`), c))
	require.Error(t, c.Check())
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("survey.yaml", survey)
	write("contact.json", `{"questions":[{"id":"email","type":"short_text","required":true}]}`)
	write("broken.yml", "questions:\n  - id: q\n    type: essay\n")
	write("notes.txt", "not a form")

	r := NewRegistry(dir)
	err := r.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.yml")

	require.Equal(t, []string{"contact", "survey"}, r.Ids())
	c := r.Get("contact")
	require.NotNil(t, c)
	require.True(t, c.Compiled())
	require.True(t, c.Questions[0].Required)
}

func TestRegistryValidation(t *testing.T) {
	_, err := ParseForm("x.yaml", []byte(`
questions:
  - id: q
    type: rating
    branchingRules:
      - conditions: []
        action: hide
`))
	require.Error(t, err)

	_, err = ParseForm("x.yaml", []byte(`
questions:
  - id: q
    type: rating
    scaleMin: 5
    scaleMax: 1
`))
	require.Error(t, err)
}

func TestRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	r.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx)
	}()

	// Give the watcher a chance to start.
	require.Eventually(t, func() bool {
		os.WriteFile(filepath.Join(dir, "survey.yaml"), []byte(survey), 0644)
		return r.Get("survey") != nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
