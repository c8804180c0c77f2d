package wizard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/upload"
	. "github.com/Comcast/formflow/util/testutil"
)

var stub = core.EvaluatorFunc(func(ctx context.Context, expr string, rs core.Responses) (bool, error) {
	return Equals(expr, rs)
})

func question(id string, typ core.QuestionType, rules ...*core.BranchingRule) *core.Question {
	return &core.Question{
		Id:             id,
		Type:           typ,
		BranchingRules: rules,
	}
}

func hideIf(cond string) *core.BranchingRule {
	return &core.BranchingRule{Conditions: []string{cond}, Action: core.ActionHide}
}

type intents struct {
	all []*session.Intent
}

func (i *intents) Enqueue(is ...*session.Intent) {
	i.all = append(i.all, is...)
}

func (i *intents) count(k session.IntentKind) int {
	n := 0
	for _, x := range i.all {
		if x.Kind == k {
			n++
		}
	}
	return n
}

func start(t *testing.T, qs ...*core.Question) (*Wizard, *intents) {
	f := &core.Form{
		Id:        "f",
		Questions: qs,
	}
	if err := f.Compile(); err != nil {
		t.Fatal(err)
	}
	d := &intents{}
	w := NewWizard(session.NewEngine(stub), d)
	if _, err := w.Start(context.Background(), f, "", nil, false); err != nil {
		t.Fatal(err)
	}
	return w, d
}

func page(t *testing.T, w *Wizard, want string) {
	t.Helper()
	p := w.Page()
	if p == nil {
		t.Fatalf("no page; wanted %s", want)
	}
	if p.Id != want {
		t.Fatalf("on %s; wanted %s", p.Id, want)
	}
}

func frontier(t *testing.T, w *Wizard, want string) {
	t.Helper()
	if c := w.Engine.Current(); c == nil || c.Id != want {
		t.Fatalf("frontier %v; wanted %s", c, want)
	}
}

func TestAutoAdvance(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeSingleChoice),
		question("Q2", core.TypeRating),
		question("Q3", core.TypeMultipleChoice),
		question("Q4", core.TypeShortText))
	ctx := context.Background()

	if _, err := w.Answer(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q2")

	if _, err := w.Answer(ctx, 4); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q3")

	// Multiple choice needs an explicit Continue.
	if _, err := w.Answer(ctx, []string{"x", "y"}); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q3")

	if _, err := w.Continue(ctx); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q4")
}

func TestBackAndForth(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText, hideIf(`Q1 == "no"`)),
		question("Q3", core.TypeShortText),
		question("Q4", core.TypeShortText))
	ctx := context.Background()

	for _, v := range []string{"no", "x"} {
		if _, err := w.Answer(ctx, v); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Continue(ctx); err != nil {
			t.Fatal(err)
		}
	}
	page(t, w, "Q4")
	frontier(t, w, "Q4")

	// Q2 is hidden, so Back goes from Q3 to Q1.
	w.Back(ctx)
	page(t, w, "Q3")
	w.Back(ctx)
	page(t, w, "Q1")
	frontier(t, w, "Q4")
	if w.AtFrontier() {
		t.Fatal("shouldn't be at the frontier")
	}

	// Nothing before Q1.
	w.Back(ctx)
	page(t, w, "Q1")

	// Continuing behind the frontier doesn't advance the engine.
	if _, err := w.Continue(ctx); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q3")
	frontier(t, w, "Q4")

	if _, err := w.Continue(ctx); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q4")
	if !w.AtFrontier() {
		t.Fatal("should be at the frontier")
	}
}

func TestEditBehindFrontier(t *testing.T) {
	w, d := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText),
		question("Q3", core.TypeShortText))
	ctx := context.Background()

	w.Answer(ctx, "a")
	w.Continue(ctx)
	w.Answer(ctx, "b")
	w.Continue(ctx)
	w.Back(ctx)
	w.Back(ctx)
	page(t, w, "Q1")

	before := d.count(session.IntentPartial)
	if _, err := w.Answer(ctx, "changed"); err != nil {
		t.Fatal(err)
	}
	if got := w.Engine.Responses()["Q1"]; got != "changed" {
		t.Fatal(got)
	}
	if d.count(session.IntentPartial) != before+1 {
		t.Fatal("partial save not dispatched")
	}
	frontier(t, w, "Q3")
}

func TestRequiredBehindFrontier(t *testing.T) {
	q2 := question("Q2", core.TypeShortText)
	q2.Required = true
	w, _ := start(t,
		question("Q1", core.TypeShortText),
		q2,
		question("Q3", core.TypeShortText))
	ctx := context.Background()

	w.Answer(ctx, "a")
	w.Continue(ctx)
	w.Answer(ctx, "b")
	w.Continue(ctx)
	w.Back(ctx)
	page(t, w, "Q2")

	_, err := w.Answer(ctx, "  ")
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("surprised by %v", err)
	}
	if w.Engine.Responses()["Q2"] != "b" {
		t.Fatal("required answer was replaced")
	}
}

func TestCompletion(t *testing.T) {
	w, d := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeSingleChoice))
	ctx := context.Background()

	w.Answer(ctx, "a")
	w.Continue(ctx)
	q, err := w.Answer(ctx, "yes")
	if err != nil {
		t.Fatal(err)
	}
	if q != nil {
		t.Fatalf("expected completion, got %s", q.Id)
	}
	if w.Engine.State() != session.Saved {
		t.Fatal(w.Engine.State())
	}
	if d.count(session.IntentFinal) != 1 {
		t.Fatal(JS(d.all))
	}
	if w.Page() != nil {
		t.Fatal("page after completion")
	}
	if _, err = w.Continue(ctx); err != NoPage {
		t.Fatalf("surprised by %v", err)
	}
}

func TestUpload(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeFileUpload),
		question("Q2", core.TypeShortText))
	ctx := context.Background()

	if _, err := w.Upload(ctx, "x.txt", strings.NewReader("x")); err != NoUploader {
		t.Fatalf("surprised by %v", err)
	}

	var states []session.DisplayState
	w.Engine.Subscribe(session.ObserverFunc(func(s *session.Snapshot) {
		states = append(states, s.DisplayState)
	}))

	w.Uploader = upload.UploaderFunc(func(ctx context.Context, r *upload.Request) (*core.FileRef, error) {
		if r.QuestionId != "Q1" || r.FormId != "f" {
			t.Fatal(JS(r))
		}
		return &core.FileRef{URL: "https://files.example.com/x.txt", Name: r.Filename, Size: 1}, nil
	})

	ref, err := w.Upload(ctx, "x.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 || states[0] != session.Uploading || states[1] != session.Active {
		t.Fatalf("observed %v", states)
	}
	if got := w.Engine.Responses()["Q1"]; got.(*core.FileRef).URL != ref.URL {
		t.Fatal(JS(got))
	}
	// Uploads aren't single selections.
	page(t, w, "Q1")
}

func TestUploadFailure(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeFileUpload),
		question("Q2", core.TypeShortText))
	ctx := context.Background()

	broken := errors.New("disk full")
	w.Uploader = upload.UploaderFunc(func(ctx context.Context, r *upload.Request) (*core.FileRef, error) {
		return nil, broken
	})

	if _, err := w.Upload(ctx, "x.txt", strings.NewReader("x")); err != broken {
		t.Fatalf("surprised by %v", err)
	}
	if w.Engine.State() != session.Error {
		t.Fatal(w.Engine.State())
	}
	if w.Engine.Responses().Has("Q1") {
		t.Fatal("failed upload recorded")
	}

	var bt *session.BadTransition
	if _, err := w.Continue(ctx); !errors.As(err, &bt) {
		t.Fatalf("surprised by %v", err)
	}
}

func TestRestart(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText))
	ctx := context.Background()

	sid := w.Engine.SessionId()
	w.Answer(ctx, "a")
	w.Continue(ctx)
	w.Back(ctx)

	q, err := w.Restart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || q.Id != "Q1" {
		t.Fatal(JS(q))
	}
	frontier(t, w, "Q1")
	if w.Engine.SessionId() != sid {
		t.Fatal("new session")
	}
	if len(w.Engine.Responses()) != 0 {
		t.Fatal(JS(w.Engine.Responses()))
	}
}

func TestProgress(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText, hideIf(`Q1 == "no"`)),
		question("Q3", core.TypeShortText))
	ctx := context.Background()

	if at, total := w.Progress(ctx); at != 1 || total != 3 {
		t.Fatal(at, total)
	}
	w.Answer(ctx, "no")
	w.Continue(ctx)
	if at, total := w.Progress(ctx); at != 2 || total != 2 {
		t.Fatal(at, total)
	}
}

func TestLazyFirstQuestion(t *testing.T) {
	f := &core.Form{
		Id: "f",
		Questions: []*core.Question{
			question("Q1", core.TypeShortText, hideIf(`Q2 == "x"`)),
			question("Q2", core.TypeShortText),
		},
	}
	if err := f.Compile(); err != nil {
		t.Fatal(err)
	}

	e := session.NewEngine(stub)
	e.LazyFirstQuestion = true
	w := NewWizard(e, nil)
	q, err := w.Start(context.Background(), f, "", core.Responses{"Q2": "x"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || q.Id != "Q2" {
		t.Fatal(JS(q))
	}
}

func showIf(cond string) *core.BranchingRule {
	return &core.BranchingRule{Conditions: []string{cond}, Action: core.ActionShow}
}

func TestChangedAnswerHidesFrontier(t *testing.T) {
	q2 := question("Q2", core.TypeShortText, showIf(`Q1 == "yes"`))
	q2.Required = true
	w, _ := start(t,
		question("Q1", core.TypeSingleChoice),
		q2,
		question("Q3", core.TypeShortText))
	ctx := context.Background()

	if _, err := w.Answer(ctx, "yes"); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q2")

	if _, err := w.Back(ctx); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q1")

	// "no" hides Q2, which was the frontier.
	q, err := w.Answer(ctx, "no")
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || q.Id != "Q3" {
		t.Fatal(JS(q))
	}
	page(t, w, "Q3")
	frontier(t, w, "Q3")
	if w.Engine.State() != session.Active {
		t.Fatal(w.Engine.State())
	}
	if !SameJSON(w.Engine.Responses(), `{"Q1":"no"}`) {
		t.Fatal(JS(w.Engine.Responses()))
	}
	if at, total := w.Progress(ctx); at != 2 || total != 2 {
		t.Fatal(at, total)
	}
}

func TestChangedAnswerHidesLastFrontier(t *testing.T) {
	w, d := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText, showIf(`Q1 == "yes"`)))
	ctx := context.Background()

	w.Answer(ctx, "yes")
	if _, err := w.Continue(ctx); err != nil {
		t.Fatal(err)
	}
	w.Back(ctx)
	w.Answer(ctx, "no")

	// Nothing visible after Q1 now, so the session completes.
	q, err := w.Continue(ctx)
	if err != nil || q != nil {
		t.Fatal(JS(q), err)
	}
	if w.Engine.State() != session.Saved {
		t.Fatal(w.Engine.State())
	}
	if d.count(session.IntentFinal) != 1 {
		t.Fatal("no final save")
	}
}

func TestLazyRestart(t *testing.T) {
	f := &core.Form{
		Id: "f",
		Questions: []*core.Question{
			question("Q1", core.TypeShortText, hideIf(`true`)),
			question("Q2", core.TypeShortText),
		},
	}
	if err := f.Compile(); err != nil {
		t.Fatal(err)
	}

	e := session.NewEngine(stub)
	e.LazyFirstQuestion = true
	w := NewWizard(e, nil)
	ctx := context.Background()
	if _, err := w.Start(ctx, f, "", nil, false); err != nil {
		t.Fatal(err)
	}
	page(t, w, "Q2")

	q, err := w.Restart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || q.Id != "Q2" {
		t.Fatal(JS(q))
	}
	frontier(t, w, "Q2")
}

func TestRemount(t *testing.T) {
	w, _ := start(t,
		question("Q1", core.TypeShortText),
		question("Q2", core.TypeShortText))
	ctx := context.Background()

	if err := w.Engine.Mount(session.Conversational); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Start(ctx, w.Engine.Form(), "", nil, false); err != nil {
		t.Fatal(err)
	}
	if w.Engine.Mode() != session.Wizard {
		t.Fatal(w.Engine.Mode())
	}
}
