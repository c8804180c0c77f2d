package core

import (
	"context"
	"testing"
)

func testForm(t *testing.T, qs ...*Question) *Form {
	f := &Form{
		Id:        "test",
		Questions: qs,
	}
	if err := f.Compile(); err != nil {
		t.Fatal(err)
	}
	return f
}

func q(id string, rules ...*BranchingRule) *Question {
	return &Question{
		Id:             id,
		Type:           TypeShortText,
		BranchingRules: rules,
	}
}

func TestFindNextVisibleSkipsHidden(t *testing.T) {
	// Q2 is shown only if Q1 is "yes".
	f := testForm(t,
		q("Q1"),
		q("Q2", rule("show", "", `Q1 == "yes"`)),
		q("Q3"))

	ctx := context.Background()
	rs := Responses{"Q1": "maybe"}

	next, err := FindNextVisible(ctx, stub, f.Question("Q1"), f.Questions, rs)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.Id != "Q3" {
		t.Fatalf("next: %#v", next)
	}

	rs["Q1"] = "yes"
	if next, err = FindNextVisible(ctx, stub, f.Question("Q1"), f.Questions, rs); err != nil {
		t.Fatal(err)
	}
	if next == nil || next.Id != "Q2" {
		t.Fatalf("next: %#v", next)
	}
}

func TestFindNextVisibleCompletion(t *testing.T) {
	f := testForm(t,
		q("Q1"),
		q("Q2", rule("hide", "", `Q1 == "no"`)))

	next, err := FindNextVisible(context.Background(), stub, f.Question("Q1"), f.Questions, Responses{"Q1": "no"})
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatalf("expected completion, got %s", next.Id)
	}
}

func TestFindNextVisibleUnknown(t *testing.T) {
	f := testForm(t, q("Q1"), q("Q2"))

	_, err := FindNextVisible(context.Background(), stub, q("nope"), f.Questions, nil)
	if _, is := err.(*UnknownQuestion); !is {
		t.Fatalf("wanted UnknownQuestion, got %#v", err)
	}

	if _, err = FindNextVisible(context.Background(), stub, nil, f.Questions, nil); err == nil {
		t.Fatal("nil from should fail")
	}
}

func TestFindNextVisibleTerminatesAndIsIdempotent(t *testing.T) {
	f := testForm(t,
		q("Q1"),
		q("Q2", rule("hide", "", `Q1 == "a"`)),
		q("Q3", rule("show", "", `Q1 == "a"`)),
		q("Q4"),
		q("Q5", rule("show", "", `Q4 == "z"`)))

	ctx := context.Background()
	rs := Responses{"Q1": "a", "Q4": "b"}
	before := rs.Copy()

	var (
		at    = f.First()
		steps = 0
		seen  []string
	)
	for at != nil {
		next1, err := FindNextVisible(ctx, stub, at, f.Questions, rs)
		if err != nil {
			t.Fatal(err)
		}
		next2, _ := FindNextVisible(ctx, stub, at, f.Questions, rs)
		if next1 != next2 {
			t.Fatal("not idempotent")
		}
		seen = append(seen, at.Id)
		at = next1
		if steps++; len(f.Questions) < steps {
			t.Fatal("didn't terminate")
		}
	}

	if got, want := len(seen), 3; got != want {
		t.Fatalf("visited %v", seen)
	}
	if seen[1] != "Q3" || seen[2] != "Q4" {
		t.Fatalf("visited %v", seen)
	}
	if len(rs) != len(before) || rs["Q1"] != before["Q1"] || rs["Q4"] != before["Q4"] {
		t.Fatal("responses modified")
	}
}

func TestFindPrevVisible(t *testing.T) {
	f := testForm(t,
		q("Q1"),
		q("Q2", rule("hide", "", `Q1 == "no"`)),
		q("Q3"))

	ctx := context.Background()

	prev, err := FindPrevVisible(ctx, stub, f.Question("Q3"), f.Questions, Responses{"Q1": "no"})
	if err != nil {
		t.Fatal(err)
	}
	if prev == nil || prev.Id != "Q1" {
		t.Fatalf("prev: %#v", prev)
	}

	if prev, err = FindPrevVisible(ctx, stub, f.Question("Q1"), f.Questions, nil); err != nil {
		t.Fatal(err)
	}
	if prev != nil {
		t.Fatalf("nothing before the first question, but got %s", prev.Id)
	}
}

func TestFirstVisible(t *testing.T) {
	f := testForm(t,
		q("Q1", rule("show", "", `answered(prefill)`)),
		q("Q2"))

	ctx := context.Background()

	if first := FirstVisible(ctx, stub, f.Questions, nil); first == nil || first.Id != "Q2" {
		t.Fatalf("first: %#v", first)
	}
	if first := FirstVisible(ctx, stub, f.Questions, Responses{"prefill": 1}); first == nil || first.Id != "Q1" {
		t.Fatalf("first: %#v", first)
	}
}
