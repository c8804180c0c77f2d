package core

import (
	"sort"
	"strings"
)

// QuestionType is the kind of input a Question collects.
type QuestionType string

const (
	TypeShortText      QuestionType = "short_text"
	TypeSingleChoice   QuestionType = "single_choice"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeRating         QuestionType = "rating"
	TypeLinearScale    QuestionType = "linear_scale"
	TypeLikertScale    QuestionType = "likert_scale"
	TypeDate           QuestionType = "date"
	TypeAddress        QuestionType = "address"
	TypeFileUpload     QuestionType = "file_upload"
	TypeRanking        QuestionType = "ranking"
)

// QuestionTypes is the closed set of supported question types.
var QuestionTypes = []QuestionType{
	TypeShortText,
	TypeSingleChoice,
	TypeMultipleChoice,
	TypeRating,
	TypeLinearScale,
	TypeLikertScale,
	TypeDate,
	TypeAddress,
	TypeFileUpload,
	TypeRanking,
}

// Valid reports whether the type is one of QuestionTypes.
func (t QuestionType) Valid() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SingleSelection reports whether one gesture completes an answer of
// this type.  Presentation layers can use this to decide whether to
// move on without an explicit "continue".
func (t QuestionType) SingleSelection() bool {
	switch t {
	case TypeSingleChoice, TypeRating, TypeLinearScale, TypeLikertScale:
		return true
	}
	return false
}

const (
	LogicAnd = "AND"
	LogicOr  = "OR"

	ActionShow = "show"
	ActionHide = "hide"
)

// BranchingRule is a set of conditions that, when satisfied, either
// forces a question to be hidden or explicitly shows it.
type BranchingRule struct {
	// Doc is optional documentation.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Conditions are expressions evaluated against the current
	// Responses by a ConditionEvaluator.
	Conditions []string `json:"conditions" yaml:"conditions" validate:"required,min=1,dive,required"`

	// Logic is either "AND" (all conditions) or "OR" (any
	// condition).  Anything else, including nothing, means "OR".
	Logic string `json:"logic,omitempty" yaml:"logic,omitempty" validate:"omitempty,oneof=AND OR and or"`

	// Action is either "show" or "hide".  A rule with any other
	// action is ignored.
	Action string `json:"action" yaml:"action" validate:"required,oneof=show hide"`
}

// Copy makes a deep copy of the rule.
func (r *BranchingRule) Copy() *BranchingRule {
	if r == nil {
		return nil
	}
	cs := make([]string, len(r.Conditions))
	copy(cs, r.Conditions)
	return &BranchingRule{
		Doc:        r.Doc,
		Conditions: cs,
		Logic:      r.Logic,
		Action:     r.Action,
	}
}

// Question is an authored question.  Questions do not change during
// a session.
type Question struct {
	// Id is unique within a Form.  It's also the key for this
	// question's answer in Responses.
	Id string `json:"id" yaml:"id" validate:"required"`

	Type QuestionType `json:"type" yaml:"type" validate:"required"`

	// SequenceIndex gives the traversal order.  If no question in
	// a Form has a SequenceIndex, Compile assigns each question
	// its declaration position.
	SequenceIndex int `json:"sequenceIndex,omitempty" yaml:"sequenceIndex,omitempty" validate:"gte=0"`

	// Prompt is the text shown to the person filling the form.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Doc is optional markdown documentation.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Required means an empty answer is rejected.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Options are the choices for choice and ranking questions.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`

	ScaleMin int `json:"scaleMin,omitempty" yaml:"scaleMin,omitempty"`
	ScaleMax int `json:"scaleMax,omitempty" yaml:"scaleMax,omitempty" validate:"gtefield=ScaleMin"`

	// BranchingRules are considered in order by IsVisible.
	BranchingRules []*BranchingRule `json:"branchingRules,omitempty" yaml:"branchingRules,omitempty" validate:"dive"`
}

// Copy makes a deep copy of the question.
func (q *Question) Copy() *Question {
	if q == nil {
		return nil
	}
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	rules := make([]*BranchingRule, len(q.BranchingRules))
	for i, r := range q.BranchingRules {
		rules[i] = r.Copy()
	}
	return &Question{
		Id:             q.Id,
		Type:           q.Type,
		SequenceIndex:  q.SequenceIndex,
		Prompt:         q.Prompt,
		Doc:            q.Doc,
		Required:       q.Required,
		Options:        opts,
		ScaleMin:       q.ScaleMin,
		ScaleMax:       q.ScaleMax,
		BranchingRules: rules,
	}
}

// Form is the structure of a form: its questions and any derived
// fields.  A Form holds no session state.
//
// A Form should be Compiled before use.
type Form struct {
	// Id is the form's stable identifier.
	Id string `json:"id" yaml:"id" validate:"required"`

	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Doc is general (markdown) documentation about the form.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	Questions []*Question `json:"questions" yaml:"questions" validate:"dive,required"`

	// Derived fields are computed from the final Responses when
	// a session completes.
	Derived []*DerivedField `json:"derived,omitempty" yaml:"derived,omitempty" validate:"dive,required"`

	index    map[string]int
	compiled bool
}

// Copy makes a deep copy of the Form.  The copy is not compiled.
func (f *Form) Copy() *Form {
	qs := make([]*Question, len(f.Questions))
	for i, q := range f.Questions {
		qs[i] = q.Copy()
	}
	ds := make([]*DerivedField, len(f.Derived))
	for i, d := range f.Derived {
		ds[i] = d.Copy()
	}
	return &Form{
		Id:        f.Id,
		Name:      f.Name,
		Version:   f.Version,
		Doc:       f.Doc,
		Questions: qs,
		Derived:   ds,
	}
}

// Compile orders the questions, checks identifiers, and builds the
// question index.
//
// Compile is idempotent.  Call it again after modifying the Form.
func (f *Form) Compile() error {
	f.compiled = false

	sequenced := false
	for i, q := range f.Questions {
		if q == nil {
			return &BadQuestion{FormId: f.Id, Position: i, Problem: "nil question"}
		}
		if q.SequenceIndex != 0 {
			sequenced = true
		}
	}
	if !sequenced {
		for i, q := range f.Questions {
			q.SequenceIndex = i
		}
	}
	sort.SliceStable(f.Questions, func(i, j int) bool {
		return f.Questions[i].SequenceIndex < f.Questions[j].SequenceIndex
	})

	index := make(map[string]int, len(f.Questions))
	for i, q := range f.Questions {
		if q.Id == "" {
			return &BadQuestion{FormId: f.Id, Position: i, Problem: "missing id"}
		}
		if _, have := index[q.Id]; have {
			return &DuplicateQuestion{FormId: f.Id, QuestionId: q.Id}
		}
		if !q.Type.Valid() {
			return &BadQuestion{FormId: f.Id, Position: i, Problem: "unknown type '" + string(q.Type) + "'"}
		}
		for _, r := range q.BranchingRules {
			if r == nil {
				return &BadQuestion{FormId: f.Id, Position: i, Problem: "nil branching rule"}
			}
		}
		index[q.Id] = i
	}

	derived := make(map[string]bool, len(f.Derived))
	for _, d := range f.Derived {
		if d == nil || d.Id == "" {
			return &DerivedCollision{FormId: f.Id, Id: ""}
		}
		if _, have := index[d.Id]; have || derived[d.Id] {
			return &DerivedCollision{FormId: f.Id, Id: d.Id}
		}
		derived[d.Id] = true
	}

	f.index = index
	f.compiled = true

	return nil
}

// Compiled reports whether Compile has succeeded.
func (f *Form) Compiled() bool {
	return f != nil && f.compiled
}

// Index returns the position of the question with the given id, or
// -1 if there isn't one.
func (f *Form) Index(id string) int {
	if f.index == nil {
		for i, q := range f.Questions {
			if q.Id == id {
				return i
			}
		}
		return -1
	}
	i, have := f.index[id]
	if !have {
		return -1
	}
	return i
}

// Question returns the question with the given id (or nil).
//
// A Form changed after Compile without compiling it again can have
// an index that disagrees with its questions.  Question returns nil
// rather than the wrong question.
func (f *Form) Question(id string) *Question {
	if i := f.Index(id); 0 <= i && i < len(f.Questions) {
		if q := f.Questions[i]; q != nil && q.Id == id {
			return q
		}
	}
	return nil
}

// First returns the first question in traversal order (or nil).
func (f *Form) First() *Question {
	if len(f.Questions) == 0 {
		return nil
	}
	return f.Questions[0]
}

// IsAnswerKey reports whether the id can appear as a key in this
// Form's Responses: a question id or a derived field id.
func (f *Form) IsAnswerKey(id string) bool {
	if 0 <= f.Index(id) {
		return true
	}
	for _, d := range f.Derived {
		if d != nil && d.Id == id {
			return true
		}
	}
	return false
}

func isAnd(logic string) bool {
	return strings.EqualFold(strings.TrimSpace(logic), LogicAnd)
}
