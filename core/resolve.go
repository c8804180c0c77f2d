package core

import "context"

func indexOf(q *Question, qs []*Question) int {
	if q == nil {
		return -1
	}
	for i, candidate := range qs {
		if candidate != nil && candidate.Id == q.Id {
			return i
		}
	}
	return -1
}

// FindNextVisible finds the first question after from (in the given
// order) that IsVisible approves.
//
// If from isn't in qs, returns an UnknownQuestion error.  A nil
// question with a nil error means there is no next visible question:
// the form is done.
//
// This function never modifies rs, so it's fine to call it
// speculatively.
func FindNextVisible(ctx context.Context, ev ConditionEvaluator, from *Question, qs []*Question, rs Responses) (*Question, error) {
	i := indexOf(from, qs)
	if i < 0 {
		return nil, unknown(from)
	}
	for j := i + 1; j < len(qs); j++ {
		if IsVisible(ctx, ev, qs[j], rs) {
			return qs[j], nil
		}
	}
	return nil, nil
}

// FindPrevVisible is FindNextVisible in reverse.
func FindPrevVisible(ctx context.Context, ev ConditionEvaluator, from *Question, qs []*Question, rs Responses) (*Question, error) {
	i := indexOf(from, qs)
	if i < 0 {
		return nil, unknown(from)
	}
	for j := i - 1; 0 <= j; j-- {
		if IsVisible(ctx, ev, qs[j], rs) {
			return qs[j], nil
		}
	}
	return nil, nil
}

// FirstVisible returns the first question that IsVisible approves
// (or nil).
func FirstVisible(ctx context.Context, ev ConditionEvaluator, qs []*Question, rs Responses) *Question {
	for _, q := range qs {
		if IsVisible(ctx, ev, q, rs) {
			return q
		}
	}
	return nil
}

func unknown(q *Question) error {
	id := ""
	if q != nil {
		id = q.Id
	}
	return &UnknownQuestion{QuestionId: id}
}
