package domain

import "fmt"

// TrueFalseOptions is the fixed option list for true_false questions.
var TrueFalseOptions = []string{"True", "False"}

// Normalize fills in authoring defaults: base points, the fixed true/false
// option list, and "True" as the correct answer when the author never set one.
func (q *Question) Normalize() {
	if q.PointsBase == 0 {
		q.PointsBase = DefaultPointsBase
	}
	if q.Type == TrueFalse {
		q.Options = append([]string(nil), TrueFalseOptions...)
		if len(q.Correct) == 0 {
			q.Correct = []string{"True"}
		}
	}
}

// Validate checks the per-type structural invariants of a question.
func (q Question) Validate() error {
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("question %s: multiple_choice needs at least 2 options", q.ID)
		}
		if len(q.Correct) == 0 {
			return fmt.Errorf("question %s: multiple_choice needs at least 1 correct answer", q.ID)
		}
	case TrueFalse:
		if len(q.Options) != 2 || q.Options[0] != "True" || q.Options[1] != "False" {
			return fmt.Errorf("question %s: true_false must have options True/False", q.ID)
		}
		if len(q.Correct) != 1 {
			return fmt.Errorf("question %s: true_false needs exactly 1 correct answer", q.ID)
		}
	case TypeAnswer:
		if len(q.Options) != 0 {
			return fmt.Errorf("question %s: type_answer must not list options", q.ID)
		}
		if len(q.Correct) != 1 {
			return fmt.Errorf("question %s: type_answer needs exactly 1 correct answer", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

// Normalize applies question defaults across the quiz.
func (z *Quiz) Normalize() {
	for i := range z.Questions {
		z.Questions[i].Normalize()
	}
}

// Validate checks quiz-level invariants plus every question.
func (z Quiz) Validate() error {
	if len(z.Questions) == 0 && z.Status == QuizReady {
		return fmt.Errorf("quiz %s: ready quiz must have at least one question", z.ID)
	}
	for _, q := range z.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Playable reports whether sessions may be created from this quiz.
func (z Quiz) Playable() bool {
	return z.Status == QuizReady && len(z.Questions) > 0
}
