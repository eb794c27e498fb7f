package memory

import (
	"context"
	"testing"
	"time"

	"geeko-live/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryNormalizesOnLoad(t *testing.T) {
	quiz := sampleQuiz()
	quiz.Questions = append(quiz.Questions, domain.Question{
		ID:   "q2",
		Text: "Go is statically typed",
		Type: domain.TrueFalse,
		// options and correct answer intentionally omitted by the author
	})
	repo := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz}), time.Minute)

	got, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	q2 := got.Questions[1]
	if len(q2.Options) != 2 || q2.Options[0] != "True" {
		t.Fatalf("expected True/False options filled in, got %v", q2.Options)
	}
	if len(q2.Correct) != 1 || q2.Correct[0] != "True" {
		t.Fatalf("expected default correct answer True, got %v", q2.Correct)
	}
	if got.Questions[0].PointsBase != domain.DefaultPointsBase {
		t.Fatalf("expected default base points, got %d", got.Questions[0].PointsBase)
	}
}

func TestQuizRepositoryRejectsInvalidQuiz(t *testing.T) {
	quiz := sampleQuiz()
	quiz.Questions[0].Options = []string{"only one"}
	repo := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz}), time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err == nil {
		t.Fatalf("expected validation error for single-option multiple_choice")
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Warmup",
		Status:           domain.QuizReady,
		TimeLimitSeconds: 20,
		Questions: []domain.Question{
			{
				ID:      "q1",
				Text:    "What is 2 + 2?",
				Type:    domain.MultipleChoice,
				Options: []string{"3", "4", "5"},
				Correct: []string{"4"},
			},
		},
	}
}
