// Package scoring holds the pure correctness, points and ranking rules.
// Nothing here touches a store or a clock; the service feeds it data.
package scoring

import (
	"math"
	"sort"
	"strings"

	"geeko-live/internal/domain"
)

// Evaluate applies the per-type correctness rule to a submission and returns
// the normalized selected answers alongside the verdict.
func Evaluate(q domain.Question, sub domain.Submission) (selected []string, correct bool, err error) {
	switch q.Type {
	case domain.MultipleChoice:
		if len(sub.Choices) == 0 {
			return nil, false, domain.ErrInvalidSubmission
		}
		return sub.Choices, setEqual(sub.Choices, q.Correct), nil
	case domain.TrueFalse:
		v, ok := normalizeBool(sub.Value)
		if !ok {
			return nil, false, domain.ErrInvalidSubmission
		}
		return []string{v}, len(q.Correct) == 1 && v == q.Correct[0], nil
	case domain.TypeAnswer:
		if sub.Value == "" {
			return nil, false, domain.ErrInvalidSubmission
		}
		// Trim + case-fold: raw equality is too fragile for free text.
		ok := len(q.Correct) == 1 &&
			strings.EqualFold(strings.TrimSpace(sub.Value), strings.TrimSpace(q.Correct[0]))
		return []string{sub.Value}, ok, nil
	default:
		return nil, false, domain.ErrInvalidSubmission
	}
}

// setEqual compares the two answer lists as sets, order-independent.
// A subset or superset of the correct answers is wrong.
func setEqual(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}

func normalizeBool(v string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return "True", true
	case "false":
		return "False", true
	}
	return "", false
}

// Points computes the time-decayed score for a correct answer:
// instant answers earn the full base, answers at the limit earn half,
// linear in between. With no time window the full base is earned.
// Incorrect answers must not reach this function; the caller awards 0.
func Points(base, limitSeconds int, takenSeconds float64) int {
	if base <= 0 {
		base = domain.DefaultPointsBase
	}
	if limitSeconds <= 0 {
		return base
	}
	limit := float64(limitSeconds)
	taken := math.Min(math.Max(takenSeconds, 0), limit)
	return int(math.Round(float64(base) * (1 - 0.5*taken/limit)))
}

// Rank orders participants by total score descending, then by earliest join,
// then by participant ID so repeated calls are stable.
func Rank(sessionID string, participants []domain.Participant) domain.Leaderboard {
	sorted := append([]domain.Participant(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Position:   i + 1,
			UserID:     p.UserID,
			Nickname:   p.Nickname,
			TotalScore: p.TotalScore,
		})
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries}
}

// Stats aggregates a question's ledger entries into the host reveal view.
func Stats(questionID string, answers []domain.Answer) domain.QuestionStats {
	stats := domain.QuestionStats{
		QuestionID: questionID,
		PickCounts: make(map[string]int),
	}
	for _, a := range answers {
		stats.Answers++
		if a.IsCorrect {
			stats.CorrectCount++
		}
		for _, sel := range a.Selected {
			stats.PickCounts[sel]++
		}
	}
	return stats
}
