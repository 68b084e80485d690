package review

import (
	"slices"
	"strings"
	"time"

	"github.com/conorfennell/revisit/internal/clock"
	"github.com/conorfennell/revisit/internal/domain"
)

// WeekDays is the number of active days reported in WeeklyProgress.
const WeekDays = 7

// StatsSnapshot is the dashboard summary for one user.
type StatsSnapshot struct {
	TotalProblems     int
	DueForReview      int
	ByMastery         map[domain.MasteryLevel]int
	AverageConfidence float64 // mean of per-record average confidence
	TotalReviews      int
	StreakDays        int
	WeeklyProgress    []domain.DayCount // oldest first
}

// Stats summarizes records and the per-day event counts of one user.
// now must be in the user's location so that its calendar day is "today".
func Stats(records []domain.ReviewRecord, days []domain.DayCount, now time.Time) StatsSnapshot {
	s := StatsSnapshot{
		TotalProblems: len(records),
		ByMastery:     make(map[domain.MasteryLevel]int, len(domain.MasteryLevels)),
	}
	for _, l := range domain.MasteryLevels {
		s.ByMastery[l] = 0
	}

	var sum float64
	for _, r := range records {
		s.ByMastery[r.Mastery]++
		s.TotalReviews += r.TotalReviews
		sum += r.AverageConfidence()
		if IsDue(r, now) {
			s.DueForReview++
		}
	}
	if len(records) > 0 {
		s.AverageConfidence = sum / float64(len(records))
	}

	s.StreakDays = Streak(days, clock.Day(now))
	s.WeeklyProgress = WeeklyProgress(days)
	return s
}

// Streak counts consecutive active days ending today. Today is exempt: a day
// with no reviews yet does not break the streak, but the first earlier day
// without events ends it.
func Streak(days []domain.DayCount, today string) int {
	active := make(map[string]bool, len(days))
	for _, d := range days {
		if d.Count > 0 {
			active[d.Day] = true
		}
	}

	streak := 0
	if active[today] {
		streak++
	}
	day := today
	for range len(days) {
		prev, err := clock.AddDays(day, -1)
		if err != nil || !active[prev] {
			break
		}
		streak++
		day = prev
	}
	return streak
}

// WeeklyProgress returns the most recent WeekDays days that have events,
// oldest first.
func WeeklyProgress(days []domain.DayCount) []domain.DayCount {
	active := make([]domain.DayCount, 0, len(days))
	for _, d := range days {
		if d.Count > 0 {
			active = append(active, d)
		}
	}
	slices.SortFunc(active, func(a, b domain.DayCount) int {
		return strings.Compare(a.Day, b.Day)
	})
	if len(active) > WeekDays {
		active = active[len(active)-WeekDays:]
	}
	return active
}
