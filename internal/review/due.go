package review

import (
	"slices"
	"time"

	"github.com/conorfennell/revisit/internal/domain"
)

// DefaultDueLimit caps the due queue when the caller passes no limit.
const DefaultDueLimit = 20

var duePriority = map[domain.MasteryLevel]int{
	domain.Forgotten:  0,
	domain.Learning:   1,
	domain.Practicing: 2,
}

// IsDue reports whether r belongs in the due queue at now.
// Mastered records are never due.
func IsDue(r domain.ReviewRecord, now time.Time) bool {
	return r.Mastery != domain.Mastered && !r.NextReviewDate.After(now)
}

// CompareDue orders due records: forgotten before learning before practicing,
// then weaker average confidence first, then the most overdue first.
func CompareDue(a, b domain.ReviewRecord) int {
	if pa, pb := duePriority[a.Mastery], duePriority[b.Mastery]; pa != pb {
		return pa - pb
	}
	if aa, ab := a.AverageConfidence(), b.AverageConfidence(); aa != ab {
		if aa < ab {
			return -1
		}
		return 1
	}
	if c := a.NextReviewDate.Compare(b.NextReviewDate); c != 0 {
		return c
	}
	if a.ProblemID < b.ProblemID {
		return -1
	}
	if a.ProblemID > b.ProblemID {
		return 1
	}
	return 0
}

// SelectDue returns the due records in queue order, at most limit of them.
func SelectDue(records []domain.ReviewRecord, now time.Time, limit int) []domain.ReviewRecord {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	due := make([]domain.ReviewRecord, 0, len(records))
	for _, r := range records {
		if IsDue(r, now) {
			due = append(due, r)
		}
	}
	slices.SortStableFunc(due, CompareDue)
	if len(due) > limit {
		due = due[:limit]
	}
	return due
}

// CountDue counts records matching IsDue.
func CountDue(records []domain.ReviewRecord, now time.Time) int {
	n := 0
	for _, r := range records {
		if IsDue(r, now) {
			n++
		}
	}
	return n
}
