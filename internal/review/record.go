package review

import (
	"fmt"
	"time"

	"github.com/conorfennell/revisit/internal/domain"
	"github.com/conorfennell/revisit/internal/mastery"
	"github.com/conorfennell/revisit/internal/schedule"
)

// NewRecord builds a freshly tracked record seeded with confidence k.
// The first review is due one day after creation.
func NewRecord(p domain.SolvedProblem, k int, now time.Time) (domain.ReviewRecord, error) {
	if !schedule.ValidConfidence(k) {
		return domain.ReviewRecord{}, fmt.Errorf("%w: confidence %d outside [1,5]", domain.ErrInvalidInput, k)
	}
	return domain.ReviewRecord{
		UserID:         p.UserID,
		ProblemID:      p.ProblemID,
		Title:          p.Title,
		Difficulty:     p.Difficulty,
		Topics:         p.Topics,
		Confidence:     k,
		EaseFactor:     schedule.DefaultEaseFactor,
		Interval:       schedule.InitialInterval,
		Repetitions:    0,
		TotalReviews:   1,
		ConfidenceSum:  k,
		Mastery:        mastery.Initial(k),
		CreatedAt:      now,
		LastReviewedAt: now,
		NextReviewDate: schedule.DueDate(now, schedule.InitialInterval),
	}, nil
}

// Apply returns r updated by one review. Every derived field changes together;
// r itself is not modified.
func Apply(params *schedule.Params, r domain.ReviewRecord, confidence int, now time.Time) (domain.ReviewRecord, error) {
	res, err := params.Next(confidence, schedule.State{
		Interval:    r.Interval,
		EaseFactor:  r.EaseFactor,
		Repetitions: r.Repetitions,
	}, now)
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	next := r
	next.Confidence = confidence
	next.EaseFactor = res.EaseFactor
	next.Interval = res.Interval
	next.NextReviewDate = res.NextReview
	next.LastReviewedAt = now
	next.Repetitions = r.Repetitions + 1
	next.TotalReviews = r.TotalReviews + 1
	next.ConfidenceSum = r.ConfidenceSum + confidence
	next.Mastery = mastery.Of(next)
	return next, nil
}
