// Package mastery derives a record's retention state from its rolling
// statistics. The level is never stored independently of these inputs.
package mastery

import "github.com/conorfennell/revisit/internal/domain"

const (
	MasteredAverage    = 4.5
	MasteredMinReviews = 3
	ForgottenBelow     = 2
	PracticingAverage  = 3.5
	PracticingSeed     = 4
)

// Classify returns the level for an already-updated record state.
// Rules are evaluated in order and the first match wins, so a record that
// qualifies as mastered stays mastered even after a single rating of 1.
func Classify(avgConfidence float64, totalReviews, latestConfidence int) domain.MasteryLevel {
	switch {
	case avgConfidence >= MasteredAverage && totalReviews >= MasteredMinReviews:
		return domain.Mastered
	case latestConfidence < ForgottenBelow && totalReviews > 1:
		return domain.Forgotten
	case avgConfidence >= PracticingAverage:
		return domain.Practicing
	default:
		return domain.Learning
	}
}

// Initial is the level of a record created with seed confidence k.
func Initial(k int) domain.MasteryLevel {
	if k >= PracticingSeed {
		return domain.Practicing
	}
	return domain.Learning
}

// Of classifies a record from its own fields.
func Of(r domain.ReviewRecord) domain.MasteryLevel {
	return Classify(r.AverageConfidence(), r.TotalReviews, r.Confidence)
}
