package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the published difficulty of a problem.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// ParseDifficulty accepts any casing of Easy, Medium or Hard.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range []Difficulty{Easy, Medium, Hard} {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, s)
}

// MasteryLevel is the coarse retention state of a record.
type MasteryLevel string

const (
	Learning   MasteryLevel = "learning"
	Practicing MasteryLevel = "practicing"
	Mastered   MasteryLevel = "mastered"
	Forgotten  MasteryLevel = "forgotten"
)

// MasteryLevels lists every level in display order.
var MasteryLevels = []MasteryLevel{Forgotten, Learning, Practicing, Mastered}

// ReviewRecord is the review state of one problem for one user.
// Records are keyed by (UserID, ProblemID).
type ReviewRecord struct {
	UserID     string
	ProblemID  string
	Title      string
	Difficulty Difficulty
	Topics     []string

	Confidence     int // most recent rating, 1-5
	EaseFactor     float64
	Interval       int // days
	Repetitions    int // review events after creation
	TotalReviews   int
	ConfidenceSum  int
	Mastery        MasteryLevel
	CreatedAt      time.Time
	LastReviewedAt time.Time
	NextReviewDate time.Time

	Notes    string
	Insights []string
}

// AverageConfidence is the mean of every confidence ever recorded.
func (r ReviewRecord) AverageConfidence() float64 {
	if r.TotalReviews == 0 {
		return 0
	}
	return float64(r.ConfidenceSum) / float64(r.TotalReviews)
}

// ReviewEvent is one review submission. Events are append-only.
type ReviewEvent struct {
	ID         string
	UserID     string
	ProblemID  string
	Confidence int
	ReviewedAt time.Time
	Day        string // calendar day of ReviewedAt in the user's location
}

// DayCount is the number of review events on one calendar day.
type DayCount struct {
	Day   string
	Count int
}

// SolvedProblem is an entry of the external solved-problem registry.
type SolvedProblem struct {
	UserID     string
	ProblemID  string
	Title      string
	Difficulty Difficulty
	Topics     []string
}
