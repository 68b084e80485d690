// Package schedule implements the SM-2 variant that spaces problem reviews.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/revisit/internal/domain"
)

const (
	MinConfidence     = 1
	MaxConfidence     = 5
	PassConfidence    = 3 // ratings below this reset the interval
	MinEaseFactor     = 1.3
	DefaultEaseFactor = 2.5
	InitialInterval   = 1
)

// Params holds the interval ladder of the algorithm.
type Params struct {
	FirstInterval  int // interval after the first passing review
	SecondInterval int // interval after the second passing review
}

// DefaultParams returns the classic SM-2 ladder of 1 then 6 days.
func DefaultParams() *Params {
	return &Params{
		FirstInterval:  1,
		SecondInterval: 6,
	}
}

// State is the scheduling state carried by a review record.
type State struct {
	Interval    int
	EaseFactor  float64
	Repetitions int
}

// Result is the outcome of one review.
type Result struct {
	Interval   int
	EaseFactor float64
	NextReview time.Time
}

// Next computes the schedule that follows a review with the given confidence.
// It is pure: the same inputs always give the same result.
func (p *Params) Next(confidence int, prior State, now time.Time) (Result, error) {
	if err := validate(confidence, prior); err != nil {
		return Result{}, err
	}

	ease := NextEaseFactor(prior.EaseFactor, confidence)

	var interval int
	switch {
	case confidence < PassConfidence:
		interval = InitialInterval
	case prior.Repetitions == 0:
		interval = p.FirstInterval
	case prior.Repetitions == 1:
		interval = p.SecondInterval
	default:
		interval = int(math.Round(float64(prior.Interval) * ease))
	}
	if interval < 1 {
		interval = 1
	}

	return Result{
		Interval:   interval,
		EaseFactor: ease,
		NextReview: DueDate(now, interval),
	}, nil
}

// Next applies the default parameters.
func Next(confidence int, prior State, now time.Time) (Result, error) {
	return DefaultParams().Next(confidence, prior, now)
}

// NextEaseFactor applies EF' = EF + 0.1 - (5-q)(0.08 + (5-q)0.02), floored at 1.3.
func NextEaseFactor(ease float64, confidence int) float64 {
	q := float64(MaxConfidence - confidence)
	next := ease + 0.1 - q*(0.08+q*0.02)
	return math.Max(MinEaseFactor, next)
}

// DueDate is now plus interval calendar days.
func DueDate(now time.Time, interval int) time.Time {
	return now.AddDate(0, 0, interval)
}

// ValidConfidence reports whether c is a rating in [1,5].
func ValidConfidence(c int) bool {
	return c >= MinConfidence && c <= MaxConfidence
}

func validate(confidence int, prior State) error {
	switch {
	case !ValidConfidence(confidence):
		return fmt.Errorf("%w: confidence %d outside [%d,%d]", domain.ErrInvalidInput, confidence, MinConfidence, MaxConfidence)
	case prior.Interval < 1:
		return fmt.Errorf("%w: prior interval %d below 1", domain.ErrInvalidInput, prior.Interval)
	case prior.EaseFactor < MinEaseFactor:
		return fmt.Errorf("%w: prior ease factor %.2f below %.1f", domain.ErrInvalidInput, prior.EaseFactor, MinEaseFactor)
	case prior.Repetitions < 0:
		return fmt.Errorf("%w: negative repetitions %d", domain.ErrInvalidInput, prior.Repetitions)
	}
	return nil
}
