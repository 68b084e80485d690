package review

import (
	"cmp"
	"slices"

	"github.com/conorfennell/revisit/internal/domain"
)

const (
	coreTopicWeight  = 3
	otherTopicWeight = 1
)

var difficultyWeight = map[domain.Difficulty]int{
	domain.Easy:   5,
	domain.Medium: 8,
	domain.Hard:   10,
}

// CoreTopics are the algorithmic topics weighted up when recommending.
// Names are in normalized form.
var CoreTopics = map[string]bool{
	"array":                true,
	"string":               true,
	"hash-table":           true,
	"linked-list":          true,
	"two-pointers":         true,
	"sliding-window":       true,
	"binary-search":        true,
	"stack":                true,
	"heap":                 true,
	"tree":                 true,
	"binary-tree":          true,
	"graph":                true,
	"depth-first-search":   true,
	"breadth-first-search": true,
	"dynamic-programming":  true,
	"backtracking":         true,
	"greedy":               true,
}

// Recommendation is a solved but untracked problem worth adding.
type Recommendation struct {
	Problem    domain.SolvedProblem
	Importance int
}

// Importance scores a problem by difficulty plus the weight of each topic.
func Importance(p domain.SolvedProblem) int {
	score := difficultyWeight[p.Difficulty]
	for _, t := range p.Topics {
		if CoreTopics[t] {
			score += coreTopicWeight
		} else {
			score += otherTopicWeight
		}
	}
	return score
}

// Untracked returns the solved problems that have no review record yet.
func Untracked(solved []domain.SolvedProblem, tracked map[string]bool) []domain.SolvedProblem {
	var out []domain.SolvedProblem
	for _, p := range solved {
		if !tracked[p.ProblemID] {
			out = append(out, p)
		}
	}
	return out
}

// Recommend ranks untracked problems by descending importance.
func Recommend(solved []domain.SolvedProblem, tracked map[string]bool, limit int) []Recommendation {
	candidates := Untracked(solved, tracked)
	recs := make([]Recommendation, 0, len(candidates))
	for _, p := range candidates {
		recs = append(recs, Recommendation{Problem: p, Importance: Importance(p)})
	}
	slices.SortFunc(recs, func(a, b Recommendation) int {
		return cmp.Or(
			cmp.Compare(b.Importance, a.Importance),
			cmp.Compare(a.Problem.Title, b.Problem.Title),
			cmp.Compare(a.Problem.ProblemID, b.Problem.ProblemID),
		)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
