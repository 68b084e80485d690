package review

import (
	"cmp"
	"slices"

	"github.com/conorfennell/revisit/internal/domain"
)

const (
	DefaultWeakTopics = 10
	minTopicSamples   = 2
)

// TopicWeakness is the aggregate of struggling records under one topic.
type TopicWeakness struct {
	Topic             string
	Count             int
	AverageConfidence float64
}

// WeakTopics ranks topics of learning and forgotten records by ascending
// average confidence. Topics with fewer than two such records are dropped.
func WeakTopics(records []domain.ReviewRecord, n int) []TopicWeakness {
	if n <= 0 {
		n = DefaultWeakTopics
	}

	type acc struct {
		count int
		sum   float64
	}
	byTopic := make(map[string]*acc)
	for _, r := range records {
		if r.Mastery != domain.Learning && r.Mastery != domain.Forgotten {
			continue
		}
		for _, topic := range r.Topics {
			a, ok := byTopic[topic]
			if !ok {
				a = &acc{}
				byTopic[topic] = a
			}
			a.count++
			a.sum += r.AverageConfidence()
		}
	}

	weak := make([]TopicWeakness, 0, len(byTopic))
	for topic, a := range byTopic {
		if a.count < minTopicSamples {
			continue
		}
		weak = append(weak, TopicWeakness{
			Topic:             topic,
			Count:             a.count,
			AverageConfidence: a.sum / float64(a.count),
		})
	}
	slices.SortFunc(weak, func(a, b TopicWeakness) int {
		return cmp.Or(
			cmp.Compare(a.AverageConfidence, b.AverageConfidence),
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Topic, b.Topic),
		)
	})
	if len(weak) > n {
		weak = weak[:n]
	}
	return weak
}
