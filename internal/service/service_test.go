package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/revisit/internal/domain"
	"github.com/conorfennell/revisit/internal/storage"
)

// stepClock is a settable clock for driving reviews across days.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var day0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *storage.DB
	clock   *stepClock
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "revisit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := &stepClock{t: day0}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		db:      db,
		clock:   clk,
		tracker: New(db, db, clk, logger, Options{}),
	}
}

func addInput(user, id string, confidence int, topics ...string) AddInput {
	if len(topics) == 0 {
		topics = []string{"array"}
	}
	return AddInput{
		UserID:     user,
		ProblemID:  id,
		Title:      id,
		Difficulty: "Medium",
		Topics:     topics,
		Confidence: confidence,
	}
}

func TestReviewLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.tracker.AddToReview(ctx, addInput("u1", "Two Sum", 3, "Array", "Hash Table"))
	require.NoError(t, err)
	assert.Equal(t, "two-sum", rec.ProblemID)
	assert.Equal(t, []string{"array", "hash-table"}, rec.Topics)
	assert.Equal(t, 1, rec.Interval)
	assert.Equal(t, 2.5, rec.EaseFactor)
	assert.Equal(t, domain.Learning, rec.Mastery)

	ratings := []int{3}
	mean := func() float64 {
		sum := 0
		for _, c := range ratings {
			sum += c
		}
		return float64(sum) / float64(len(ratings))
	}

	type step struct {
		interval int
		ease     float64
		mastery  domain.MasteryLevel
	}
	steps := []step{
		{1, 2.6, domain.Practicing}, // prior repetitions 0, average 4.0
		{6, 2.7, domain.Practicing}, // prior repetitions 1, average 4.33
		{17, 2.8, domain.Mastered},  // round(6 * 2.8), average 4.5 over 4 reviews
		{49, 2.9, domain.Mastered},  // round(17 * 2.9), average 4.6
	}
	for i, s := range steps {
		f.clock.Set(rec.NextReviewDate)
		rec, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "two-sum", Confidence: 5})
		require.NoError(t, err, "review %d", i+1)
		ratings = append(ratings, 5)

		assert.Equal(t, s.interval, rec.Interval, "review %d interval", i+1)
		assert.InDelta(t, s.ease, rec.EaseFactor, 1e-9, "review %d ease", i+1)
		assert.InDelta(t, mean(), rec.AverageConfidence(), 1e-9, "review %d average", i+1)
		assert.Equal(t, s.mastery, rec.Mastery, "review %d mastery", i+1)
		assert.Equal(t, len(ratings), rec.TotalReviews)
		assert.True(t, rec.NextReviewDate.Equal(f.clock.Now().AddDate(0, 0, rec.Interval)))
	}

	stored, err := f.tracker.Record(ctx, "u1", "Two Sum")
	require.NoError(t, err)
	assert.Equal(t, rec.TotalReviews, stored.TotalReviews)
	assert.Equal(t, rec.Mastery, stored.Mastery)

	history, err := f.tracker.History(ctx, "u1", "two-sum")
	require.NoError(t, err)
	assert.Len(t, history, 5)
	assert.Equal(t, 5, history[0].Confidence)
	assert.Equal(t, 3, history[len(history)-1].Confidence)
}

func TestAddToReviewRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 2))
	require.NoError(t, err)

	_, err = f.tracker.AddToReview(ctx, addInput("u1", "A", 5))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	rec, err := f.tracker.Record(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Confidence, "existing record is not overwritten")

	// Another user may track the same problem.
	_, err = f.tracker.AddToReview(ctx, addInput("u2", "a", 5))
	assert.NoError(t, err)
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)

	testCases := []struct {
		name string
		run  func() error
	}{
		{"Add with confidence 0", func() error {
			_, err := f.tracker.AddToReview(ctx, addInput("u1", "b", 0))
			return err
		}},
		{"Add without user", func() error {
			_, err := f.tracker.AddToReview(ctx, addInput("", "b", 3))
			return err
		}},
		{"Add with unknown difficulty", func() error {
			in := addInput("u1", "b", 3)
			in.Difficulty = "Legendary"
			_, err := f.tracker.AddToReview(ctx, in)
			return err
		}},
		{"Add with blank topic", func() error {
			_, err := f.tracker.AddToReview(ctx, addInput("u1", "b", 3, " "))
			return err
		}},
		{"Add with blank problem id", func() error {
			_, err := f.tracker.AddToReview(ctx, addInput("u1", "  ", 3))
			return err
		}},
		{"Review with confidence 6", func() error {
			_, err := f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 6})
			return err
		}},
		{"Due without user", func() error {
			_, err := f.tracker.DueForReview(ctx, "", 0)
			return err
		}},
		{"Import without user", func() error {
			_, err := f.tracker.ImportSolvedProblems(ctx, "")
			return err
		}},
		{"Record without user", func() error {
			_, err := f.tracker.Record(ctx, "", "a")
			return err
		}},
		{"History without user", func() error {
			_, err := f.tracker.History(ctx, "", "a")
			return err
		}},
		{"Remove without user", func() error {
			return f.tracker.RemoveFromReview(ctx, "", "a")
		}},
		{"Due count without user", func() error {
			_, err := f.tracker.DueCount(ctx, "")
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), domain.ErrInvalidInput)
		})
	}

	// Rejected reviews leave the record untouched.
	rec, err := f.tracker.Record(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalReviews)
}

func TestRecordReviewUntracked(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.RecordReview(context.Background(), ReviewInput{UserID: "u1", ProblemID: "nope", Confidence: 4})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentReviewsOfOneRecordAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 1 + i%5})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := f.tracker.Record(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, writers+1, rec.TotalReviews)
	assert.Equal(t, writers, rec.Repetitions)
	// 3 plus sixteen ratings cycling 1..5: 3 + 3*15 + 1
	assert.Equal(t, 49, rec.ConfidenceSum)

	history, err := f.tracker.History(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Len(t, history, writers+1)
	assert.Equal(t, 0, f.tracker.records.size())
}

// racingStore slips a competing write in before the tracker's first update.
type racingStore struct {
	*storage.DB
	once sync.Once
	t    *testing.T
}

func (s *racingStore) UpdateRecord(ctx context.Context, prevTotal int, rec domain.ReviewRecord, ev domain.ReviewEvent) error {
	s.once.Do(func() {
		cur, err := s.DB.GetRecord(ctx, rec.UserID, rec.ProblemID)
		require.NoError(s.t, err)
		other := cur
		other.TotalReviews++
		other.Repetitions++
		other.ConfidenceSum += 2
		other.Confidence = 2
		otherEv := ev
		otherEv.ID = "competing"
		require.NoError(s.t, s.DB.UpdateRecord(ctx, cur.TotalReviews, other, otherEv))
	})
	return s.DB.UpdateRecord(ctx, prevTotal, rec, ev)
}

func TestRecordReviewRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := &racingStore{DB: f.db, t: t}
	tracker := New(store, f.db, f.clock, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})

	_, err := tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)

	rec, err := tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 5})
	require.NoError(t, err)
	// Built on top of the competing write: 3 + 2 + 5.
	assert.Equal(t, 3, rec.TotalReviews)
	assert.Equal(t, 10, rec.ConfidenceSum)
}

func TestDueQueueSeesWritesImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 2))
	require.NoError(t, err)
	_, err = f.tracker.AddToReview(ctx, addInput("u1", "b", 4))
	require.NoError(t, err)

	f.clock.Set(day0.AddDate(0, 0, 1))
	due, err := f.tracker.DueForReview(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ProblemID)

	// The cached queue is evicted by the review, not left to expire.
	_, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 4})
	require.NoError(t, err)
	due, err = f.tracker.DueForReview(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].ProblemID)

	limited, err := f.tracker.DueForReview(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := f.tracker.DueCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReviewStatsStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	today := day0.AddDate(0, 0, 3)

	// Events on D-3, D-2 and D-1, none today.
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)
	f.clock.Set(day0.AddDate(0, 0, 1))
	_, err = f.tracker.AddToReview(ctx, addInput("u1", "b", 2))
	require.NoError(t, err)
	_, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 4})
	require.NoError(t, err)
	f.clock.Set(day0.AddDate(0, 0, 2))
	_, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "b", Confidence: 1})
	require.NoError(t, err)

	f.clock.Set(today)
	s, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.StreakDays)
	assert.Equal(t, 2, s.TotalProblems)
	assert.Equal(t, 1, s.ByMastery[domain.Forgotten])
	assert.Equal(t, 1, s.ByMastery[domain.Practicing])
	assert.Equal(t, []domain.DayCount{
		{Day: "2024-05-01", Count: 1},
		{Day: "2024-05-02", Count: 2},
		{Day: "2024-05-03", Count: 1},
	}, s.WeeklyProgress)
	// a: next at D-2 + 1 day, b: reset to 1 day after D-1; both due today.
	assert.Equal(t, 2, s.DueForReview)
}

func TestReviewStatsStreakStopsAtGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Events on D-3 and D-1 only.
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)
	f.clock.Set(day0.AddDate(0, 0, 2))
	_, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 4})
	require.NoError(t, err)

	f.clock.Set(day0.AddDate(0, 0, 3))
	s, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.StreakDays)
}

func TestWeakTopics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, in := range []AddInput{
		addInput("u1", "a", 2, "graph", "bfs"),
		addInput("u1", "b", 3, "graph"),
		addInput("u1", "c", 1, "bfs", "dp"),
		addInput("u1", "d", 5, "dp"),
		addInput("u1", "e", 5, "dp"),
	} {
		_, err := f.tracker.AddToReview(ctx, in)
		require.NoError(t, err)
	}

	weak, err := f.tracker.WeakTopics(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, weak, 2)
	assert.Equal(t, "bfs", weak[0].Topic)
	assert.InDelta(t, 1.5, weak[0].AverageConfidence, 1e-9)
	assert.Equal(t, "graph", weak[1].Topic)
}

func seedRegistry(t *testing.T, db *storage.DB) {
	t.Helper()
	ctx := context.Background()
	id, err := db.InsertSource(ctx, "/notes", storage.SourceLocal)
	require.NoError(t, err)
	require.NoError(t, db.ReplaceSolvedProblems(ctx, id, []domain.SolvedProblem{
		{UserID: "u1", ProblemID: "two-sum", Title: "Two Sum", Difficulty: domain.Easy, Topics: []string{"array", "hash-table"}},
		{UserID: "u1", ProblemID: "lru-cache", Title: "LRU Cache", Difficulty: domain.Medium, Topics: []string{"hash-table", "linked-list", "design"}},
		{UserID: "u1", ProblemID: "word-ladder", Title: "Word Ladder", Difficulty: domain.Hard, Topics: []string{"breadth-first-search"}},
		{UserID: "u2", ProblemID: "two-sum", Title: "Two Sum", Difficulty: domain.Easy, Topics: []string{"array"}},
	}))
}

func TestImportSolvedProblemsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedRegistry(t, f.db)

	_, err := f.tracker.AddToReview(ctx, addInput("u1", "two-sum", 1))
	require.NoError(t, err)

	recs, err := f.tracker.RecommendedForReview(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "lru-cache", recs[0].Problem.ProblemID)
	assert.Equal(t, 15, recs[0].Importance)
	assert.Equal(t, "word-ladder", recs[1].Problem.ProblemID)

	n, err := f.tracker.ImportSolvedProblems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.tracker.ImportSolvedProblems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stats, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProblems)

	imported, err := f.tracker.Record(ctx, "u1", "lru-cache")
	require.NoError(t, err)
	assert.Equal(t, 4, imported.Confidence)
	assert.Equal(t, domain.Practicing, imported.Mastery)

	kept, err := f.tracker.Record(ctx, "u1", "two-sum")
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Confidence, "import never overwrites")

	recs, err = f.tracker.RecommendedForReview(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Imports are not practice: only the explicit add is in the event log.
	days, err := f.db.DailyEventCounts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.DayCount{{Day: "2024-05-01", Count: 1}}, days)
}

func TestConcurrentImportsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedRegistry(t, f.db)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.tracker.ImportSolvedProblems(ctx, "u1")
			assert.NoError(t, err)
			mu.Lock()
			total = max(total, n)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, total)

	count, err := f.db.CountRecords(ctx, storage.RecordFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRemoveFromReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)

	require.NoError(t, f.tracker.RemoveFromReview(ctx, "u1", "a"))
	assert.ErrorIs(t, f.tracker.RemoveFromReview(ctx, "u1", "a"), domain.ErrNotFound)
	_, err = f.tracker.History(ctx, "u1", "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	s, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalProblems)
	assert.Equal(t, 1, s.StreakDays, "history outlives the record")
}

func TestStoreUnavailableIsDistinct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	_, err := f.tracker.DueForReview(ctx, "u1", 0)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = f.tracker.ReviewStats(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = f.tracker.RecordReview(ctx, ReviewInput{UserID: "u1", ProblemID: "a", Confidence: 3})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{SeedConfidence: 5}.withDefaults()
	assert.Equal(t, 5, o.SeedConfidence)
	assert.Equal(t, 20, o.DueLimit)
	assert.Equal(t, 10, o.WeakTopics)
	assert.Equal(t, 3, o.MaxAttempts)
	assert.Equal(t, 5*time.Minute, o.CacheTTL)
}

func TestReviewStatsResultIsCallerOwned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tracker.AddToReview(ctx, addInput("u1", "a", 3))
	require.NoError(t, err)

	first, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first.WeeklyProgress, 1)
	first.ByMastery[domain.Learning] = 99
	first.WeeklyProgress[0].Count = 42

	second, err := f.tracker.ReviewStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.ByMastery[domain.Learning])
	assert.Equal(t, []domain.DayCount{{Day: "2024-05-01", Count: 1}}, second.WeeklyProgress)
}

// gatedRegistry holds the first SolvedProblems call until release is closed.
type gatedRegistry struct {
	Registry
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (r *gatedRegistry) SolvedProblems(ctx context.Context, userID string) ([]domain.SolvedProblem, error) {
	r.once.Do(func() {
		close(r.started)
		<-r.release
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Registry.SolvedProblems(ctx, userID)
}

func TestImportOutlivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	seedRegistry(t, f.db)
	reg := &gatedRegistry{Registry: f.db, started: make(chan struct{}), release: make(chan struct{})}
	tracker := New(f.db, reg, f.clock, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tracker.ImportSolvedProblems(firstCtx, "u1")
		firstErr <- err
	}()
	<-reg.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := tracker.ImportSolvedProblems(context.Background(), "u1")
		secondErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(reg.release)
	assert.NoError(t, <-secondErr)

	count, err := f.db.CountRecords(context.Background(), storage.RecordFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, count, "the shared run finished despite the cancellation")
}
