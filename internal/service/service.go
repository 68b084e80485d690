// Package service is the boundary between callers (the CLI) and the review
// engine. It validates input, serializes writes per record, keeps the read
// cache coherent, and turns engine results into stored state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/conorfennell/revisit/internal/cache"
	"github.com/conorfennell/revisit/internal/clock"
	"github.com/conorfennell/revisit/internal/domain"
	"github.com/conorfennell/revisit/internal/problemkey"
	"github.com/conorfennell/revisit/internal/review"
	"github.com/conorfennell/revisit/internal/schedule"
	"github.com/conorfennell/revisit/internal/storage"
)

// Store is the review record persistence the tracker depends on.
type Store interface {
	InsertRecord(ctx context.Context, rec domain.ReviewRecord, ev *domain.ReviewEvent) error
	InsertRecordsIfAbsent(ctx context.Context, recs []domain.ReviewRecord) (int, error)
	GetRecord(ctx context.Context, userID, problemID string) (domain.ReviewRecord, error)
	UpdateRecord(ctx context.Context, prevTotal int, rec domain.ReviewRecord, ev domain.ReviewEvent) error
	FindRecords(ctx context.Context, f storage.RecordFilter) ([]domain.ReviewRecord, error)
	CountRecords(ctx context.Context, f storage.RecordFilter) (int, error)
	TrackedProblemIDs(ctx context.Context, userID string) (map[string]bool, error)
	DeleteRecord(ctx context.Context, userID, problemID string) error
	DailyEventCounts(ctx context.Context, userID string) ([]domain.DayCount, error)
	Events(ctx context.Context, userID, problemID string) ([]domain.ReviewEvent, error)
}

// Registry lists the problems a user has already solved elsewhere.
type Registry interface {
	SolvedProblems(ctx context.Context, userID string) ([]domain.SolvedProblem, error)
}

// Options tunes a Tracker. Zero fields take the defaults from DefaultOptions.
type Options struct {
	SeedConfidence int
	DueLimit       int
	WeakTopics     int
	CacheSize      int
	CacheTTL       time.Duration
	MaxAttempts    int // optimistic update retries per review
}

// DefaultOptions returns the standard tracker settings.
func DefaultOptions() Options {
	return Options{
		SeedConfidence: 4,
		DueLimit:       review.DefaultDueLimit,
		WeakTopics:     review.DefaultWeakTopics,
		CacheSize:      1024,
		CacheTTL:       5 * time.Minute,
		MaxAttempts:    3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SeedConfidence == 0 {
		o.SeedConfidence = d.SeedConfidence
	}
	if o.DueLimit <= 0 {
		o.DueLimit = d.DueLimit
	}
	if o.WeakTopics <= 0 {
		o.WeakTopics = d.WeakTopics
	}
	if o.CacheSize == 0 {
		o.CacheSize = d.CacheSize
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	return o
}

// Tracker exposes the review operations.
type Tracker struct {
	store    Store
	registry Registry
	clock    clock.Clock
	logger   *slog.Logger
	params   *schedule.Params
	opts     Options
	validate *validator.Validate

	records *keyedMutex
	imports singleflight.Group

	dueCache   *cache.Cache[[]domain.ReviewRecord]
	statsCache *cache.Cache[review.StatsSnapshot]
	weakCache  *cache.Cache[[]review.TopicWeakness]
}

// New creates a Tracker.
func New(store Store, registry Registry, clk clock.Clock, logger *slog.Logger, opts Options) *Tracker {
	opts = opts.withDefaults()
	return &Tracker{
		store:      store,
		registry:   registry,
		clock:      clk,
		logger:     logger,
		params:     schedule.DefaultParams(),
		opts:       opts,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		records:    newKeyedMutex(),
		dueCache:   cache.New[[]domain.ReviewRecord](opts.CacheSize, opts.CacheTTL),
		statsCache: cache.New[review.StatsSnapshot](opts.CacheSize, opts.CacheTTL),
		weakCache:  cache.New[[]review.TopicWeakness](opts.CacheSize, opts.CacheTTL),
	}
}

// AddInput starts tracking a problem.
type AddInput struct {
	UserID     string   `validate:"required"`
	ProblemID  string   `validate:"required"`
	Title      string   `validate:"max=200"`
	Difficulty string   `validate:"required"`
	Topics     []string `validate:"required,min=1,dive,required"`
	Confidence int      `validate:"min=1,max=5"`
	Notes      string   `validate:"max=4000"`
	Insights   []string `validate:"dive,required"`
}

// ReviewInput records one review. Notes, when set, replace the record's notes;
// Insights are appended.
type ReviewInput struct {
	UserID     string   `validate:"required"`
	ProblemID  string   `validate:"required"`
	Confidence int      `validate:"min=1,max=5"`
	Notes      string   `validate:"max=4000"`
	Insights   []string `validate:"dive,required"`
}

func (t *Tracker) check(in any) error {
	if err := t.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func recordKey(userID, problemID string) string {
	return userID + "/" + problemID
}

// AddToReview starts tracking a problem with an initial confidence and logs
// it as the first review. An already tracked problem is left untouched and
// domain.ErrAlreadyExists is returned.
func (t *Tracker) AddToReview(ctx context.Context, in AddInput) (domain.ReviewRecord, error) {
	if err := t.check(in); err != nil {
		return domain.ReviewRecord{}, err
	}
	difficulty, err := domain.ParseDifficulty(in.Difficulty)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	problemID := problemkey.Normalize(in.ProblemID)
	topics := problemkey.Topics(in.Topics)
	if problemID == "" || len(topics) == 0 {
		return domain.ReviewRecord{}, fmt.Errorf("%w: problem id and topics must not be blank", domain.ErrInvalidInput)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = problemID
	}

	unlock := t.records.Lock(recordKey(in.UserID, problemID))
	defer unlock()

	now := t.clock.Now()
	rec, err := review.NewRecord(domain.SolvedProblem{
		UserID:     in.UserID,
		ProblemID:  problemID,
		Title:      title,
		Difficulty: difficulty,
		Topics:     topics,
	}, in.Confidence, now)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	rec.Notes = in.Notes
	rec.Insights = mergeInsights(nil, in.Insights)

	ev := t.newEvent(rec, now)
	if err := t.store.InsertRecord(ctx, rec, &ev); err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("add %s to review: %w", problemID, err)
	}
	t.invalidate(in.UserID)

	t.logger.Info("Problem added to review",
		"user", in.UserID,
		"problem", problemID,
		"confidence", in.Confidence,
		"mastery", rec.Mastery,
	)
	return rec, nil
}

// RecordReview applies one review to a tracked problem. The whole update,
// including the appended review event, commits together or not at all.
func (t *Tracker) RecordReview(ctx context.Context, in ReviewInput) (domain.ReviewRecord, error) {
	if err := t.check(in); err != nil {
		return domain.ReviewRecord{}, err
	}
	problemID := problemkey.Normalize(in.ProblemID)

	unlock := t.records.Lock(recordKey(in.UserID, problemID))
	defer unlock()

	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		cur, err := t.store.GetRecord(ctx, in.UserID, problemID)
		if err != nil {
			return domain.ReviewRecord{}, fmt.Errorf("record review of %s: %w", problemID, err)
		}

		now := t.clock.Now()
		next, err := review.Apply(t.params, cur, in.Confidence, now)
		if err != nil {
			return domain.ReviewRecord{}, err
		}
		if in.Notes != "" {
			next.Notes = in.Notes
		}
		next.Insights = mergeInsights(cur.Insights, in.Insights)

		err = t.store.UpdateRecord(ctx, cur.TotalReviews, next, t.newEvent(next, now))
		if errors.Is(err, storage.ErrConflict) {
			t.logger.Warn("Review conflicted with a concurrent update, retrying",
				"user", in.UserID, "problem", problemID, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.ReviewRecord{}, fmt.Errorf("record review of %s: %w", problemID, err)
		}
		t.invalidate(in.UserID)

		t.logger.Info("Review recorded",
			"user", in.UserID,
			"problem", problemID,
			"confidence", in.Confidence,
			"interval", next.Interval,
			"ease_factor", next.EaseFactor,
			"mastery", next.Mastery,
		)
		return next, nil
	}
	return domain.ReviewRecord{}, fmt.Errorf("record review of %s after %d attempts: %w",
		problemID, t.opts.MaxAttempts, storage.ErrConflict)
}

// DueForReview returns the due queue. limit <= 0 uses the configured default.
func (t *Tracker) DueForReview(ctx context.Context, userID string, limit int) ([]domain.ReviewRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = t.opts.DueLimit
	}
	due, err := t.dueCache.Get(ctx, userID, fmt.Sprintf("due:%d", limit), func(ctx context.Context) ([]domain.ReviewRecord, error) {
		now := t.clock.Now()
		records, err := t.store.FindRecords(ctx, storage.RecordFilter{UserID: userID, DueBy: now, Limit: limit})
		if err != nil {
			return nil, err
		}
		return review.SelectDue(records, now, limit), nil
	})
	if err != nil {
		return nil, fmt.Errorf("due for review: %w", err)
	}
	return slices.Clone(due), nil
}

// DueCount reports how many records are due now, ignoring any limit.
func (t *Tracker) DueCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	n, err := t.store.CountRecords(ctx, storage.RecordFilter{UserID: userID, DueBy: t.clock.Now()})
	if err != nil {
		return 0, fmt.Errorf("count due: %w", err)
	}
	return n, nil
}

// ReviewStats returns the dashboard snapshot.
func (t *Tracker) ReviewStats(ctx context.Context, userID string) (review.StatsSnapshot, error) {
	if userID == "" {
		return review.StatsSnapshot{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	s, err := t.statsCache.Get(ctx, userID, "stats", func(ctx context.Context) (review.StatsSnapshot, error) {
		records, err := t.store.FindRecords(ctx, storage.RecordFilter{UserID: userID})
		if err != nil {
			return review.StatsSnapshot{}, err
		}
		days, err := t.store.DailyEventCounts(ctx, userID)
		if err != nil {
			return review.StatsSnapshot{}, err
		}
		return review.Stats(records, days, t.clock.Now()), nil
	})
	if err != nil {
		return review.StatsSnapshot{}, fmt.Errorf("review stats: %w", err)
	}
	s.ByMastery = maps.Clone(s.ByMastery)
	s.WeeklyProgress = slices.Clone(s.WeeklyProgress)
	return s, nil
}

// WeakTopics ranks the topics the user struggles with. n <= 0 uses the
// configured default.
func (t *Tracker) WeakTopics(ctx context.Context, userID string, n int) ([]review.TopicWeakness, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if n <= 0 {
		n = t.opts.WeakTopics
	}
	weak, err := t.weakCache.Get(ctx, userID, fmt.Sprintf("weak:%d", n), func(ctx context.Context) ([]review.TopicWeakness, error) {
		records, err := t.store.FindRecords(ctx, storage.RecordFilter{
			UserID:  userID,
			Mastery: []domain.MasteryLevel{domain.Learning, domain.Forgotten},
		})
		if err != nil {
			return nil, err
		}
		return review.WeakTopics(records, n), nil
	})
	if err != nil {
		return nil, fmt.Errorf("weak topics: %w", err)
	}
	return slices.Clone(weak), nil
}

// ImportSolvedProblems tracks every registry problem the user does not track
// yet, seeded with the configured confidence. It never overwrites a record
// and returns how many were created. Concurrent imports for the same user
// share a single run. The shared run is not cancelled by any one caller;
// a caller whose ctx ends stops waiting and gets ctx.Err().
func (t *Tracker) ImportSolvedProblems(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	ch := t.imports.DoChan(userID, func() (any, error) {
		return t.importSolved(context.WithoutCancel(ctx), userID)
	})
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("import solved problems: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return 0, fmt.Errorf("import solved problems: %w", res.Err)
		}
		if res.Shared {
			t.logger.Debug("Import joined a run already in progress", "user", userID)
		}
		return res.Val.(int), nil
	}
}

func (t *Tracker) importSolved(ctx context.Context, userID string) (int, error) {
	solved, err := t.registry.SolvedProblems(ctx, userID)
	if err != nil {
		return 0, err
	}
	tracked, err := t.store.TrackedProblemIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := t.clock.Now()
	var fresh []domain.ReviewRecord
	for _, p := range review.Untracked(solved, tracked) {
		rec, err := review.NewRecord(p, t.opts.SeedConfidence, now)
		if err != nil {
			return 0, err
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		t.logger.Info("Nothing to import", "user", userID, "solved", len(solved))
		return 0, nil
	}

	n, err := t.store.InsertRecordsIfAbsent(ctx, fresh)
	if err != nil {
		return 0, err
	}
	t.invalidate(userID)
	t.logger.Info("Imported solved problems",
		"user", userID,
		"solved", len(solved),
		"imported", n,
	)
	return n, nil
}

// RecommendedForReview ranks solved problems the user does not track yet.
func (t *Tracker) RecommendedForReview(ctx context.Context, userID string, limit int) ([]review.Recommendation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	solved, err := t.registry.SolvedProblems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recommended for review: %w", err)
	}
	tracked, err := t.store.TrackedProblemIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recommended for review: %w", err)
	}
	return review.Recommend(solved, tracked, limit), nil
}

// Record returns one tracked problem.
func (t *Tracker) Record(ctx context.Context, userID, problemID string) (domain.ReviewRecord, error) {
	if userID == "" {
		return domain.ReviewRecord{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return t.store.GetRecord(ctx, userID, problemkey.Normalize(problemID))
}

// History lists the review events of one problem, newest first.
func (t *Tracker) History(ctx context.Context, userID, problemID string) ([]domain.ReviewEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	problemID = problemkey.Normalize(problemID)
	if _, err := t.store.GetRecord(ctx, userID, problemID); err != nil {
		return nil, err
	}
	return t.store.Events(ctx, userID, problemID)
}

// RemoveFromReview stops tracking a problem. Its review events are kept.
func (t *Tracker) RemoveFromReview(ctx context.Context, userID, problemID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	problemID = problemkey.Normalize(problemID)
	unlock := t.records.Lock(recordKey(userID, problemID))
	defer unlock()

	if err := t.store.DeleteRecord(ctx, userID, problemID); err != nil {
		return fmt.Errorf("remove %s from review: %w", problemID, err)
	}
	t.invalidate(userID)
	t.logger.Info("Problem removed from review", "user", userID, "problem", problemID)
	return nil
}

func (t *Tracker) newEvent(rec domain.ReviewRecord, now time.Time) domain.ReviewEvent {
	return domain.ReviewEvent{
		ID:         uuid.NewString(),
		UserID:     rec.UserID,
		ProblemID:  rec.ProblemID,
		Confidence: rec.Confidence,
		ReviewedAt: now,
		Day:        clock.Day(now),
	}
}

// invalidate evicts every cached view of the user. It runs after the write
// has committed.
func (t *Tracker) invalidate(userID string) {
	t.dueCache.Invalidate(userID)
	t.statsCache.Invalidate(userID)
	t.weakCache.Invalidate(userID)
}

func mergeInsights(existing, added []string) []string {
	out := slices.Clone(existing)
	for _, in := range added {
		in = strings.TrimSpace(in)
		if in != "" && !slices.Contains(out, in) {
			out = append(out, in)
		}
	}
	return out
}
