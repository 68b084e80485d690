package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/revisit/internal/domain"
)

const recordColumns = `user_id, problem_id, title, difficulty, topics, confidence, ease_factor,
	interval_days, repetitions, total_reviews, confidence_sum, mastery_level,
	created_at, last_reviewed_at, next_review_date, notes, insights`

// dueOrder sorts forgotten before learning before practicing, then by average
// confidence, then by how overdue the record is.
const dueOrder = `CASE mastery_level
		WHEN 'forgotten' THEN 0
		WHEN 'learning' THEN 1
		WHEN 'practicing' THEN 2
		ELSE 3 END,
	CAST(confidence_sum AS REAL) / total_reviews,
	next_review_date,
	problem_id`

// RecordFilter narrows a record query for one user.
type RecordFilter struct {
	UserID string
	// DueBy keeps records whose next review is at or before this time and
	// that are not mastered. Zero means no due filter.
	DueBy   time.Time
	Mastery []domain.MasteryLevel
	// Limit caps the result; zero means no limit.
	Limit int
}

func (f RecordFilter) where() (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{f.UserID}
	if !f.DueBy.IsZero() {
		clauses = append(clauses, "next_review_date <= ?", "mastery_level <> ?")
		args = append(args, toMillis(f.DueBy), string(domain.Mastered))
	}
	if len(f.Mastery) > 0 {
		marks := make([]string, len(f.Mastery))
		for i, m := range f.Mastery {
			marks[i] = "?"
			args = append(args, string(m))
		}
		clauses = append(clauses, "mastery_level IN ("+strings.Join(marks, ", ")+")")
	}
	return strings.Join(clauses, " AND "), args
}

// InsertRecord stores a new record and, when ev is not nil, its creating
// review event in the same transaction. It returns domain.ErrAlreadyExists
// if the (user, problem) pair is already tracked.
func (db *DB) InsertRecord(ctx context.Context, rec domain.ReviewRecord, ev *domain.ReviewEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		inserted, err := insertRecord(ctx, tx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyExists, rec.UserID, rec.ProblemID)
		}
		if ev != nil {
			return insertEvent(ctx, tx, *ev)
		}
		return nil
	})
}

// InsertRecordsIfAbsent stores every record whose (user, problem) pair is not
// yet tracked and skips the rest. It returns how many were inserted.
func (db *DB) InsertRecordsIfAbsent(ctx context.Context, recs []domain.ReviewRecord) (int, error) {
	var count int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			inserted, err := insertRecord(ctx, tx, rec)
			if err != nil {
				return err
			}
			if inserted {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec domain.ReviewRecord) (bool, error) {
	topics, err := encodeList(rec.Topics)
	if err != nil {
		return false, fmt.Errorf("failed to encode topics for %s: %w", rec.ProblemID, err)
	}
	insights, err := encodeList(rec.Insights)
	if err != nil {
		return false, fmt.Errorf("failed to encode insights for %s: %w", rec.ProblemID, err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO review_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, problem_id) DO NOTHING
	`,
		rec.UserID,
		rec.ProblemID,
		rec.Title,
		string(rec.Difficulty),
		topics,
		rec.Confidence,
		rec.EaseFactor,
		rec.Interval,
		rec.Repetitions,
		rec.TotalReviews,
		rec.ConfidenceSum,
		string(rec.Mastery),
		toMillis(rec.CreatedAt),
		toMillis(rec.LastReviewedAt),
		toMillis(rec.NextReviewDate),
		rec.Notes,
		insights,
	)
	if err != nil {
		return false, unavailable(fmt.Sprintf("insert record %s/%s", rec.UserID, rec.ProblemID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("insert record rows affected", err)
	}
	return n == 1, nil
}

// GetRecord retrieves one record. It returns domain.ErrNotFound when the pair
// is not tracked.
func (db *DB) GetRecord(ctx context.Context, userID, problemID string) (domain.ReviewRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM review_records WHERE user_id = ? AND problem_id = ?
	`, userID, problemID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewRecord{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, userID, problemID)
		}
		if errors.Is(err, ErrCorrupt) {
			return domain.ReviewRecord{}, err
		}
		return domain.ReviewRecord{}, unavailable(fmt.Sprintf("find record %s/%s", userID, problemID), err)
	}
	return rec, nil
}

// UpdateRecord replaces a record's review state and appends ev, atomically.
// The write only applies if the stored total_reviews still equals
// prevTotal; otherwise ErrConflict is returned and nothing changes.
func (db *DB) UpdateRecord(ctx context.Context, prevTotal int, rec domain.ReviewRecord, ev domain.ReviewEvent) error {
	insights, err := encodeList(rec.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights for %s: %w", rec.ProblemID, err)
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE review_records
			SET confidence = ?, ease_factor = ?, interval_days = ?, repetitions = ?,
				total_reviews = ?, confidence_sum = ?, mastery_level = ?,
				last_reviewed_at = ?, next_review_date = ?, notes = ?, insights = ?
			WHERE user_id = ? AND problem_id = ? AND total_reviews = ?
		`,
			rec.Confidence,
			rec.EaseFactor,
			rec.Interval,
			rec.Repetitions,
			rec.TotalReviews,
			rec.ConfidenceSum,
			string(rec.Mastery),
			toMillis(rec.LastReviewedAt),
			toMillis(rec.NextReviewDate),
			rec.Notes,
			insights,
			rec.UserID,
			rec.ProblemID,
			prevTotal,
		)
		if err != nil {
			return unavailable(fmt.Sprintf("update record %s/%s", rec.UserID, rec.ProblemID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("update record rows affected", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM review_records WHERE user_id = ? AND problem_id = ?
			`, rec.UserID, rec.ProblemID).Scan(&exists)
			if err != nil {
				return unavailable("check record", err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, rec.UserID, rec.ProblemID)
			}
			return fmt.Errorf("%w: %s/%s", ErrConflict, rec.UserID, rec.ProblemID)
		}
		return insertEvent(ctx, tx, ev)
	})
}

// FindRecords returns the records matching f. Due queries come back in queue
// order; all others are ordered by problem id.
func (db *DB) FindRecords(ctx context.Context, f RecordFilter) ([]domain.ReviewRecord, error) {
	where, args := f.where()
	query := `SELECT ` + recordColumns + ` FROM review_records WHERE ` + where
	if !f.DueBy.IsZero() {
		query += ` ORDER BY ` + dueOrder
	} else {
		query += ` ORDER BY problem_id`
	}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("find records for %s", f.UserID), err)
	}
	defer rows.Close()

	var records []domain.ReviewRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		if err != nil {
			return nil, unavailable("scan record row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate record rows", err)
	}
	return records, nil
}

// CountRecords counts the records matching f. Limit is ignored.
func (db *DB) CountRecords(ctx context.Context, f RecordFilter) (int, error) {
	where, args := f.where()
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_records WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("count records for %s", f.UserID), err)
	}
	return n, nil
}

// TrackedProblemIDs returns the set of problem ids the user already tracks.
func (db *DB) TrackedProblemIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT problem_id FROM review_records WHERE user_id = ?`, userID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list tracked problems for %s", userID), err)
	}
	defer rows.Close()

	tracked := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan tracked problem", err)
		}
		tracked[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate tracked problems", err)
	}
	return tracked, nil
}

// DeleteRecord removes a record. Its review events are kept so that activity
// history stays intact.
func (db *DB) DeleteRecord(ctx context.Context, userID, problemID string) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM review_records
		WHERE user_id = ? AND problem_id = ?
	`, userID, problemID)
	if err != nil {
		return unavailable(fmt.Sprintf("delete record %s/%s", userID, problemID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete record rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, userID, problemID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.ReviewRecord, error) {
	var (
		rec                               domain.ReviewRecord
		difficulty, mastery               string
		topics, insights                  string
		createdAt, lastReviewed, nextDate int64
	)
	err := s.Scan(
		&rec.UserID,
		&rec.ProblemID,
		&rec.Title,
		&difficulty,
		&topics,
		&rec.Confidence,
		&rec.EaseFactor,
		&rec.Interval,
		&rec.Repetitions,
		&rec.TotalReviews,
		&rec.ConfidenceSum,
		&mastery,
		&createdAt,
		&lastReviewed,
		&nextDate,
		&rec.Notes,
		&insights,
	)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	rec.Difficulty = domain.Difficulty(difficulty)
	rec.Mastery = domain.MasteryLevel(mastery)
	rec.CreatedAt = fromMillis(createdAt)
	rec.LastReviewedAt = fromMillis(lastReviewed)
	rec.NextReviewDate = fromMillis(nextDate)
	if rec.Topics, err = decodeList(topics); err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("%w: topics of %s/%s: %w", ErrCorrupt, rec.UserID, rec.ProblemID, err)
	}
	if rec.Insights, err = decodeList(insights); err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("%w: insights of %s/%s: %w", ErrCorrupt, rec.UserID, rec.ProblemID, err)
	}
	return rec, nil
}
