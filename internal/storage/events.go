package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/revisit/internal/domain"
)

func insertEvent(ctx context.Context, tx *sql.Tx, ev domain.ReviewEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO review_events (id, user_id, problem_id, confidence, reviewed_at, day)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.UserID,
		ev.ProblemID,
		ev.Confidence,
		toMillis(ev.ReviewedAt),
		ev.Day,
	)
	if err != nil {
		return unavailable(fmt.Sprintf("insert review event for %s/%s", ev.UserID, ev.ProblemID), err)
	}
	return nil
}

// DailyEventCounts groups a user's review events by calendar day, oldest first.
func (db *DB) DailyEventCounts(ctx context.Context, userID string) ([]domain.DayCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT day, COUNT(*)
		FROM review_events
		WHERE user_id = ?
		GROUP BY day
		ORDER BY day
	`, userID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("count review events for %s", userID), err)
	}
	defer rows.Close()

	var days []domain.DayCount
	for rows.Next() {
		var d domain.DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, unavailable("scan day count", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate day counts", err)
	}
	return days, nil
}

// Events returns the review events of one record, newest first.
func (db *DB) Events(ctx context.Context, userID, problemID string) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, problem_id, confidence, reviewed_at, day
		FROM review_events
		WHERE user_id = ? AND problem_id = ?
		ORDER BY reviewed_at DESC, id
	`, userID, problemID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list review events for %s/%s", userID, problemID), err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var ev domain.ReviewEvent
		var reviewedAt int64
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ProblemID, &ev.Confidence, &reviewedAt, &ev.Day); err != nil {
			return nil, unavailable("scan review event", err)
		}
		ev.ReviewedAt = fromMillis(reviewedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate review events", err)
	}
	return events, nil
}
