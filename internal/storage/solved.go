package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/revisit/internal/domain"
)

// ReplaceSolvedProblems swaps the registry rows read from one source for a
// fresh set, in a single transaction.
func (db *DB) ReplaceSolvedProblems(ctx context.Context, sourceID int64, problems []domain.SolvedProblem) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM solved_problems WHERE source_id = ?`, sourceID); err != nil {
			return unavailable(fmt.Sprintf("clear solved problems of source %d", sourceID), err)
		}
		for _, p := range problems {
			topics, err := encodeList(p.Topics)
			if err != nil {
				return fmt.Errorf("failed to encode topics for %s: %w", p.ProblemID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO solved_problems (source_id, user_id, problem_id, title, difficulty, topics)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (source_id, user_id, problem_id) DO UPDATE
				SET title = excluded.title, difficulty = excluded.difficulty, topics = excluded.topics
			`, sourceID, p.UserID, p.ProblemID, p.Title, string(p.Difficulty), topics)
			if err != nil {
				return unavailable(fmt.Sprintf("insert solved problem %s/%s", p.UserID, p.ProblemID), err)
			}
		}
		return nil
	})
}

// SolvedProblems lists the registry entries of one user. A problem listed by
// several sources is returned once, from the earliest source.
func (db *DB) SolvedProblems(ctx context.Context, userID string) ([]domain.SolvedProblem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, problem_id, title, difficulty, topics
		FROM solved_problems
		WHERE user_id = ?
		ORDER BY problem_id, source_id
	`, userID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list solved problems for %s", userID), err)
	}
	defer rows.Close()

	var problems []domain.SolvedProblem
	for rows.Next() {
		var p domain.SolvedProblem
		var difficulty, topics string
		if err := rows.Scan(&p.UserID, &p.ProblemID, &p.Title, &difficulty, &topics); err != nil {
			return nil, unavailable("scan solved problem", err)
		}
		if n := len(problems); n > 0 && problems[n-1].ProblemID == p.ProblemID {
			continue
		}
		p.Difficulty = domain.Difficulty(difficulty)
		if p.Topics, err = decodeList(topics); err != nil {
			return nil, fmt.Errorf("decode topics of %s: %w", p.ProblemID, err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate solved problems", err)
	}
	return problems, nil
}
