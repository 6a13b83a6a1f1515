package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
)

const progressColumns = `id, user_id, flashcard_id, total_reviews, correct_reviews, incorrect_reviews,
	ease_factor, interval_days, repetitions, next_review_date, last_reviewed_at, created_at, updated_at`

func scanProgress(row rowScanner) (domain.UserProgress, error) {
	var p domain.UserProgress
	err := row.Scan(&p.ID, &p.UserID, &p.FlashcardID, &p.TotalReviews, &p.CorrectReviews,
		&p.IncorrectReviews, &p.EaseFactor, &p.Interval, &p.Repetitions, &p.NextReviewDate,
		&p.LastReviewedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetProgress retrieves a user's progress on a card. It returns nil, nil when
// the card has never been reviewed.
func (db *DB) GetProgress(ctx context.Context, userID string, flashcardID int64) (*domain.UserProgress, error) {
	p, err := getProgress(ctx, db.conn, userID, flashcardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for user %s card %d: %w", userID, flashcardID, err)
	}
	return p, nil
}

func getProgress(ctx context.Context, q queryer, userID string, flashcardID int64) (*domain.UserProgress, error) {
	p, err := scanProgress(q.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM user_progress WHERE user_id = ? AND flashcard_id = ?
	`, userID, flashcardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never reviewed
		}
		return nil, classify(err)
	}
	return &p, nil
}

// UpsertProgress inserts or replaces the record keyed by (user, flashcard).
func (db *DB) UpsertProgress(ctx context.Context, p *domain.UserProgress) error {
	if err := upsertProgress(ctx, db.conn, p); err != nil {
		return fmt.Errorf("failed to upsert progress for user %s card %d: %w", p.UserID, p.FlashcardID, err)
	}
	return nil
}

func upsertProgress(ctx context.Context, q queryer, p *domain.UserProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	// The stored id and created_at survive a replace.
	err := q.QueryRowContext(ctx, `
		INSERT INTO user_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, flashcard_id) DO UPDATE SET
			total_reviews = excluded.total_reviews,
			correct_reviews = excluded.correct_reviews,
			incorrect_reviews = excluded.incorrect_reviews,
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			next_review_date = excluded.next_review_date,
			last_reviewed_at = excluded.last_reviewed_at,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`,
		p.ID, p.UserID, p.FlashcardID, p.TotalReviews, p.CorrectReviews, p.IncorrectReviews,
		p.EaseFactor, p.Interval, p.Repetitions, utc(p.NextReviewDate), utc(p.LastReviewedAt),
		utc(p.CreatedAt), utc(p.UpdatedAt),
	).Scan(&p.ID, &p.CreatedAt)
	return classify(err)
}

// UpdateProgress runs the read, fn and the write inside one transaction.
func (db *DB) UpdateProgress(ctx context.Context, userID string, flashcardID int64, fn progress.UpdateFunc) (domain.UserProgress, error) {
	return db.RecordReview(ctx, userID, flashcardID, fn, nil)
}

// RecordReview updates progress like UpdateProgress and inserts r, when not
// nil, before the transaction commits.
func (db *DB) RecordReview(ctx context.Context, userID string, flashcardID int64, fn progress.UpdateFunc, r *domain.QuizResponse) (domain.UserProgress, error) {
	var next domain.UserProgress
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getProgress(ctx, tx, userID, flashcardID)
		if err != nil {
			return err
		}
		next, err = fn(prev)
		if err != nil {
			return err
		}
		next.UserID = userID
		next.FlashcardID = flashcardID
		if err := upsertProgress(ctx, tx, &next); err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		return insertResponse(ctx, tx, r)
	})
	if err != nil {
		return domain.UserProgress{}, fmt.Errorf("failed to update progress for user %s card %d: %w", userID, flashcardID, err)
	}
	return next, nil
}

// ListProgress retrieves the user's records for flashcardIDs, or all of the
// user's records when flashcardIDs is nil.
func (db *DB) ListProgress(ctx context.Context, userID string, flashcardIDs []int64) ([]domain.UserProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_progress WHERE user_id = ?`
	args := []any{userID}
	if flashcardIDs != nil {
		if len(flashcardIDs) == 0 {
			return nil, nil
		}
		query += ` AND flashcard_id IN (` + placeholders(len(flashcardIDs)) + `)`
		for _, id := range flashcardIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY flashcard_id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for user %s: %w", userID, classify(err))
	}
	defer rows.Close()

	var out []domain.UserProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertResponse appends a quiz response. Responses are never updated.
func (db *DB) InsertResponse(ctx context.Context, r *domain.QuizResponse) error {
	return insertResponse(ctx, db.conn, r)
}

func insertResponse(ctx context.Context, q queryer, r *domain.QuizResponse) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO quiz_responses (id, user_id, flashcard_id, selected_option_id, response, time_taken_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.FlashcardID, nullInt64(r.SelectedOptionID), r.Response, r.TimeTakenMs, utc(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert response for user %s card %d: %w", r.UserID, r.FlashcardID, classify(err))
	}
	return nil
}

// ListResponses retrieves a user's responses, newest first.
func (db *DB) ListResponses(ctx context.Context, userID string, limit int) ([]domain.QuizResponse, error) {
	query := `
		SELECT id, user_id, flashcard_id, selected_option_id, response, time_taken_ms, created_at
		FROM quiz_responses WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses for user %s: %w", userID, classify(err))
	}
	defer rows.Close()

	var out []domain.QuizResponse
	for rows.Next() {
		var r domain.QuizResponse
		var selected sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &r.FlashcardID, &selected, &r.Response, &r.TimeTakenMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		if selected.Valid {
			r.SelectedOptionID = &selected.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
