// Package postgres implements progress.Store on a hosted PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // Registers the postgres driver

	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_progress (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    flashcard_id BIGINT NOT NULL,
    total_reviews INTEGER NOT NULL DEFAULT 0,
    correct_reviews INTEGER NOT NULL DEFAULT 0,
    incorrect_reviews INTEGER NOT NULL DEFAULT 0,
    ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 1,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_date TIMESTAMPTZ NOT NULL,
    last_reviewed_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, flashcard_id)
);

CREATE TABLE IF NOT EXISTS quiz_responses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    flashcard_id BIGINT NOT NULL,
    selected_option_id BIGINT,
    response TEXT NOT NULL,
    time_taken_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_user ON user_progress (user_id, next_review_date);
CREATE INDEX IF NOT EXISTS idx_responses_user ON quiz_responses (user_id, created_at);
`

const progressColumns = `id, user_id, flashcard_id, total_reviews, correct_reviews, incorrect_reviews,
	ease_factor, interval_days, repetitions, next_review_date, last_reviewed_at, created_at, updated_at`

// Store keeps progress and responses in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ progress.Store = (*Store)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", classify(err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", classify(err))
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify marks connection loss, server shutdown and serialization
// conflicts as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08",
			pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03",
			pqErr.Code == "40001", pqErr.Code == "40P01":
			return progress.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return progress.Transient(err)
	}
	return err
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// GetProgress returns nil, nil when the card has never been reviewed.
func (s *Store) GetProgress(ctx context.Context, userID string, flashcardID int64) (*domain.UserProgress, error) {
	p, err := getProgress(ctx, s.db, userID, flashcardID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for user %s card %d: %w", userID, flashcardID, err)
	}
	return p, nil
}

func getProgress(ctx context.Context, q getter, userID string, flashcardID int64, lock bool) (*domain.UserProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_progress WHERE user_id = $1 AND flashcard_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var p domain.UserProgress
	if err := q.GetContext(ctx, &p, query, userID, flashcardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	normalize(&p)
	return &p, nil
}

func normalize(p *domain.UserProgress) {
	p.NextReviewDate = p.NextReviewDate.UTC()
	p.LastReviewedAt = p.LastReviewedAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
}

// UpsertProgress inserts or replaces the record keyed by (user, flashcard).
func (s *Store) UpsertProgress(ctx context.Context, p *domain.UserProgress) error {
	if err := upsertProgress(ctx, s.db, p); err != nil {
		return fmt.Errorf("failed to upsert progress for user %s card %d: %w", p.UserID, p.FlashcardID, err)
	}
	return nil
}

type rowQueryer interface {
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

func upsertProgress(ctx context.Context, q rowQueryer, p *domain.UserProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := q.QueryRowxContext(ctx, `
		INSERT INTO user_progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, flashcard_id) DO UPDATE SET
			total_reviews = EXCLUDED.total_reviews,
			correct_reviews = EXCLUDED.correct_reviews,
			incorrect_reviews = EXCLUDED.incorrect_reviews,
			ease_factor = EXCLUDED.ease_factor,
			interval_days = EXCLUDED.interval_days,
			repetitions = EXCLUDED.repetitions,
			next_review_date = EXCLUDED.next_review_date,
			last_reviewed_at = EXCLUDED.last_reviewed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`,
		p.ID, p.UserID, p.FlashcardID, p.TotalReviews, p.CorrectReviews, p.IncorrectReviews,
		p.EaseFactor, p.Interval, p.Repetitions, p.NextReviewDate.UTC(), p.LastReviewedAt.UTC(),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	).Scan(&p.ID, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return classify(err)
}

// UpdateProgress serializes writers on (user, flashcard) with a transaction
// scoped advisory lock, so two first reviews cannot both see an empty record.
func (s *Store) UpdateProgress(ctx context.Context, userID string, flashcardID int64, fn progress.UpdateFunc) (domain.UserProgress, error) {
	return s.RecordReview(ctx, userID, flashcardID, fn, nil)
}

// RecordReview updates progress like UpdateProgress and inserts r, when not
// nil, before the transaction commits.
func (s *Store) RecordReview(ctx context.Context, userID string, flashcardID int64, fn progress.UpdateFunc, r *domain.QuizResponse) (domain.UserProgress, error) {
	var next domain.UserProgress
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			userID+":"+strconv.FormatInt(flashcardID, 10)); err != nil {
			return classify(err)
		}
		prev, err := getProgress(ctx, tx, userID, flashcardID, true)
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

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}

// ListProgress returns the user's records for flashcardIDs, or all of them
// when flashcardIDs is nil.
func (s *Store) ListProgress(ctx context.Context, userID string, flashcardIDs []int64) ([]domain.UserProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_progress WHERE user_id = $1`
	args := []any{userID}
	if flashcardIDs != nil {
		if len(flashcardIDs) == 0 {
			return nil, nil
		}
		query += ` AND flashcard_id = ANY($2)`
		args = append(args, pq.Array(flashcardIDs))
	}
	query += ` ORDER BY flashcard_id`

	var out []domain.UserProgress
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list progress for user %s: %w", userID, classify(err))
	}
	for i := range out {
		normalize(&out[i])
	}
	return out, nil
}

// InsertResponse appends a quiz response.
func (s *Store) InsertResponse(ctx context.Context, r *domain.QuizResponse) error {
	return insertResponse(ctx, s.db, r)
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func insertResponse(ctx context.Context, q namedExecer, r *domain.QuizResponse) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := q.NamedExecContext(ctx, `
		INSERT INTO quiz_responses (id, user_id, flashcard_id, selected_option_id, response, time_taken_ms, created_at)
		VALUES (:id, :user_id, :flashcard_id, :selected_option_id, :response, :time_taken_ms, :created_at)
	`, r)
	if err != nil {
		return fmt.Errorf("failed to insert response for user %s card %d: %w", r.UserID, r.FlashcardID, classify(err))
	}
	return nil
}

// ListResponses returns a user's responses, newest first.
func (s *Store) ListResponses(ctx context.Context, userID string, limit int) ([]domain.QuizResponse, error) {
	query := `
		SELECT id, user_id, flashcard_id, selected_option_id, response, time_taken_ms, created_at
		FROM quiz_responses WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var out []domain.QuizResponse
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list responses for user %s: %w", userID, classify(err))
	}
	return out, nil
}
