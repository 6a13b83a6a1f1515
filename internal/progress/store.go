// Package progress defines the persistence port for spaced-repetition state.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// ErrTransient marks a storage failure that may succeed if retried, such as an
// unreachable backend or a locked database. Stores never retry on their own.
var ErrTransient = errors.New("transient storage failure")

// UpdateFunc computes the next progress from the stored one. prev is nil when
// the user has never reviewed the card.
type UpdateFunc func(prev *domain.UserProgress) (domain.UserProgress, error)

// Store persists UserProgress keyed by (user id, flashcard id) and the
// append-only quiz response log.
type Store interface {
	// GetProgress returns nil, nil when no record exists.
	GetProgress(ctx context.Context, userID string, flashcardID int64) (*domain.UserProgress, error)

	// UpsertProgress inserts or replaces the record for (p.UserID, p.FlashcardID).
	// Last writer wins.
	UpsertProgress(ctx context.Context, p *domain.UserProgress) error

	// UpdateProgress reads, computes and writes one record atomically. If fn or
	// the write fails the stored record is left as it was.
	UpdateProgress(ctx context.Context, userID string, flashcardID int64, fn UpdateFunc) (domain.UserProgress, error)

	// ListProgress returns the user's records for the given cards. Cards without
	// a record are absent from the result. A nil slice means all cards.
	ListProgress(ctx context.Context, userID string, flashcardIDs []int64) ([]domain.UserProgress, error)

	// RecordReview is UpdateProgress that also appends r in the same
	// transaction. Either both are stored or neither is.
	RecordReview(ctx context.Context, userID string, flashcardID int64, fn UpdateFunc, r *domain.QuizResponse) (domain.UserProgress, error)

	// InsertResponse appends to the response log.
	InsertResponse(ctx context.Context, r *domain.QuizResponse) error

	// ListResponses returns the user's responses, newest first. limit <= 0
	// returns all of them.
	ListResponses(ctx context.Context, userID string, limit int) ([]domain.QuizResponse, error)
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a transient storage failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
