package domain

import "time"

// Outcome classifies a single quiz response.
type Outcome string

const (
	Correct   Outcome = "CORRECT"
	Incorrect Outcome = "INCORRECT"
	// Skipped marks a card that was shown but never answered.
	Skipped Outcome = "SKIPPED"
)

func (o Outcome) Valid() bool {
	switch o {
	case Correct, Incorrect, Skipped:
		return true
	}
	return false
}

func (o Outcome) String() string { return string(o) }

// UserProgress is the spaced-repetition state of one card for one user.
// There is at most one record per (UserID, FlashcardID).
type UserProgress struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	FlashcardID      int64     `json:"flashcard_id" db:"flashcard_id"`
	TotalReviews     int       `json:"total_reviews" db:"total_reviews"`
	CorrectReviews   int       `json:"correct_reviews" db:"correct_reviews"`
	IncorrectReviews int       `json:"incorrect_reviews" db:"incorrect_reviews"`
	EaseFactor       float64   `json:"ease_factor" db:"ease_factor"`
	Interval         int       `json:"interval" db:"interval_days"` // days
	Repetitions      int       `json:"repetitions" db:"repetitions"`
	NextReviewDate   time.Time `json:"next_review_date" db:"next_review_date"`
	LastReviewedAt   time.Time `json:"last_reviewed_at" db:"last_reviewed_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Due reports whether the card should be shown at now.
func (p *UserProgress) Due(now time.Time) bool {
	return !p.NextReviewDate.After(now)
}

// QuizResponse is an append-only log entry of one answer.
type QuizResponse struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	FlashcardID      int64     `json:"flashcard_id" db:"flashcard_id"`
	SelectedOptionID *int64    `json:"selected_option_id,omitempty" db:"selected_option_id"`
	Response         Outcome   `json:"response" db:"response"`
	TimeTakenMs      int64     `json:"time_taken_ms" db:"time_taken_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
