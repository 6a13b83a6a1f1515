package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// ceilingDays bounds intervals regardless of MaxInterval so long streaks
// cannot overflow the int conversion.
const ceilingDays = 100 * 365

// Params holds the parameters for the SM-2 algorithm.
type Params struct {
	InitialEase     float64 `koanf:"initial_ease" validate:"gtefield=MinEase"`
	MinEase         float64 `koanf:"min_ease" validate:"gt=0"`
	InitialInterval int     `koanf:"initial_interval" validate:"gte=1"` // days, first successful review
	SecondInterval  int     `koanf:"second_interval" validate:"gte=1"`  // days, second successful review
	MaxInterval     int     `koanf:"max_interval" validate:"gte=0"`     // days, 0 disables the cap

	// Binary outcomes are mapped onto the 0-5 SM-2 quality scale.
	CorrectQuality   int `koanf:"correct_quality" validate:"gte=3,lte=5"`
	IncorrectQuality int `koanf:"incorrect_quality" validate:"gte=0,lte=2"`
}

// DefaultParams returns the classic SM-2 constants.
func DefaultParams() *Params {
	return &Params{
		InitialEase:      2.5,
		MinEase:          1.3,
		InitialInterval:  1,
		SecondInterval:   6,
		MaxInterval:      0,
		CorrectQuality:   5,
		IncorrectQuality: 2,
	}
}

// Validate checks the parameter ranges.
func (p *Params) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(p); err != nil {
		return fmt.Errorf("invalid scheduler parameters: %w", err)
	}
	return nil
}

// Quality maps a review outcome to an SM-2 quality grade.
func (p *Params) Quality(outcome domain.Outcome) (int, error) {
	switch outcome {
	case domain.Correct:
		return p.CorrectQuality, nil
	case domain.Incorrect:
		return p.IncorrectQuality, nil
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrInvalidOutcome, outcome)
}

// Fresh returns the state of a card that has never been reviewed.
func (p *Params) Fresh() domain.UserProgress {
	return domain.UserProgress{
		EaseFactor:  p.InitialEase,
		Interval:    p.InitialInterval,
		Repetitions: 0,
	}
}

// Next applies one review to prev and returns the new progress. prev may be nil
// for a card's first review. prev is never modified.
//
// The ease factor never drops below MinEase, the interval is at least one day
// and repetitions never go negative.
func (p *Params) Next(prev *domain.UserProgress, outcome domain.Outcome, now time.Time) (domain.UserProgress, error) {
	quality, err := p.Quality(outcome)
	if err != nil {
		if prev != nil {
			return *prev, err
		}
		return domain.UserProgress{}, err
	}

	next := p.Fresh()
	next.CreatedAt = now
	if prev != nil {
		next = *prev
	}

	if quality < 3 {
		next.Repetitions = 0
		next.Interval = 1
	} else {
		next.Repetitions++
		switch next.Repetitions {
		case 1:
			next.Interval = p.InitialInterval
		case 2:
			next.Interval = p.SecondInterval
		default:
			// Uses the ease factor from before this review.
			next.Interval = int(math.Min(math.Round(float64(next.Interval)*next.EaseFactor), ceilingDays))
		}
	}
	if p.MaxInterval > 0 && next.Interval > p.MaxInterval {
		next.Interval = p.MaxInterval
	}
	if next.Interval < 1 {
		next.Interval = 1
	}

	next.EaseFactor = p.nextEase(next.EaseFactor, quality)

	next.TotalReviews++
	if outcome == domain.Correct {
		next.CorrectReviews++
	} else {
		next.IncorrectReviews++
	}

	next.LastReviewedAt = now
	next.NextReviewDate = now.AddDate(0, 0, next.Interval)
	next.UpdatedAt = now
	return next, nil
}

// nextEase applies EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)), floored at MinEase.
func (p *Params) nextEase(ease float64, quality int) float64 {
	d := float64(5 - quality)
	ease += 0.1 - d*(0.08+d*0.02)
	if ease < p.MinEase {
		return p.MinEase
	}
	return ease
}

// IsMastered reports whether a card has a long, stable streak.
func IsMastered(p *domain.UserProgress) bool {
	return p.Repetitions >= 5 && p.Interval >= 21
}
