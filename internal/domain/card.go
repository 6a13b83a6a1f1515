package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CardType distinguishes free-recall cards from multiple-choice cards.
type CardType string

const (
	SelfEval CardType = "SELF_EVAL"
	MCQ      CardType = "MCQ"
)

// Difficulty is an authoring tag; it does not influence scheduling.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Flashcard is a single study card owned by a unit.
type Flashcard struct {
	ID          int64        `json:"id"`
	UnitID      int64        `json:"unit_id" validate:"gt=0"`
	Type        CardType     `json:"type" validate:"oneof=SELF_EVAL MCQ"`
	Question    string       `json:"question" validate:"required"`
	Answer      string       `json:"answer,omitempty"`
	Explanation string       `json:"explanation,omitempty"`
	Difficulty  Difficulty   `json:"difficulty" validate:"oneof=EASY MEDIUM HARD"`
	OrderIndex  int          `json:"order_index" validate:"gte=0"`
	Options     []QuizOption `json:"options,omitempty" validate:"dive"`
	Fingerprint string       `json:"-"`
}

// QuizOption is one answer choice of an MCQ card.
type QuizOption struct {
	ID          int64  `json:"id"`
	FlashcardID int64  `json:"flashcard_id"`
	Text        string `json:"text" validate:"required"`
	Letter      string `json:"letter" validate:"oneof=A B C D"`
	IsCorrect   bool   `json:"is_correct"`
	OrderIndex  int    `json:"order_index" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the MCQ shape: two to four options with
// distinct letters and exactly one correct choice. SELF_EVAL cards carry no options.
func (c *Flashcard) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid flashcard %q: %w", c.Question, err)
	}

	switch c.Type {
	case SelfEval:
		if len(c.Options) > 0 {
			return fmt.Errorf("invalid flashcard %q: self-evaluated card has %d options", c.Question, len(c.Options))
		}
	case MCQ:
		if len(c.Options) < 2 {
			return fmt.Errorf("invalid flashcard %q: multiple-choice card needs at least 2 options", c.Question)
		}
		seen := make(map[string]bool, len(c.Options))
		correct := 0
		for _, o := range c.Options {
			if seen[o.Letter] {
				return fmt.Errorf("invalid flashcard %q: duplicate option letter %s", c.Question, o.Letter)
			}
			seen[o.Letter] = true
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("invalid flashcard %q: expected exactly one correct option, got %d", c.Question, correct)
		}
	}
	return nil
}

// Option returns the option with the given letter (case-insensitive).
func (c *Flashcard) Option(letter string) (QuizOption, bool) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for _, o := range c.Options {
		if o.Letter == letter {
			return o, true
		}
	}
	return QuizOption{}, false
}

// CorrectOption returns the correct option of an MCQ card.
func (c *Flashcard) CorrectOption() (QuizOption, bool) {
	for _, o := range c.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return QuizOption{}, false
}

// ParseCardType accepts the persisted spelling, case-insensitively.
func ParseCardType(s string) (CardType, error) {
	switch CardType(strings.ToUpper(strings.TrimSpace(s))) {
	case SelfEval, "SELF-EVAL", "SELFEVAL", "":
		return SelfEval, nil
	case MCQ:
		return MCQ, nil
	}
	return "", fmt.Errorf("unknown card type %q", s)
}

// ParseDifficulty defaults to Medium when s is empty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case "":
		return Medium, nil
	case Easy, Medium, Hard:
		return d, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// ErrInvalidOutcome signals an outcome outside the closed enumeration.
// Reaching it is a programming error.
var ErrInvalidOutcome = errors.New("invalid review outcome")
