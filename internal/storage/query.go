package storage

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lavariyalabs/snapy/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CardQuery selects the flashcards of one unit. Build it with NewCardQuery.
type CardQuery struct {
	UnitID int64           `validate:"gt=0"`
	Type   domain.CardType `validate:"omitempty,oneof=SELF_EVAL MCQ"`
	Limit  int             `validate:"gte=0"` // 0 means no limit
}

// CardQueryOption customizes a CardQuery.
type CardQueryOption func(*CardQuery)

// OfType restricts the query to one card type.
func OfType(t domain.CardType) CardQueryOption {
	return func(q *CardQuery) { q.Type = t }
}

// WithLimit caps the number of cards returned.
func WithLimit(n int) CardQueryOption {
	return func(q *CardQuery) { q.Limit = n }
}

// NewCardQuery returns a validated query for the cards of unitID.
func NewCardQuery(unitID int64, opts ...CardQueryOption) (CardQuery, error) {
	q := CardQuery{UnitID: unitID}
	for _, opt := range opts {
		opt(&q)
	}
	if err := validate.Struct(q); err != nil {
		return CardQuery{}, fmt.Errorf("invalid card query: %w", err)
	}
	return q, nil
}

// UnitQuery selects the units of one term.
type UnitQuery struct {
	TermID int64 `validate:"gt=0"`
}

// NewUnitQuery returns a validated query for the units of termID.
func NewUnitQuery(termID int64) (UnitQuery, error) {
	q := UnitQuery{TermID: termID}
	if err := validate.Struct(q); err != nil {
		return UnitQuery{}, fmt.Errorf("invalid unit query: %w", err)
	}
	return q, nil
}
