package sm2

import (
	"strings"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// Answer is a submitted response to a card. Self-evaluated cards set KnewIt;
// multiple-choice cards set SelectedLetter.
type Answer struct {
	KnewIt         bool
	SelectedLetter string
}

// Classify turns an answer to card into a review outcome. An MCQ answer with
// no selection, or a letter the card does not offer, is Skipped.
func Classify(card *domain.Flashcard, a Answer) domain.Outcome {
	if card.Type != domain.MCQ {
		if a.KnewIt {
			return domain.Correct
		}
		return domain.Incorrect
	}

	if strings.TrimSpace(a.SelectedLetter) == "" {
		return domain.Skipped
	}
	opt, ok := card.Option(a.SelectedLetter)
	if !ok {
		return domain.Skipped
	}
	if opt.IsCorrect {
		return domain.Correct
	}
	return domain.Incorrect
}
