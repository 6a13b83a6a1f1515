// Package fingerprint derives a stable content identity for flashcards, so a
// re-imported deck maps onto the cards (and progress) already stored.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/lavariyalabs/snapy/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ToLower(part)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return strings.TrimSpace(p)
}

// Normalize renders the parts of a card that define what is being asked:
// type, question, answer and the options with their correctness. Explanation,
// difficulty and ordering are left out so editing them keeps the identity.
func Normalize(card *domain.Flashcard) string {
	parts := []string{
		string(card.Type),
		normalizePart(card.Question),
		normalizePart(card.Answer),
	}

	opts := make([]string, 0, len(card.Options))
	for _, o := range card.Options {
		mark := ""
		if o.IsCorrect {
			mark = "*"
		}
		opts = append(opts, strings.ToUpper(o.Letter)+")"+normalizePart(o.Text)+mark)
	}
	sort.Strings(opts)

	// Newline separation keeps "question" + "answer" from colliding with "questionanswer".
	return strings.Join(append(parts, opts...), "\n")
}

// Of returns the SHA-256 of the normalized card as a hex string.
func Of(card *domain.Flashcard) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
