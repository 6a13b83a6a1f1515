// Package session picks the cards to study and records the answers given
// during a study session.
package session

import (
	"sort"
	"time"

	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/sm2"
)

// Select returns the cards that have never been reviewed or whose next review
// date is not after now, ordered by OrderIndex then ID. Progress for cards
// outside cards is ignored.
func Select(cards []domain.Flashcard, progress []domain.UserProgress, now time.Time) []domain.Flashcard {
	return SelectN(cards, progress, now, 0)
}

// SelectN is Select capped at limit cards. A limit of zero or less means no cap.
func SelectN(cards []domain.Flashcard, progress []domain.UserProgress, now time.Time, limit int) []domain.Flashcard {
	byCard := index(progress)

	var due []domain.Flashcard
	for _, c := range cards {
		p, seen := byCard[c.ID]
		if !seen || p.Due(now) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].OrderIndex != due[j].OrderIndex {
			return due[i].OrderIndex < due[j].OrderIndex
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}

// UnitStats summarizes a user's standing on a set of cards. Every card falls
// into exactly one of New, Due, Learning and Mastered.
type UnitStats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Due      int `json:"due"`
	Learning int `json:"learning"`
	Mastered int `json:"mastered"`
}

// Stats counts cards by their state at now.
func Stats(cards []domain.Flashcard, progress []domain.UserProgress, now time.Time) UnitStats {
	byCard := index(progress)

	var s UnitStats
	for _, c := range cards {
		s.Total++
		p, seen := byCard[c.ID]
		switch {
		case !seen:
			s.New++
		case p.Due(now):
			s.Due++
		case sm2.IsMastered(p):
			s.Mastered++
		default:
			s.Learning++
		}
	}
	return s
}

func index(progress []domain.UserProgress) map[int64]*domain.UserProgress {
	m := make(map[int64]*domain.UserProgress, len(progress))
	for i := range progress {
		m[progress[i].FlashcardID] = &progress[i]
	}
	return m
}
