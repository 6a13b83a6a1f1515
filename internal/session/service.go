package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
	"github.com/lavariyalabs/snapy/internal/sm2"
	"github.com/lavariyalabs/snapy/internal/storage"
)

// Catalog is the read side of the flashcard library.
type Catalog interface {
	ListFlashcards(ctx context.Context, q storage.CardQuery) ([]domain.Flashcard, error)
	GetFlashcard(ctx context.Context, id int64) (*domain.Flashcard, error)
}

// Service runs study sessions against a catalog and a progress store.
type Service struct {
	catalog Catalog
	store   progress.Store
	clock   clock.Clock
	params  *sm2.Params
	log     *slog.Logger
}

// NewService wires a Service. A nil params uses sm2.DefaultParams and a nil
// logger uses slog.Default.
func NewService(catalog Catalog, store progress.Store, clk clock.Clock, params *sm2.Params, log *slog.Logger) *Service {
	if params == nil {
		params = sm2.DefaultParams()
	}
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{catalog: catalog, store: store, clock: clk, params: params, log: log}
}

// DueCards returns the cards of q's unit that the user should study now,
// capped at q.Limit.
func (s *Service) DueCards(ctx context.Context, userID string, q storage.CardQuery) ([]domain.Flashcard, error) {
	cards, records, err := s.load(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return SelectN(cards, records, s.clock.Now(), q.Limit), nil
}

// UnitStats counts the cards of q's unit by state for the user.
func (s *Service) UnitStats(ctx context.Context, userID string, q storage.CardQuery) (UnitStats, error) {
	cards, records, err := s.load(ctx, userID, q)
	if err != nil {
		return UnitStats{}, err
	}
	return Stats(cards, records, s.clock.Now()), nil
}

func (s *Service) load(ctx context.Context, userID string, q storage.CardQuery) ([]domain.Flashcard, []domain.UserProgress, error) {
	// The selection limit applies after filtering, not to the catalog read.
	q.Limit = 0
	cards, err := s.catalog.ListFlashcards(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cards for unit %d: %w", q.UnitID, err)
	}
	if len(cards) == 0 {
		return nil, nil, nil
	}
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	records, err := s.store.ListProgress(ctx, userID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load progress for unit %d: %w", q.UnitID, err)
	}
	return cards, records, nil
}

// ReviewRequest is one submitted answer.
type ReviewRequest struct {
	UserID      string
	FlashcardID int64
	Answer      sm2.Answer
	TimeTaken   time.Duration

	// Quiz, when set, is the client's session state before this answer.
	Quiz *QuizState
}

// ReviewResult reports how an answer was judged and the resulting schedule.
// Progress is nil for a skipped card that has never been reviewed.
type ReviewResult struct {
	Outcome       domain.Outcome       `json:"outcome"`
	Progress      *domain.UserProgress `json:"progress,omitempty"`
	CorrectLetter string               `json:"correct_letter,omitempty"`
	Mastered      bool                 `json:"mastered"`
	Quiz          *QuizView            `json:"quiz,omitempty"`
}

// Review classifies an answer, advances the card's schedule and appends the
// response to the log. A skipped answer is logged but leaves the schedule as
// it was.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	card, err := s.catalog.GetFlashcard(ctx, req.FlashcardID)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("failed to load flashcard %d: %w", req.FlashcardID, err)
	}

	now := s.clock.Now()
	outcome := sm2.Classify(card, req.Answer)
	result := ReviewResult{Outcome: outcome}
	if opt, ok := card.CorrectOption(); ok {
		result.CorrectLetter = opt.Letter
	}

	resp := &domain.QuizResponse{
		UserID:      req.UserID,
		FlashcardID: card.ID,
		Response:    outcome,
		TimeTakenMs: req.TimeTaken.Milliseconds(),
		CreatedAt:   now,
	}
	if opt, ok := card.Option(req.Answer.SelectedLetter); ok && card.Type == domain.MCQ {
		resp.SelectedOptionID = &opt.ID
	}

	if outcome == domain.Skipped {
		result.Progress, err = s.store.GetProgress(ctx, req.UserID, card.ID)
		if err != nil {
			return ReviewResult{}, err
		}
		if err := s.store.InsertResponse(ctx, resp); err != nil {
			return ReviewResult{}, err
		}
	} else {
		// The response is written with the schedule so a retried request
		// never advances the card twice.
		next, err := s.store.RecordReview(ctx, req.UserID, card.ID, func(prev *domain.UserProgress) (domain.UserProgress, error) {
			return s.params.Next(prev, outcome, now)
		}, resp)
		if err != nil {
			return ReviewResult{}, err
		}
		result.Progress = &next
	}
	if result.Progress != nil {
		result.Mastered = sm2.IsMastered(result.Progress)
	}
	if req.Quiz != nil {
		view := Reduce(*req.Quiz, answerEvent(card, req.Answer, outcome)).View()
		result.Quiz = &view
	}

	s.log.Debug("Review recorded",
		"user", req.UserID,
		"flashcard", card.ID,
		"outcome", outcome,
	)
	return result, nil
}

// answerEvent turns a judged answer into a quiz event. A skipped card is
// passed over without being answered.
func answerEvent(card *domain.Flashcard, a sm2.Answer, outcome domain.Outcome) Event {
	switch {
	case outcome == domain.Skipped:
		return Next{}
	case card.Type == domain.MCQ:
		return AnswerMCQ{Letter: strings.ToUpper(strings.TrimSpace(a.SelectedLetter)), Correct: outcome == domain.Correct}
	default:
		return AnswerSelfEval{KnewIt: outcome == domain.Correct}
	}
}

// Skip logs a card as shown but never answered, for instance when the user
// leaves the session.
func (s *Service) Skip(ctx context.Context, userID string, flashcardID int64) error {
	if _, err := s.catalog.GetFlashcard(ctx, flashcardID); err != nil {
		return fmt.Errorf("failed to load flashcard %d: %w", flashcardID, err)
	}
	err := s.store.InsertResponse(ctx, &domain.QuizResponse{
		UserID:      userID,
		FlashcardID: flashcardID,
		Response:    domain.Skipped,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, progress.ErrTransient) {
			s.log.Warn("Skip not recorded", "user", userID, "flashcard", flashcardID, "error", err)
		}
		return err
	}
	return nil
}

// History returns the user's latest responses, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.QuizResponse, error) {
	return s.store.ListResponses(ctx, userID, limit)
}

// Progress returns the user's record for a card, or nil if it was never reviewed.
func (s *Service) Progress(ctx context.Context, userID string, flashcardID int64) (*domain.UserProgress, error) {
	return s.store.GetProgress(ctx, userID, flashcardID)
}
