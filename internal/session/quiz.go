package session

import "fmt"

// QuizState is an immutable snapshot of a study session in progress. It is
// never persisted; Reduce derives each state from the previous one.
type QuizState struct {
	Total     int `json:"total"`
	Index     int `json:"index"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`

	Flipped         bool   `json:"flipped"`
	Answered        bool   `json:"answered"`
	SelectedLetter  string `json:"selected_letter,omitempty"`
	SelectedCorrect bool   `json:"selected_correct"`
}

// NewQuiz starts a session over total cards.
func NewQuiz(total int) QuizState {
	if total < 0 {
		total = 0
	}
	return QuizState{Total: total}
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// Flip toggles the card between question and answer.
type Flip struct{}

// AnswerSelfEval records a self-evaluated answer.
type AnswerSelfEval struct {
	KnewIt bool
}

// AnswerMCQ records a multiple-choice selection.
type AnswerMCQ struct {
	Letter  string
	Correct bool
}

// Next moves to the following card.
type Next struct{}

// Reset restarts the session with the same number of cards.
type Reset struct{}

func (Flip) isEvent()           {}
func (AnswerSelfEval) isEvent() {}
func (AnswerMCQ) isEvent()      {}
func (Next) isEvent()           {}
func (Reset) isEvent()          {}

// Reduce applies e to s and returns the new state. Answering a card that was
// already answered does nothing, and so does Next once the quiz is complete.
func Reduce(s QuizState, e Event) QuizState {
	switch e := e.(type) {
	case Flip:
		if s.Complete() {
			return s
		}
		s.Flipped = !s.Flipped
	case AnswerSelfEval:
		if s.Answered || s.Complete() {
			return s
		}
		s.Answered = true
		s.Flipped = true
		s.SelectedCorrect = e.KnewIt
		s = s.tally(e.KnewIt)
	case AnswerMCQ:
		if s.Answered || s.Complete() {
			return s
		}
		s.Answered = true
		s.SelectedLetter = e.Letter
		s.SelectedCorrect = e.Correct
		s = s.tally(e.Correct)
	case Next:
		if s.Complete() {
			return s
		}
		s.Index++
		s.Flipped = false
		s.Answered = false
		s.SelectedLetter = ""
		s.SelectedCorrect = false
	case Reset:
		return NewQuiz(s.Total)
	}
	return s
}

func (s QuizState) tally(correct bool) QuizState {
	if correct {
		s.Correct++
	} else {
		s.Incorrect++
	}
	return s
}

// Complete reports whether every card has been passed.
func (s QuizState) Complete() bool {
	return s.Index >= s.Total
}

// ProgressPercent is the share of cards passed, 0 to 100. An empty quiz is at 0.
func (s QuizState) ProgressPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Index) / float64(s.Total) * 100
}

// QuizView is a state with its derived values, as sent to clients.
type QuizView struct {
	QuizState
	ProgressPercent float64 `json:"progress_percent"`
	Complete        bool    `json:"complete"`
}

// View returns s with its derived values.
func (s QuizState) View() QuizView {
	return QuizView{QuizState: s, ProgressPercent: s.ProgressPercent(), Complete: s.Complete()}
}

// ParseEvent maps the name of an event without payload to its value.
func ParseEvent(name string) (Event, error) {
	switch name {
	case "flip":
		return Flip{}, nil
	case "next":
		return Next{}, nil
	case "reset":
		return Reset{}, nil
	}
	return nil, fmt.Errorf("unknown quiz event %q", name)
}
