package parser

import (
	"strings"
	"testing"

	"github.com/lavariyalabs/snapy/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedQ     string
		expectedA     string
		expectedE     string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of Sri Lanka?\nA: Sri Jayawardenepura Kotte",
			expectedCards: 1,
			expectedQ:     "What is the capital of Sri Lanka?",
			expectedA:     "Sri Jayawardenepura Kotte",
		},
		{
			name:          "Simple Q, A, and E",
			input:         "Q: What is 1+1?\nA: 2\nE: Basic arithmetic",
			expectedCards: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedE:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
		},
		{
			name: "Two Cards",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "Separator",
			input: `Q: First
A: One
---
Q: Second
A: Two`,
			expectedCards: 2,
		},
		{
			name:          "No cards, just text",
			input:         "This is a file with no questions.",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, card.Question)
				}
				if card.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, card.Answer)
				}
				if card.Explanation != tc.expectedE {
					t.Errorf("Expected Explanation to be '%s', but got '%s'", tc.expectedE, card.Explanation)
				}
				if card.Type != domain.SelfEval {
					t.Errorf("Expected type SELF_EVAL, but got %s", card.Type)
				}
				if card.Difficulty != domain.Medium {
					t.Errorf("Expected default difficulty MEDIUM, but got %s", card.Difficulty)
				}
			}
		})
	}
}

func TestParseMCQ(t *testing.T) {
	input := `
Q: Which organelle produces energy?
A) Nucleus
B) Mitochondria *
C) Golgi
   apparatus
D: hard
E: It runs cellular respiration.
---
Q: Order check
A: yes
`
	cards, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}

	mcq := cards[0]
	if mcq.Type != domain.MCQ {
		t.Errorf("Expected type MCQ, but got %s", mcq.Type)
	}
	if mcq.Difficulty != domain.Hard {
		t.Errorf("Expected difficulty HARD, but got %s", mcq.Difficulty)
	}
	if mcq.Explanation != "It runs cellular respiration." {
		t.Errorf("Unexpected explanation '%s'", mcq.Explanation)
	}
	if len(mcq.Options) != 3 {
		t.Fatalf("Expected 3 options, but got %d", len(mcq.Options))
	}
	correct, ok := mcq.CorrectOption()
	if !ok || correct.Letter != "B" || correct.Text != "Mitochondria" {
		t.Errorf("Expected B) Mitochondria to be correct, but got %+v", correct)
	}
	if got := mcq.Options[2].Text; got != "Golgi apparatus" {
		t.Errorf("Expected continued option text 'Golgi apparatus', but got '%s'", got)
	}
	if mcq.OrderIndex != 0 || cards[1].OrderIndex != 1 {
		t.Errorf("Expected order indexes 0 and 1, but got %d and %d", mcq.OrderIndex, cards[1].OrderIndex)
	}
}

func TestParseInvalidDifficulty(t *testing.T) {
	_, err := Parse(strings.NewReader("Q: x\nD: impossible"))
	if err == nil {
		t.Fatal("Expected an error for an unknown difficulty")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected the error to name line 2, but got %v", err)
	}
}
