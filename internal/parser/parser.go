// Package parser reads flashcards from markdown deck files.
//
// A card starts with "Q:" and may carry "A:" (answer), "E:" (explanation)
// and "D:" (difficulty) fields. Lines of the form "A) text" are options of a
// multiple-choice card; a trailing " *" marks the correct one. Cards are
// separated by "---" or by the next "Q:".
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/lavariyalabs/snapy/internal/domain"
)

const (
	questionPrefix    = "Q:"
	answerPrefix      = "A:"
	explanationPrefix = "E:"
	difficultyPrefix  = "D:"
	separator         = "---"
	correctMarker     = "*"
)

var optionLine = regexp.MustCompile(`^([A-Da-d])\)\s*(.*)$`)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingExplanation
	readingTail // after an option or D: line; free text extends the last option
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Flashcard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cards, nil
}

// Parse reads from an io.Reader and extracts all cards in file order. Each
// card's OrderIndex is its position. Cards with options are MCQ.
func Parse(r io.Reader) ([]domain.Flashcard, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.line(scanner.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type cardParser struct {
	cards []domain.Flashcard
	card  domain.Flashcard
	block []string
	state state
}

func trimPrefix(line, prefix string) string {
	content := line[len(prefix):]
	return strings.TrimPrefix(content, " ")
}

func (p *cardParser) line(line string) error {
	if strings.TrimSpace(line) == separator {
		p.finishCard()
		return nil
	}

	switch {
	case strings.HasPrefix(line, questionPrefix):
		if p.state != seeking { // A new question always starts a new card
			p.finishCard()
		}
		p.startBlock(readingQuestion, trimPrefix(line, questionPrefix))
	case p.state == seeking:
		// Text outside a card is ignored.
	case strings.HasPrefix(line, answerPrefix):
		p.startBlock(readingAnswer, trimPrefix(line, answerPrefix))
	case strings.HasPrefix(line, explanationPrefix):
		p.startBlock(readingExplanation, trimPrefix(line, explanationPrefix))
	case strings.HasPrefix(line, difficultyPrefix):
		p.flushBlock()
		d, err := domain.ParseDifficulty(trimPrefix(line, difficultyPrefix))
		if err != nil {
			return err
		}
		p.card.Difficulty = d
		p.state = readingTail
	case optionLine.MatchString(line):
		p.flushBlock()
		p.addOption(line)
		p.state = readingTail
	case p.state == readingTail:
		if text := strings.TrimSpace(line); text != "" && len(p.card.Options) > 0 {
			last := &p.card.Options[len(p.card.Options)-1]
			last.Text += " " + text
		}
	default:
		p.block = append(p.block, line)
	}
	return nil
}

func (p *cardParser) addOption(line string) {
	m := optionLine.FindStringSubmatch(line)
	text := strings.TrimSpace(m[2])
	correct := false
	if strings.HasSuffix(text, " "+correctMarker) || text == correctMarker {
		correct = true
		text = strings.TrimSpace(strings.TrimSuffix(text, correctMarker))
	}
	p.card.Options = append(p.card.Options, domain.QuizOption{
		Text:       text,
		Letter:     strings.ToUpper(m[1]),
		IsCorrect:  correct,
		OrderIndex: len(p.card.Options),
	})
}

func (p *cardParser) startBlock(s state, first string) {
	p.flushBlock()
	p.state = s
	p.block = append(p.block, first)
}

func (p *cardParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.state {
	case readingQuestion:
		p.card.Question = content
	case readingAnswer:
		p.card.Answer = content
	case readingExplanation:
		p.card.Explanation = content
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flushBlock()
	if p.card.Question != "" {
		p.card.Type = domain.SelfEval
		if len(p.card.Options) > 0 {
			p.card.Type = domain.MCQ
		}
		if p.card.Difficulty == "" {
			p.card.Difficulty = domain.Medium
		}
		p.card.OrderIndex = len(p.cards)
		p.cards = append(p.cards, p.card)
	}
	p.card = domain.Flashcard{}
	p.state = seeking
}
