package deck

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// Workbook columns, matched case-insensitively against the header row.
const (
	colGrade       = "grade"
	colSubject     = "subject"
	colSubjectCode = "subject_code"
	colTerm        = "term"
	colTermName    = "term_name"
	colUnit        = "unit"
	colUnitOrder   = "unit_order"
	colType        = "type"
	colQuestion    = "question"
	colAnswer      = "answer"
	colExplanation = "explanation"
	colDifficulty  = "difficulty"
	colCorrect     = "correct"
)

var optionColumns = []string{"option_a", "option_b", "option_c", "option_d"}

var requiredColumns = []string{colGrade, colSubject, colTerm, colUnit, colQuestion}

// LoadWorkbook reads the first sheet of an xlsx workbook at path.
func LoadWorkbook(path string) ([]Unit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	units, err := unitsFromWorkbook(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// ReadWorkbook is LoadWorkbook over an io.Reader.
func ReadWorkbook(r io.Reader) ([]Unit, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return unitsFromWorkbook(f)
}

// unitsFromWorkbook turns one card per row into units, grouping rows by
// grade, subject, term and unit in first-seen order.
func unitsFromWorkbook(f *excelize.File) ([]Unit, error) {
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make(map[string]int)
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("sheet %q: missing column %q", sheet, col)
		}
	}

	var units []Unit
	byKey := make(map[string]int)
	for i, row := range rows[1:] {
		rowNum := i + 2
		cell := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if cell(colQuestion) == "" {
			continue
		}

		u, err := unitFromRow(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		idx, ok := byKey[u.Key()]
		if !ok {
			idx = len(units)
			byKey[u.Key()] = idx
			units = append(units, u)
		}

		c, err := cardFromRow(cell, len(units[idx].Cards))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		units[idx].Cards = append(units[idx].Cards, c)
	}
	return units, nil
}

func unitFromRow(cell func(string) string) (Unit, error) {
	term, err := strconv.Atoi(cell(colTerm))
	if err != nil {
		return Unit{}, fmt.Errorf("invalid term number %q", cell(colTerm))
	}
	order := 0
	if s := cell(colUnitOrder); s != "" {
		if order, err = strconv.Atoi(s); err != nil {
			return Unit{}, fmt.Errorf("invalid unit order %q", s)
		}
	}
	return Unit{
		Grade:       cell(colGrade),
		Subject:     cell(colSubject),
		SubjectCode: cell(colSubjectCode),
		TermNumber:  term,
		TermName:    cell(colTermName),
		Name:        cell(colUnit),
		OrderIndex:  order,
	}, nil
}

func cardFromRow(cell func(string) string, order int) (domain.Flashcard, error) {
	difficulty, err := domain.ParseDifficulty(cell(colDifficulty))
	if err != nil {
		return domain.Flashcard{}, err
	}

	c := domain.Flashcard{
		Question:    cell(colQuestion),
		Answer:      cell(colAnswer),
		Explanation: cell(colExplanation),
		Difficulty:  difficulty,
		OrderIndex:  order,
	}

	correct := strings.ToUpper(cell(colCorrect))
	for i, col := range optionColumns {
		text := cell(col)
		if text == "" {
			continue
		}
		letter := optionLetter("", i)
		c.Options = append(c.Options, domain.QuizOption{
			Text:       text,
			Letter:     letter,
			IsCorrect:  letter == correct,
			OrderIndex: len(c.Options),
		})
	}

	typ := cell(colType)
	if typ == "" && len(c.Options) > 0 {
		typ = string(domain.MCQ)
	}
	if c.Type, err = domain.ParseCardType(typ); err != nil {
		return domain.Flashcard{}, err
	}
	return c, nil
}
