package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lavariyalabs/snapy/internal/domain"
)

// ListGrades retrieves all grades ordered by id.
func (db *DB) ListGrades(ctx context.Context) ([]domain.Grade, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, description FROM grades ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list grades: %w", classify(err))
	}
	defer rows.Close()

	var grades []domain.Grade
	for rows.Next() {
		var g domain.Grade
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, fmt.Errorf("failed to scan grade row: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// ListSubjects retrieves the subjects of a grade.
func (db *DB) ListSubjects(ctx context.Context, gradeID int64) ([]domain.Subject, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, grade_id, name, code, description
		FROM subjects WHERE grade_id = ? ORDER BY id
	`, gradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects for grade %d: %w", gradeID, classify(err))
	}
	defer rows.Close()

	var subjects []domain.Subject
	for rows.Next() {
		var s domain.Subject
		if err := rows.Scan(&s.ID, &s.GradeID, &s.Name, &s.Code, &s.Description); err != nil {
			return nil, fmt.Errorf("failed to scan subject row: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// ListTerms retrieves the terms of a subject ordered by term number.
func (db *DB) ListTerms(ctx context.Context, subjectID int64) ([]domain.Term, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, subject_id, term_number, name, description
		FROM terms WHERE subject_id = ? ORDER BY term_number
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list terms for subject %d: %w", subjectID, classify(err))
	}
	defer rows.Close()

	var terms []domain.Term
	for rows.Next() {
		var t domain.Term
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.TermNumber, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan term row: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ListUnits retrieves the units of a term ordered by their order index.
func (db *DB) ListUnits(ctx context.Context, q UnitQuery) ([]domain.Unit, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, term_id, name, description, order_index
		FROM units WHERE term_id = ? ORDER BY order_index, id
	`, q.TermID)
	if err != nil {
		return nil, fmt.Errorf("failed to list units for term %d: %w", q.TermID, classify(err))
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.TermID, &u.Name, &u.Description, &u.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// GetUnit retrieves a unit by id.
func (db *DB) GetUnit(ctx context.Context, id int64) (*domain.Unit, error) {
	var u domain.Unit
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, term_id, name, description, order_index FROM units WHERE id = ?
	`, id).Scan(&u.ID, &u.TermID, &u.Name, &u.Description, &u.OrderIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit %d: %w", id, classify(err))
	}
	return &u, nil
}

const flashcardColumns = `id, unit_id, type, question, answer, explanation, difficulty, order_index, fingerprint`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlashcard(row rowScanner) (domain.Flashcard, error) {
	var c domain.Flashcard
	err := row.Scan(&c.ID, &c.UnitID, &c.Type, &c.Question, &c.Answer, &c.Explanation,
		&c.Difficulty, &c.OrderIndex, &c.Fingerprint)
	return c, err
}

// ListFlashcards retrieves the cards matching q ordered by order index then id.
// MCQ cards carry their options.
func (db *DB) ListFlashcards(ctx context.Context, q CardQuery) ([]domain.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards WHERE unit_id = ?`
	args := []any{q.UnitID}
	if q.Type != "" {
		query += ` AND type = ?`
		args = append(args, q.Type)
	}
	query += ` ORDER BY order_index, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	cards, err := db.queryFlashcards(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards for unit %d: %w", q.UnitID, err)
	}
	if err := db.attachOptions(ctx, cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetFlashcard retrieves one card with its options.
func (db *DB) GetFlashcard(ctx context.Context, id int64) (*domain.Flashcard, error) {
	c, err := scanFlashcard(db.conn.QueryRowContext(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flashcard %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get flashcard %d: %w", id, classify(err))
	}
	cards := []domain.Flashcard{c}
	if err := db.attachOptions(ctx, cards); err != nil {
		return nil, err
	}
	return &cards[0], nil
}

// ListFlashcardsBySource retrieves the cards imported from a source, without options.
func (db *DB) ListFlashcardsBySource(ctx context.Context, sourceID int64) ([]domain.Flashcard, error) {
	cards, err := db.queryFlashcards(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

func (db *DB) queryFlashcards(ctx context.Context, query string, args ...any) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		c, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// attachOptions loads options for the MCQ cards in one query. The rows of the
// card query must be closed before calling it.
func (db *DB) attachOptions(ctx context.Context, cards []domain.Flashcard) error {
	index := make(map[int64]int)
	var ids []any
	for i, c := range cards {
		if c.Type == domain.MCQ {
			index[c.ID] = i
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, flashcard_id, option_text, option_letter, is_correct, order_index
		FROM quiz_options WHERE flashcard_id IN (`+placeholders(len(ids))+`)
		ORDER BY flashcard_id, order_index, option_letter
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to load quiz options: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.QuizOption
		if err := rows.Scan(&o.ID, &o.FlashcardID, &o.Text, &o.Letter, &o.IsCorrect, &o.OrderIndex); err != nil {
			return fmt.Errorf("failed to scan quiz option row: %w", err)
		}
		i := index[o.FlashcardID]
		cards[i].Options = append(cards[i].Options, o)
	}
	return rows.Err()
}

// EnsureGrade returns the id of the grade with name, creating it if needed.
func (db *DB) EnsureGrade(ctx context.Context, g domain.Grade) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO grades (name, description) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = CASE WHEN excluded.description = '' THEN grades.description ELSE excluded.description END
		RETURNING id
	`, g.Name, g.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure grade %q: %w", g.Name, classify(err))
	}
	return id, nil
}

// EnsureSubject returns the id of the subject (s.GradeID, s.Name), creating it if needed.
func (db *DB) EnsureSubject(ctx context.Context, s domain.Subject) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO subjects (grade_id, name, code, description) VALUES (?, ?, ?, ?)
		ON CONFLICT(grade_id, name) DO UPDATE SET
			code = CASE WHEN excluded.code = '' THEN subjects.code ELSE excluded.code END
		RETURNING id
	`, s.GradeID, s.Name, s.Code, s.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure subject %q: %w", s.Name, classify(err))
	}
	return id, nil
}

// EnsureTerm returns the id of the term (t.SubjectID, t.TermNumber), creating it if needed.
func (db *DB) EnsureTerm(ctx context.Context, t domain.Term) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO terms (subject_id, term_number, name, description) VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id, term_number) DO UPDATE SET name = excluded.name
		RETURNING id
	`, t.SubjectID, t.TermNumber, t.Name, t.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure term %d: %w", t.TermNumber, classify(err))
	}
	return id, nil
}

// EnsureUnit returns the id of the unit (u.TermID, u.Name), creating it if
// needed and refreshing its order index.
func (db *DB) EnsureUnit(ctx context.Context, u domain.Unit) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO units (term_id, name, description, order_index) VALUES (?, ?, ?, ?)
		ON CONFLICT(term_id, name) DO UPDATE SET order_index = excluded.order_index
		RETURNING id
	`, u.TermID, u.Name, u.Description, u.OrderIndex).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure unit %q: %w", u.Name, classify(err))
	}
	return id, nil
}

// UpsertFlashcard inserts card with its options unless a card with the same
// fingerprint already exists in the unit, in which case only its order index
// and source are refreshed. It reports whether a new row was created.
func (db *DB) UpsertFlashcard(ctx context.Context, card *domain.Flashcard, sourceID *int64) (bool, error) {
	created := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM flashcards WHERE unit_id = ? AND fingerprint = ?`,
			card.UnitID, card.Fingerprint).Scan(&id)
		switch {
		case err == nil:
			card.ID = id
			_, err = tx.ExecContext(ctx,
				`UPDATE flashcards SET order_index = ?, source_id = ? WHERE id = ?`,
				card.OrderIndex, nullInt64(sourceID), id)
			return classify(err)
		case !errors.Is(err, sql.ErrNoRows):
			return classify(err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO flashcards (unit_id, type, question, answer, explanation, difficulty, order_index, fingerprint, source_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, card.UnitID, card.Type, card.Question, card.Answer, card.Explanation,
			card.Difficulty, card.OrderIndex, card.Fingerprint, nullInt64(sourceID))
		if err != nil {
			return classify(err)
		}
		if card.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for i := range card.Options {
			o := &card.Options[i]
			o.FlashcardID = card.ID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO quiz_options (flashcard_id, option_text, option_letter, is_correct, order_index)
				VALUES (?, ?, ?, ?, ?)
			`, o.FlashcardID, o.Text, o.Letter, o.IsCorrect, o.OrderIndex)
			if err != nil {
				return classify(err)
			}
			if o.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert flashcard %q: %w", card.Question, err)
	}
	return created, nil
}

// DeleteFlashcard removes a card, its options and the progress recorded against it.
func (db *DB) DeleteFlashcard(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM flashcards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flashcard %d: %w", id, classify(err))
	}
	return nil
}
