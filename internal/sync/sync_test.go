package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/storage"
)

func setup(t *testing.T) (*Syncer, *storage.DB, string) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "snapy.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	return New(db, log, clk, t.TempDir()), db, t.TempDir()
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const cellsDeck = `Q: Basic unit of life?
A: The cell
---
Q: Powerhouse of the cell?
A) Nucleus
B) Mitochondria *
`

func unitCards(t *testing.T, db *storage.DB) []domain.Flashcard {
	t.Helper()
	ctx := context.Background()
	grades, err := db.ListGrades(ctx)
	if err != nil || len(grades) != 1 {
		t.Fatalf("Expected 1 grade, got %d (%v)", len(grades), err)
	}
	subjects, _ := db.ListSubjects(ctx, grades[0].ID)
	terms, _ := db.ListTerms(ctx, subjects[0].ID)
	q, _ := storage.NewUnitQuery(terms[0].ID)
	units, _ := db.ListUnits(ctx, q)
	cq, _ := storage.NewCardQuery(units[0].ID)
	cards, err := db.ListFlashcards(ctx, cq)
	if err != nil {
		t.Fatalf("Failed to list cards: %v", err)
	}
	return cards
}

func TestRunSyncLocalSource(t *testing.T) {
	s, db, root := setup(t)
	ctx := context.Background()

	writeFile(t, root, "grade-10/science/01-term-one/01-cells.md", cellsDeck)
	writeFile(t, root, "README.txt", "not a deck")

	id, err := db.InsertSource(ctx, root, storage.SourceLocal)
	if err != nil {
		t.Fatal(err)
	}

	report, err := s.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Sources != 1 || report.Parsed != 2 || report.Created != 2 || len(report.Errors) != 0 {
		t.Errorf("Unexpected report %+v", report)
	}

	cards := unitCards(t, db)
	if len(cards) != 2 || cards[1].Type != domain.MCQ || len(cards[1].Options) != 2 {
		t.Fatalf("Unexpected cards %+v", cards)
	}

	// A second run finds nothing new.
	report, err = s.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Created != 0 || report.Deleted != 0 {
		t.Errorf("Expected an idempotent sync, but got %+v", report)
	}

	// Editing a card replaces it.
	writeFile(t, root, "grade-10/science/01-term-one/01-cells.md", "Q: Basic unit of life?\nA: The cell\n")
	report, err = s.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Deleted != 1 {
		t.Errorf("Expected 1 orphan deleted, but got %+v", report)
	}
	if got := len(unitCards(t, db)); got != 1 {
		t.Errorf("Expected 1 card left, but got %d", got)
	}

	sources, _ := db.GetAllSources(ctx)
	if sources[0].ID != id || !sources[0].LastScanned.Valid {
		t.Errorf("Expected last_scanned to be stamped, but got %+v", sources[0])
	}
}

func TestRunSyncKeepsOrphansOnParseError(t *testing.T) {
	s, db, root := setup(t)
	ctx := context.Background()

	writeFile(t, root, "grade-10/science/01-term-one/01-cells.md", cellsDeck)
	if _, err := db.InsertSource(ctx, root, storage.SourceLocal); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RunSync(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "grade-10/science/01-term-one/01-cells.md", "Q: broken\nD: impossible\n")
	report, err := s.RunSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) == 0 {
		t.Fatal("Expected a parse error to be reported")
	}
	if report.Deleted != 0 {
		t.Errorf("Expected no deletions after an error, but got %d", report.Deleted)
	}
	if got := len(unitCards(t, db)); got != 2 {
		t.Errorf("Expected 2 cards kept, but got %d", got)
	}
}

func TestRunSyncInvalidCardReported(t *testing.T) {
	s, db, root := setup(t)
	ctx := context.Background()

	// Two correct options make the MCQ invalid.
	writeFile(t, root, "g/s/01-t/01-u.md", "Q: ok\nA: fine\n---\nQ: bad\nA) x *\nB) y *\n")
	if _, err := db.InsertSource(ctx, root, storage.SourceLocal); err != nil {
		t.Fatal(err)
	}
	report, err := s.RunSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || len(report.Errors) != 1 {
		t.Errorf("Expected 1 created and 1 error, but got %+v", report)
	}
}

func TestRunSyncNoSources(t *testing.T) {
	s, _, _ := setup(t)
	report, err := s.RunSync(context.Background())
	if err != nil || report.Sources != 0 {
		t.Errorf("Expected an empty run, got %+v, %v", report, err)
	}
}

func TestImportFile(t *testing.T) {
	s, db, root := setup(t)
	ctx := context.Background()

	yamlPath := writeFile(t, root, "deck.yaml", `
grade: Grade 9
subject: Maths
term:
  number: 2
units:
  - name: Algebra
    cards:
      - question: Solve x+1=2
        answer: x=1
`)
	report, err := s.ImportFile(ctx, yamlPath, 0)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("Expected 1 created card, but got %+v", report)
	}
	cards := unitCards(t, db)
	if len(cards) != 1 {
		t.Fatalf("Expected 1 card, but got %d", len(cards))
	}

	// Markdown into an explicit unit, no path convention needed.
	mdPath := writeFile(t, root, "loose.md", "Q: Extra\nA: Card\n")
	if _, err := s.ImportFile(ctx, mdPath, cards[0].UnitID); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if got := len(unitCards(t, db)); got != 2 {
		t.Errorf("Expected 2 cards, but got %d", got)
	}

	if _, err := s.ImportFile(ctx, mdPath, 9999); err == nil {
		t.Error("Expected an error for an unknown unit")
	}
}
