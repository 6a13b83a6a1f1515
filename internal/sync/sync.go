// Package sync reconciles the flashcard catalog with the decks found in the
// configured sources.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/deck"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/fingerprint"
	"github.com/lavariyalabs/snapy/internal/gitsource"
	"github.com/lavariyalabs/snapy/internal/parser"
	"github.com/lavariyalabs/snapy/internal/storage"
)

// Report summarizes one sync or import run.
type Report struct {
	Sources int     `json:"sources"`
	Parsed  int     `json:"parsed_cards"`
	Created int     `json:"created_cards"`
	Deleted int     `json:"deleted_cards"`
	Errors  []error `json:"-"`
}

// ErrorStrings renders Errors for JSON responses.
func (r *Report) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

func (r *Report) add(o Report) {
	r.Parsed += o.Parsed
	r.Created += o.Created
	r.Deleted += o.Deleted
	r.Errors = append(r.Errors, o.Errors...)
}

// Syncer walks sources and writes their decks into the catalog.
type Syncer struct {
	db       *storage.DB
	log      *slog.Logger
	clock    clock.Clock
	reposDir string
}

// New returns a Syncer that keeps git clones under reposDir.
func New(db *storage.DB, log *slog.Logger, clk clock.Clock, reposDir string) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Syncer{db: db, log: log, clock: clk, reposDir: reposDir}
}

// RunSync iterates over all sources and reconciles them. Problems with a
// single source or file are collected in the report, not returned.
func (s *Syncer) RunSync(ctx context.Context) (Report, error) {
	s.log.Info("Starting sync process for all sources...")
	var report Report

	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.log.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.log.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		report.Sources++

		root := source.Path
		if source.Type == storage.SourceGit {
			root, err = s.checkout(ctx, source.Path)
			if err != nil {
				s.log.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
		}
		report.add(s.reconcile(ctx, source, root))
	}

	s.log.Info("Sync process complete.",
		"sources", report.Sources,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Syncer) checkout(ctx context.Context, repoURL string) (string, error) {
	local, err := gitsource.LocalPath(s.reposDir, repoURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(local), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, s.log, repoURL, local); err != nil {
		return "", err
	}
	return local, nil
}

// reconcile stores every card found under root and deletes the source's cards
// that are gone. Orphans are kept when any file failed to load, so a broken
// file does not wipe the progress on its cards.
func (s *Syncer) reconcile(ctx context.Context, source storage.Source, root string) Report {
	var report Report
	found := make(map[int64]bool)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !deck.IsDeckFile(d.Name()) {
			return nil
		}

		units, loadErr := deck.Load(root, path)
		if loadErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, loadErr))
			return nil
		}
		for i := range units {
			r := s.storeUnit(ctx, &units[i], &source.ID, found)
			report.add(r)
		}
		return nil
	})
	if walkErr != nil {
		s.log.Error("Error walking directory", "path", root, "error", walkErr)
		report.Errors = append(report.Errors, walkErr)
		return report
	}

	if len(report.Errors) == 0 {
		report.Deleted = s.deleteOrphans(ctx, source.ID, found)
	} else {
		s.log.Warn("Skipping orphan cleanup after errors", "source_id", source.ID, "errors", len(report.Errors))
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, s.clock.Now()); err != nil {
		s.log.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.log.Info("reconciliation complete",
		"path", root,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report
}

func (s *Syncer) deleteOrphans(ctx context.Context, sourceID int64, found map[int64]bool) int {
	stored, err := s.db.ListFlashcardsBySource(ctx, sourceID)
	if err != nil {
		s.log.Error("Error getting cards for source", "source_id", sourceID, "error", err)
		return 0
	}
	deleted := 0
	for _, c := range stored {
		if found[c.ID] {
			continue
		}
		s.log.Info("Orphaned card, deleting", "id", c.ID, "fingerprint", c.Fingerprint)
		if err := s.db.DeleteFlashcard(ctx, c.ID); err != nil {
			s.log.Warn("Failed to delete orphaned card", "id", c.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// storeUnit ensures the unit's place in the hierarchy and upserts its cards.
// The ids of stored cards are added to found.
func (s *Syncer) storeUnit(ctx context.Context, u *deck.Unit, sourceID *int64, found map[int64]bool) Report {
	var report Report
	unitID, err := s.ensureUnit(ctx, u)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return report
	}
	report.add(s.storeCards(ctx, unitID, u.Key(), u.Cards, sourceID, found))
	return report
}

func (s *Syncer) storeCards(ctx context.Context, unitID int64, unitKey string, cards []domain.Flashcard, sourceID *int64, found map[int64]bool) Report {
	var report Report
	for i := range cards {
		card := &cards[i]
		report.Parsed++

		card.UnitID = unitID
		card.Fingerprint = fingerprint.Of(card)
		if err := card.Validate(); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("unit %s: %w", unitKey, err))
			continue
		}
		created, err := s.db.UpsertFlashcard(ctx, card, sourceID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("unit %s: %w", unitKey, err))
			continue
		}
		if created {
			s.log.Info("New card found, inserting...", "id", card.ID, "fingerprint", card.Fingerprint)
			report.Created++
		}
		found[card.ID] = true
	}
	return report
}

func (s *Syncer) ensureUnit(ctx context.Context, u *deck.Unit) (int64, error) {
	gradeID, err := s.db.EnsureGrade(ctx, domain.Grade{Name: u.Grade})
	if err != nil {
		return 0, err
	}
	subjectID, err := s.db.EnsureSubject(ctx, domain.Subject{GradeID: gradeID, Name: u.Subject, Code: u.SubjectCode})
	if err != nil {
		return 0, err
	}
	termName := u.TermName
	if termName == "" {
		termName = fmt.Sprintf("Term %d", u.TermNumber)
	}
	termID, err := s.db.EnsureTerm(ctx, domain.Term{SubjectID: subjectID, TermNumber: u.TermNumber, Name: termName})
	if err != nil {
		return 0, err
	}
	return s.db.EnsureUnit(ctx, domain.Unit{TermID: termID, Name: u.Name, Description: u.Description, OrderIndex: u.OrderIndex})
}

// ImportFile loads a single deck file outside of any source. With unitID set,
// every card goes into that unit and the markdown path convention is not
// needed. Imported cards are never removed by a sync.
func (s *Syncer) ImportFile(ctx context.Context, path string, unitID int64) (Report, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var report Report
	found := make(map[int64]bool)
	if unitID > 0 {
		if _, err := s.db.GetUnit(ctx, unitID); err != nil {
			return report, err
		}
		cards, err := loadCards(abs)
		if err != nil {
			return report, err
		}
		report.add(s.storeCards(ctx, unitID, fmt.Sprintf("#%d", unitID), cards, nil, found))
	} else {
		units, err := deck.Load(string(filepath.Separator), abs)
		if err != nil {
			return report, err
		}
		for i := range units {
			report.add(s.storeUnit(ctx, &units[i], nil, found))
		}
	}

	s.log.Info("Import complete",
		"path", abs,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"errors", len(report.Errors),
	)
	if len(report.Errors) > 0 {
		return report, errors.Join(report.Errors...)
	}
	return report, nil
}

// loadCards reads the cards of a deck file, ignoring any hierarchy it names.
func loadCards(path string) ([]domain.Flashcard, error) {
	if strings.EqualFold(filepath.Ext(path), ".md") {
		return parser.ParseFile(path)
	}
	units, err := deck.Load(filepath.Dir(path), path)
	if err != nil {
		return nil, err
	}
	var cards []domain.Flashcard
	for _, u := range units {
		for _, c := range u.Cards {
			c.OrderIndex = len(cards)
			cards = append(cards, c)
		}
	}
	return cards, nil
}
