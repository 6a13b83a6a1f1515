package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
	"github.com/lavariyalabs/snapy/internal/session"
	"github.com/lavariyalabs/snapy/internal/storage"
	"github.com/lavariyalabs/snapy/internal/sync"
)

type fixture struct {
	srv    *Server
	unitID int64
	selfID int64
	mcqID  int64
	clock  *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "snapy.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	gradeID, _ := db.EnsureGrade(ctx, domain.Grade{Name: "Grade 10"})
	subjectID, _ := db.EnsureSubject(ctx, domain.Subject{GradeID: gradeID, Name: "Science"})
	termID, _ := db.EnsureTerm(ctx, domain.Term{SubjectID: subjectID, TermNumber: 1, Name: "Term 1"})
	unitID, err := db.EnsureUnit(ctx, domain.Unit{TermID: termID, Name: "Cells"})
	if err != nil {
		t.Fatalf("Failed to seed hierarchy: %v", err)
	}

	self := &domain.Flashcard{UnitID: unitID, Type: domain.SelfEval, Question: "Unit of life?", Answer: "Cell", Difficulty: domain.Easy, OrderIndex: 0, Fingerprint: "a"}
	mcq := &domain.Flashcard{UnitID: unitID, Type: domain.MCQ, Question: "Powerhouse?", Difficulty: domain.Medium, OrderIndex: 1, Fingerprint: "b",
		Options: []domain.QuizOption{{Text: "Nucleus", Letter: "A"}, {Text: "Mitochondria", Letter: "B", IsCorrect: true, OrderIndex: 1}}}
	for _, c := range []*domain.Flashcard{self, mcq} {
		if _, err := db.UpsertFlashcard(ctx, c, nil); err != nil {
			t.Fatalf("Failed to seed card: %v", err)
		}
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	study := session.NewService(db, db, clk, nil, log)
	syncer := sync.New(db, log, clk, t.TempDir())
	return &fixture{srv: NewServer(db, study, syncer, clk, log, 0), unitID: unitID, selfID: self.ID, mcqID: mcq.ID, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/grades", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
	grades := decode[[]domain.Grade](t, rec)
	if len(grades) != 1 || grades[0].Name != "Grade 10" {
		t.Errorf("Unexpected grades %+v", grades)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/units/%d/flashcards", f.unitID), nil)
	cards := decode[[]domain.Flashcard](t, rec)
	if len(cards) != 2 || len(cards[1].Options) != 2 {
		t.Errorf("Unexpected cards %+v", cards)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/units/%d/flashcards?type=mcq", f.unitID), nil)
	cards = decode[[]domain.Flashcard](t, rec)
	if len(cards) != 1 || cards[0].Type != domain.MCQ {
		t.Errorf("Expected only the MCQ card, but got %+v", cards)
	}

	rec = f.do(t, http.MethodGet, "/api/grades/1/subjects", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, but got %d", rec.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown flashcard", http.MethodGet, "/api/flashcards/999", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/flashcards/abc", nil, http.StatusBadRequest},
		{"unknown unit", http.MethodGet, "/api/units/999/flashcards", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, fmt.Sprintf("/api/users/u1/units/%d/due?limit=-2", f.unitID), nil, http.StatusBadRequest},
		{"bad type", http.MethodGet, fmt.Sprintf("/api/units/%d/flashcards?type=essay", f.unitID), nil, http.StatusBadRequest},
		{"no progress", http.MethodGet, fmt.Sprintf("/api/users/u1/flashcards/%d/progress", f.selfID), nil, http.StatusNotFound},
		{"unknown user", http.MethodGet, "/api/users/nobody", nil, http.StatusNotFound},
		{"invalid user", http.MethodPost, "/api/users", map[string]string{"language": "en"}, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/grades", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, but got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{progress.Transient(errors.New("refused")), http.StatusServiceUnavailable},
		{fmt.Errorf("x: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", domain.ErrInvalidOutcome), http.StatusUnprocessableEntity},
		{badRequest{"nope"}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, but got %d", tt.err, tt.want, got)
		}
	}
}

func TestStudyFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users", map[string]string{"name": "Nimali"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rec.Code, rec.Body.String())
	}
	user := decode[domain.User](t, rec)
	if !user.CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("Expected created_at %v, but got %v", f.clock.Now(), user.CreatedAt)
	}

	duePath := fmt.Sprintf("/api/users/%s/units/%d/due", user.ID, f.unitID)
	due := decode[[]domain.Flashcard](t, f.do(t, http.MethodGet, duePath, nil))
	if len(due) != 2 {
		t.Fatalf("Expected 2 due cards, but got %d", len(due))
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/%s/flashcards/%d/review", user.ID, f.mcqID),
		map[string]any{"selected_letter": "B", "time_taken_ms": 3200})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[session.ReviewResult](t, rec)
	if res.Outcome != domain.Correct || res.CorrectLetter != "B" || res.Progress.Interval != 1 {
		t.Errorf("Unexpected review result %+v", res)
	}

	due = decode[[]domain.Flashcard](t, f.do(t, http.MethodGet, duePath+"?limit=5", nil))
	if len(due) != 1 || due[0].ID != f.selfID {
		t.Errorf("Expected only the self-eval card due, but got %+v", due)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s/flashcards/%d/progress", user.ID, f.mcqID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, but got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/%s/flashcards/%d/skip", user.ID, f.selfID), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, but got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/%s/flashcards/999999/skip", user.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when skipping an unknown card, but got %d", rec.Code)
	}

	stats := decode[session.UnitStats](t, f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s/units/%d/stats", user.ID, f.unitID), nil))
	if stats != (session.UnitStats{Total: 2, New: 1, Learning: 1}) {
		t.Errorf("Unexpected stats %+v", stats)
	}

	history := decode[[]domain.QuizResponse](t, f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s/responses", user.ID), nil))
	if len(history) != 2 {
		t.Errorf("Expected 2 responses, but got %d", len(history))
	}
	history = decode[[]domain.QuizResponse](t, f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s/responses?limit=1", user.ID), nil))
	if len(history) != 1 {
		t.Errorf("Expected 1 response with a limit, but got %d", len(history))
	}

	f.clock.Advance(time.Hour)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/%s/login", user.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
	if u := decode[domain.User](t, rec); u.LastLogin == nil || !u.LastLogin.Equal(f.clock.Now()) {
		t.Errorf("Expected last login %v, but got %v", f.clock.Now(), u.LastLogin)
	}
	if rec := f.do(t, http.MethodPost, "/api/users/ghost/login", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown user, but got %d", rec.Code)
	}
}

func TestSourceRoutes(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	rec := f.do(t, http.MethodPost, "/api/sources", map[string]string{"path": dir})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rec.Code, rec.Body.String())
	}
	src := decode[storage.Source](t, rec)
	if src.Type != storage.SourceLocal {
		t.Errorf("Expected a local source, but got %q", src.Type)
	}

	if rec := f.do(t, http.MethodPost, "/api/sources", map[string]string{"path": dir}); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate, but got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/sources", map[string]string{"path": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty path, but got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
	report := decode[map[string]any](t, rec)
	if report["sources"] != float64(1) {
		t.Errorf("Expected 1 source synced, but got %v", report["sources"])
	}

	sources := decode[[]storage.Source](t, f.do(t, http.MethodGet, "/api/sources", nil))
	if len(sources) != 1 {
		t.Fatalf("Expected 1 source, but got %d", len(sources))
	}

	if rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/sources/%d", src.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, but got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/sources/%d", src.ID), nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, but got %d", rec.Code)
	}
}

func TestQuizRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/quiz", map[string]any{"event": "start", "total": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[session.QuizView](t, rec)
	if view.Total != 2 || view.Complete {
		t.Fatalf("Unexpected start state %+v", view)
	}

	view = decode[session.QuizView](t, f.do(t, http.MethodPost, "/api/quiz", map[string]any{"event": "flip", "state": view.QuizState}))
	if !view.Flipped {
		t.Errorf("Expected a flipped card, but got %+v", view)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/u1/flashcards/%d/review", f.selfID),
		map[string]any{"knew_it": true, "quiz": view.QuizState})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[session.ReviewResult](t, rec)
	if res.Quiz == nil || res.Quiz.Correct != 1 || !res.Quiz.Answered {
		t.Fatalf("Expected the review to answer the quiz card, but got %+v", res.Quiz)
	}

	view = decode[session.QuizView](t, f.do(t, http.MethodPost, "/api/quiz", map[string]any{"event": "next", "state": res.Quiz.QuizState}))
	if view.Index != 1 || view.ProgressPercent != 50 {
		t.Errorf("Expected the second card at 50%%, but got %+v", view)
	}

	bad := []map[string]any{
		{"event": "jump", "state": view.QuizState},
		{"event": "next"},
		{"event": "start", "total": -1},
	}
	for _, body := range bad {
		if rec := f.do(t, http.MethodPost, "/api/quiz", body); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %v, but got %d", body, rec.Code)
		}
	}
}
