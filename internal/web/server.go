// Package web serves the study API over HTTP as JSON.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
	"github.com/lavariyalabs/snapy/internal/session"
	"github.com/lavariyalabs/snapy/internal/sm2"
	"github.com/lavariyalabs/snapy/internal/storage"
	"github.com/lavariyalabs/snapy/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db           *storage.DB
	study        *session.Service
	syncer       *sync.Syncer
	clock        clock.Clock
	router       *http.ServeMux
	log          *slog.Logger
	defaultLimit int
}

// NewServer creates and configures a new server. defaultLimit caps due-card
// lists when the request names no limit; zero means no cap.
func NewServer(db *storage.DB, study *session.Service, syncer *sync.Syncer, clk clock.Clock, log *slog.Logger, defaultLimit int) *Server {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	s := &Server{
		db:           db,
		study:        study,
		syncer:       syncer,
		clock:        clk,
		router:       http.NewServeMux(),
		log:          log,
		defaultLimit: defaultLimit,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	// Catalog
	s.router.HandleFunc("GET /api/grades", s.handleListGrades())
	s.router.HandleFunc("GET /api/grades/{id}/subjects", s.handleListSubjects())
	s.router.HandleFunc("GET /api/subjects/{id}/terms", s.handleListTerms())
	s.router.HandleFunc("GET /api/terms/{id}/units", s.handleListUnits())
	s.router.HandleFunc("GET /api/units/{id}/flashcards", s.handleListFlashcards())
	s.router.HandleFunc("GET /api/flashcards/{id}", s.handleGetFlashcard())

	// Users and study
	s.router.HandleFunc("POST /api/users", s.handleCreateUser())
	s.router.HandleFunc("GET /api/users/{user}", s.handleGetUser())
	s.router.HandleFunc("POST /api/users/{user}/login", s.handleLogin())
	s.router.HandleFunc("GET /api/users/{user}/responses", s.handleResponses())
	s.router.HandleFunc("GET /api/users/{user}/units/{id}/due", s.handleDueCards())
	s.router.HandleFunc("GET /api/users/{user}/units/{id}/stats", s.handleUnitStats())
	s.router.HandleFunc("GET /api/users/{user}/flashcards/{id}/progress", s.handleGetProgress())
	s.router.HandleFunc("POST /api/users/{user}/flashcards/{id}/review", s.handlePostReview())
	s.router.HandleFunc("POST /api/users/{user}/flashcards/{id}/skip", s.handlePostSkip())
	s.router.HandleFunc("POST /api/quiz", s.handlePostQuiz())

	// Source management
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code and writes it as {"error": "..."}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	var bad badRequest
	switch {
	case errors.Is(err, progress.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOutcome):
		return http.StatusUnprocessableEntity
	case errors.As(err, &verrs), errors.As(err, &bad):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest{"invalid " + name + " " + strconv.Quote(r.PathValue(name))}
	}
	return id, nil
}

func (s *Server) handleListGrades() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grades, err := s.db.ListGrades(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(grades))
	}
}

func (s *Server) handleListSubjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		subjects, err := s.db.ListSubjects(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(subjects))
	}
}

func (s *Server) handleListTerms() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		terms, err := s.db.ListTerms(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(terms))
	}
}

func (s *Server) handleListUnits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		q, err := storage.NewUnitQuery(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		units, err := s.db.ListUnits(r.Context(), q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(units))
	}
}

// cardQuery builds the query for the {id} unit from the type and limit parameters.
func (s *Server) cardQuery(r *http.Request, defaultLimit int) (storage.CardQuery, error) {
	unitID, err := pathID(r, "id")
	if err != nil {
		return storage.CardQuery{}, err
	}
	if _, err := s.db.GetUnit(r.Context(), unitID); err != nil {
		return storage.CardQuery{}, err
	}

	opts := []storage.CardQueryOption{storage.WithLimit(defaultLimit)}
	if t := r.URL.Query().Get("type"); t != "" {
		ct, err := domain.ParseCardType(t)
		if err != nil {
			return storage.CardQuery{}, badRequest{err.Error()}
		}
		opts = append(opts, storage.OfType(ct))
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			return storage.CardQuery{}, badRequest{"invalid limit " + strconv.Quote(l)}
		}
		opts = append(opts, storage.WithLimit(n))
	}
	return storage.NewCardQuery(unitID, opts...)
}

func (s *Server) handleListFlashcards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.cardQuery(r, 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.db.ListFlashcards(r.Context(), q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleGetFlashcard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		card, err := s.db.GetFlashcard(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, card)
	}
}

func (s *Server) handleCreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u domain.User
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			s.writeError(w, r, badRequest{"invalid user: " + err.Error()})
			return
		}
		u.ID = ""
		if err := s.db.CreateUser(r.Context(), &u, s.clock.Now()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, u)
	}
}

func (s *Server) handleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.db.GetUser(r.Context(), r.PathValue("user"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, u)
	}
}

// handleLogin stamps the user's last login and returns the user.
func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.PathValue("user")
		if err := s.db.TouchLogin(r.Context(), user, s.clock.Now()); err != nil {
			s.writeError(w, r, err)
			return
		}
		u, err := s.db.GetUser(r.Context(), user)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) handleResponses() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := s.defaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				s.writeError(w, r, badRequest{"invalid limit"})
				return
			}
			limit = n
		}
		history, err := s.study.History(r.Context(), r.PathValue("user"), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(history))
	}
}

func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.cardQuery(r, s.defaultLimit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.study.DueCards(r.Context(), r.PathValue("user"), q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleUnitStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.cardQuery(r, 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		stats, err := s.study.UnitStats(r.Context(), r.PathValue("user"), q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := s.study.Progress(r.Context(), r.PathValue("user"), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if p == nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no progress recorded"})
			return
		}
		s.writeJSON(w, http.StatusOK, p)
	}
}

type reviewRequest struct {
	KnewIt         bool               `json:"knew_it"`
	SelectedLetter string             `json:"selected_letter"`
	TimeTakenMs    int64              `json:"time_taken_ms"`
	Quiz           *session.QuizState `json:"quiz"`
}

// handlePostReview processes a review and returns the new schedule.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var body reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, badRequest{"invalid review: " + err.Error()})
			return
		}
		if body.TimeTakenMs < 0 {
			s.writeError(w, r, badRequest{"time_taken_ms must not be negative"})
			return
		}

		res, err := s.study.Review(r.Context(), session.ReviewRequest{
			UserID:      r.PathValue("user"),
			FlashcardID: id,
			Answer:      sm2.Answer{KnewIt: body.KnewIt, SelectedLetter: body.SelectedLetter},
			TimeTaken:   time.Duration(body.TimeTakenMs) * time.Millisecond,
			Quiz:        body.Quiz,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

type quizRequest struct {
	Event string             `json:"event" validate:"required,oneof=start flip next reset"`
	Total int                `json:"total" validate:"gte=0"`
	State *session.QuizState `json:"state" validate:"required_unless=Event start"`
}

// handlePostQuiz advances a client-held quiz state by one event. "start"
// opens a quiz over total cards.
func (s *Server) handlePostQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body quizRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, badRequest{"invalid quiz event: " + err.Error()})
			return
		}
		if err := validate.Struct(body); err != nil {
			s.writeError(w, r, err)
			return
		}

		if body.Event == "start" {
			s.writeJSON(w, http.StatusOK, session.NewQuiz(body.Total).View())
			return
		}
		event, err := session.ParseEvent(body.Event)
		if err != nil {
			s.writeError(w, r, badRequest{err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, session.Reduce(*body.State, event).View())
	}
}

func (s *Server) handlePostSkip() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.study.Skip(r.Context(), r.PathValue("user"), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetSources lists the configured sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(sources))
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
	Type string `json:"type" validate:"omitempty,oneof=local git"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// handlePostSource adds a new source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, badRequest{"invalid source: " + err.Error()})
			return
		}
		if err := validate.Struct(body); err != nil {
			s.writeError(w, r, err)
			return
		}
		if body.Type == "" {
			body.Type = storage.SourceType(body.Path)
		}

		existing, err := s.db.FindSourceByPath(r.Context(), body.Path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if existing != nil {
			s.writeJSON(w, http.StatusConflict, map[string]string{"error": "source already exists"})
			return
		}

		id, err := s.db.InsertSource(r.Context(), body.Path, body.Type)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, storage.Source{ID: id, Path: body.Path, Type: body.Type})
	}
}

// handleDeleteSource deletes a source.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns its report.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.RunSync(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"sources":       report.Sources,
			"parsed_cards":  report.Parsed,
			"created_cards": report.Created,
			"deleted_cards": report.Deleted,
			"errors":        report.ErrorStrings(),
		})
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
