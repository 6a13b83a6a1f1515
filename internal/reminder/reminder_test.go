package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
)

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type fakeUsers []domain.User

func (f fakeUsers) ListUsers(context.Context) ([]domain.User, error) { return f, nil }

type fakeStore struct {
	progress.Store
	records map[string][]domain.UserProgress
}

func (f *fakeStore) ListProgress(_ context.Context, userID string, _ []int64) ([]domain.UserProgress, error) {
	if userID == "broken" {
		return nil, progress.Transient(errors.New("refused"))
	}
	return f.records[userID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string]int
}

func (n *recordingNotifier) SendReminder(_ context.Context, u domain.User, due int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[u.ID] = due
	return nil
}

func TestCheck(t *testing.T) {
	users := fakeUsers{{ID: "a"}, {ID: "b"}, {ID: "broken"}, {ID: "fresh"}}
	store := &fakeStore{records: map[string][]domain.UserProgress{
		"a": {
			{FlashcardID: 1, NextReviewDate: now.Add(-time.Hour)},
			{FlashcardID: 2, NextReviewDate: now},
			{FlashcardID: 3, NextReviewDate: now.Add(time.Hour)},
		},
		"b": {{FlashcardID: 1, NextReviewDate: now.AddDate(0, 0, 3)}},
	}}
	notifier := &recordingNotifier{sent: make(map[string]int)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := New(users, store, notifier, clock.NewFake(now), log, time.Hour)
	sent, err := s.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("Expected 1 reminder, but got %d", sent)
	}
	if notifier.sent["a"] != 2 {
		t.Errorf("Expected 2 due cards for a, but got %d", notifier.sent["a"])
	}
	if _, ok := notifier.sent["b"]; ok {
		t.Error("Expected no reminder for a user with nothing due")
	}
}

func TestStartStop(t *testing.T) {
	notifier := &recordingNotifier{sent: make(map[string]int)}
	store := &fakeStore{records: map[string][]domain.UserProgress{
		"a": {{FlashcardID: 1, NextReviewDate: now}},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(fakeUsers{{ID: "a"}}, store, notifier, clock.NewFake(now), log, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// gocron runs the job once immediately on start.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		notifier.mu.Lock()
		n := notifier.sent["a"]
		notifier.mu.Unlock()
		if n == 1 {
			s.Stop()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()
	t.Error("Expected the job to run after Start")
}
