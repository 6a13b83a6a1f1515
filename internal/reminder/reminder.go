// Package reminder periodically tells users how many cards are waiting for review.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/domain"
	"github.com/lavariyalabs/snapy/internal/progress"
)

// Notifier delivers a reminder to a user.
type Notifier interface {
	SendReminder(ctx context.Context, user domain.User, due int) error
}

// UserLister lists the users to check.
type UserLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) SendReminder(_ context.Context, user domain.User, due int) error {
	n.Log.Info("Cards due for review", "user", user.ID, "name", user.Name, "due", due)
	return nil
}

// Scheduler manages the periodic reminder job.
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     UserLister
	store     progress.Store
	notifier  Notifier
	clock     clock.Clock
	log       *slog.Logger
	interval  time.Duration
}

// New creates a scheduler that checks every interval.
func New(users UserLister, store progress.Store, notifier Notifier, clk clock.Clock, log *slog.Logger, interval time.Duration) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		users:     users,
		store:     store,
		notifier:  notifier,
		clock:     clk,
		log:       log,
		interval:  interval,
	}
}

// Start schedules the check and runs it in the background until ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		if _, err := s.Check(ctx); err != nil {
			s.log.Error("Reminder check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	s.scheduler.StartAsync()
	s.log.Info("Reminders scheduled", "interval", s.interval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop terminates the scheduled job.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Check notifies every user with at least one reviewed card that is due and
// returns the number of reminders sent. A failure for one user does not stop
// the others.
func (s *Scheduler) Check(ctx context.Context) (int, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	now := s.clock.Now()
	sent := 0
	for _, user := range users {
		records, err := s.store.ListProgress(ctx, user.ID, nil)
		if err != nil {
			s.log.Warn("Error getting progress for user", "user", user.ID, "error", err)
			continue
		}
		due := 0
		for i := range records {
			if records[i].Due(now) {
				due++
			}
		}
		if due == 0 {
			continue
		}
		if err := s.notifier.SendReminder(ctx, user, due); err != nil {
			s.log.Warn("Error sending reminder", "user", user.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
