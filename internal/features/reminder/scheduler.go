package reminder

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/config"
	"go-approvals/internal/features/archive"
	"go-approvals/internal/features/notification"
	"go-approvals/internal/features/request"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const runTimeout = 2 * time.Minute

// Scheduler runs the background jobs: overdue reminders and the audit
// archive flush. Schedules come from config, not from the database; the
// job set is fixed.
type Scheduler struct {
	cfg      *config.Config
	requests request.Repository
	notifier *notification.Dispatcher
	archiver *archive.Archiver
	logger   *zap.Logger

	cron *cron.Cron
}

func NewScheduler(
	cfg *config.Config,
	requests request.Repository,
	notifier *notification.Dispatcher,
	archiver *archive.Archiver,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		requests: requests,
		notifier: notifier,
		archiver: archiver,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.cfg.ReminderSpec, s.runReminders); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	if s.archiver.Enabled() {
		if _, err := s.cron.AddFunc(s.cfg.ArchiveSpec, s.runArchiveFlush); err != nil {
			return fmt.Errorf("failed to schedule archive flush: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("reminder_spec", s.cfg.ReminderSpec),
		zap.String("archive_spec", s.cfg.ArchiveSpec),
		zap.Bool("archive_enabled", s.archiver.Enabled()),
	)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// runReminders nudges undecided approvers on every overdue request.
// Sends are at-least-once; reminders are informational only and never
// change request state.
func (s *Scheduler) runReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	overdue, err := s.requests.ListOverdue(ctx, time.Now())
	if err != nil {
		s.logger.Error("reminder run: failed to list overdue requests", zap.Error(err))
		return
	}
	if len(overdue) == 0 {
		return
	}

	for i := range overdue {
		s.notifier.Remind(ctx, &overdue[i])
	}
	s.logger.Info("reminder run complete", zap.Int("overdue_requests", len(overdue)))
}

func (s *Scheduler) runArchiveFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := s.archiver.Flush(ctx); err != nil {
		s.logger.Error("archive flush failed", zap.Error(err))
	}
}
