package services

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobService runs the scheduled background jobs: reminders for stale
// approvals and cleanup of expired refresh tokens
type JobService struct {
	cron             *cron.Cron
	cfg              config.JobsConfig
	requestRepo      *repositories.ApprovalRequestRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	notifier         *NotificationService
	now              func() time.Time
	log              zerolog.Logger
}

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewJobService creates a new job service
func NewJobService(
	cfg config.JobsConfig,
	requestRepo *repositories.ApprovalRequestRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	notifier *NotificationService,
) *JobService {
	log := logger.New("jobs")
	return &JobService{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{log: log}),
			cron.WithChain(cron.Recover(cronLogger{log: log}), cron.SkipIfStillRunning(cronLogger{log: log})),
		),
		cfg:              cfg,
		requestRepo:      requestRepo,
		refreshTokenRepo: refreshTokenRepo,
		notifier:         notifier,
		now:              time.Now,
		log:              log,
	}
}

// Start registers the jobs and starts the scheduler
func (s *JobService) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ReminderCron, func() { s.RemindStale(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.TokenCleanupCron, func() { s.CleanupTokens(context.Background()) }); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().
		Str("reminder", s.cfg.ReminderCron).
		Str("token_cleanup", s.cfg.TokenCleanupCron).
		Msg("job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *JobService) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("job scheduler stopped")
}

// RemindStale notifies the current approvers of every open request that
// has not moved for the configured number of hours. Returns the count reminded.
func (s *JobService) RemindStale(ctx context.Context) int {
	before := s.now().Add(-time.Duration(s.cfg.ReminderStaleHours) * time.Hour)

	list, err := s.requestRepo.ListStale(ctx, activeStatuses(), before)
	if err != nil {
		s.log.Error().Err(err).Msg("list stale approval requests failed")
		return 0
	}

	for _, req := range list {
		s.notifier.Remind(ctx, req)
	}

	if len(list) > 0 {
		s.log.Info().Int("count", len(list)).Msg("stale approval reminders sent")
	}
	return len(list)
}

// CleanupTokens deletes expired refresh tokens
func (s *JobService) CleanupTokens(ctx context.Context) int64 {
	n, err := s.refreshTokenRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("delete expired refresh tokens failed")
		return 0
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("expired refresh tokens deleted")
	}
	return n
}
