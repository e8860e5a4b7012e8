package main

import (
	"context"
	"time"

	"tux/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// cronServer runs the scheduled maintenance jobs as a Kratos
// transport so their lifecycle follows the application's.
type cronServer struct {
	cron   *cron.Cron
	logger *log.Helper
}

// newCronServer registers the scheduled jobs:
//   - temp ban expiry, every minute
//   - lock table sweep, every 5 minutes
func newCronServer(tempbans *biz.TempBanExpiryTask, locks *biz.LockManager, logger log.Logger) (*cronServer, error) {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := tempbans.ExpireTempBans(ctx); err != nil {
			helper.Errorw("temp ban expiry task failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	_, err = c.AddFunc("0 */5 * * * *", func() {
		if removed := locks.CleanLocks(); removed > 0 {
			helper.Infow("lock sweep completed", "removed", removed)
		}
	})
	if err != nil {
		return nil, err
	}

	return &cronServer{cron: c, logger: helper}, nil
}

// Start begins the schedule.
func (s *cronServer) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("cron scheduler started: temp ban expiry every minute, lock sweep every 5 minutes")
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *cronServer) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("cron scheduler stopped")
	return nil
}
