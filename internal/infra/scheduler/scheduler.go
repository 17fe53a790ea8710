package scheduler

import (
	"context"
	"time"

	"visa_case_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScanScheduler drives the deadline notification engine on a fixed tick.
// It owns the timer only; the scan logic lives in app.DeadlineService and is
// callable without the scheduler. The service's own overlap guard ensures a
// slow scan delays rather than doubles the next one.
type ScanScheduler struct {
	cronEngine *cron.Cron
	deadlines  *app.DeadlineService
	logger     *logrus.Entry
	cronSpec   string
}

func NewScanScheduler(
	ds *app.DeadlineService,
	logger *logrus.Entry,
	cronSpec string, // e.g. "@every 1m"
) *ScanScheduler {
	return &ScanScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		deadlines:  ds,
		logger:     logger,
		cronSpec:   cronSpec,
	}
}

func (s *ScanScheduler) Start() {
	s.logger.Info("Starting deadline scan scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := s.deadlines.RunScan(ctx, time.Now()); err != nil {
			// One bad tick never disables future ticks.
			s.logger.WithError(err).Error("Deadline scan tick failed")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add deadline scan cron job: %v", err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Deadline scan scheduler started")
}

func (s *ScanScheduler) Stop() {
	s.logger.Info("Stopping deadline scan scheduler...")
	ctx := s.cronEngine.Stop() // Stops scheduling new runs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Deadline scan scheduler gracefully stopped.")
}
