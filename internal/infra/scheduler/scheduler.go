package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"poidh_notification_service/internal/app"
)

// DispatchScheduler fires the dispatch tick on a fixed interval. Overlapping
// fires are skipped, not run concurrently: a tick that overruns its period
// holds the single-flight slot until it finishes.
type DispatchScheduler struct {
	cronEngine  *cron.Cron
	job         cron.Job
	logger      *logrus.Logger
	interval    time.Duration
	tickTimeout time.Duration
	startupRun  sync.WaitGroup
}

func NewDispatchScheduler(
	dispatcher app.EventDispatcher,
	logger *logrus.Logger,
	interval time.Duration,
) *DispatchScheduler {
	s := &DispatchScheduler{
		cronEngine:  cron.New(cron.WithLocation(time.UTC)),
		logger:      logger,
		interval:    interval,
		tickTimeout: time.Minute,
	}

	tick := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
		defer cancel()

		if err := dispatcher.ProcessPendingEvents(ctx); err != nil {
			logger.Errorf("Error during dispatch tick: %v", err)
		}
	}
	// The startup pass and the scheduled fires share one chained job, so the
	// skip-if-still-running guard covers both.
	s.job = cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))).
		Then(cron.FuncJob(tick))

	return s
}

func (s *DispatchScheduler) Start() {
	s.logger.Infof("Starting dispatch scheduler with a %s interval...", s.interval)

	s.cronEngine.Schedule(cron.Every(s.interval), s.job)
	s.cronEngine.Start()

	// One immediate pass before the ticker takes over, so a restart does not
	// wait a full interval to drain the backlog. It runs outside the cron
	// engine, so Stop tracks it separately.
	s.startupRun.Add(1)
	go func() {
		defer s.startupRun.Done()
		s.job.Run()
	}()

	s.logger.Info("Dispatch scheduler started.")
}

// Stop halts scheduling and waits for in-flight ticks to drain, the startup
// pass included.
func (s *DispatchScheduler) Stop() {
	s.logger.Info("Stopping dispatch scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.startupRun.Wait()
	s.logger.Info("Dispatch scheduler gracefully stopped.")
}
