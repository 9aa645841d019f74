package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs periodic jobs on cron expressions. A run that is still going
// when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	timeout time.Duration
}

func NewScheduler(logger zerolog.Logger, timeout time.Duration) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		timeout: timeout,
	}
}

// Add registers fn under spec. Each run gets its own deadline derived from ctx.
func (s *Scheduler) Add(ctx context.Context, name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		runCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := fn(runCtx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done and running jobs return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

type cronLogger struct {
	zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
