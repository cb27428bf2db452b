package etl

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is anything that performs one ETL cycle.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler triggers a Runner on a cron schedule. A tick that fires while the previous run is
// still going is skipped.
type Scheduler struct {
	runner     Runner
	schedule   string
	runOnStart bool
	logger     *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running sync.Mutex
}

// NewScheduler validates the cron schedule and builds a Scheduler. Schedules accept an optional
// seconds field and descriptors such as "@every 6h".
func NewScheduler(runner Runner, schedule string, runOnStart bool, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("etl_scheduler")
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		),
	)
	s := &Scheduler{
		runner:     runner,
		schedule:   schedule,
		runOnStart: runOnStart,
		logger:     logger,
		cron:       c,
	}
	if schedule != "" {
		if _, err := c.AddFunc(schedule, s.tick); err != nil {
			return nil, fmt.Errorf("parse etl schedule %q: %w", schedule, err)
		}
	}
	return s, nil
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Start begins scheduling. Runs use a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.schedule == "" {
		s.logger.Info("etl schedule disabled")
	} else {
		s.cron.Start()
		s.logger.Info("etl scheduler started", zap.String("schedule", s.schedule))
	}
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("etl scheduler stopped")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		s.logger.Info("etl run still in progress, skipping tick")
		return
	}
	defer s.running.Unlock()
	res, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled etl run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled etl run finished",
		zap.Int("fetched", res.Fetched),
		zap.Int("written", res.Written),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
