package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes assignments past the stale window.
// Correctness never depends on it: reads filter by last_seen on their own
type Sweeper struct {
	service *Service
	log     *slog.Logger
	timeout time.Duration
	cron    *cron.Cron
}

func NewSweeper(service *Service, interval, timeout time.Duration, log *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cl := cronLogger{log: log}
	s := &Sweeper{
		service: service,
		log:     log,
		timeout: timeout,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	if _, err := s.cron.AddFunc("@every "+interval.String(), s.Sweep); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.log.Info("stale sweeper started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep or ctx, whichever ends first
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("stale sweeper stopped")
	case <-ctx.Done():
		s.log.Warn("stale sweeper did not stop in time")
	}
}

// Sweep runs one cleanup pass
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.service.CleanupStale(ctx)
	if err != nil {
		s.log.Error("stale sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		s.log.Info("stale assignments removed",
			"deleted", deleted,
			"duration", time.Since(start))
	}
}

// cronLogger routes cron's own messages into slog
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
