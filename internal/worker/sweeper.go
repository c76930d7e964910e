package worker

import (
	"context"
	"log/slog"
	"time"
)

// CycleSweeper re-evaluates open cycles that may have been left behind by a
// failed post-contribution evaluation.
type CycleSweeper interface {
	Sweep(ctx context.Context)
}

// RequestExpirer closes join requests past their deadline.
type RequestExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper periodically runs the two reconciliation safety nets. It is the
// backstop, not the primary path: both jobs operate on conditional updates,
// so overlapping with live request handling is harmless.
type Sweeper struct {
	cycles   CycleSweeper
	requests RequestExpirer
	interval time.Duration
}

// NewSweeper creates a new sweeper
func NewSweeper(cycles CycleSweeper, requests RequestExpirer, interval time.Duration) *Sweeper {
	return &Sweeper{cycles: cycles, requests: requests, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.cycles.Sweep(ctx)

	expired, err := s.requests.ExpireStale(ctx)
	if err != nil {
		slog.Error("failed to expire stale join requests", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("expired stale join requests", "count", expired)
	}
}
