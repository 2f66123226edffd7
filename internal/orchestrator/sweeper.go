package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval runs the retention sweep once a day
const DefaultSweepInterval = 24 * time.Hour

// Sweeper periodically removes expired terminal jobs. Nobody waits on it,
// so failures are only logged.
type Sweeper struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *slog.Logger
}

// NewSweeper creates a sweeper for the orchestrator
func NewSweeper(o *Orchestrator, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		orchestrator: o,
		interval:     interval,
		logger:       logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Retention sweeper started",
		slog.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.orchestrator.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Retention sweep failed",
			slog.Any("error", err),
		)
		return
	}
	if removed > 0 {
		s.logger.Info("Retention sweep removed expired jobs",
			slog.Int("removed", removed),
		)
	}
}
