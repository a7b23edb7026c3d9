package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/spotwall/radbridge/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultMaxSessionAge is how long an accounting row may stay open
// without a stop record before the sweeper treats it as abandoned.
const DefaultMaxSessionAge = 24 * time.Hour

// StaleCloser is the slice of the store the sweeper needs.
type StaleCloser interface {
	SweepStale(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error)
}

// Sweeper batch-closes abandoned accounting rows. It is bookkeeping
// only: the NAS is assumed unreachable or the session already dead, so
// no Disconnect-Request is attempted. Safe to run on a schedule or on
// demand; re-running immediately closes nothing.
type Sweeper struct {
	dir     StaleCloser
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSweeper creates a sweeper. metrics may be nil.
func NewSweeper(dir StaleCloser, logger *zap.Logger, m *metrics.Metrics) (*Sweeper, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory store required")
	}
	return &Sweeper{
		dir:     dir,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Sweep closes every session open longer than maxAge as one set-based
// update and returns the number of rows closed. maxAge <= 0 uses the
// default.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxSessionAge
	}

	closed, err := s.dir.SweepStale(ctx, maxAge, s.now())
	if err != nil {
		return 0, fmt.Errorf("stale session sweep failed: %w", err)
	}

	s.metrics.RecordSweep(closed)
	s.logger.Info("Stale session sweep complete",
		zap.Duration("max_age", maxAge),
		zap.Int64("closed", closed),
	)
	return closed, nil
}
