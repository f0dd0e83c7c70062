package waitlist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically expires overdue offers so the queue advances even with
// no user traffic. It is safe to run alongside the lazy expiry in OfferNext
// and AcceptOffer: the underlying transition is idempotent.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a waitlist sweeper.
func NewSweeper(manager *Manager, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{manager: manager, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.manager.ExpireDue(ctx)
			if err != nil {
				s.logger.Error("waitlist sweep", zap.Error(err))
				continue
			}
			if expired > 0 {
				s.logger.Info("waitlist sweep expired offers", zap.Int("count", expired))
			}
		}
	}
}
