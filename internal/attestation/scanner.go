package attestation

import (
	"context"
	"log/slog"
	"time"
)

// Scanner periodically sweeps over-due attestations into the expired state.
type Scanner struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration
}

func NewScanner(service *Service, logger *slog.Logger, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scanner{service: service, logger: logger, interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled. Sweep
// failures are logged and retried on the next tick.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired, err := s.service.MarkExpired(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				s.logger.InfoContext(ctx, "expired attestations", "count", expired)
			}
		}
	}
}
