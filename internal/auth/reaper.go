package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunReaper deactivates expired sessions every interval until ctx is done.
// Expiry is enforced on lookup regardless; this only keeps storage tidy.
// A non-positive interval returns immediately.
func (m *SessionManager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Reap(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.Warn("session reap failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Info("expired sessions reaped", zap.Int64("count", n))
			}
		}
	}
}
