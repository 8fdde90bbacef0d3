package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiredTokenCleaner deletes revocation records whose tokens have expired.
type ExpiredTokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

const sweepTimeout = 30 * time.Second

// CleanupManager periodically prunes the revoked token table. Once a token
// has expired the signature check rejects it anyway, so its revocation row
// is dead weight.
type CleanupManager struct {
	cleaner  ExpiredTokenCleaner
	logger   *slog.Logger
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewCleanupManager(cleaner ExpiredTokenCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		cleaner:  cleaner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once immediately and then on every tick. It blocks until
// Stop is called or ctx is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	defer close(cm.done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			cm.sweep(ctx)
		case <-cm.stopCh:
			cm.logger.Info("token cleanup stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("token cleanup context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	removed, err := cm.cleaner.CleanupExpiredTokens(sweepCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired tokens", slog.Any("error", err))
		return
	}
	if removed > 0 {
		cm.logger.Info("expired revoked tokens removed", slog.Int64("rows_deleted", removed))
	}
}

// Stop asks Start to return and waits until it has. Safe to call more than
// once; it must only be called after Start has been launched.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
	<-cm.done
}
