package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/metrics"
	"github.com/collectline/lcse/pkg/sessionstore"
)

// SweepStale expires CallRecord rows that never reached END within maxAge of
// their start and evicts their Session Store entries. A call ends up in
// this state when its process or WebSocket connection dropped without a
// stop/closed signal ever reaching the FSM, so neither pkg/fsm.finish nor
// the Session Store's own TTL ever ran for it.
func SweepStale(ctx context.Context, db *gorm.DB, store sessionstore.Store, maxAge time.Duration) (int, error) {
	log := logger.Named("sweep")
	cutoff := time.Now().Add(-maxAge)

	var stale []models.CallRecord
	if err := db.WithContext(ctx).
		Where("ended_at IS NULL AND started_at < ?", cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	now := time.Now()
	for _, rec := range stale {
		rec.Outcome = string(models.OutcomeTimeout)
		rec.EndedAt = &now
		if err := db.WithContext(ctx).Save(&rec).Error; err != nil {
			log.Warn("expiring stale call record failed", zap.String("call_id", rec.CallID), zap.Error(err))
			continue
		}
		if err := store.Delete(ctx, rec.CallID); err != nil {
			log.Warn("evicting stale session store entry failed", zap.String("call_id", rec.CallID), zap.Error(err))
		}
		metrics.CallOutcomes.WithLabelValues(string(models.OutcomeTimeout)).Inc()
		log.Info("expired stale call session", zap.String("call_id", rec.CallID))
	}
	return len(stale), nil
}
