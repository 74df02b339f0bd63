package engine

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collectline/lcse/internal/models"
)

// GormRecordWriter persists CallRecord rows by upserting on call_id, one
// evolving row per call rather than a literal append-only log (spec §6's
// "status-update rows" read as successive updates to the same call's row).
type GormRecordWriter struct {
	db *gorm.DB
}

func NewGormRecordWriter(db *gorm.DB) *GormRecordWriter {
	return &GormRecordWriter{db: db}
}

func (w *GormRecordWriter) Upsert(ctx context.Context, rec models.CallRecord) error {
	return w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "call_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stage", "current_language", "initial_language", "ended_at", "outcome", "summary", "updated_at"}),
		}).
		Create(&rec).Error
}
