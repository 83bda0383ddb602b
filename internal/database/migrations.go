package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDropEmptyPending = "2026-09-02_drop_empty_pending"
	migrationBackfillHotCount = "2026-09-14_backfill_hot_count"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropEmptyPending, apply: dropEmptyPending},
		{name: migrationBackfillHotCount, apply: backfillHotCount},
	}

	for _, migration := range migrations {
		var record migrationRecord
		result := db.Where("name = ?", migration.name).Limit(1).Find(&record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			continue
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Pending rows without a stored transaction can never be replayed.
func dropEmptyPending(db *gorm.DB) error {
	return db.Where("raw_value = ''").Delete(&store.PendingTransaction{}).Error
}

func backfillHotCount(db *gorm.DB) error {
	const expression = "10 * (like_count - dislike_count) + 4 * comment_count"
	if err := db.Model(&store.Post{}).Where("1 = 1").Update("hot_count", gorm.Expr(expression)).Error; err != nil {
		return err
	}
	return db.Model(&store.Comment{}).Where("1 = 1").Update("hot_count", gorm.Expr(expression)).Error
}
