package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsDerivedState(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&store.Post{}, &store.Comment{}, &store.PendingTransaction{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	post := store.Post{
		GroupID:   "group-1",
		ID:        "post-1",
		TrxID:     "trx-1",
		Publisher: "alice",
		Status:    store.StatusSynced,
		TimeStamp: 1,
		Summary:   store.PostSummary{LikeCount: 3, DislikeCount: 1, CommentCount: 2},
	}
	if err := database.Create(&post).Error; err != nil {
		testContext.Fatalf("failed to insert post: %v", err)
	}
	pending := []store.PendingTransaction{
		{GroupID: "group-1", TrxID: "trx-empty", Kind: "comment", RawValue: ""},
		{GroupID: "group-1", TrxID: "trx-kept", Kind: "comment", RawValue: `{"TrxId":"trx-kept"}`},
	}
	if err := database.Create(&pending).Error; err != nil {
		testContext.Fatalf("failed to insert pending rows: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored store.Post
	if err := database.Where("group_id = ? AND id = ?", post.GroupID, post.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload post: %v", err)
	}
	if stored.Summary.HotCount != 28 {
		testContext.Fatalf("expected hot count 28, got %d", stored.Summary.HotCount)
	}

	var remaining []store.PendingTransaction
	if err := database.Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to load pending rows: %v", err)
	}
	if len(remaining) != 1 || remaining[0].TrxID != "trx-kept" {
		testContext.Fatalf("expected only the replayable pending row to remain, got %#v", remaining)
	}

	var records []migrationRecord
	if err := database.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to load migration records: %v", err)
	}
	if len(records) != 2 {
		testContext.Fatalf("expected two migration records, got %d", len(records))
	}
	for _, record := range records {
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set for %s", record.Name)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}
}
