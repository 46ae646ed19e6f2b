package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 打开内存 SQLite 并自动迁移所有结果表
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&schema.Detection{},
		&schema.PaddedStay{},
		&schema.PhaseDuration{},
		&schema.PositionTime{},
		&schema.PositionVisits{},
		&schema.OccupancyTick{},
		&schema.PairwiseMeeting{},
		&schema.TimeAlone{},
		&schema.Sociability{},
		&schema.ChaseMatch{},
		&schema.ChaseCount{},
		&schema.RankEstimate{},
		&schema.RankSnapshot{},
		&schema.PhaseEndRank{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
