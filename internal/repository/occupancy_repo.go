package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// OccupancyRepository 占位栅格仓储
type OccupancyRepository struct {
	db *gorm.DB
}

// NewOccupancyRepository 创建占位栅格仓储
func NewOccupancyRepository(db *gorm.DB) *OccupancyRepository {
	return &OccupancyRepository{db: db}
}

// ReplaceAll 整表替换
func (r *OccupancyRepository) ReplaceAll(ctx context.Context, rows []schema.OccupancyTick) error {
	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.OccupancyTick{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 1000).Error
	})
	if err != nil {
		return fmt.Errorf("写入 occupancy_ticks 失败: %w", err)
	}

	slog.Debug("occupancy_ticks 表已替换", "rows", len(rows), "duration", time.Since(start))
	return nil
}

// All 按刻度排序返回全表
func (r *OccupancyRepository) All(ctx context.Context) ([]schema.OccupancyTick, error) {
	var rows []schema.OccupancyTick
	err := r.db.WithContext(ctx).
		Order("tick ASC").Order("animal_id ASC").Order("cage ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 occupancy_ticks 失败: %w", err)
	}
	return rows, nil
}

// Count 返回行数
func (r *OccupancyRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.OccupancyTick{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 occupancy_ticks 失败: %w", err)
	}
	return n, nil
}

// AloneTickCount 独处刻度数：某刻某笼（同一相位注释下）只有一只动物在内。
// 先按 (tick, cage, phase, day, phase_count) 聚出单动物格，再按动物汇总刻度数。
type AloneTickCount struct {
	Phase      string
	Day        int
	PhaseCount int
	AnimalID   string
	Cage       string
	Ticks      int64
}

// AloneTicks 统计每动物每相位段每笼的独处刻度数
func (r *OccupancyRepository) AloneTicks(ctx context.Context) ([]AloneTickCount, error) {
	var rows []AloneTickCount
	err := r.db.WithContext(ctx).Raw(`
		SELECT phase, day, phase_count, animal_id, cage, COUNT(*) AS ticks
		FROM (
			SELECT tick, cage, phase, day, phase_count, MAX(animal_id) AS animal_id
			FROM occupancy_ticks
			WHERE is_in
			GROUP BY tick, cage, phase, day, phase_count
			HAVING COUNT(*) = 1
		)
		GROUP BY phase, day, phase_count, animal_id, cage
		ORDER BY phase, day, phase_count, animal_id, cage
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计独处刻度失败: %w", err)
	}
	return rows, nil
}
