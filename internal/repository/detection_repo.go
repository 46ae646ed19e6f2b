package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// DetectionRepository 主数据结构（注释后的天线读数）仓储
type DetectionRepository struct {
	db *gorm.DB
}

// NewDetectionRepository 创建读数仓储
func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// ReplaceAll 整表替换。重算永远覆盖整张表，不做行级修补。
func (r *DetectionRepository) ReplaceAll(ctx context.Context, rows []schema.Detection) error {
	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.Detection{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 detections 失败: %w", err)
	}

	slog.Debug("detections 表已替换", "rows", len(rows), "duration", time.Since(start))
	return nil
}

// All 按时间（同刻按动物）排序返回全表
func (r *DetectionRepository) All(ctx context.Context) ([]schema.Detection, error) {
	var rows []schema.Detection
	err := r.db.WithContext(ctx).
		Order("datetime ASC").
		Order("animal_id ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 detections 失败: %w", err)
	}
	return rows, nil
}

// ByAnimals 返回指定动物集合的读数，按时间排序
func (r *DetectionRepository) ByAnimals(ctx context.Context, animalIDs []string) ([]schema.Detection, error) {
	var rows []schema.Detection
	err := r.db.WithContext(ctx).
		Where("animal_id IN ?", animalIDs).
		Order("datetime ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 detections 失败: %w", err)
	}
	return rows, nil
}

// Count 返回行数
func (r *DetectionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.Detection{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 detections 失败: %w", err)
	}
	return n, nil
}

// TimeBounds 返回全表最早与最晚的读数时刻（微秒）
func (r *DetectionRepository) TimeBounds(ctx context.Context) (int64, int64, error) {
	type bounds struct {
		Min int64
		Max int64
	}
	var b bounds
	err := r.db.WithContext(ctx).Model(&schema.Detection{}).
		Select("MIN(datetime) AS min, MAX(datetime) AS max").
		Scan(&b).Error
	if err != nil {
		return 0, 0, fmt.Errorf("查询时间范围失败: %w", err)
	}
	return b.Min, b.Max, nil
}
