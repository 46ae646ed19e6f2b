package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// ActivityRepository 活动类汇总表仓储（相位时长、位置停留、到访次数）
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建活动仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ReplacePhaseDurations 整表替换相位时长
func (r *ActivityRepository) ReplacePhaseDurations(ctx context.Context, rows []schema.PhaseDuration) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PhaseDuration{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 phase_durations 失败: %w", err)
	}
	return nil
}

// PhaseDurations 返回全部相位时长
func (r *ActivityRepository) PhaseDurations(ctx context.Context) ([]schema.PhaseDuration, error) {
	var rows []schema.PhaseDuration
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("phase_count ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 phase_durations 失败: %w", err)
	}
	return rows, nil
}

// ReplacePositionTimes 整表替换位置停留时长
func (r *ActivityRepository) ReplacePositionTimes(ctx context.Context, rows []schema.PositionTime) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PositionTime{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 position_times 失败: %w", err)
	}
	return nil
}

// PositionTimes 返回全部位置停留时长
func (r *ActivityRepository) PositionTimes(ctx context.Context) ([]schema.PositionTime, error) {
	var rows []schema.PositionTime
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("phase_count ASC").Order("position ASC").Order("animal_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 position_times 失败: %w", err)
	}
	return rows, nil
}

// CountPositionTimes 返回位置停留表行数
func (r *ActivityRepository) CountPositionTimes(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.PositionTime{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 position_times 失败: %w", err)
	}
	return n, nil
}

// ReplacePositionVisits 整表替换到访次数
func (r *ActivityRepository) ReplacePositionVisits(ctx context.Context, rows []schema.PositionVisits) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PositionVisits{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 position_visits 失败: %w", err)
	}
	return nil
}

// PositionVisits 返回全部到访次数
func (r *ActivityRepository) PositionVisits(ctx context.Context) ([]schema.PositionVisits, error) {
	var rows []schema.PositionVisits
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("phase_count ASC").Order("position ASC").Order("animal_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 position_visits 失败: %w", err)
	}
	return rows, nil
}
