package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// ChaseRepository 追逐事件仓储。
// chase_matches 是排名引擎的唯一输入，必须保序保存全量记录，而不只是计数矩阵。
type ChaseRepository struct {
	db *gorm.DB
}

// NewChaseRepository 创建追逐仓储
func NewChaseRepository(db *gorm.DB) *ChaseRepository {
	return &ChaseRepository{db: db}
}

// ReplaceMatches 整表替换比赛记录，调用方保证 rows 已按时间排序
func (r *ChaseRepository) ReplaceMatches(ctx context.Context, rows []schema.ChaseMatch) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.ChaseMatch{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 chase_matches 失败: %w", err)
	}

	slog.Debug("chase_matches 表已替换", "rows", len(rows))
	return nil
}

// MatchesOrdered 按时间顺序返回全部比赛
func (r *ChaseRepository) MatchesOrdered(ctx context.Context) ([]schema.ChaseMatch, error) {
	var rows []schema.ChaseMatch
	err := r.db.WithContext(ctx).
		Order("datetime ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 chase_matches 失败: %w", err)
	}
	return rows, nil
}

// CountMatches 返回比赛数
func (r *ChaseRepository) CountMatches(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.ChaseMatch{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 chase_matches 失败: %w", err)
	}
	return n, nil
}

// ReplaceCounts 整表替换追逐计数
func (r *ChaseRepository) ReplaceCounts(ctx context.Context, rows []schema.ChaseCount) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.ChaseCount{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 chase_counts 失败: %w", err)
	}
	return nil
}

// Counts 返回全部追逐计数
func (r *ChaseRepository) Counts(ctx context.Context) ([]schema.ChaseCount, error) {
	var rows []schema.ChaseCount
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("day ASC").Order("phase_count ASC").Order("hour ASC").
		Order("chaser ASC").Order("chased ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 chase_counts 失败: %w", err)
	}
	return rows, nil
}
