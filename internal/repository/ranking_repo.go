package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// RankingRepository 排名结果仓储（最终估计、时间序列快照、相位末排名）
type RankingRepository struct {
	db *gorm.DB
}

// NewRankingRepository 创建排名仓储
func NewRankingRepository(db *gorm.DB) *RankingRepository {
	return &RankingRepository{db: db}
}

// ReplaceEstimates 整表替换最终技能估计
func (r *RankingRepository) ReplaceEstimates(ctx context.Context, rows []schema.RankEstimate) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.RankEstimate{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 rank_estimates 失败: %w", err)
	}
	return nil
}

// Estimates 按 ordinal 降序返回最终估计
func (r *RankingRepository) Estimates(ctx context.Context) ([]schema.RankEstimate, error) {
	var rows []schema.RankEstimate
	err := r.db.WithContext(ctx).
		Order("ordinal DESC").Order("animal_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 rank_estimates 失败: %w", err)
	}
	return rows, nil
}

// CountEstimates 返回最终估计行数
func (r *RankingRepository) CountEstimates(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.RankEstimate{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 rank_estimates 失败: %w", err)
	}
	return n, nil
}

// ReplaceSnapshots 整表替换排名时间序列
func (r *RankingRepository) ReplaceSnapshots(ctx context.Context, rows []schema.RankSnapshot) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.RankSnapshot{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 1000).Error
	})
	if err != nil {
		return fmt.Errorf("写入 rank_snapshots 失败: %w", err)
	}
	return nil
}

// Snapshots 按比赛序号返回排名时间序列
func (r *RankingRepository) Snapshots(ctx context.Context) ([]schema.RankSnapshot, error) {
	var rows []schema.RankSnapshot
	err := r.db.WithContext(ctx).
		Order("match_seq ASC").Order("animal_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 rank_snapshots 失败: %w", err)
	}
	return rows, nil
}

// ReplacePhaseEndRanks 整表替换相位末排名
func (r *RankingRepository) ReplacePhaseEndRanks(ctx context.Context, rows []schema.PhaseEndRank) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PhaseEndRank{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 phase_end_ranks 失败: %w", err)
	}
	return nil
}

// PhaseEndRanks 返回全部相位末排名
func (r *RankingRepository) PhaseEndRanks(ctx context.Context) ([]schema.PhaseEndRank, error) {
	var rows []schema.PhaseEndRank
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("day ASC").Order("phase_count ASC").
		Order("ordinal DESC").Order("animal_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 phase_end_ranks 失败: %w", err)
	}
	return rows, nil
}
