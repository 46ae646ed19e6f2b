package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// PaddedStayRepository 相位切分停留段仓储
type PaddedStayRepository struct {
	db *gorm.DB
}

// NewPaddedStayRepository 创建停留段仓储
func NewPaddedStayRepository(db *gorm.DB) *PaddedStayRepository {
	return &PaddedStayRepository{db: db}
}

// ReplaceAll 整表替换
func (r *PaddedStayRepository) ReplaceAll(ctx context.Context, rows []schema.PaddedStay) error {
	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PaddedStay{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 padded_stays 失败: %w", err)
	}

	slog.Debug("padded_stays 表已替换", "rows", len(rows), "duration", time.Since(start))
	return nil
}

// All 按时间排序返回全表
func (r *PaddedStayRepository) All(ctx context.Context) ([]schema.PaddedStay, error) {
	var rows []schema.PaddedStay
	err := r.db.WithContext(ctx).
		Order("datetime ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 padded_stays 失败: %w", err)
	}
	return rows, nil
}

// InPositions 返回位于指定位置集合内的停留段
func (r *PaddedStayRepository) InPositions(ctx context.Context, positions []string) ([]schema.PaddedStay, error) {
	var rows []schema.PaddedStay
	err := r.db.WithContext(ctx).
		Where("position IN ?", positions).
		Order("datetime ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 padded_stays 失败: %w", err)
	}
	return rows, nil
}

// Count 返回行数
func (r *PaddedStayRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.PaddedStay{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 padded_stays 失败: %w", err)
	}
	return n, nil
}
