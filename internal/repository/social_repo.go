package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/habtrack/internal/schema"
	"gorm.io/gorm"
)

// SocialRepository 社交类汇总表仓储（相遇、独处、社交性）
type SocialRepository struct {
	db *gorm.DB
}

// NewSocialRepository 创建社交仓储
func NewSocialRepository(db *gorm.DB) *SocialRepository {
	return &SocialRepository{db: db}
}

// ReplaceMeetings 整表替换成对相遇
func (r *SocialRepository) ReplaceMeetings(ctx context.Context, rows []schema.PairwiseMeeting) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.PairwiseMeeting{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 pairwise_meetings 失败: %w", err)
	}
	return nil
}

// Meetings 返回全部成对相遇
func (r *SocialRepository) Meetings(ctx context.Context) ([]schema.PairwiseMeeting, error) {
	var rows []schema.PairwiseMeeting
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("day ASC").Order("phase_count ASC").
		Order("cage ASC").Order("animal_a ASC").Order("animal_b ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 pairwise_meetings 失败: %w", err)
	}
	return rows, nil
}

// CountMeetings 返回相遇表行数
func (r *SocialRepository) CountMeetings(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.PairwiseMeeting{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计 pairwise_meetings 失败: %w", err)
	}
	return n, nil
}

// ReplaceTimeAlone 整表替换独处时长
func (r *SocialRepository) ReplaceTimeAlone(ctx context.Context, rows []schema.TimeAlone) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.TimeAlone{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 time_alone 失败: %w", err)
	}
	return nil
}

// TimeAlone 返回全部独处时长
func (r *SocialRepository) TimeAlone(ctx context.Context) ([]schema.TimeAlone, error) {
	var rows []schema.TimeAlone
	err := r.db.WithContext(ctx).
		Order("phase ASC").Order("day ASC").Order("phase_count ASC").
		Order("animal_id ASC").Order("cage ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 time_alone 失败: %w", err)
	}
	return rows, nil
}

// ReplaceSociability 整表替换队内社交性
func (r *SocialRepository) ReplaceSociability(ctx context.Context, rows []schema.Sociability) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&schema.Sociability{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("写入 sociability 失败: %w", err)
	}
	return nil
}

// Sociability 返回全部队内社交性
func (r *SocialRepository) Sociability(ctx context.Context) ([]schema.Sociability, error) {
	var rows []schema.Sociability
	err := r.db.WithContext(ctx).
		Order("day ASC").Order("phase_count ASC").Order("phase ASC").
		Order("animal_a ASC").Order("animal_b ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 sociability 失败: %w", err)
	}
	return rows, nil
}
