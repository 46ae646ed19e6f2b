package service

import (
	"context"
	"log/slog"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
)

// Pipeline 全流水线编排。各阶段严格下游依赖上游：
// structure → {occupancy, activity, chasings} → sociability / ranking。
// 单阶段失败直接返回，不碰已落库的上游表。
type Pipeline struct {
	structure *StructureService

	detections *repository.DetectionRepository
	padded     *repository.PaddedStayRepository
	activity   *repository.ActivityRepository
	occupancy  *repository.OccupancyRepository
	social     *repository.SocialRepository
	chases     *repository.ChaseRepository
	ranking    *repository.RankingRepository
	hub        *eventbus.Hub
}

// NewPipeline 基于同一个结果库创建全流水线
func NewPipeline(cfg *config.Config, configPath string, db *repository.Database, hub *eventbus.Hub) *Pipeline {
	detections := repository.NewDetectionRepository(db.DB)
	padded := repository.NewPaddedStayRepository(db.DB)
	activity := repository.NewActivityRepository(db.DB)

	return &Pipeline{
		structure:  NewStructureService(cfg, configPath, detections, padded, activity, hub),
		detections: detections,
		padded:     padded,
		activity:   activity,
		occupancy:  repository.NewOccupancyRepository(db.DB),
		social:     repository.NewSocialRepository(db.DB),
		chases:     repository.NewChaseRepository(db.DB),
		ranking:    repository.NewRankingRepository(db.DB),
		hub:        hub,
	}
}

// Structure 数据结构阶段
func (p *Pipeline) Structure(ctx context.Context, overwrite bool) error {
	return p.structure.Run(ctx, overwrite)
}

// cfg 当前生效配置：structure 阶段清洗后可能换成新版本
func (p *Pipeline) cfg() *config.Config {
	return p.structure.Config()
}

// Occupancy 占位栅格阶段
func (p *Pipeline) Occupancy(ctx context.Context, overwrite bool) error {
	return NewOccupancyService(p.cfg(), p.padded, p.occupancy, p.hub).Run(ctx, overwrite)
}

// Activity 活动量阶段
func (p *Pipeline) Activity(ctx context.Context, overwrite bool) error {
	return NewActivityService(p.cfg(), p.detections, p.padded, p.activity, p.hub).Run(ctx, overwrite)
}

// Sociability 社交阶段
func (p *Pipeline) Sociability(ctx context.Context, overwrite bool) error {
	return NewSociabilityService(p.cfg(), p.padded, p.occupancy, p.activity, p.social, p.hub).Run(ctx, overwrite)
}

// Chasings 追逐阶段
func (p *Pipeline) Chasings(ctx context.Context, overwrite bool) error {
	return NewChaseService(p.cfg(), p.detections, p.chases, p.hub).Run(ctx, overwrite)
}

// Ranking 排名阶段
func (p *Pipeline) Ranking(ctx context.Context, overwrite bool) error {
	return NewRankingService(p.cfg(), p.chases, p.padded, p.ranking, p.hub).Run(ctx, overwrite)
}

// RunAll 按依赖顺序执行全部阶段
func (p *Pipeline) RunAll(ctx context.Context, overwrite bool) error {
	stages := []struct {
		name string
		run  func(context.Context, bool) error
	}{
		{"structure", p.Structure},
		{"occupancy", p.Occupancy},
		{"activity", p.Activity},
		{"sociability", p.Sociability},
		{"chasings", p.Chasings},
		{"ranking", p.Ranking},
	}

	for _, stage := range stages {
		slog.Info("运行流水线阶段", "stage", stage.name)
		if err := stage.run(ctx, overwrite); err != nil {
			slog.Error("流水线阶段失败", "stage", stage.name, "error", err)
			return err
		}
	}
	return nil
}
