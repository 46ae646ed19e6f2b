package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/loader"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/schema"
)

// StructureService 数据结构阶段：加载原始读数，解析位置，补时间注释，
// 相位切分，落库 detections 与 padded_stays。
// 清洗或时间范围推导改写配置时生成新版本配置文件，原文件不动。
type StructureService struct {
	cfg        *config.Config
	configPath string
	loader     *loader.Loader
	detections *repository.DetectionRepository
	padded     *repository.PaddedStayRepository
	activity   *repository.ActivityRepository
	hub        *eventbus.Hub
}

// NewStructureService 创建数据结构服务
func NewStructureService(
	cfg *config.Config,
	configPath string,
	detections *repository.DetectionRepository,
	padded *repository.PaddedStayRepository,
	activity *repository.ActivityRepository,
	hub *eventbus.Hub,
) *StructureService {
	return &StructureService{
		cfg:        cfg,
		configPath: configPath,
		loader:     loader.New(cfg),
		detections: detections,
		padded:     padded,
		activity:   activity,
		hub:        hub,
	}
}

// Config 返回当前生效的配置（清洗后可能是新版本）
func (s *StructureService) Config() *config.Config {
	return s.cfg
}

// Run 执行数据结构阶段。overwrite 为 false 且结果表非空时直接复用缓存。
func (s *StructureService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.padded.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("padded_stays 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	rows, report, err := s.loader.Load()
	if err != nil {
		return fmt.Errorf("structure 阶段加载数据失败: %w", err)
	}
	s.hub.Publish(eventbus.Event{
		Type: eventbus.EventDataLoaded,
		Data: map[string]any{"rows": report.Rows, "bad_rows": report.BadRows},
	})

	// 清洗改写了动物词表：生成新版本配置并改用之
	if len(report.GhostTags) > 0 {
		next := s.cfg.WithoutAnimals(report.GhostTags)
		if err := s.writeConfigVersion(next); err != nil {
			return err
		}
		s.cfg = next
		s.loader = loader.New(next)
		s.hub.Publish(eventbus.Event{
			Type: eventbus.EventGhostsDropped,
			Data: map[string]any{"ids": report.GhostTags},
		})
	}

	// 时间范围由数据推导：回写到新版本配置
	if !report.DerivedStart.IsZero() {
		next := s.cfg.WithTimeline(report.DerivedStart, report.DerivedFinish)
		if err := s.writeConfigVersion(next); err != nil {
			return err
		}
		s.cfg = next
	}

	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}

	dets := ResolvePositions(s.cfg, rows)
	if err := Annotate(s.cfg, loc, dets); err != nil {
		return err
	}
	if err := s.detections.ReplaceAll(ctx, dets); err != nil {
		return err
	}
	s.hub.PublishStage("detections", int64(len(dets)))

	stays, err := BuildPaddedStays(s.cfg, loc, dets)
	if err != nil {
		return err
	}
	if err := s.padded.ReplaceAll(ctx, stays); err != nil {
		return err
	}
	s.hub.PublishStage("padded_stays", int64(len(stays)))

	durations := phaseDurations(stays)
	if err := s.activity.ReplacePhaseDurations(ctx, durations); err != nil {
		return err
	}
	s.hub.PublishStage("phase_durations", int64(len(durations)))

	return nil
}

// writeConfigVersion 把改写后的配置写成带时间戳的新版本文件
func (s *StructureService) writeConfigVersion(next *config.Config) error {
	if s.configPath == "" {
		slog.Warn("配置来源未知，改写后的配置未落盘")
		return nil
	}

	ext := filepath.Ext(s.configPath)
	base := strings.TrimSuffix(s.configPath, ext)
	path := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102T150405"), ext)

	if err := config.WriteFile(path, next); err != nil {
		return fmt.Errorf("写入新版本配置失败: %w", err)
	}
	slog.Info("配置已改写为新版本", "path", path)
	return nil
}

// phaseDurations 每个相位段的近似时长：跨度取整到整小时并压到 1-12h
func phaseDurations(stays []schema.PaddedStay) []schema.PhaseDuration {
	type key struct {
		phase string
		count int
	}
	type span struct {
		min int64
		max int64
	}

	spans := make(map[key]*span)
	var keys []key
	for _, s := range stays {
		k := key{phase: s.Phase, count: s.PhaseCount}
		start := s.Datetime - int64(s.Timedelta*1e6)
		sp, ok := spans[k]
		if !ok {
			spans[k] = &span{min: start, max: s.Datetime}
			keys = append(keys, k)
			continue
		}
		if start < sp.min {
			sp.min = start
		}
		if s.Datetime > sp.max {
			sp.max = s.Datetime
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].phase != keys[j].phase {
			return keys[i].phase < keys[j].phase
		}
		return keys[i].count < keys[j].count
	})

	out := make([]schema.PhaseDuration, 0, len(keys))
	for _, k := range keys {
		sp := spans[k]
		hours := math.Round(float64(sp.max-sp.min) / 1e6 / 3600)
		if hours < 1 {
			hours = 1
		}
		if hours > 12 {
			hours = 12
		}
		out = append(out, schema.PhaseDuration{
			Phase:      k.phase,
			PhaseCount: k.count,
			Seconds:    int64(hours) * 3600,
		})
	}
	return out
}
