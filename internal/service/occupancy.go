package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/schema"
)

// OccupancyService 占位栅格阶段：把停留段重采样到等间隔刻度上，
// 得到 (刻度 × 动物) 的长表。刻度落在某段停留内即取该段的位置与
// 相位注释；动物首条读数之前、末条读数之后没有行——未知不补假值。
type OccupancyService struct {
	cfg       *config.Config
	padded    *repository.PaddedStayRepository
	occupancy *repository.OccupancyRepository
	hub       *eventbus.Hub
}

// NewOccupancyService 创建占位栅格服务
func NewOccupancyService(
	cfg *config.Config,
	padded *repository.PaddedStayRepository,
	occupancy *repository.OccupancyRepository,
	hub *eventbus.Hub,
) *OccupancyService {
	return &OccupancyService{cfg: cfg, padded: padded, occupancy: occupancy, hub: hub}
}

// Run 执行占位栅格阶段
func (s *OccupancyService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.occupancy.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("occupancy_ticks 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	stays, err := s.padded.All(ctx)
	if err != nil {
		return fmt.Errorf("occupancy 阶段读取停留段失败: %w", err)
	}
	if len(stays) == 0 {
		return fmt.Errorf("occupancy 阶段依赖 padded_stays，请先运行 structure")
	}

	ticks := BuildOccupancyGrid(s.cfg, stays)
	if err := s.occupancy.ReplaceAll(ctx, ticks); err != nil {
		return err
	}
	s.hub.PublishStage("occupancy_ticks", int64(len(ticks)))
	return nil
}

// BuildOccupancyGrid 构建占位栅格。步长 = 1/precision 秒，
// 时间轴覆盖全实验的最早到最晚时刻，对固定输入完全确定。
func BuildOccupancyGrid(cfg *config.Config, stays []schema.PaddedStay) []schema.OccupancyTick {
	precision := cfg.Occupancy.Precision
	if precision <= 0 {
		precision = 1
	}
	stepMicro := int64(1e6) / int64(precision)

	byAnimal := make(map[string][]schema.PaddedStay)
	var animals []string
	minMicro, maxMicro := int64(0), int64(0)
	for _, st := range stays {
		if _, ok := byAnimal[st.AnimalID]; !ok {
			animals = append(animals, st.AnimalID)
		}
		byAnimal[st.AnimalID] = append(byAnimal[st.AnimalID], st)

		start := st.Datetime - int64(st.Timedelta*1e6)
		if minMicro == 0 || start < minMicro {
			minMicro = start
		}
		if st.Datetime > maxMicro {
			maxMicro = st.Datetime
		}
	}
	sort.Strings(animals)

	var out []schema.OccupancyTick
	for _, animal := range animals {
		rows := byAnimal[animal]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Datetime < rows[j].Datetime })

		idx := 0
		for tick := minMicro; tick <= maxMicro; tick += stepMicro {
			// 跳过已结束的停留段
			for idx < len(rows) && rows[idx].Datetime < tick {
				idx++
			}
			if idx >= len(rows) {
				break
			}

			st := rows[idx]
			start := st.Datetime - int64(st.Timedelta*1e6)
			if tick <= start {
				// 段尚未开始：动物还没有已知位置
				continue
			}

			row := schema.OccupancyTick{
				Tick:       tick,
				AnimalID:   animal,
				Day:        st.Day,
				Phase:      st.Phase,
				PhaseCount: st.PhaseCount,
			}
			if isCage(st.Position) {
				row.Cage = st.Position
				row.IsIn = true
			} else {
				row.Cage = collapseTunnel(cfg, st.Position)
				row.IsIn = false
			}
			out = append(out, row)
		}
	}
	return out
}
