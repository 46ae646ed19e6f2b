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

// ActivityService 活动量阶段：每动物每相位段在各位置的累计停留时长
// 与到访次数。有向管道折叠为无向管道名，undefined 照实保留。
type ActivityService struct {
	cfg        *config.Config
	detections *repository.DetectionRepository
	padded     *repository.PaddedStayRepository
	activity   *repository.ActivityRepository
	hub        *eventbus.Hub
}

// NewActivityService 创建活动量服务
func NewActivityService(
	cfg *config.Config,
	detections *repository.DetectionRepository,
	padded *repository.PaddedStayRepository,
	activity *repository.ActivityRepository,
	hub *eventbus.Hub,
) *ActivityService {
	return &ActivityService{cfg: cfg, detections: detections, padded: padded, activity: activity, hub: hub}
}

type activityKey struct {
	animal   string
	phase    string
	count    int
	position string
}

func sortedActivityKeys(m map[activityKey]float64, n map[activityKey]int) []activityKey {
	seen := make(map[activityKey]struct{})
	var keys []activityKey
	for k := range m {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range n {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.animal != b.animal {
			return a.animal < b.animal
		}
		if a.phase != b.phase {
			return a.phase < b.phase
		}
		if a.count != b.count {
			return a.count < b.count
		}
		return a.position < b.position
	})
	return keys
}

// Run 执行活动量阶段
func (s *ActivityService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.activity.CountPositionTimes(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("position_times 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	stays, err := s.padded.All(ctx)
	if err != nil {
		return fmt.Errorf("activity 阶段读取停留段失败: %w", err)
	}
	if len(stays) == 0 {
		return fmt.Errorf("activity 阶段依赖 padded_stays，请先运行 structure")
	}

	// 停留时长来自相位切分后的数据，时长归属相位才正确
	times := make(map[activityKey]float64)
	for _, st := range stays {
		k := activityKey{
			animal:   st.AnimalID,
			phase:    st.Phase,
			count:    st.PhaseCount,
			position: collapseTunnel(s.cfg, st.Position),
		}
		times[k] += st.Timedelta
	}

	// 到访次数来自原始读数，切分出的补段不算一次新到访
	dets, err := s.detections.All(ctx)
	if err != nil {
		return fmt.Errorf("activity 阶段读取读数失败: %w", err)
	}
	visits := make(map[activityKey]int)
	for _, d := range dets {
		k := activityKey{
			animal:   d.AnimalID,
			phase:    d.Phase,
			count:    d.PhaseCount,
			position: collapseTunnel(s.cfg, d.Position),
		}
		visits[k]++
	}

	keys := sortedActivityKeys(times, visits)

	timeRows := make([]schema.PositionTime, 0, len(keys))
	visitRows := make([]schema.PositionVisits, 0, len(keys))
	for _, k := range keys {
		if sec, ok := times[k]; ok {
			timeRows = append(timeRows, schema.PositionTime{
				AnimalID:   k.animal,
				Phase:      k.phase,
				PhaseCount: k.count,
				Position:   k.position,
				Seconds:    round2(sec),
			})
		}
		if n, ok := visits[k]; ok {
			visitRows = append(visitRows, schema.PositionVisits{
				AnimalID:   k.animal,
				Phase:      k.phase,
				PhaseCount: k.count,
				Position:   k.position,
				Visits:     n,
			})
		}
	}

	if err := s.activity.ReplacePositionTimes(ctx, timeRows); err != nil {
		return err
	}
	if err := s.activity.ReplacePositionVisits(ctx, visitRows); err != nil {
		return err
	}
	s.hub.PublishStage("position_times", int64(len(timeRows)))
	s.hub.PublishStage("position_visits", int64(len(visitRows)))
	return nil
}
