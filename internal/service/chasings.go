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

// ChaseService 追逐阶段：在每对动物的合并读数流上跑状态机，
// 产出按时间排序的追逐比赛日志与汇总计数。
// 比赛日志是排名引擎的唯一输入，必须整序落库而不只存计数。
type ChaseService struct {
	cfg        *config.Config
	detections *repository.DetectionRepository
	chases     *repository.ChaseRepository
	hub        *eventbus.Hub
}

// NewChaseService 创建追逐服务
func NewChaseService(
	cfg *config.Config,
	detections *repository.DetectionRepository,
	chases *repository.ChaseRepository,
	hub *eventbus.Hub,
) *ChaseService {
	return &ChaseService{cfg: cfg, detections: detections, chases: chases, hub: hub}
}

// Run 执行追逐阶段
func (s *ChaseService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.chases.CountMatches(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("chase_matches 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	// 只取当前词表内动物的读数：清洗后的配置不含幽灵标签
	dets, err := s.detections.ByAnimals(ctx, s.cfg.Project.AnimalIDs)
	if err != nil {
		return fmt.Errorf("chasings 阶段读取读数失败: %w", err)
	}
	if len(dets) == 0 {
		return fmt.Errorf("chasings 阶段依赖 detections，请先运行 structure")
	}

	matches, counts := DetectChases(s.cfg, dets)

	if err := s.chases.ReplaceMatches(ctx, matches); err != nil {
		return err
	}
	if err := s.chases.ReplaceCounts(ctx, counts); err != nil {
		return err
	}
	s.hub.PublishStage("chase_matches", int64(len(matches)))
	s.hub.PublishStage("chase_counts", int64(len(counts)))
	return nil
}

// DetectChases 在全部动物对的合并读数流上检测追逐事件。
//
// 一次追逐：两只动物先后穿过同一管道进入同一笼，后出的是被追者。
// 对流中连续三条读数 (r0, r1, r2)：
//   - r1 与 r2 位置相同且都是笼子（两次入笼），动物不同
//   - r0 是管道读数（追者此前确实在管道里，而不是早已在笼）
//   - 出管间隔 t2−t1 落在配置窗口内（两端闭合）
//
// 判定成立则记一场比赛：先入笼者为胜者，后入笼者为败者，
// 比赛时刻取败者出管时刻 t2。三条读数要么全部满足要么整组放弃，
// 不携带部分证据。
func DetectChases(cfg *config.Config, dets []schema.Detection) ([]schema.ChaseMatch, []schema.ChaseCount) {
	animals := append([]string(nil), cfg.Project.AnimalIDs...)
	sort.Strings(animals)

	byAnimal := make(map[string][]schema.Detection)
	for _, d := range dets {
		byAnimal[d.AnimalID] = append(byAnimal[d.AnimalID], d)
	}

	type countKey struct {
		phase  string
		day    int
		count  int
		hour   int
		chaser string
		chased string
	}

	var matches []schema.ChaseMatch
	countMap := make(map[countKey]int)
	var countKeys []countKey

	windowMin := cfg.Social.ChaseWindowMin
	windowMax := cfg.Social.ChaseWindowMax

	for i := 0; i < len(animals); i++ {
		for j := i + 1; j < len(animals); j++ {
			stream := mergePair(byAnimal[animals[i]], byAnimal[animals[j]])

			for k := 2; k < len(stream); k++ {
				r0, r1, r2 := stream[k-2], stream[k-1], stream[k]

				if !isCage(r2.Position) || r1.Position != r2.Position {
					continue
				}
				if r1.AnimalID == r2.AnimalID {
					continue
				}
				if !isTunnel(r0.Position) {
					continue
				}
				gap := float64(r2.Datetime-r1.Datetime) / 1e6
				if gap < windowMin || gap > windowMax {
					continue
				}

				matches = append(matches, schema.ChaseMatch{
					Winner:   r1.AnimalID,
					Loser:    r2.AnimalID,
					Datetime: r2.Datetime,
				})

				// 计数按败者行的时间注释归组，与比赛时刻 t2 一致
				ck := countKey{
					phase:  r2.Phase,
					day:    r2.Day,
					count:  r2.PhaseCount,
					hour:   r2.Hour,
					chaser: r1.AnimalID,
					chased: r2.AnimalID,
				}
				if _, ok := countMap[ck]; !ok {
					countKeys = append(countKeys, ck)
				}
				countMap[ck]++
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Datetime < matches[j].Datetime })

	sort.Slice(countKeys, func(i, j int) bool {
		a, b := countKeys[i], countKeys[j]
		if a.phase != b.phase {
			return a.phase < b.phase
		}
		if a.day != b.day {
			return a.day < b.day
		}
		if a.count != b.count {
			return a.count < b.count
		}
		if a.hour != b.hour {
			return a.hour < b.hour
		}
		if a.chaser != b.chaser {
			return a.chaser < b.chaser
		}
		return a.chased < b.chased
	})

	counts := make([]schema.ChaseCount, 0, len(countKeys))
	for _, ck := range countKeys {
		counts = append(counts, schema.ChaseCount{
			Phase:      ck.phase,
			Day:        ck.day,
			PhaseCount: ck.count,
			Hour:       ck.hour,
			Chaser:     ck.chaser,
			Chased:     ck.chased,
			Count:      countMap[ck],
		})
	}

	return matches, counts
}

// mergePair 按时间归并两只动物的读数流，
// 同一动物相邻的同位置读数按传感器重复读丢弃。
func mergePair(a, b []schema.Detection) []schema.Detection {
	merged := make([]schema.Detection, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Datetime <= b[j].Datetime {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)

	out := merged[:0]
	var last schema.Detection
	for idx, d := range merged {
		if idx > 0 && d.AnimalID == last.AnimalID && d.Position == last.Position {
			continue
		}
		out = append(out, d)
		last = d
	}
	return out
}
