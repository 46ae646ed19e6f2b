package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/alitto/pond/v2"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/schema"
)

// SociabilityService 社交阶段：成对相遇、独处时长与队内社交性。
// 相遇计算在 (相位段 × 笼) 组合上是平方级的，用工作池按组合并行，
// 每个任务写自己的结果槽位，无共享可变状态。
type SociabilityService struct {
	cfg       *config.Config
	padded    *repository.PaddedStayRepository
	occupancy *repository.OccupancyRepository
	activity  *repository.ActivityRepository
	social    *repository.SocialRepository
	hub       *eventbus.Hub
}

// NewSociabilityService 创建社交服务
func NewSociabilityService(
	cfg *config.Config,
	padded *repository.PaddedStayRepository,
	occupancy *repository.OccupancyRepository,
	activity *repository.ActivityRepository,
	social *repository.SocialRepository,
	hub *eventbus.Hub,
) *SociabilityService {
	return &SociabilityService{
		cfg:       cfg,
		padded:    padded,
		occupancy: occupancy,
		activity:  activity,
		social:    social,
		hub:       hub,
	}
}

// interval 一段停留，微秒时间戳
type interval struct {
	start int64
	end   int64
}

// socialCell 一个 (相位段, 笼) 组合内各动物的停留区间
type socialCell struct {
	phase     string
	day       int
	count     int
	cage      string
	intervals map[string][]interval
}

// pairOverlap 一对动物在一个组合内的重叠汇总
type pairOverlap struct {
	cell       socialCell
	animalA    string
	animalB    string
	together   float64 // 超过阈值的重叠合计（秒）
	encounters int
	totalAll   float64 // 全部正重叠合计（秒），社交性用
}

// Run 执行社交阶段
func (s *SociabilityService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.social.CountMeetings(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("pairwise_meetings 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	cageStays, err := s.padded.InPositions(ctx, s.cfg.Cages())
	if err != nil {
		return fmt.Errorf("sociability 阶段读取笼内停留失败: %w", err)
	}
	if len(cageStays) == 0 {
		return fmt.Errorf("sociability 阶段依赖 padded_stays，请先运行 structure")
	}

	cells := buildSocialCells(cageStays)
	overlaps, err := s.computeOverlaps(ctx, cells)
	if err != nil {
		return err
	}

	if err := s.persistMeetings(ctx, overlaps); err != nil {
		return err
	}
	if err := s.persistTimeAlone(ctx); err != nil {
		return err
	}
	if err := s.persistSociability(ctx, cells, overlaps); err != nil {
		return err
	}
	return nil
}

// buildSocialCells 把笼内停留按 (相位段, 笼) 分组为区间表
func buildSocialCells(stays []schema.PaddedStay) []socialCell {
	type cellKey struct {
		phase string
		day   int
		count int
		cage  string
	}

	byKey := make(map[cellKey]*socialCell)
	var keys []cellKey
	for _, st := range stays {
		k := cellKey{phase: st.Phase, day: st.Day, count: st.PhaseCount, cage: st.Position}
		cell, ok := byKey[k]
		if !ok {
			cell = &socialCell{
				phase:     k.phase,
				day:       k.day,
				count:     k.count,
				cage:      k.cage,
				intervals: make(map[string][]interval),
			}
			byKey[k] = cell
			keys = append(keys, k)
		}
		end := st.Datetime
		start := end - int64(st.Timedelta*1e6)
		if start < end {
			cell.intervals[st.AnimalID] = append(cell.intervals[st.AnimalID], interval{start: start, end: end})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.phase != b.phase {
			return a.phase < b.phase
		}
		if a.day != b.day {
			return a.day < b.day
		}
		if a.count != b.count {
			return a.count < b.count
		}
		return a.cage < b.cage
	})

	cells := make([]socialCell, 0, len(keys))
	for _, k := range keys {
		cells = append(cells, *byKey[k])
	}
	return cells
}

// computeOverlaps 用工作池并行计算每个组合内的成对重叠
func (s *SociabilityService) computeOverlaps(ctx context.Context, cells []socialCell) ([]pairOverlap, error) {
	workers := s.cfg.Social.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	minimum := s.cfg.Social.MinimumTime

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	results := make([][]pairOverlap, len(cells))
	group := pool.NewGroupContext(ctx)
	for i := range cells {
		i := i
		group.SubmitErr(func() error {
			results[i] = cellOverlaps(cells[i], minimum)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("sociability 阶段并行计算失败: %w", err)
	}

	var out []pairOverlap
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// cellOverlaps 一个组合内全部无序动物对的重叠汇总。
// 重叠严格超过 minimum 秒才计一次相遇。
func cellOverlaps(cell socialCell, minimum float64) []pairOverlap {
	animals := make([]string, 0, len(cell.intervals))
	for id := range cell.intervals {
		animals = append(animals, id)
	}
	sort.Strings(animals)

	var out []pairOverlap
	for i := 0; i < len(animals); i++ {
		for j := i + 1; j < len(animals); j++ {
			po := pairOverlap{cell: cell, animalA: animals[i], animalB: animals[j]}
			for _, a := range cell.intervals[animals[i]] {
				for _, b := range cell.intervals[animals[j]] {
					lo := a.start
					if b.start > lo {
						lo = b.start
					}
					hi := a.end
					if b.end < hi {
						hi = b.end
					}
					if hi <= lo {
						continue
					}
					sec := float64(hi-lo) / 1e6
					po.totalAll += sec
					if sec > minimum {
						po.together += sec
						po.encounters++
					}
				}
			}
			if po.totalAll > 0 {
				out = append(out, po)
			}
		}
	}
	return out
}

func (s *SociabilityService) persistMeetings(ctx context.Context, overlaps []pairOverlap) error {
	rows := make([]schema.PairwiseMeeting, 0, len(overlaps))
	for _, po := range overlaps {
		if po.encounters == 0 {
			continue
		}
		rows = append(rows, schema.PairwiseMeeting{
			Phase:        po.cell.phase,
			Day:          po.cell.day,
			PhaseCount:   po.cell.count,
			Cage:         po.cell.cage,
			AnimalA:      po.animalA,
			AnimalB:      po.animalB,
			TimeTogether: round2(po.together),
			Encounters:   po.encounters,
		})
	}
	if err := s.social.ReplaceMeetings(ctx, rows); err != nil {
		return err
	}
	s.hub.PublishStage("pairwise_meetings", int64(len(rows)))
	return nil
}

func (s *SociabilityService) persistTimeAlone(ctx context.Context) error {
	precision := s.cfg.Occupancy.Precision
	if precision <= 0 {
		precision = 1
	}

	counts, err := s.occupancy.AloneTicks(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		slog.Warn("occupancy_ticks 为空，独处时长未计算，请先运行 occupancy")
	}

	rows := make([]schema.TimeAlone, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, schema.TimeAlone{
			Phase:      c.Phase,
			Day:        c.Day,
			PhaseCount: c.PhaseCount,
			AnimalID:   c.AnimalID,
			Cage:       c.Cage,
			Seconds:    round2(float64(c.Ticks) / float64(precision)),
		})
	}
	if err := s.social.ReplaceTimeAlone(ctx, rows); err != nil {
		return err
	}
	s.hub.PublishStage("time_alone", int64(len(rows)))
	return nil
}

// persistSociability 队内社交性：实际共处占比减随机期望。
// chance = Σ_cage (tA/D)·(tB/D)，together = Σ_cage overlap/D，
// D 为该相位段的近似时长。
func (s *SociabilityService) persistSociability(ctx context.Context, cells []socialCell, overlaps []pairOverlap) error {
	durations, err := s.activity.PhaseDurations(ctx)
	if err != nil {
		return err
	}
	durByPhase := make(map[string]int64)
	for _, d := range durations {
		durByPhase[fmt.Sprintf("%s|%d", d.Phase, d.PhaseCount)] = d.Seconds
	}

	type cellKey struct {
		phase string
		day   int
		count int
	}
	type pairKey struct {
		cell cellKey
		a    string
		b    string
	}

	// 每动物在该相位段各笼的停留秒数
	cageTime := make(map[cellKey]map[string]map[string]float64)
	for _, cell := range cells {
		k := cellKey{phase: cell.phase, day: cell.day, count: cell.count}
		if cageTime[k] == nil {
			cageTime[k] = make(map[string]map[string]float64)
		}
		for animal, ivs := range cell.intervals {
			if cageTime[k][animal] == nil {
				cageTime[k][animal] = make(map[string]float64)
			}
			for _, iv := range ivs {
				cageTime[k][animal][cell.cage] += float64(iv.end-iv.start) / 1e6
			}
		}
	}

	pairTogether := make(map[pairKey]float64)
	var pairKeys []pairKey
	for _, po := range overlaps {
		pk := pairKey{
			cell: cellKey{phase: po.cell.phase, day: po.cell.day, count: po.cell.count},
			a:    po.animalA,
			b:    po.animalB,
		}
		if _, ok := pairTogether[pk]; !ok {
			pairKeys = append(pairKeys, pk)
		}
		pairTogether[pk] += po.totalAll
	}

	sort.Slice(pairKeys, func(i, j int) bool {
		a, b := pairKeys[i], pairKeys[j]
		if a.cell.phase != b.cell.phase {
			return a.cell.phase < b.cell.phase
		}
		if a.cell.day != b.cell.day {
			return a.cell.day < b.cell.day
		}
		if a.cell.count != b.cell.count {
			return a.cell.count < b.cell.count
		}
		if a.a != b.a {
			return a.a < b.a
		}
		return a.b < b.b
	})

	rows := make([]schema.Sociability, 0, len(pairKeys))
	for _, pk := range pairKeys {
		durSec, ok := durByPhase[fmt.Sprintf("%s|%d", pk.cell.phase, pk.cell.count)]
		if !ok || durSec == 0 {
			continue
		}
		d := float64(durSec)

		chance := 0.0
		for cage, tA := range cageTime[pk.cell][pk.a] {
			tB := cageTime[pk.cell][pk.b][cage]
			chance += (tA / d) * (tB / d)
		}
		together := pairTogether[pk] / d

		rows = append(rows, schema.Sociability{
			Day:         pk.cell.day,
			PhaseCount:  pk.cell.count,
			Phase:       pk.cell.phase,
			AnimalA:     pk.a,
			AnimalB:     pk.b,
			Chance:      round3(chance),
			Together:    round3(together),
			Sociability: round3(together - chance),
		})
	}

	if err := s.social.ReplaceSociability(ctx, rows); err != nil {
		return err
	}
	s.hub.PublishStage("sociability", int64(len(rows)))
	return nil
}
