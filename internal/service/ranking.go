package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/rating"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/schema"
)

// ErrOrderingViolation 比赛日志未按时间排序。
// 评分更新是路径依赖的，时序是正确性前提而非展示问题，
// 检出后重排并告警，不直接信任来源。
var ErrOrderingViolation = errors.New("比赛日志未按时间排序")

// RankingService 排名阶段：按时间顺序把每场追逐喂给 Plackett-Luce
// 模型，产出最终技能估计、逐场快照时间序列与相位末排名。
// 更新严格串行，不得并行。
type RankingService struct {
	cfg     *config.Config
	chases  *repository.ChaseRepository
	padded  *repository.PaddedStayRepository
	ranking *repository.RankingRepository
	hub     *eventbus.Hub
}

// NewRankingService 创建排名服务
func NewRankingService(
	cfg *config.Config,
	chases *repository.ChaseRepository,
	padded *repository.PaddedStayRepository,
	ranking *repository.RankingRepository,
	hub *eventbus.Hub,
) *RankingService {
	return &RankingService{cfg: cfg, chases: chases, padded: padded, ranking: ranking, hub: hub}
}

// Run 执行排名阶段
func (s *RankingService) Run(ctx context.Context, overwrite bool) error {
	if !overwrite {
		n, err := s.ranking.CountEstimates(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("rank_estimates 已有缓存，跳过重算", "rows", n)
			return nil
		}
	}

	matches, err := s.chases.MatchesOrdered(ctx)
	if err != nil {
		return fmt.Errorf("ranking 阶段读取比赛日志失败: %w", err)
	}
	matches = ensureChronological(matches)

	model := rating.NewModel()
	if s.cfg.Ranking.OrdinalZ > 0 {
		model.Z = s.cfg.Ranking.OrdinalZ
	}

	animals := append([]string(nil), s.cfg.Project.AnimalIDs...)
	sort.Strings(animals)

	ratings := make(map[string]rating.Rating, len(animals))
	for _, id := range animals {
		ratings[id] = model.NewRating()
	}

	var snapshots []schema.RankSnapshot
	for seq, m := range matches {
		if m.Winner == m.Loser {
			slog.Warn("跳过胜败同体的比赛", "animal", m.Winner, "datetime", m.Datetime)
			continue
		}
		ratings = applyMatch(model, ratings, m)

		for _, id := range animals {
			snapshots = append(snapshots, schema.RankSnapshot{
				MatchSeq: seq + 1,
				Datetime: m.Datetime,
				AnimalID: id,
				Ordinal:  round3(model.Ordinal(ratings[id])),
			})
		}
	}

	estimates := make([]schema.RankEstimate, 0, len(animals))
	for _, id := range animals {
		r := ratings[id]
		estimates = append(estimates, schema.RankEstimate{
			AnimalID: id,
			Mu:       round3(r.Mu),
			Sigma:    round3(r.Sigma),
			Ordinal:  round3(model.Ordinal(r)),
		})
	}
	sort.SliceStable(estimates, func(i, j int) bool { return estimates[i].Ordinal > estimates[j].Ordinal })

	if err := s.ranking.ReplaceEstimates(ctx, estimates); err != nil {
		return err
	}
	if err := s.ranking.ReplaceSnapshots(ctx, snapshots); err != nil {
		return err
	}
	s.hub.PublishStage("rank_estimates", int64(len(estimates)))
	s.hub.PublishStage("rank_snapshots", int64(len(snapshots)))

	return s.persistPhaseEndRanks(ctx, snapshots)
}

// ensureChronological 校验比赛日志时序，乱序则重排并告警
func ensureChronological(matches []schema.ChaseMatch) []schema.ChaseMatch {
	for i := 1; i < len(matches); i++ {
		if matches[i].Datetime < matches[i-1].Datetime {
			slog.Warn("比赛日志乱序，已重排", "error", ErrOrderingViolation)
			sorted := append([]schema.ChaseMatch(nil), matches...)
			sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Datetime < sorted[b].Datetime })
			return sorted
		}
	}
	return matches
}

// applyMatch 纯归约：旧评分表 + 一场比赛 → 新评分表。
// 不修改传入的表，便于重放与测试。
func applyMatch(model *rating.Model, ratings map[string]rating.Rating, m schema.ChaseMatch) map[string]rating.Rating {
	next := make(map[string]rating.Rating, len(ratings))
	for id, r := range ratings {
		next[id] = r
	}

	winner, ok := next[m.Winner]
	if !ok {
		winner = model.NewRating()
	}
	loser, ok := next[m.Loser]
	if !ok {
		loser = model.NewRating()
	}

	winner, loser = model.RateDuel(winner, loser)
	next[m.Winner] = winner
	next[m.Loser] = loser
	return next
}

// persistPhaseEndRanks 每个相位段结束时刻的排名：
// 取不晚于该段最后一条读数时刻的最新快照；段内无比赛则无行。
func (s *RankingService) persistPhaseEndRanks(ctx context.Context, snapshots []schema.RankSnapshot) error {
	stays, err := s.padded.All(ctx)
	if err != nil {
		return fmt.Errorf("ranking 阶段读取停留段失败: %w", err)
	}

	type cellKey struct {
		phase string
		day   int
		count int
	}
	lastEvent := make(map[cellKey]int64)
	var cellKeys []cellKey
	for _, st := range stays {
		k := cellKey{phase: st.Phase, day: st.Day, count: st.PhaseCount}
		if cur, ok := lastEvent[k]; !ok {
			cellKeys = append(cellKeys, k)
			lastEvent[k] = st.Datetime
		} else if st.Datetime > cur {
			lastEvent[k] = st.Datetime
		}
	}
	sort.Slice(cellKeys, func(i, j int) bool {
		a, b := cellKeys[i], cellKeys[j]
		if a.phase != b.phase {
			return a.phase < b.phase
		}
		if a.day != b.day {
			return a.day < b.day
		}
		return a.count < b.count
	})

	// 快照按 (datetime, seq) 归并，同一时刻留最后一场
	type snapKey struct {
		datetime int64
		seq      int
	}
	bySnap := make(map[snapKey]map[string]float64)
	var snapKeys []snapKey
	for _, snap := range snapshots {
		k := snapKey{datetime: snap.Datetime, seq: snap.MatchSeq}
		if bySnap[k] == nil {
			bySnap[k] = make(map[string]float64)
			snapKeys = append(snapKeys, k)
		}
		bySnap[k][snap.AnimalID] = snap.Ordinal
	}
	sort.Slice(snapKeys, func(i, j int) bool {
		if snapKeys[i].datetime != snapKeys[j].datetime {
			return snapKeys[i].datetime < snapKeys[j].datetime
		}
		return snapKeys[i].seq < snapKeys[j].seq
	})

	var rows []schema.PhaseEndRank
	for _, ck := range cellKeys {
		bound := lastEvent[ck]

		// 不晚于段末的最新快照
		best := -1
		for i, sk := range snapKeys {
			if sk.datetime > bound {
				break
			}
			best = i
		}
		if best < 0 {
			continue
		}

		ordinals := bySnap[snapKeys[best]]
		animals := make([]string, 0, len(ordinals))
		for id := range ordinals {
			animals = append(animals, id)
		}
		sort.Strings(animals)
		for _, id := range animals {
			rows = append(rows, schema.PhaseEndRank{
				Phase:      ck.phase,
				Day:        ck.day,
				PhaseCount: ck.count,
				AnimalID:   id,
				Ordinal:    ordinals[id],
			})
		}
	}

	if err := s.ranking.ReplacePhaseEndRanks(ctx, rows); err != nil {
		return err
	}
	s.hub.PublishStage("phase_end_ranks", int64(len(rows)))
	return nil
}
