package service

import (
	"context"
	"math"
	"testing"

	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/schema"
	"github.com/yuqie6/habtrack/internal/testutil"
)

func TestBuildSocialCells(t *testing.T) {
	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-06-01 13:00:10"), Timedelta: 10, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
		{AnimalID: "mouse_2", Position: "cage_1", Datetime: micro("2023-06-01 13:00:20"), Timedelta: 15, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_2", Datetime: micro("2023-06-01 13:05:00"), Timedelta: 60, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-06-02 01:00:00"), Timedelta: 600, Phase: config.DarkPhase, Day: 2, PhaseCount: 2},
	}

	cells := buildSocialCells(stays)
	if len(cells) != 3 {
		t.Fatalf("组合数 = %d, want 3", len(cells))
	}

	// 排序确定：dark 在 light 前，同相位按笼名
	if cells[0].phase != config.DarkPhase || cells[0].cage != "cage_1" {
		t.Errorf("cells[0] = %s/%s", cells[0].phase, cells[0].cage)
	}
	if cells[1].cage != "cage_1" || cells[2].cage != "cage_2" {
		t.Errorf("light 组合笼序错误: %s, %s", cells[1].cage, cells[2].cage)
	}

	lightCage1 := cells[1]
	if len(lightCage1.intervals["mouse_1"]) != 1 || len(lightCage1.intervals["mouse_2"]) != 1 {
		t.Fatalf("light/cage_1 区间数错误: %+v", lightCage1.intervals)
	}
	iv := lightCage1.intervals["mouse_1"][0]
	if iv.end != micro("2023-06-01 13:00:10") || iv.end-iv.start != 10_000_000 {
		t.Errorf("mouse_1 区间 = [%d, %d]", iv.start, iv.end)
	}
}

func TestBuildSocialCellsDropsZeroLength(t *testing.T) {
	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-06-01 13:00:00"), Timedelta: 0, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
	}
	cells := buildSocialCells(stays)
	if len(cells) != 1 {
		t.Fatalf("组合数 = %d, want 1", len(cells))
	}
	if len(cells[0].intervals["mouse_1"]) != 0 {
		t.Errorf("零长停留不应产生区间: %+v", cells[0].intervals)
	}
}

func TestCellOverlaps(t *testing.T) {
	cell := socialCell{
		phase: config.LightPhase, day: 1, count: 1, cage: "cage_1",
		intervals: map[string][]interval{
			// mouse_1: [0, 10s]，mouse_2: [5s, 12s] → 重叠 5s
			// mouse_3: [8.5s, 10s] → 与 mouse_1 重叠 1.5s，与 mouse_2 重叠 1.5s
			"mouse_1": {{start: 0, end: 10_000_000}},
			"mouse_2": {{start: 5_000_000, end: 12_000_000}},
			"mouse_3": {{start: 8_500_000, end: 10_000_000}},
		},
	}

	out := cellOverlaps(cell, 2.0)
	if len(out) != 3 {
		t.Fatalf("动物对数 = %d, want 3", len(out))
	}

	byPair := make(map[string]pairOverlap)
	for _, po := range out {
		byPair[po.animalA+"|"+po.animalB] = po
	}

	// 5s > 2s：计入相遇
	p12 := byPair["mouse_1|mouse_2"]
	if p12.encounters != 1 || math.Abs(p12.together-5.0) > 1e-9 {
		t.Errorf("mouse_1/mouse_2: encounters=%d together=%f", p12.encounters, p12.together)
	}
	if math.Abs(p12.totalAll-5.0) > 1e-9 {
		t.Errorf("mouse_1/mouse_2 totalAll = %f", p12.totalAll)
	}

	// 1.5s ≤ 2s：不算相遇，但计入社交性的总重叠
	p13 := byPair["mouse_1|mouse_3"]
	if p13.encounters != 0 || p13.together != 0 {
		t.Errorf("mouse_1/mouse_3 不应计相遇: encounters=%d together=%f", p13.encounters, p13.together)
	}
	if math.Abs(p13.totalAll-1.5) > 1e-9 {
		t.Errorf("mouse_1/mouse_3 totalAll = %f", p13.totalAll)
	}
}

func TestCellOverlapsThresholdStrict(t *testing.T) {
	cell := socialCell{
		phase: config.LightPhase, day: 1, count: 1, cage: "cage_1",
		intervals: map[string][]interval{
			"mouse_1": {{start: 0, end: 2_000_000}},
			"mouse_2": {{start: 0, end: 2_000_000}},
		},
	}

	// 重叠恰好等于阈值：不计相遇
	out := cellOverlaps(cell, 2.0)
	if len(out) != 1 {
		t.Fatalf("动物对数 = %d, want 1", len(out))
	}
	if out[0].encounters != 0 {
		t.Errorf("等于阈值的重叠不应计相遇: %+v", out[0])
	}

	// 阈值略低则计入
	out = cellOverlaps(cell, 1.999)
	if out[0].encounters != 1 || math.Abs(out[0].together-2.0) > 1e-9 {
		t.Errorf("encounters=%d together=%f", out[0].encounters, out[0].together)
	}
}

func TestCellOverlapsMultipleEncounters(t *testing.T) {
	cell := socialCell{
		phase: config.DarkPhase, day: 1, count: 2, cage: "cage_2",
		intervals: map[string][]interval{
			"mouse_1": {
				{start: 0, end: 10_000_000},
				{start: 30_000_000, end: 40_000_000},
			},
			"mouse_2": {
				{start: 5_000_000, end: 35_000_000},
			},
		},
	}

	out := cellOverlaps(cell, 2.0)
	if len(out) != 1 {
		t.Fatalf("动物对数 = %d, want 1", len(out))
	}
	po := out[0]
	if po.encounters != 2 {
		t.Errorf("encounters = %d, want 2", po.encounters)
	}
	if math.Abs(po.together-10.0) > 1e-9 {
		t.Errorf("together = %f, want 10", po.together)
	}
}

// 端到端验证落库的三张表：
//   - sociability = together/D − Σ_cage (tA/D)(tB/D)，D 取该相位段时长
//   - 没有时长行的相位段不产出 sociability 行（相遇行不受影响）
//   - time_alone = 独处刻度数 / precision
func TestSociabilityServiceRun(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()

	padded := repository.NewPaddedStayRepository(db)
	occupancy := repository.NewOccupancyRepository(db)
	activity := repository.NewActivityRepository(db)
	social := repository.NewSocialRepository(db)

	cfg := testCfg()
	cfg.Occupancy.Precision = 10

	// 光段 1：mouse_1 [12:00:00, 12:01:40]，mouse_2 [12:00:50, 12:02:30]，重叠 50s
	// 暗段 2：各 60s 停留，重叠 50s，但没有对应的时长行
	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-06-01 12:01:40"), Timedelta: 100, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
		{AnimalID: "mouse_2", Position: "cage_1", Datetime: micro("2023-06-01 12:02:30"), Timedelta: 100, Phase: config.LightPhase, Day: 1, PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-06-02 00:04:20"), Timedelta: 60, Phase: config.DarkPhase, Day: 2, PhaseCount: 2},
		{AnimalID: "mouse_2", Position: "cage_1", Datetime: micro("2023-06-02 00:04:30"), Timedelta: 60, Phase: config.DarkPhase, Day: 2, PhaseCount: 2},
	}
	if err := padded.ReplaceAll(ctx, stays); err != nil {
		t.Fatalf("写入停留段: %v", err)
	}

	durations := []schema.PhaseDuration{
		{Phase: config.LightPhase, PhaseCount: 1, Seconds: 3600},
	}
	if err := activity.ReplacePhaseDurations(ctx, durations); err != nil {
		t.Fatalf("写入相位时长: %v", err)
	}

	// mouse_1 在 5 个刻度上独占 cage_1
	ticks := make([]schema.OccupancyTick, 0, 5)
	for i := 0; i < 5; i++ {
		ticks = append(ticks, schema.OccupancyTick{
			Tick:     micro("2023-06-01 12:00:01") + int64(i)*100_000,
			AnimalID: "mouse_1", Cage: "cage_1", IsIn: true,
			Day: 1, Phase: config.LightPhase, PhaseCount: 1,
		})
	}
	if err := occupancy.ReplaceAll(ctx, ticks); err != nil {
		t.Fatalf("写入占位栅格: %v", err)
	}

	svc := NewSociabilityService(cfg, padded, occupancy, activity, social, eventbus.NewHub())
	if err := svc.Run(ctx, true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	meetings, err := social.Meetings(ctx)
	if err != nil {
		t.Fatalf("读取相遇表: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("相遇行数 = %d, want 2: %+v", len(meetings), meetings)
	}
	for _, m := range meetings {
		if m.TimeTogether != 50 || m.Encounters != 1 {
			t.Errorf("%s 段相遇 = %+v", m.Phase, m)
		}
	}

	// 只有光段有时长行，sociability 只产出一行
	socRows, err := social.Sociability(ctx)
	if err != nil {
		t.Fatalf("读取社交性: %v", err)
	}
	if len(socRows) != 1 {
		t.Fatalf("社交性行数 = %d, want 1: %+v", len(socRows), socRows)
	}
	row := socRows[0]
	if row.Phase != config.LightPhase || row.AnimalA != "mouse_1" || row.AnimalB != "mouse_2" {
		t.Fatalf("社交性行 = %+v", row)
	}
	// chance = (100/3600)·(100/3600) ≈ 0.00077 → 0.001
	// together = 50/3600 ≈ 0.01389 → 0.014
	// sociability = round3(0.01389 − 0.00077) = 0.013
	if row.Chance != 0.001 {
		t.Errorf("Chance = %f, want 0.001", row.Chance)
	}
	if row.Together != 0.014 {
		t.Errorf("Together = %f, want 0.014", row.Together)
	}
	if row.Sociability != 0.013 {
		t.Errorf("Sociability = %f, want 0.013", row.Sociability)
	}

	// 5 刻度 / precision 10 = 0.5s
	alone, err := social.TimeAlone(ctx)
	if err != nil {
		t.Fatalf("读取独处时长: %v", err)
	}
	if len(alone) != 1 {
		t.Fatalf("独处行数 = %d, want 1: %+v", len(alone), alone)
	}
	if alone[0].AnimalID != "mouse_1" || alone[0].Cage != "cage_1" || alone[0].Seconds != 0.5 {
		t.Errorf("独处行 = %+v", alone[0])
	}
}
