package service

import (
	"reflect"
	"testing"

	"github.com/yuqie6/habtrack/internal/schema"
)

func TestBuildOccupancyGrid(t *testing.T) {
	cfg := testCfg()

	// mouse_1: cage_1 停留 (13:00:00, 13:00:10]，之后进管道 (13:00:10, 13:00:12]
	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:00"), Timedelta: 0,
			Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:10"), Timedelta: 10,
			Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "c1_c2", Datetime: micro("2023-01-17 13:00:12"), Timedelta: 2,
			Day: 1, Phase: "light_phase", PhaseCount: 1},
	}

	ticks := BuildOccupancyGrid(cfg, stays)

	// 首条读数（时长 0）之前没有任何行：未知不是 false
	for _, tick := range ticks {
		if tick.Tick <= micro("2023-01-17 13:00:00") {
			t.Fatalf("首条读数之前不应有行: %+v", tick)
		}
	}

	var inCage, inTunnel int
	for _, tick := range ticks {
		if tick.IsIn {
			inCage++
			if tick.Cage != "cage_1" {
				t.Errorf("cage=%q", tick.Cage)
			}
		} else {
			inTunnel++
			if tick.Cage != "tunnel_1" {
				t.Errorf("管道应折叠为无向名: %q", tick.Cage)
			}
		}
	}
	if inCage != 10 || inTunnel != 2 {
		t.Errorf("inCage=%d inTunnel=%d, want 10/2", inCage, inTunnel)
	}
}

func TestBuildOccupancyGridDeterministic(t *testing.T) {
	cfg := testCfg()
	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:00"), Timedelta: 0, Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:30"), Timedelta: 30, Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_2", Position: "cage_2", Datetime: micro("2023-01-17 13:00:05"), Timedelta: 0, Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_2", Position: "cage_2", Datetime: micro("2023-01-17 13:00:25"), Timedelta: 20, Day: 1, Phase: "light_phase", PhaseCount: 1},
	}

	first := BuildOccupancyGrid(cfg, stays)
	second := BuildOccupancyGrid(cfg, stays)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("同输入两次构建结果不一致")
	}
}

func TestBuildOccupancyGridSubSecondPrecision(t *testing.T) {
	cfg := testCfg()
	cfg.Occupancy.Precision = 10 // 100ms 步长

	stays := []schema.PaddedStay{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:00"), Timedelta: 0, Day: 1, Phase: "light_phase", PhaseCount: 1},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 13:00:01"), Timedelta: 1, Day: 1, Phase: "light_phase", PhaseCount: 1},
	}

	ticks := BuildOccupancyGrid(cfg, stays)
	if len(ticks) != 10 {
		t.Fatalf("ticks=%d, want 10", len(ticks))
	}
}
