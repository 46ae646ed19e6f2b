package service

import (
	"math"
	"testing"
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/schema"
)

// 跨午夜的停留：23:55 开始、次日 00:10 结束，
// 应在 23:59:59.999999 处拆成两段，时长之和不变
func TestPaddingSplitsAtMidnight(t *testing.T) {
	cfg := testCfg()
	dets := annotated(t, []schema.Detection{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 23:55:00")},
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-18 00:10:00")},
	})

	stays, err := BuildPaddedStays(cfg, time.UTC, dets)
	if err != nil {
		t.Fatalf("BuildPaddedStays error: %v", err)
	}
	if len(stays) != 3 {
		t.Fatalf("stays=%d, want 3（原两行 + 一条补段）", len(stays))
	}

	ext := stays[1]
	if ext.Datetime != micro("2023-01-17 23:59:59.999999") {
		t.Fatalf("补段结束时刻=%d", ext.Datetime)
	}
	if ext.Day != 1 {
		t.Errorf("补段应继承旧日: day=%d", ext.Day)
	}
	if ext.Position != "cage_1" {
		t.Errorf("补段位置=%q", ext.Position)
	}

	tail := stays[2]
	if tail.Day != 2 {
		t.Errorf("后段 day=%d", tail.Day)
	}

	// 15 分钟整体守恒
	if math.Abs(ext.Timedelta+tail.Timedelta-900) > 0.02 {
		t.Errorf("时长不守恒: %f + %f", ext.Timedelta, tail.Timedelta)
	}
	if math.Abs(ext.Timedelta-300) > 0.01 || math.Abs(tail.Timedelta-600) > 0.01 {
		t.Errorf("拆分时长: %f / %f", ext.Timedelta, tail.Timedelta)
	}
}

// 跨相位边界（12:00）的停留按相位起点拆分
func TestPaddingSplitsAtPhaseBoundary(t *testing.T) {
	cfg := testCfg()
	dets := annotated(t, []schema.Detection{
		{AnimalID: "mouse_1", Position: "cage_2", Datetime: micro("2023-01-17 11:50:00")},
		{AnimalID: "mouse_1", Position: "cage_2", Datetime: micro("2023-01-17 12:20:00")},
	})

	stays, err := BuildPaddedStays(cfg, time.UTC, dets)
	if err != nil {
		t.Fatalf("BuildPaddedStays error: %v", err)
	}
	if len(stays) != 3 {
		t.Fatalf("stays=%d, want 3", len(stays))
	}

	ext := stays[1]
	if ext.Phase != config.DarkPhase {
		t.Errorf("补段应继承旧相位: %q", ext.Phase)
	}
	if ext.PhaseCount != 1 {
		t.Errorf("补段 phase_count=%d", ext.PhaseCount)
	}
	if stays[2].Phase != config.LightPhase || stays[2].PhaseCount != 2 {
		t.Errorf("后段: %q/%d", stays[2].Phase, stays[2].PhaseCount)
	}
	if ext.Datetime != micro("2023-01-17 11:59:59.999999") {
		t.Errorf("补段结束时刻=%d", ext.Datetime)
	}
}

// 整体时长守恒：多动物多次跨界，拆分前后每只动物的总时长一致
func TestPaddingConservesDurations(t *testing.T) {
	cfg := testCfg()
	dets := annotated(t, []schema.Detection{
		{AnimalID: "mouse_1", Position: "cage_1", Datetime: micro("2023-01-17 10:00:00")},
		{AnimalID: "mouse_2", Position: "cage_2", Datetime: micro("2023-01-17 10:30:00")},
		{AnimalID: "mouse_1", Position: "c1_c2", Datetime: micro("2023-01-17 13:00:00")},
		{AnimalID: "mouse_2", Position: "cage_2", Datetime: micro("2023-01-17 14:00:00")},
		{AnimalID: "mouse_1", Position: "cage_2", Datetime: micro("2023-01-18 01:00:00")},
		{AnimalID: "mouse_2", Position: "c2_c1", Datetime: micro("2023-01-18 02:00:00")},
	})

	before := make(map[string]float64)
	for _, d := range dets {
		before[d.AnimalID] += d.Timedelta
	}

	stays, err := BuildPaddedStays(cfg, time.UTC, dets)
	if err != nil {
		t.Fatalf("BuildPaddedStays error: %v", err)
	}

	after := make(map[string]float64)
	for _, s := range stays {
		after[s.AnimalID] += s.Timedelta
	}

	for animal, want := range before {
		if math.Abs(after[animal]-want) > 0.05 {
			t.Errorf("%s: 总时长 %f → %f", animal, want, after[animal])
		}
	}
}
