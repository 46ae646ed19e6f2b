package service

import (
	"testing"
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/schema"
)

func annotated(t *testing.T, dets []schema.Detection) []schema.Detection {
	t.Helper()
	if err := Annotate(testCfg(), time.UTC, dets); err != nil {
		t.Fatalf("Annotate error: %v", err)
	}
	return dets
}

func TestAnnotatePhaseClosedInterval(t *testing.T) {
	// 光照窗口 [12:00:00, 00:00:00] 两端闭合
	cases := []struct {
		at   string
		want string
	}{
		{"2023-01-17 11:59:59", config.DarkPhase},
		{"2023-01-17 12:00:00", config.LightPhase},
		{"2023-01-17 18:30:00", config.LightPhase},
		{"2023-01-17 23:59:59", config.LightPhase},
		{"2023-01-18 00:00:00", config.LightPhase}, // 右端点同样闭合
		{"2023-01-18 00:00:01", config.DarkPhase},
	}

	dets := make([]schema.Detection, len(cases))
	for i, c := range cases {
		dets[i] = schema.Detection{AnimalID: "mouse_1", Datetime: micro(c.at)}
	}
	dets = annotated(t, dets)

	for i, c := range cases {
		if dets[i].Phase != c.want {
			t.Errorf("%s: phase=%q, want %q", c.at, dets[i].Phase, c.want)
		}
	}
}

func TestAnnotatePhaseCountAndTimedelta(t *testing.T) {
	dets := annotated(t, []schema.Detection{
		{AnimalID: "mouse_1", Datetime: micro("2023-01-17 11:00:00")},       // dark
		{AnimalID: "mouse_1", Datetime: micro("2023-01-17 11:30:00")},       // dark
		{AnimalID: "mouse_1", Datetime: micro("2023-01-17 13:00:00")},       // light
		{AnimalID: "mouse_2", Datetime: micro("2023-01-17 13:30:00")},       // light, 另一只动物
		{AnimalID: "mouse_1", Datetime: micro("2023-01-18 00:30:00.500")},   // dark
	})

	wantCount := []int{1, 1, 2, 1, 3}
	for i, want := range wantCount {
		if dets[i].PhaseCount != want {
			t.Errorf("row %d: phase_count=%d, want %d", i, dets[i].PhaseCount, want)
		}
	}

	// 相位段序号单调不减，每次变化恰好 +1
	if dets[0].Timedelta != 0 || dets[3].Timedelta != 0 {
		t.Error("每只动物的首条读数 timedelta 应为 0")
	}
	if dets[1].Timedelta != 1800 {
		t.Errorf("timedelta=%f, want 1800", dets[1].Timedelta)
	}
	// 2dp 取整
	if dets[4].Timedelta != 41400.5 {
		t.Errorf("timedelta=%f, want 41400.5", dets[4].Timedelta)
	}
}

func TestAnnotateDayAndHour(t *testing.T) {
	dets := annotated(t, []schema.Detection{
		{AnimalID: "mouse_1", Datetime: micro("2023-01-17 23:00:00")},
		{AnimalID: "mouse_1", Datetime: micro("2023-01-18 01:00:00")},
		{AnimalID: "mouse_1", Datetime: micro("2023-01-19 15:00:00")},
	})

	if dets[0].Day != 1 || dets[1].Day != 2 || dets[2].Day != 3 {
		t.Errorf("day: %d %d %d", dets[0].Day, dets[1].Day, dets[2].Day)
	}

	// 全局首条样本强制落入 0 号小时桶
	if dets[0].Hour != 0 {
		t.Errorf("首条小时桶=%d, want 0", dets[0].Hour)
	}
	if dets[1].Hour != 1 || dets[2].Hour != 15 {
		t.Errorf("hour: %d %d", dets[1].Hour, dets[2].Hour)
	}
}

func TestAnnotateDSTShift(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Skipf("时区数据不可用: %v", err)
	}

	// 2023-03-26 波兰 02:00 拨到 03:00，UTC 偏移 +1h → +2h
	before := time.Date(2023, 3, 25, 13, 0, 0, 0, loc)
	after := time.Date(2023, 3, 27, 13, 0, 0, 0, loc)

	dets := []schema.Detection{
		{AnimalID: "mouse_1", Datetime: before.UnixMicro()},
		{AnimalID: "mouse_1", Datetime: after.UnixMicro()},
	}
	if err := Annotate(testCfg(), loc, dets); err != nil {
		t.Fatalf("Annotate error: %v", err)
	}

	// 切换后名义 13:00 实际折回 12:00，仍在光照窗口内
	if dets[1].Phase != config.LightPhase {
		t.Errorf("DST 折算后 phase=%q", dets[1].Phase)
	}

	// 名义 12:30 折回 11:30，应判为暗相位
	edge := time.Date(2023, 3, 27, 12, 30, 0, 0, loc)
	dets2 := []schema.Detection{
		{AnimalID: "mouse_1", Datetime: before.UnixMicro()},
		{AnimalID: "mouse_1", Datetime: edge.UnixMicro()},
	}
	if err := Annotate(testCfg(), loc, dets2); err != nil {
		t.Fatalf("Annotate error: %v", err)
	}
	if dets2[1].Phase != config.DarkPhase {
		t.Errorf("DST 边界 phase=%q, want dark", dets2[1].Phase)
	}
}
