package service

import (
	"math"
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/schema"
)

const secondsPerDay = 86400

// Annotate 为每条读数补上时间注释：实验日、小时桶、光照相位、
// 相位段序号与距上条读数的秒数。输入须已按时间排序。
func Annotate(cfg *config.Config, loc *time.Location, dets []schema.Detection) error {
	if len(dets) == 0 {
		return nil
	}

	bounds, err := cfg.PhaseBounds()
	if err != nil {
		return err
	}

	first := time.UnixMicro(dets[0].Datetime).In(loc)
	firstMidnight := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	_, firstOffset := first.Zone()

	prevTime := make(map[string]int64)
	prevPhase := make(map[string]string)
	phaseCount := make(map[string]int)

	for i := range dets {
		d := &dets[i]
		t := time.UnixMicro(d.Datetime).In(loc)

		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		// 夏令时导致个别日长 23/25 小时，四舍五入折回整数天
		d.Day = int(math.Round(midnight.Sub(firstMidnight).Hours()/24)) + 1
		d.Hour = t.Hour()

		d.Phase = phaseOf(t, bounds, firstOffset)

		// 距同一动物上一读数的秒数，首条为 0
		if prev, ok := prevTime[d.AnimalID]; ok {
			d.Timedelta = round2(float64(d.Datetime-prev) / 1e6)
		} else {
			d.Timedelta = 0
		}
		prevTime[d.AnimalID] = d.Datetime

		// 相位段序号：每只动物独立计数，相位变化即 +1
		if last, ok := prevPhase[d.AnimalID]; !ok || last != d.Phase {
			phaseCount[d.AnimalID]++
		}
		prevPhase[d.AnimalID] = d.Phase
		d.PhaseCount = phaseCount[d.AnimalID]
	}

	// 全局首条样本强制落入 0 号小时桶
	dets[0].Hour = 0

	return nil
}

// phaseOf 光照相位判定。光照窗口 [light_start, dark_start] 两端闭合。
// 夏令时切换后本地时钟平移而光照控制器不动，按与首条样本的
// UTC 偏移差把时刻折回切换前的刻度再比较。
func phaseOf(t time.Time, bounds config.PhaseBounds, firstOffset int) string {
	_, offset := t.Zone()
	shift := offset - firstOffset

	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	sec = ((sec-shift)%secondsPerDay + secondsPerDay) % secondsPerDay

	ls := bounds.LightStart.SecondsOfDay()
	ds := bounds.DarkStart.SecondsOfDay()

	var light bool
	if ls <= ds {
		light = sec >= ls && sec <= ds
	} else {
		light = sec >= ls || sec <= ds
	}
	if light {
		return config.LightPhase
	}
	return config.DarkPhase
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
