package service

import (
	"sort"
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/schema"
)

// BuildPaddedStays 把读数流转成相位切分后的停留段。
// 一条读数代表动物在 position 上停留了 timedelta 秒、于 datetime 结束；
// 跨越相位（或日）边界的停留在边界前 1 微秒处拆成两段：
// 前段继承旧相位/旧日的注释，后段保持原行，两段时长之和严格等于原时长。
func BuildPaddedStays(cfg *config.Config, loc *time.Location, dets []schema.Detection) ([]schema.PaddedStay, error) {
	bounds, err := cfg.PhaseBounds()
	if err != nil {
		return nil, err
	}

	byAnimal := make(map[string][]schema.Detection)
	var animals []string
	for _, d := range dets {
		if _, ok := byAnimal[d.AnimalID]; !ok {
			animals = append(animals, d.AnimalID)
		}
		byAnimal[d.AnimalID] = append(byAnimal[d.AnimalID], d)
	}
	sort.Strings(animals)

	var out []schema.PaddedStay
	for _, animal := range animals {
		rows := byAnimal[animal]
		for i, d := range rows {
			stay := schema.PaddedStay{
				AnimalID:   d.AnimalID,
				Datetime:   d.Datetime,
				Timedelta:  d.Timedelta,
				Day:        d.Day,
				Hour:       d.Hour,
				Phase:      d.Phase,
				PhaseCount: d.PhaseCount,
				Position:   d.Position,
			}

			if i > 0 {
				prev := rows[i-1]
				if prev.Phase != d.Phase || prev.Day != d.Day {
					boundary := segmentStart(d, bounds, loc)
					extMicro := boundary.UnixMicro() - 1
					if extMicro > prev.Datetime && extMicro < d.Datetime {
						ext := schema.PaddedStay{
							AnimalID:   d.AnimalID,
							Datetime:   extMicro,
							Timedelta:  round2(float64(extMicro-prev.Datetime) / 1e6),
							Day:        prev.Day,
							Hour:       time.UnixMicro(extMicro).In(loc).Hour(),
							Phase:      prev.Phase,
							PhaseCount: prev.PhaseCount,
							// 被拆的是以 d 结束的停留，两段位置相同
							Position: d.Position,
						}
						stay.Timedelta = round2(float64(d.Datetime-extMicro) / 1e6)
						out = append(out, ext)
					}
				}
			}

			out = append(out, stay)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Datetime != out[j].Datetime {
			return out[i].Datetime < out[j].Datetime
		}
		return out[i].AnimalID < out[j].AnimalID
	})
	return out, nil
}

// segmentStart 读数所在相位段（或日）的起始时刻。
// 相位变化取该相位当日的起始钟点，相位未变而日变化取当日零点。
func segmentStart(d schema.Detection, bounds config.PhaseBounds, loc *time.Location) time.Time {
	t := time.UnixMicro(d.Datetime).In(loc)

	var clock config.ClockTime
	switch d.Phase {
	case config.LightPhase:
		clock = bounds.LightStart
	case config.DarkPhase:
		clock = bounds.DarkStart
	}

	boundary := time.Date(t.Year(), t.Month(), t.Day(), clock.Hour, clock.Minute, clock.Second, 0, loc)
	if boundary.After(t) {
		boundary = boundary.AddDate(0, 0, -1)
	}

	// 同相位跨日（如 00:00 起始的暗相位跨过午夜）按日边界拆
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	if midnight.After(boundary) && !midnight.After(t) {
		return midnight
	}
	return boundary
}
