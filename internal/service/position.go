package service

import (
	"fmt"
	"strings"

	"github.com/yuqie6/habtrack/internal/loader"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/schema"
)

// ResolvePositions 把每只动物的连续天线对解析为符号位置。
// 首条读数按 possible_first 表判笼，之后查 (prev, curr) 组合表，
// 查不到的组合解析为 undefined 并保留——它们仍占用时间，
// 只是下游的笼/管道聚合会跳过。
func ResolvePositions(cfg *config.Config, rows []loader.Row) []schema.Detection {
	prevAntenna := make(map[string]int)

	out := make([]schema.Detection, 0, len(rows))
	for _, row := range rows {
		det := schema.Detection{
			AnimalID: row.AnimalID,
			Antenna:  row.Antenna,
			Source:   row.Source,
			Datetime: row.Datetime.UnixMicro(),
		}

		prev, seen := prevAntenna[row.AnimalID]
		if !seen {
			det.Position = cfg.FirstReadPosition(row.Antenna)
		} else {
			key := fmt.Sprintf("%d_%d", prev, row.Antenna)
			pos, ok := cfg.Topology.AntennaCombinations[key]
			if !ok {
				pos = config.Undefined
			}
			det.Position = pos
		}
		prevAntenna[row.AnimalID] = row.Antenna

		out = append(out, det)
	}
	return out
}

// isCage 笼子位置标签约定含 cage 子串
func isCage(position string) bool {
	return strings.Contains(position, "cage")
}

// isTunnel 有向管道标签：非笼子且非 undefined
func isTunnel(position string) bool {
	return position != config.Undefined && position != "" && !isCage(position)
}

// collapseTunnel 把有向管道标签折叠为无向管道名，笼子与 undefined 原样返回
func collapseTunnel(cfg *config.Config, position string) string {
	if name, ok := cfg.Topology.Tunnels[position]; ok {
		return name
	}
	return position
}
