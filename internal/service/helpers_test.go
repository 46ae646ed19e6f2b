package service

import (
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
)

// 两笼一管道的最小拓扑，天线 1/2 各守一侧
func testCfg() *config.Config {
	return &config.Config{
		Project: config.ProjectConfig{
			ExperimentName: "exp_test",
			DataPath:       "/tmp/data",
			Timezone:       "UTC",
			AnimalIDs:      []string{"mouse_1", "mouse_2"},
		},
		Topology: config.TopologyConfig{
			AntennaCombinations: map[string]string{
				"1_1": "cage_1",
				"2_2": "cage_2",
				"1_2": "c1_c2",
				"2_1": "c2_c1",
			},
			Tunnels: map[string]string{
				"c1_c2": "tunnel_1",
				"c2_c1": "tunnel_1",
			},
			PossibleFirst: map[string][]int{
				"cage_1": {1},
				"cage_2": {2},
			},
		},
		Phase:     config.PhaseConfig{LightStart: "12:00:00", DarkStart: "00:00:00"},
		Occupancy: config.OccupancyConfig{Precision: 1},
		Social:    config.SocialConfig{MinimumTime: 2.0, ChaseWindowMin: 0.1, ChaseWindowMax: 1.0, Workers: 2},
		Ranking:   config.RankingConfig{OrdinalZ: 3.0},
	}
}

func mustTime(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05.999999", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func micro(s string) int64 {
	return mustTime(s).UnixMicro()
}
