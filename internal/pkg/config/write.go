package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// WriteFile 将配置写回磁盘。
// 幽灵标签清洗、实验时间推导都生成新的配置版本，写不写由调用方决定，这里只负责落盘。
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
		},
		"project": map[string]any{
			"experiment_name": cfg.Project.ExperimentName,
			"data_path":       cfg.Project.DataPath,
			"timezone":        cfg.Project.Timezone,
			"animal_ids":      cfg.Project.AnimalIDs,
			"dropped_ids":     cfg.Project.DroppedIDs,
			"timeline": map[string]any{
				"start_date":  cfg.Project.Timeline.StartDate,
				"finish_date": cfg.Project.Timeline.FinishDate,
			},
		},
		"storage": map[string]any{
			"db_path": cfg.Storage.DBPath,
		},
		"topology": map[string]any{
			"antenna_combinations": cfg.Topology.AntennaCombinations,
			"tunnels":              cfg.Topology.Tunnels,
			"possible_first":       cfg.Topology.PossibleFirst,
			"antenna_rename":       cfg.Topology.AntennaRename,
		},
		"phase": map[string]any{
			"light_start": cfg.Phase.LightStart,
			"dark_start":  cfg.Phase.DarkStart,
		},
		"loader": map[string]any{
			"fname_prefix":          cfg.Loader.FnamePrefix,
			"sanitize_animal_ids":   cfg.Loader.SanitizeAnimalIDs,
			"min_antenna_crossings": cfg.Loader.MinAntennaCrossings,
			"custom_layout":         cfg.Loader.CustomLayout,
		},
		"occupancy": map[string]any{
			"precision": cfg.Occupancy.Precision,
		},
		"social": map[string]any{
			"minimum_time":     cfg.Social.MinimumTime,
			"chase_window_min": cfg.Social.ChaseWindowMin,
			"chase_window_max": cfg.Social.ChaseWindowMax,
			"workers":          cfg.Social.Workers,
		},
		"ranking": map[string]any{
			"ordinal_z": cfg.Ranking.OrdinalZ,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
