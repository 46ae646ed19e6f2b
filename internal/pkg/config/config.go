package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 配置错误哨兵（ConfigurationError 族）
var (
	ErrMissingDataPath  = errors.New("未配置原始数据目录 project.data_path")
	ErrMissingAnimalIDs = errors.New("未配置动物 ID 列表 project.animal_ids")
	ErrMissingTopology  = errors.New("未配置天线组合表 topology.antenna_combinations")
	ErrInvalidTimeline  = errors.New("实验时间范围非法：start_date 晚于 finish_date")
	ErrInvalidPhase     = errors.New("光照周期配置非法：需要 HH:MM:SS 格式的 light_start 与 dark_start")
)

// 光照相位标签，全流水线统一使用
const (
	LightPhase = "light_phase"
	DarkPhase  = "dark_phase"
)

// Undefined 拓扑表中不存在的天线组合解析到的哨兵位置
const Undefined = "undefined"

// Config 项目配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Project   ProjectConfig   `mapstructure:"project"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Topology  TopologyConfig  `mapstructure:"topology"`
	Phase     PhaseConfig     `mapstructure:"phase"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Occupancy OccupancyConfig `mapstructure:"occupancy"`
	Social    SocialConfig    `mapstructure:"social"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

// ProjectConfig 实验项目配置
type ProjectConfig struct {
	ExperimentName string         `mapstructure:"experiment_name"`
	DataPath       string         `mapstructure:"data_path"`   // 原始天线读数目录
	Timezone       string         `mapstructure:"timezone"`    // IANA 时区名，空则取本机时区
	AnimalIDs      []string       `mapstructure:"animal_ids"`  // RFID 标签词表，建项时约定
	DroppedIDs     []string       `mapstructure:"dropped_ids"` // 清洗时剔除的幽灵标签
	Timeline       TimelineConfig `mapstructure:"timeline"`
}

// TimelineConfig 实验起止时间（本地时间，ISO 格式），为空则由数据推导
type TimelineConfig struct {
	StartDate  string `mapstructure:"start_date"`
	FinishDate string `mapstructure:"finish_date"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TopologyConfig 笼子/管道拓扑配置
type TopologyConfig struct {
	// AntennaCombinations (prev_curr) 天线对 → 位置标签，如 "1_2" → "c1_c2"、"1_8" → "cage_1"
	AntennaCombinations map[string]string `mapstructure:"antenna_combinations"`
	// Tunnels 有向管道标签 → 无向管道名，如 "c1_c2" → "tunnel_1"
	Tunnels map[string]string `mapstructure:"tunnels"`
	// PossibleFirst 笼子 → 首次读到即可判定在该笼的天线列表
	PossibleFirst map[string][]int `mapstructure:"possible_first"`
	// AntennaRename 自定义布局时按读头板重映射天线号：板名 → (旧号 → 新号)
	AntennaRename map[string]map[string]int `mapstructure:"antenna_rename"`
}

// PhaseConfig 光照周期配置，HH:MM:SS
type PhaseConfig struct {
	LightStart string `mapstructure:"light_start"`
	DarkStart  string `mapstructure:"dark_start"`
}

// LoaderConfig 原始数据加载配置
type LoaderConfig struct {
	FnamePrefix         string `mapstructure:"fname_prefix"`          // 数据文件前缀，默认 COM
	SanitizeAnimalIDs   bool   `mapstructure:"sanitize_animal_ids"`   // 是否剔除幽灵标签
	MinAntennaCrossings int    `mapstructure:"min_antenna_crossings"` // 低于该读数的标签视为噪声
	CustomLayout        bool   `mapstructure:"custom_layout"`         // 多板合并布局时启用天线重映射
}

// OccupancyConfig 占位栅格配置
type OccupancyConfig struct {
	// Precision 每秒刻度数：1 = 1s 步长，10 = 100ms 步长
	Precision int `mapstructure:"precision"`
}

// SocialConfig 社交事件提取配置
type SocialConfig struct {
	MinimumTime    float64 `mapstructure:"minimum_time"`     // 共处计为一次相遇的最短秒数
	ChaseWindowMin float64 `mapstructure:"chase_window_min"` // 追逐判定的最小出管间隔（秒）
	ChaseWindowMax float64 `mapstructure:"chase_window_max"` // 追逐判定的最大出管间隔（秒）
	Workers        int     `mapstructure:"workers"`          // 成对计算的并发度，0 = CPU 数
}

// RankingConfig 排名配置
type RankingConfig struct {
	OrdinalZ float64 `mapstructure:"ordinal_z"` // ordinal = mu - z*sigma 的 z，项目内固定
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HABTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Project.DataPath = resolvePath(cfg.Project.DataPath)
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "habtrack")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")

	// Storage
	v.SetDefault("storage.db_path", "./data/habtrack.db")

	// Phase
	v.SetDefault("phase.light_start", "12:00:00")
	v.SetDefault("phase.dark_start", "00:00:00")

	// Loader
	v.SetDefault("loader.fname_prefix", "COM")
	v.SetDefault("loader.sanitize_animal_ids", true)
	v.SetDefault("loader.min_antenna_crossings", 100)
	v.SetDefault("loader.custom_layout", false)

	// Occupancy
	v.SetDefault("occupancy.precision", 1)

	// Social
	v.SetDefault("social.minimum_time", 2.0)
	v.SetDefault("social.chase_window_min", 0.1)
	v.SetDefault("social.chase_window_max", 1.0)
	v.SetDefault("social.workers", 0)

	// Ranking
	v.SetDefault("ranking.ordinal_z", 3.0)
}

// Validate 校验流水线运行所必需的配置项
func (c *Config) Validate() error {
	if c.Project.DataPath == "" {
		return ErrMissingDataPath
	}
	if len(c.Project.AnimalIDs) == 0 {
		return ErrMissingAnimalIDs
	}
	if len(c.Topology.AntennaCombinations) == 0 {
		return ErrMissingTopology
	}
	if _, err := c.PhaseBounds(); err != nil {
		return err
	}
	if c.Timeline() != nil {
		start, finish, err := c.TimelineBounds()
		if err != nil {
			return err
		}
		if start.After(finish) {
			return ErrInvalidTimeline
		}
	}
	return nil
}

// Location 返回项目时区，未配置时退回本机时区
func (c *Config) Location() (*time.Location, error) {
	if c.Project.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Project.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %q 失败: %w", c.Project.Timezone, err)
	}
	return loc, nil
}

// ClockTime 一天内的时刻
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// SecondsOfDay 距当日零点的秒数
func (t ClockTime) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// ParseClockTime 解析 HH:MM:SS
func ParseClockTime(s string) (ClockTime, error) {
	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidPhase, s)
	}
	return ClockTime{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
}

// PhaseBounds 光照周期的两个日内边界
type PhaseBounds struct {
	LightStart ClockTime
	DarkStart  ClockTime
}

// PhaseBounds 解析光照周期配置
func (c *Config) PhaseBounds() (PhaseBounds, error) {
	light, err := ParseClockTime(c.Phase.LightStart)
	if err != nil {
		return PhaseBounds{}, err
	}
	dark, err := ParseClockTime(c.Phase.DarkStart)
	if err != nil {
		return PhaseBounds{}, err
	}
	return PhaseBounds{LightStart: light, DarkStart: dark}, nil
}

// Timeline 返回实验时间范围配置，任一端未配置时返回 nil
func (c *Config) Timeline() *TimelineConfig {
	if c.Project.Timeline.StartDate == "" || c.Project.Timeline.FinishDate == "" {
		return nil
	}
	t := c.Project.Timeline
	return &t
}

// TimelineBounds 解析实验起止时间为项目时区下的时刻
func (c *Config) TimelineBounds() (time.Time, time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := parseLocalDatetime(c.Project.Timeline.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("解析 start_date 失败: %w", err)
	}
	finish, err := parseLocalDatetime(c.Project.Timeline.FinishDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("解析 finish_date 失败: %w", err)
	}
	return start, finish, nil
}

// parseLocalDatetime 解析 ISO 日期时间（容忍省略秒或只有日期）
func parseLocalDatetime(s string, loc *time.Location) (time.Time, error) {
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期时间 %q", s)
}

// Cages 拓扑中的笼子标签（去重排序）
func (c *Config) Cages() []string {
	return c.positionsWhere(func(p string) bool { return strings.Contains(p, "cage") })
}

// TunnelMarkers 拓扑中的有向管道标签（去重排序）
func (c *Config) TunnelMarkers() []string {
	return c.positionsWhere(func(p string) bool { return !strings.Contains(p, "cage") })
}

// Positions 全部可能的位置标签，含 undefined 哨兵
func (c *Config) Positions() []string {
	all := c.positionsWhere(func(string) bool { return true })
	return append(all, Undefined)
}

func (c *Config) positionsWhere(keep func(string) bool) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, pos := range c.Topology.AntennaCombinations {
		if !keep(pos) {
			continue
		}
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		out = append(out, pos)
	}
	sort.Strings(out)
	return out
}

// FirstReadPosition 按 possible_first 表判定首次读数对应的笼子，找不到返回 undefined
func (c *Config) FirstReadPosition(antenna int) string {
	cages := make([]string, 0, len(c.Topology.PossibleFirst))
	for cage := range c.Topology.PossibleFirst {
		cages = append(cages, cage)
	}
	sort.Strings(cages)
	for _, cage := range cages {
		for _, a := range c.Topology.PossibleFirst[cage] {
			if a == antenna {
				return cage
			}
		}
	}
	return Undefined
}

// WithoutAnimals 返回剔除指定动物后的新配置版本，不修改原配置。
// 清洗是否落盘由调用方显式决定（WriteFile）。
func (c *Config) WithoutAnimals(dropped []string) *Config {
	next := *c
	droppedSet := make(map[string]struct{}, len(dropped))
	for _, id := range dropped {
		droppedSet[id] = struct{}{}
	}

	kept := make([]string, 0, len(c.Project.AnimalIDs))
	for _, id := range c.Project.AnimalIDs {
		if _, ok := droppedSet[id]; !ok {
			kept = append(kept, id)
		}
	}
	sort.Strings(kept)

	next.Project.AnimalIDs = kept
	next.Project.DroppedIDs = append(append([]string{}, c.Project.DroppedIDs...), dropped...)
	return &next
}

// WithTimeline 返回补写了实验起止时间的新配置版本
func (c *Config) WithTimeline(start, finish time.Time) *Config {
	next := *c
	next.Project.Timeline = TimelineConfig{
		StartDate:  start.Format("2006-01-02 15:04:05"),
		FinishDate: finish.Format("2006-01-02 15:04:05"),
	}
	return &next
}

// resolvePath 解析相对路径为绝对路径
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// SetupLogger 根据配置设置日志级别
func SetupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
