package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/habtrack/internal/eventbus"
	"github.com/yuqie6/habtrack/internal/loader"
	"github.com/yuqie6/habtrack/internal/pkg/buildinfo"
	"github.com/yuqie6/habtrack/internal/pkg/config"
	"github.com/yuqie6/habtrack/internal/repository"
	"github.com/yuqie6/habtrack/internal/service"
)

var (
	cfgFile   string
	overwrite bool
	cfg       *config.Config
	db        *repository.Database
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "habtrack",
		Short:   "HabTrack - EcoHab 群居动物行为分析流水线",
		Long:    `HabTrack 把 RFID 天线读数流转为动物轨迹、光照相位切分的停留数据、占位栅格、社交事件与优势排名。`,
		Version: fmt.Sprintf("%s (%s)", buildinfo.Version, buildinfo.Commit),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 加载配置
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				slog.Error("加载配置失败", "error", err)
				os.Exit(1)
			}
			config.SetupLogger(cfg.App.LogLevel)

			if err := cfg.Validate(); err != nil {
				slog.Error("配置校验失败", "error", err)
				os.Exit(1)
			}

			// 初始化结果库
			db, err = repository.NewDatabase(cfg.Storage.DBPath)
			if err != nil {
				slog.Error("初始化结果库失败", "error", err)
				os.Exit(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "忽略缓存，整表重算")

	// 添加子命令
	rootCmd.AddCommand(stageCmd("structure", "加载读数并构建相位切分的停留数据",
		func(p *service.Pipeline, ctx context.Context) error { return p.Structure(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("occupancy", "构建占位栅格",
		func(p *service.Pipeline, ctx context.Context) error { return p.Occupancy(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("activity", "计算各位置停留时长与到访次数",
		func(p *service.Pipeline, ctx context.Context) error { return p.Activity(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("sociability", "计算成对相遇、独处时长与队内社交性",
		func(p *service.Pipeline, ctx context.Context) error { return p.Sociability(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("chasings", "检测追逐事件并生成比赛日志",
		func(p *service.Pipeline, ctx context.Context) error { return p.Chasings(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("ranking", "按比赛日志计算优势排名",
		func(p *service.Pipeline, ctx context.Context) error { return p.Ranking(ctx, overwrite) }))
	rootCmd.AddCommand(stageCmd("all", "按依赖顺序运行全部阶段",
		func(p *service.Pipeline, ctx context.Context) error { return p.RunAll(ctx, overwrite) }))
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stageCmd 单阶段子命令的通用骨架
func stageCmd(name, short string, run func(*service.Pipeline, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			pipeline := service.NewPipeline(cfg, cfgFile, db, eventbus.NewHub())
			if err := run(pipeline, ctx); err != nil {
				slog.Error("阶段执行失败", "stage", name, "error", err)
				os.Exit(1)
			}
			fmt.Printf("✅ %s 完成\n", name)
		},
	}
}

// watchCmd 监视数据目录，文件更新后整体重算
func watchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "监视数据目录，读数文件更新后自动重算",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			hub := eventbus.NewHub()
			pipeline := service.NewPipeline(cfg, cfgFile, db, hub)

			// 订阅阶段进度，打印到终端
			go func() {
				for evt := range hub.Subscribe(ctx, 64) {
					if evt.Type == eventbus.EventStageComplete {
						fmt.Printf("  · %v: %v 行\n", evt.Data["stage"], evt.Data["rows"])
					}
				}
			}()

			recompute := func() {
				hub.Publish(eventbus.Event{Type: eventbus.EventRecompute})
				if err := pipeline.RunAll(ctx, true); err != nil {
					slog.Error("重算失败", "error", err)
				}
			}

			// 先跑一遍，保证结果库和数据目录一致
			recompute()

			watcher, err := loader.NewWatcher(cfg, debounce, recompute)
			if err != nil {
				slog.Error("创建监视器失败", "error", err)
				os.Exit(1)
			}
			defer watcher.Stop()

			if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("监视数据目录失败", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "文件更新去抖窗口")
	return cmd
}

// statusCmd 打印各结果表的行数
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看各结果表的缓存状态",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			counts := []struct {
				table string
				count func() (int64, error)
			}{
				{"detections", func() (int64, error) { return repository.NewDetectionRepository(db.DB).Count(ctx) }},
				{"padded_stays", func() (int64, error) { return repository.NewPaddedStayRepository(db.DB).Count(ctx) }},
				{"occupancy_ticks", func() (int64, error) { return repository.NewOccupancyRepository(db.DB).Count(ctx) }},
				{"position_times", func() (int64, error) { return repository.NewActivityRepository(db.DB).CountPositionTimes(ctx) }},
				{"pairwise_meetings", func() (int64, error) { return repository.NewSocialRepository(db.DB).CountMeetings(ctx) }},
				{"chase_matches", func() (int64, error) { return repository.NewChaseRepository(db.DB).CountMatches(ctx) }},
				{"rank_estimates", func() (int64, error) { return repository.NewRankingRepository(db.DB).CountEstimates(ctx) }},
			}

			fmt.Printf("实验: %s\n", cfg.Project.ExperimentName)

			detections := repository.NewDetectionRepository(db.DB)
			if n, err := detections.Count(ctx); err == nil && n > 0 {
				loc, locErr := cfg.Location()
				if locErr != nil {
					loc = time.Local
				}
				min, max, err := detections.TimeBounds(ctx)
				if err == nil {
					fmt.Printf("读数时间范围: %s ~ %s\n",
						time.UnixMicro(min).In(loc).Format("2006-01-02 15:04:05"),
						time.UnixMicro(max).In(loc).Format("2006-01-02 15:04:05"))
				}
			}

			for _, c := range counts {
				n, err := c.count()
				if err != nil {
					fmt.Printf("  %-18s 查询失败: %v\n", c.table, err)
					continue
				}
				fmt.Printf("  %-18s %d 行\n", c.table, n)
			}
		},
	}
}
