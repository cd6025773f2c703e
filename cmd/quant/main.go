package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/enhen-x/Quant-A-Share/internal/app"
	"github.com/enhen-x/Quant-A-Share/internal/cache"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/logging"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
)

const version = "v1.0.0"

var (
	configPath string
	baseDir    string
	quant      *app.App
)

func main() {
	logging.LoadEnvFiles(".env", ".env.local")
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "quant",
		Short:   "A股短线量化选股系统",
		Long:    "下载日线、筛选股票池、计算特征、训练梯度提升树、回测并输出每日买入清单",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return NewMenu(quant, os.Stdin, os.Stdout).Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("QUANT_CONFIG"), "YAML 配置文件")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "数据根目录，覆盖配置文件")

	rootCmd.AddCommand(
		stepCmd("init", "初始化/更新数据（下载 + 筛选）", runInit),
		stepCmd("features", "特征工程（计算因子 + 打标签）", runFeatures),
		stepCmd("train", "训练模型", runTrain),
		backtestCmd(),
		stepCmd("audit", "审计回测记录（查ST/涨跌停）", runAudit),
		stepCmd("scan", "实盘选股（输出今日买入清单）", runScan),
		stepCmd("weekly", "一键周度更新", runWeekly),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("命令执行失败")
		os.Exit(1)
	}
}

func setup(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	rdb, err := cache.InitRedis(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Redis不可用，使用内存缓存")
	} else if rdb != nil {
		stockdata.SetCacheProvider(rdb)
	}

	quant = app.New(cfg)
	return nil
}

type stepFunc func(ctx context.Context, a *app.App, w io.Writer) error

func stepCmd(use, short string, fn stepFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fn(cmd.Context(), quant, os.Stdout)
		},
	}
}

func backtestCmd() *cobra.Command {
	var random bool
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "策略回测（验证集或随机窗口）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if random {
				f := cmd.Flags()
				if f.Changed("trials") {
					quant.Cfg.Random.Trials, _ = f.GetInt("trials")
				}
				if f.Changed("weeks") {
					quant.Cfg.Random.Weeks, _ = f.GetInt("weeks")
				}
				if f.Changed("seed") {
					quant.Cfg.Random.Seed, _ = f.GetInt64("seed")
				}
				return runRandomBacktest(cmd.Context(), quant, os.Stdout)
			}
			return runBacktest(cmd.Context(), quant, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&random, "random", false, "随机历史窗口回测")
	cmd.Flags().Int("trials", 20, "随机窗口次数")
	cmd.Flags().Int("weeks", 52, "每个窗口的调仓次数")
	cmd.Flags().Int64("seed", 42, "随机种子")
	return cmd
}
