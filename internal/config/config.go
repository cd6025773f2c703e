package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingInput 当前步骤所需的输入文件不存在
var ErrMissingInput = errors.New("missing input")

// 扫描兜底策略
const (
	FallbackForce  = "force"
	FallbackStrict = "strict"
)

// FetchConfig 行情下载与重试配置
type FetchConfig struct {
	ChunkDays         int           `yaml:"chunk_days"`
	MaxRetries        int           `yaml:"max_retries"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

// ModelConfig 梯度提升树参数
type ModelConfig struct {
	NEstimators         int     `yaml:"n_estimators"`
	LearningRate        float64 `yaml:"learning_rate"`
	MaxDepth            int     `yaml:"max_depth"`
	MinChildWeight      float64 `yaml:"min_child_weight"`
	Gamma               float64 `yaml:"gamma"`
	Lambda              float64 `yaml:"lambda"`
	Subsample           float64 `yaml:"subsample"`
	ColsampleByTree     float64 `yaml:"colsample_bytree"`
	ScalePosWeight      float64 `yaml:"scale_pos_weight"`
	EarlyStoppingRounds int     `yaml:"early_stopping_rounds"`
	MaxBins             int     `yaml:"max_bins"`
	Seed                int64   `yaml:"seed"`
}

// RandomConfig 随机窗口回测配置
type RandomConfig struct {
	Trials int   `yaml:"trials"`
	Weeks  int   `yaml:"weeks"`
	Seed   int64 `yaml:"seed"`
}

// FeeConfig 回测交易成本
type FeeConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Notional float64 `yaml:"notional"`
}

// Config 全流程配置，构造各组件时显式传入
type Config struct {
	BaseDir   string `yaml:"base_dir"`
	StartDate string `yaml:"start_date"`

	// 标签
	Horizon        int     `yaml:"horizon"`
	InitialTarget  float64 `yaml:"initial_target"`
	AlphaThreshold float64 `yaml:"alpha_threshold"`
	MinAbsReturn   float64 `yaml:"min_abs_return"`
	BenchmarkCode  string  `yaml:"benchmark_code"`

	// 股票池
	PoolSize         int      `yaml:"pool_size"`
	MinPrice         float64  `yaml:"min_price"`
	MaxPrice         float64  `yaml:"max_price"`
	MinHistory       int      `yaml:"min_history"`
	ActiveDays       int      `yaml:"active_days"`
	LiquidityWindow  int      `yaml:"liquidity_window"`
	UniversePrefixes []string `yaml:"universe_prefixes"`
	ExcludedPrefixes []string `yaml:"excluded_prefixes"`

	// 训练与回测
	TrainRatio     float64 `yaml:"train_ratio"`
	RebalanceEvery int     `yaml:"rebalance_every"`
	TopK           int     `yaml:"top_k"`
	LimitPct       float64 `yaml:"limit_pct"`

	// 实盘扫描
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	ScanFallback    string  `yaml:"scan_fallback"`
	MinScanBars     int     `yaml:"min_scan_bars"`
	FreshnessDays   int     `yaml:"freshness_days"`

	Fetch  FetchConfig  `yaml:"fetch"`
	Model  ModelConfig  `yaml:"model"`
	Random RandomConfig `yaml:"random"`
	Fees   FeeConfig    `yaml:"fees"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		BaseDir:   ".",
		StartDate: "2019-01-01",

		Horizon:        5,
		InitialTarget:  0.05,
		AlphaThreshold: 0.03,
		MinAbsReturn:   0.01,
		BenchmarkCode:  "sh.000905",

		PoolSize:         1000,
		MinPrice:         3,
		MaxPrice:         25,
		MinHistory:       60,
		ActiveDays:       5,
		LiquidityWindow:  20,
		UniversePrefixes: []string{"sh.6", "sz.0", "sz.3"},
		ExcludedPrefixes: []string{"sh.688", "bj", "sz.8", "sz.4"},

		TrainRatio:     0.9,
		RebalanceEvery: 5,
		TopK:           3,
		LimitPct:       9.5,

		ConfidenceFloor: 0.5,
		ScanFallback:    FallbackForce,
		MinScanBars:     30,
		FreshnessDays:   3,

		Fetch: FetchConfig{
			ChunkDays:         30,
			MaxRetries:        5,
			BaseBackoff:       time.Second,
			MaxBackoff:        30 * time.Second,
			RequestsPerSecond: 5,
			Timeout:           15 * time.Second,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Model: ModelConfig{
			NEstimators:         500,
			LearningRate:        0.03,
			MaxDepth:            6,
			MinChildWeight:      1,
			Gamma:               0.1,
			Lambda:              1,
			Subsample:           0.8,
			ColsampleByTree:     0.8,
			ScalePosWeight:      4.71,
			EarlyStoppingRounds: 50,
			MaxBins:             64,
			Seed:                42,
		},
		Random: RandomConfig{Trials: 20, Weeks: 52, Seed: 42},
		Fees:   FeeConfig{Enabled: false, Notional: 100000},
	}
}

// Load 加载配置：默认值 -> YAML 文件（可选）-> 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("QUANT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.BaseDir = getEnvString("QUANT_BASE_DIR", c.BaseDir)
	c.StartDate = getEnvString("QUANT_START_DATE", c.StartDate)
	c.Horizon = getEnvInt("QUANT_HORIZON", c.Horizon)
	c.AlphaThreshold = getEnvFloat("QUANT_ALPHA_THRESHOLD", c.AlphaThreshold)
	c.MinAbsReturn = getEnvFloat("QUANT_MIN_ABS_RETURN", c.MinAbsReturn)
	c.BenchmarkCode = getEnvString("QUANT_BENCHMARK", c.BenchmarkCode)
	c.PoolSize = getEnvInt("QUANT_POOL_SIZE", c.PoolSize)
	c.RebalanceEvery = getEnvInt("QUANT_REBALANCE_EVERY", c.RebalanceEvery)
	c.ConfidenceFloor = getEnvFloat("QUANT_CONFIDENCE_FLOOR", c.ConfidenceFloor)
	c.ScanFallback = getEnvString("QUANT_SCAN_FALLBACK", c.ScanFallback)
	c.Fetch.MaxRetries = getEnvInt("QUANT_FETCH_MAX_RETRIES", c.Fetch.MaxRetries)
	c.Fetch.Timeout = getEnvDuration("QUANT_FETCH_TIMEOUT", c.Fetch.Timeout)
	c.Fetch.RequestsPerSecond = getEnvFloat("QUANT_FETCH_RPS", c.Fetch.RequestsPerSecond)
	c.Fees.Enabled = getEnvBool("QUANT_FEES_ENABLED", c.Fees.Enabled)
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon 必须为正数: %d", c.Horizon)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size 必须为正数: %d", c.PoolSize)
	}
	if c.RebalanceEvery <= 0 {
		return fmt.Errorf("rebalance_every 必须为正数: %d", c.RebalanceEvery)
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("train_ratio 需在 (0,1) 之间: %v", c.TrainRatio)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k 必须为正数: %d", c.TopK)
	}
	if c.Fetch.ChunkDays <= 0 {
		return fmt.Errorf("fetch.chunk_days 必须为正数: %d", c.Fetch.ChunkDays)
	}
	switch c.ScanFallback {
	case FallbackForce, FallbackStrict:
	default:
		return fmt.Errorf("未知的 scan_fallback: %q", c.ScanFallback)
	}
	if _, err := time.Parse("2006-01-02", c.StartDate); err != nil {
		return fmt.Errorf("start_date 格式错误: %w", err)
	}
	return nil
}

// RawDir 原始K线目录
func (c *Config) RawDir() string { return filepath.Join(c.BaseDir, "data", "raw") }

// ProcessedDir 中间产物目录
func (c *Config) ProcessedDir() string { return filepath.Join(c.BaseDir, "data", "processed") }

// ModelDir 模型目录
func (c *Config) ModelDir() string { return filepath.Join(c.BaseDir, "models") }

// ReportDir 报告目录
func (c *Config) ReportDir() string { return filepath.Join(c.BaseDir, "reports") }

// BarPath 单只股票的K线文件
func (c *Config) BarPath(code string) string {
	return filepath.Join(c.RawDir(), code+".csv")
}

// BenchmarkPath 基准指数K线文件
func (c *Config) BenchmarkPath() string {
	return filepath.Join(c.RawDir(), "benchmark_"+strings.ReplaceAll(c.BenchmarkCode, ".", "")+".csv")
}

func (c *Config) NamesPath() string        { return filepath.Join(c.RawDir(), "stock_names.csv") }
func (c *Config) PoolPath() string         { return filepath.Join(c.ProcessedDir(), "stock_pool.csv") }
func (c *Config) DatasetPath() string      { return filepath.Join(c.ProcessedDir(), "dataset_labeled.db") }
func (c *Config) ModelPath() string        { return filepath.Join(c.ModelDir(), "gbdt_alpha_model.json") }
func (c *Config) FeatureNamesPath() string { return filepath.Join(c.ModelDir(), "feature_names.json") }
func (c *Config) CurvePath() string        { return filepath.Join(c.ReportDir(), "backtest_curve.csv") }

// BuyListPath 指定日期的买入清单
func (c *Config) BuyListPath(date string) string {
	return filepath.Join(c.BaseDir, "buy_list_"+date+".csv")
}

// RequireFile 检查前置文件是否存在
func RequireFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return err
	}
	return nil
}
