package config

import (
	"os"
	"strconv"
	"time"
)

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	// 每周流水线
	Weekly struct {
		Enabled  bool   `json:"enabled"`
		Schedule string `json:"schedule"` // cron表达式，默认 "30 16 * * 5" (周五收盘后)
	} `json:"weekly"`

	// 交易日收盘后扫描
	DailyScan struct {
		Enabled  bool   `json:"enabled"`
		Schedule string `json:"schedule"` // cron表达式，默认 "0 17 * * 1-5"
	} `json:"daily_scan"`

	RetryCount    int           `json:"retry_count"`
	RetryInterval time.Duration `json:"retry_interval"`
	HolidayFile   string        `json:"holiday_file"`
	// 是否查询节假日API，默认只用周末与自定义节假日
	UseHolidayAPI bool          `json:"use_holiday_api"`
}

// GetSchedulerConfig 获取定时任务配置
func GetSchedulerConfig() *SchedulerConfig {
	config := &SchedulerConfig{}

	config.Weekly.Enabled = getEnvBool("WEEKLY_PIPELINE_ENABLED", true)
	config.Weekly.Schedule = getEnvString("WEEKLY_PIPELINE_SCHEDULE", "30 16 * * 5")

	config.DailyScan.Enabled = getEnvBool("DAILY_SCAN_ENABLED", false)
	config.DailyScan.Schedule = getEnvString("DAILY_SCAN_SCHEDULE", "0 17 * * 1-5")

	config.RetryCount = getEnvInt("SCHEDULER_RETRY_COUNT", 3)
	config.RetryInterval = getEnvDuration("SCHEDULER_RETRY_INTERVAL", 10*time.Minute)
	config.HolidayFile = getEnvString("HOLIDAY_FILE", "holidays.json")
	config.UseHolidayAPI = getEnvBool("HOLIDAY_API", false)

	return config
}

// 辅助函数
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
