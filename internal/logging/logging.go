// Package logging 命令行与服务共用的启动设置：zerolog 输出格式与 .env 加载
package logging

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup 终端下使用彩色控制台输出，否则输出 JSON；级别取 LOG_LEVEL，默认 info
func Setup() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ParseLevel 无法识别时返回 info
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LoadEnvFiles 依次加载 KEY=VALUE 文件，已存在的环境变量不被覆盖，后加载的文件优先于先加载的
func LoadEnvFiles(paths ...string) {
	preset := make(map[string]bool)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			preset[kv[:i]] = true
		}
	}
	for _, p := range paths {
		n, err := loadEnvFile(p, preset)
		if err != nil {
			log.Debug().Str("file", p).Msg("未找到环境变量文件")
			continue
		}
		log.Debug().Str("file", p).Int("vars", n).Msg("已加载环境变量文件")
	}
}

func loadEnvFile(path string, preset map[string]bool) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	n := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(line, "export "), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if preset[key] {
			continue
		}
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		os.Setenv(key, val)
		n++
	}
	return n, scanner.Err()
}
