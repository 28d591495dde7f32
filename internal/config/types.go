package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：日志、缓存目录与回源参数。
// MaxConcurrency 为 0 表示批次内不限并发；MaxPixels 限制单张图片声明的像素数。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	StoragePath    string   `mapstructure:"StoragePath"`
	FetchTimeout   Duration `mapstructure:"FetchTimeout"`
	MaxConcurrency int      `mapstructure:"MaxConcurrency"`
	MaxBodyBytes   int64    `mapstructure:"MaxBodyBytes"`
	MaxPixels      int64    `mapstructure:"MaxPixels"`
	UserAgent      string   `mapstructure:"UserAgent"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	// Prefetch 列出启动时需要预热的图片地址。
	Prefetch []string `mapstructure:"Prefetch"`
}

const (
	defaultListenPort     = 5000
	defaultMaxBodyBytes   = 32 * 1024 * 1024
	defaultMaxPixels      = 50_000_000
	defaultUserAgent      = "pixcache"
	defaultFetchTimeout   = 30 * time.Second
)

// DefaultStoragePath 返回系统临时目录下的 ImageCache 子目录。
func DefaultStoragePath() string {
	return filepath.Join(os.TempDir(), "ImageCache")
}
