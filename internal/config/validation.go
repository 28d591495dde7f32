package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "仅支持 trace/debug/info/warn/error")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.MaxConcurrency < 0 {
		return newFieldError("Global.MaxConcurrency", "不能为负数（0 表示不限制）")
	}
	if g.MaxBodyBytes <= 0 {
		return newFieldError("Global.MaxBodyBytes", "必须大于 0")
	}
	if g.MaxPixels <= 0 {
		return newFieldError("Global.MaxPixels", "必须大于 0")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}

	for idx, raw := range c.Prefetch {
		if err := ValidateImageURL(raw); err != nil {
			return fmt.Errorf("%s: %w", prefetchField(idx), err)
		}
	}

	return nil
}

// ValidateImageURL 校验图片地址必须为带 Host 的 http/https URL。
func ValidateImageURL(raw string) error {
	if raw == "" {
		return errors.New("缺少图片地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，地址: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("地址缺少 Host: %s", raw)
	}
	return nil
}
