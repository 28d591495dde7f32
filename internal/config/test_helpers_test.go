package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testConfigPath 返回 testdata 下的配置样例。
func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("缺少配置样例 %s: %v", name, err)
	}
	return path
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// writePrefetchConfig 生成只包含日志级别与 Prefetch 列表的配置文件，
// 地址按原样写入 TOML 数组，便于覆盖空白与重复项。
func writePrefetchConfig(t *testing.T, urls ...string) string {
	t.Helper()
	quoted := make([]string, 0, len(urls))
	for _, u := range urls {
		quoted = append(quoted, fmt.Sprintf("%q", u))
	}
	return writeTempConfig(t, fmt.Sprintf("LogLevel = \"info\"\nPrefetch = [%s]\n", strings.Join(quoted, ", ")))
}
