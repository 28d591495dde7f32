package cache

import (
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// tempPrefix 标记写入中的临时文件，Get/Stats 会忽略它们。
const tempPrefix = ".cache-"

// Key 将 identifier 映射为文件名安全的 CacheKey（sha256 十六进制）。
// 同一 identifier 在任何进程中都得到同一个 key；空 identifier 返回 ErrInvalidIdentifier。
func Key(identifier string) (string, error) {
	canonical := strings.TrimSpace(identifier)
	if canonical == "" {
		return "", ErrInvalidIdentifier
	}
	return digest.SHA256.FromString(canonical).Encoded(), nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}
