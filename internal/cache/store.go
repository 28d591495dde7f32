package cache

import (
	"context"
	"errors"
	"fmt"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<sha256(identifier)>    # 原始字节，无头部/元数据
//
// 条目存在即有效，不记录过期信息；只有 Clear 会删除条目。
type Store interface {
	// EnsureStorageReady 幂等地创建缓存目录（含中间路径），失败返回 ErrStorageUnavailable。
	EnsureStorageReady() error

	// Get 返回 identifier 对应的缓存内容。不存在、是目录或不可读时均视为未命中。
	Get(ctx context.Context, identifier string) ([]byte, bool)

	// Put 通过临时文件 + rename 原子地覆盖写入缓存，失败时清理临时文件并返回 *WriteError。
	Put(ctx context.Context, identifier string, blob []byte) error

	// Clear 尽力删除所有条目，单个条目删除失败不会中断其余条目的删除。
	Clear(ctx context.Context) (int, error)

	// Stats 汇总当前条目数量与总字节数，供诊断接口使用。
	Stats(ctx context.Context) (Stats, error)

	// Path 返回 identifier 对应的条目绝对路径（不保证存在）。
	Path(identifier string) (string, error)

	// Root 返回缓存根目录。
	Root() string
}

// Stats 描述缓存目录的占用情况。
type Stats struct {
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Path    string `json:"path"`
}

var (
	// ErrStorageUnavailable 表示缓存目录无法创建或访问。
	ErrStorageUnavailable = errors.New("cache storage unavailable")
	// ErrWriteFailure 表示回源成功后写缓存失败，调用方应视为丢失一次写入。
	ErrWriteFailure = errors.New("cache write failed")
	// ErrInvalidIdentifier 表示 identifier 为空，无法生成 CacheKey。
	ErrInvalidIdentifier = errors.New("invalid cache identifier")
)

// WriteError 记录写入失败的条目与底层原因，errors.Is(err, ErrWriteFailure) 恒成立。
type WriteError struct {
	Identifier string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrWriteFailure, e.Identifier, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailure, e.Err}
}
