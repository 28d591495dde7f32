package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Option 调整 fileStore 的可选行为。
type Option func(*fileStore)

// WithLogger 注入日志实例，用于记录不可读条目、清理失败等非致命事件。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *fileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
// 目录在首次写入时才会创建。
func NewStore(basePath string, opts ...Option) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	store := &fileStore{
		basePath: abs,
		logger:   logrus.StandardLogger(),
		locks:    make(map[string]*entryLock),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// fileStore 通过 entryLock 避免同一 key 并发写入时互相踩踏临时文件。
type fileStore struct {
	basePath string
	logger   logrus.FieldLogger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) EnsureStorageReady() error {
	info, err := os.Stat(s.basePath)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrStorageUnavailable, s.basePath)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.logger.WithFields(logrus.Fields{
		"action": "cache_dir_created",
		"path":   s.basePath,
	}).Debug("cache directory created")
	return nil
}

func (s *fileStore) Path(identifier string) (string, error) {
	key, err := Key(identifier)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, key), nil
}

func (s *fileStore) Get(ctx context.Context, identifier string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	filePath, err := s.Path(identifier)
	if err != nil {
		return nil, false
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.warn(err, "cache_stat_failed", identifier)
		}
		return nil, false
	}
	if info.IsDir() {
		return nil, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.warn(err, "cache_read_failed", identifier)
		}
		return nil, false
	}
	return data, true
}

func (s *fileStore) Put(ctx context.Context, identifier string, blob []byte) error {
	filePath, err := s.Path(identifier)
	if err != nil {
		return &WriteError{Identifier: identifier, Err: err}
	}

	unlock := s.lockEntry(filepath.Base(filePath))
	defer unlock()

	if err := s.EnsureStorageReady(); err != nil {
		return &WriteError{Identifier: identifier, Err: err}
	}

	tempFile, err := os.CreateTemp(s.basePath, tempPrefix+"*")
	if err != nil {
		return &WriteError{Identifier: identifier, Err: err}
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(blob))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return &WriteError{Identifier: identifier, Err: err}
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return &WriteError{Identifier: identifier, Err: err}
	}
	return nil
}

func (s *fileStore) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		target := filepath.Join(s.basePath, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_remove",
				"file":   entry.Name(),
			}).Warn("cache_remove_failed")
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("clear cache: %w", errors.Join(errs...))
	}
	return removed, nil
}

func (s *fileStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Path: s.basePath}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if entry.IsDir() || isTempName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()
	}
	return stats, nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) warn(err error, action, identifier string) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action": action,
		"url":    identifier,
	}).Warn("cache entry unreadable, treating as miss")
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
