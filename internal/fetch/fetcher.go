package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pixcache/pixcache/internal/cache"
)

const defaultMaxBodyBytes = 32 * 1024 * 1024

// Options 汇总 Coordinator 的依赖，由调用方在启动阶段构造一次并注入。
type Options struct {
	Client  *http.Client
	Store   cache.Store
	Decoder Decoder
	Logger  *logrus.Logger

	// MaxConcurrency 限制同一批次内同时进行的解析数量，<=0 表示不限制。
	// 设置上限后，超出部分会排队等待前面地址的网络耗时。
	MaxConcurrency int
	// MaxBodyBytes 限制单个响应正文大小，超出视为解码失败。
	MaxBodyBytes int64
	// MaxPixels 仅在 Decoder 为空时生效，作为默认 ImageDecoder 的像素预算。
	MaxPixels int64
	UserAgent string
}

// Coordinator 负责 “缓存命中 → 回源 → 解码 → 写缓存” 的全流程。
type Coordinator struct {
	client         *http.Client
	store          cache.Store
	decoder        Decoder
	logger         *logrus.Logger
	maxConcurrency int
	maxBodyBytes   int64
	userAgent      string
}

// NewCoordinator constructs a coordinator with shared HTTP client/store/logger.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	c := &Coordinator{
		client:         opts.Client,
		store:          opts.Store,
		decoder:        opts.Decoder,
		logger:         opts.Logger,
		maxConcurrency: opts.MaxConcurrency,
		maxBodyBytes:   opts.MaxBodyBytes,
		userAgent:      strings.TrimSpace(opts.UserAgent),
	}
	if c.decoder == nil {
		c.decoder = ImageDecoder{MaxPixels: opts.MaxPixels}
	}
	if c.maxConcurrency < 0 {
		c.maxConcurrency = 0
	}
	if c.maxBodyBytes <= 0 {
		c.maxBodyBytes = defaultMaxBodyBytes
	}
	return c, nil
}

// Store 返回底层缓存，便于调用方执行 Clear 等操作。
func (c *Coordinator) Store() cache.Store {
	return c.store
}

// FetchOne 发起一次 GET 并解码正文，不读写缓存。
// 状态码只用于诊断：非 2xx 的响应只要正文能解码就视为成功。
func (c *Coordinator) FetchOne(ctx context.Context, identifier string) (*Image, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, &FetchError{URL: identifier, Kind: KindInvalid, Err: cache.ErrInvalidIdentifier}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: identifier, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.WithFields(logrus.Fields{"action": "download", "url": identifier}).Debug("downloadImage")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{URL: identifier, Kind: KindCanceled, Err: ctxErr}
		}
		return nil, &FetchError{URL: identifier, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	fields := logrus.Fields{
		"action":       "download",
		"url":          identifier,
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.WithFields(fields).Warn("upstream returned non-success status")
	} else {
		c.logger.WithFields(fields).Debug("upstream responded")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: identifier, Kind: KindTransport, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, &FetchError{
			URL:        identifier,
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", c.maxBodyBytes),
		}
	}

	img, err := c.decoder.Decode(body)
	if err != nil {
		return nil, &FetchError{URL: identifier, Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
	}
	img.URL = identifier
	return img, nil
}
