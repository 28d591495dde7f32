package fetch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pixcache/pixcache/internal/logging"
)

// Source 记录单个地址最终由哪一路解析成功。
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceNone    Source = "none"
)

// Outcome 是单个地址的终态。Err 非空时 Source 为 SourceNone 且 Image 为 nil。
type Outcome struct {
	URL    string
	Source Source
	Image  *Image
	Err    error
	// CacheErr 记录回源成功后写缓存失败的原因，不影响本次结果。
	CacheErr error
}

// OK 表示该地址已成功解析（缓存命中或回源成功）。
func (o Outcome) OK() bool {
	return o.Err == nil && o.Image != nil
}

// Result 汇总一次批量解析，每个去重后的地址恰好对应一个 Outcome。
type Result struct {
	BatchID  string
	Outcomes map[string]Outcome
	// Order 保留去重后的提交顺序，Images 按此顺序输出。
	Order []string
}

// Image 返回 identifier 对应的成功结果。
func (r *Result) Image(identifier string) (*Image, bool) {
	outcome, ok := r.Outcomes[identifier]
	if !ok || !outcome.OK() {
		return nil, false
	}
	return outcome.Image, true
}

// Images 按提交顺序返回所有成功解析的图片，失败项被跳过。
func (r *Result) Images() []*Image {
	images := make([]*Image, 0, len(r.Order))
	for _, id := range r.Order {
		if outcome := r.Outcomes[id]; outcome.OK() {
			images = append(images, outcome.Image)
		}
	}
	return images
}

// Failed 返回失败地址及原因。
func (r *Result) Failed() map[string]error {
	failed := make(map[string]error)
	for id, outcome := range r.Outcomes {
		if !outcome.OK() {
			failed[id] = outcome.Err
		}
	}
	return failed
}

// Counts 返回缓存命中、回源成功与失败的数量。
func (r *Result) Counts() (cacheHits, network, failed int) {
	for _, outcome := range r.Outcomes {
		switch {
		case !outcome.OK():
			failed++
		case outcome.Source == SourceCache:
			cacheHits++
		default:
			network++
		}
	}
	return cacheHits, network, failed
}

// FetchAll 并发解析所有地址：先查缓存，未命中再回源并写回缓存。
// 所有地址都到达终态后才返回，单个地址失败不会影响其它地址。
// ctx 取消后尚未发起请求的地址以 KindCanceled 失败。
// 地址先去除首尾空白，Result.Outcomes 以规范化后的地址为键。
func (c *Coordinator) FetchAll(ctx context.Context, identifiers []string) *Result {
	batchID := uuid.NewString()
	order := dedupe(identifiers)
	outcomes := make([]Outcome, len(order))

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, id := range order {
		g.Go(func() error {
			outcomes[i] = c.resolve(ctx, batchID, id)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		BatchID:  batchID,
		Outcomes: make(map[string]Outcome, len(order)),
		Order:    order,
	}
	for _, outcome := range outcomes {
		result.Outcomes[outcome.URL] = outcome
	}

	hits, network, failed := result.Counts()
	c.logger.WithFields(logging.BatchFields(batchID, len(order), hits, network, failed)).
		Info("all downloads complete")
	return result
}

// FetchAllAsync 在后台执行 FetchAll，并在全部地址结束后恰好调用一次 done。
func (c *Coordinator) FetchAllAsync(ctx context.Context, identifiers []string, done func(*Result)) {
	ids := append([]string(nil), identifiers...)
	go func() {
		result := c.FetchAll(ctx, ids)
		if done != nil {
			done(result)
		}
	}()
}

func (c *Coordinator) resolve(ctx context.Context, batchID, identifier string) Outcome {
	outcome := Outcome{URL: identifier, Source: SourceNone}

	if blob, ok := c.store.Get(ctx, identifier); ok {
		img, err := c.decoder.Decode(blob)
		if err == nil {
			img.URL = identifier
			outcome.Source = SourceCache
			outcome.Image = img
			c.logger.WithFields(logging.FetchFields(batchID, identifier, string(SourceCache))).
				Debug("loaded from cache")
			return outcome
		}
		c.logger.WithError(err).
			WithFields(logging.FetchFields(batchID, identifier, string(SourceCache))).
			Warn("cache_entry_undecodable")
	}

	if err := ctx.Err(); err != nil {
		outcome.Err = &FetchError{URL: identifier, Kind: KindCanceled, Err: err}
		return outcome
	}

	img, err := c.FetchOne(ctx, identifier)
	if err != nil {
		outcome.Err = err
		c.logger.WithError(err).
			WithFields(logging.FetchFields(batchID, identifier, string(SourceNone))).
			WithField("kind", KindOf(err)).
			Warn("skip image, download failure")
		return outcome
	}

	outcome.Source = SourceNetwork
	outcome.Image = img
	if err := c.store.Put(ctx, identifier, img.Data); err != nil {
		outcome.CacheErr = err
		c.logger.WithError(err).
			WithFields(logging.FetchFields(batchID, identifier, string(SourceNetwork))).
			Warn("cache_write_failed")
	}
	c.logger.WithFields(logging.FetchFields(batchID, identifier, string(SourceNetwork))).
		WithFields(logrus.Fields{"format": img.Format, "bytes": len(img.Data)}).
		Debug("downloaded")
	return outcome
}

// dedupe 去除首尾空白后去重，保持首次出现的顺序，与 cache.Key 的规范形式一致；
// 空白地址保留以便报告失败。
func dedupe(identifiers []string) []string {
	seen := make(map[string]struct{}, len(identifiers))
	result := make([]string, 0, len(identifiers))
	for _, raw := range identifiers {
		id := strings.TrimSpace(raw)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

