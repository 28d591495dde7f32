package routes

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pixcache/pixcache/internal/cache"
	"github.com/pixcache/pixcache/internal/config"
	"github.com/pixcache/pixcache/internal/fetch"
	"github.com/pixcache/pixcache/internal/server"
)

// Resolver 是路由层依赖的最小能力集合，测试中可注入假实现。
type Resolver interface {
	FetchAll(ctx context.Context, identifiers []string) *fetch.Result
	Store() cache.Store
}

// maxBatchURLs 限制单次 /-/batch 请求可提交的地址数量。
const maxBatchURLs = 256

// RegisterImageRoutes 暴露图片解析与缓存管理接口：
//
//	GET    /-/image?url=<u>   解析单张图片并直接返回原始字节
//	POST   /-/batch           批量解析，返回每个地址的结果
//	GET    /-/cache           缓存目录占用情况
//	DELETE /-/cache           清空缓存
func RegisterImageRoutes(app *fiber.App, resolver Resolver, logger *logrus.Logger) {
	if app == nil || resolver == nil || logger == nil {
		return
	}

	app.Get("/-/image", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if err := config.ValidateImageURL(target); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_url"})
		}

		result := resolver.FetchAll(c.Context(), []string{target})
		outcome := result.Outcomes[target]
		if !outcome.OK() {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "fetch_failed",
				"kind":  fetch.KindOf(outcome.Err),
			})
		}

		c.Set(fiber.HeaderContentType, outcome.Image.ContentType())
		c.Set("X-Pixcache-Cache-Hit", strconv.FormatBool(outcome.Source == fetch.SourceCache))
		c.Set("X-Pixcache-Batch-ID", result.BatchID)
		return c.Status(fiber.StatusOK).Send(outcome.Image.Data)
	})

	app.Post("/-/batch", func(c fiber.Ctx) error {
		var req batchRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		if len(req.URLs) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "urls_required"})
		}
		if len(req.URLs) > maxBatchURLs {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "too_many_urls"})
		}

		valid := make([]string, 0, len(req.URLs))
		rejected := make(map[string]OutcomePayload)
		for _, raw := range req.URLs {
			target := strings.TrimSpace(raw)
			if err := config.ValidateImageURL(target); err != nil {
				rejected[raw] = OutcomePayload{Source: string(fetch.SourceNone), Kind: string(fetch.KindInvalid), Error: err.Error()}
				continue
			}
			valid = append(valid, target)
		}

		payload := EncodeResult(resolver.FetchAll(c.Context(), valid))
		for raw, outcome := range rejected {
			payload.Outcomes[raw] = outcome
			payload.Failed++
		}

		logger.WithFields(logrus.Fields{
			"action":     "batch",
			"batch_id":   payload.BatchID,
			"request_id": server.RequestID(c),
			"total":      len(payload.Outcomes),
			"failed":     payload.Failed,
		}).Info("batch resolved")
		return c.JSON(payload)
	})

	app.Get("/-/cache", func(c fiber.Ctx) error {
		stats, err := resolver.Store().Stats(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "cache_unavailable")
		}
		return c.JSON(stats)
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		removed, err := resolver.Store().Clear(c.Context())
		fields := logrus.Fields{
			"action":     "cache_clear",
			"removed":    removed,
			"request_id": server.RequestID(c),
		}
		if err != nil {
			logger.WithError(err).WithFields(fields).Warn("cache clear incomplete")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "clear_incomplete",
				"removed": removed,
			})
		}
		logger.WithFields(fields).Info("image cache cleared")
		return c.JSON(fiber.Map{"removed": removed})
	})
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

// BatchPayload 是批量解析结果的 JSON 表示，CLI -fetch 模式复用同一结构。
type BatchPayload struct {
	BatchID   string                    `json:"batch_id"`
	Outcomes  map[string]OutcomePayload `json:"outcomes"`
	CacheHits int                       `json:"cache_hits"`
	Network   int                       `json:"network"`
	Failed    int                       `json:"failed"`
}

// OutcomePayload 描述单个地址的结果；失败时只包含 source/kind/error。
type OutcomePayload struct {
	Source string `json:"source"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
	// CacheError 记录写缓存失败（非致命）。
	CacheError string `json:"cache_error,omitempty"`
}

// EncodeResult 将 fetch.Result 转换为 JSON 友好的结构。
func EncodeResult(result *fetch.Result) BatchPayload {
	payload := BatchPayload{
		BatchID:  result.BatchID,
		Outcomes: make(map[string]OutcomePayload, len(result.Outcomes)),
	}
	payload.CacheHits, payload.Network, payload.Failed = result.Counts()

	for id, outcome := range result.Outcomes {
		encoded := OutcomePayload{Source: string(outcome.Source)}
		if outcome.OK() {
			encoded.Format = outcome.Image.Format
			encoded.Width = outcome.Image.Width
			encoded.Height = outcome.Image.Height
			encoded.Bytes = len(outcome.Image.Data)
		} else if outcome.Err != nil {
			encoded.Kind = string(fetch.KindOf(outcome.Err))
			encoded.Error = outcome.Err.Error()
		}
		if outcome.CacheErr != nil {
			encoded.CacheError = outcome.CacheErr.Error()
		}
		payload.Outcomes[id] = encoded
	}
	return payload
}
