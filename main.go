package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pixcache/pixcache/internal/cache"
	"github.com/pixcache/pixcache/internal/config"
	"github.com/pixcache/pixcache/internal/fetch"
	"github.com/pixcache/pixcache/internal/logging"
	"github.com/pixcache/pixcache/internal/server"
	"github.com/pixcache/pixcache/internal/server/routes"
	"github.com/pixcache/pixcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	clearCache  bool
	fetchOnly   bool
	urls        []string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_path"] = cfg.Global.StoragePath
		fields["prefetch"] = len(cfg.Prefetch)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 磁盘缓存 → 共享 http.Client → Coordinator → Fiber server，
	// 所有请求共享同一份缓存与下载器实例。
	store, err := cache.NewStore(cfg.Global.StoragePath, cache.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	if opts.clearCache {
		return runClear(store, logger, opts.configPath)
	}

	coordinator, err := fetch.NewCoordinator(fetch.Options{
		Client:         server.NewUpstreamClient(cfg),
		Store:          store,
		Logger:         logger,
		MaxConcurrency: cfg.Global.MaxConcurrency,
		MaxBodyBytes:   cfg.Global.MaxBodyBytes,
		MaxPixels:      cfg.Global.MaxPixels,
		UserAgent:      cfg.Global.UserAgent,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建下载器失败: %v\n", err)
		return 1
	}

	if opts.fetchOnly {
		return runFetch(coordinator, cfg, opts.urls)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = store.Root()
	fields["prefetch"] = len(cfg.Prefetch)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if len(cfg.Prefetch) > 0 {
		coordinator.FetchAllAsync(context.Background(), cfg.Prefetch, func(result *fetch.Result) {
			hits, network, failed := result.Counts()
			logger.WithFields(logging.BatchFields(result.BatchID, len(result.Outcomes), hits, network, failed)).
				WithField("action", "prefetch").
				Info("缓存预热完成")
		})
	}

	if err := startHTTPServer(cfg, coordinator, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runClear 清空缓存目录后退出；部分条目删除失败时返回非零退出码。
func runClear(store cache.Store, logger *logrus.Logger, configPath string) int {
	removed, err := store.Clear(context.Background())
	fields := logging.BaseFields("cache_clear", configPath)
	fields["removed"] = removed
	fields["path"] = store.Root()
	if err != nil {
		logger.WithError(err).WithFields(fields).Warn("缓存清理未完成")
		fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
		return 1
	}
	logger.WithFields(fields).Info("image cache cleared")
	fmt.Fprintf(stdOut, "removed %d cached files from %s\n", removed, store.Root())
	return 0
}

// runFetch 解析 Prefetch 列表与命令行地址，输出 JSON 汇总；存在失败地址时退出码为 1。
func runFetch(coordinator *fetch.Coordinator, cfg *config.Config, extra []string) int {
	urls := append(append([]string(nil), cfg.Prefetch...), extra...)
	for _, raw := range extra {
		if err := config.ValidateImageURL(raw); err != nil {
			fmt.Fprintf(stdErr, "无效的图片地址 %s: %v\n", raw, err)
			return 2
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(stdErr, "没有需要下载的图片地址")
		return 2
	}

	result := coordinator.FetchAll(context.Background(), urls)
	payload := routes.EncodeResult(result)

	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	if payload.Failed > 0 {
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("pixcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		clearCache bool
		fetchOnly  bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PIXCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&clearCache, "clear-cache", false, "清空图片缓存后退出")
	fs.BoolVar(&fetchOnly, "fetch", false, "下载 Prefetch 与参数中的图片，输出结果后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if clearCache && fetchOnly {
		return cliOptions{}, fmt.Errorf("-clear-cache 与 -fetch 不能同时使用")
	}

	path := os.Getenv("PIXCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	var urls []string
	for _, arg := range fs.Args() {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) > 0 && !fetchOnly {
		return cliOptions{}, fmt.Errorf("图片地址参数仅在 -fetch 模式下可用")
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		clearCache:  clearCache,
		fetchOnly:   fetchOnly,
		urls:        urls,
	}, nil
}

func startHTTPServer(cfg *config.Config, coordinator *fetch.Coordinator, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterImageRoutes(app, coordinator, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
