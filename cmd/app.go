package main

import (
	"os"

	"btc-market-feed/internal/cache"
	"btc-market-feed/internal/fetcher"
	"btc-market-feed/internal/forecast"
	"btc-market-feed/internal/metrics"
	"btc-market-feed/internal/notifier"
	"btc-market-feed/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App 应用程序依赖，每个进程创建一次
type App struct {
	config   *types.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	memory   *cache.MemoryBackend // 使用 Redis 时为空
	cache    *cache.Cache
	resolver *fetcher.Resolver
	forecast *forecast.Client
	console  *notifier.Console
	closers  []func() error
}

// NewApp 按配置组装缓存、数据源回退链与预测服务客户端
func NewApp(config *types.Config, colors bool) (*App, error) {
	app := &App{
		config:   config,
		registry: prometheus.NewRegistry(),
		console:  notifier.NewConsole(os.Stdout, colors),
	}
	app.metrics = metrics.New(app.registry)

	var backend cache.Backend
	if config.Cache.Backend == "redis" {
		redisBackend, err := cache.NewRedisBackend(config.Redis)
		if err != nil {
			// Redis不可用时降级为内存缓存
			zap.L().Warn("⚠️ Redis不可用，使用内存缓存", zap.Error(err))
		} else {
			backend = redisBackend
			app.closers = append(app.closers, redisBackend.Close)
		}
	}
	if backend == nil {
		app.memory = cache.NewMemoryBackend(nil)
		backend = app.memory
	}
	app.cache = cache.New(backend, app.metrics)

	resolver, err := fetcher.BuildResolver(config, app.cache, app.metrics)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.resolver = resolver

	app.forecast = forecast.NewClient(config.Forecast, fetcher.NewHTTPClient(config.Network), app.cache, config.Cache.ModelInfoTTL)
	return app, nil
}

// Primary 回退链上的首选数据源
func (app *App) Primary() string {
	if providers := app.resolver.Providers(); len(providers) > 0 {
		return providers[0]
	}
	return ""
}

// Sweep 清理内存缓存中的过期条目，Redis 自行过期
func (app *App) Sweep() int {
	if app.memory == nil {
		return 0
	}
	return app.memory.Sweep()
}

// Close 释放外部连接
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			zap.L().Warn("⚠️ 关闭资源失败", zap.Error(err))
		}
	}
	app.closers = nil
}
