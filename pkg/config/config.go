package config

import (
	"errors"
	"fmt"
	"time"

	"btc-market-feed/pkg/types"
	"github.com/spf13/viper"
)

// Load 加载配置
func Load() (*types.Config, error) {
	return LoadFrom(viper.New(), "./configs", ".")
}

// LoadFrom 从指定目录加载配置，config.local.yaml 优先于 config.yaml
func LoadFrom(v *viper.Viper, paths ...string) (*types.Config, error) {
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，如 BTCFEED_NETWORK_PROXY
	v.SetEnvPrefix("btcfeed")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("sources.binance_url", "https://api.binance.com/api/v3")
	v.SetDefault("sources.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("sources.cryptocompare_url", "https://min-api.cryptocompare.com/data")
	v.SetDefault("sources.okx_url", "https://www.okx.com/api/v5/market")
	v.SetDefault("sources.snapshot_chain", []string{"binance", "coingecko", "cryptocompare"})
	v.SetDefault("sources.series_alternate", "okx")
	v.SetDefault("sources.request_spacing", 100*time.Millisecond)
	v.SetDefault("sources.max_candles", 1000)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.snapshot_ttl", 5*time.Minute)
	v.SetDefault("cache.series_ttl", 5*time.Minute)
	v.SetDefault("cache.model_info_ttl", time.Hour)
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("forecast.api_url", "https://btc-forecast-api.onrender.com")
	v.SetDefault("forecast.timeout", 15*time.Second)
	v.SetDefault("forecast.wake_max_elapsed", 2*time.Minute)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9102")
	v.SetDefault("watch.cron", "0 */5 * * * *")
	v.SetDefault("watch.symbol", "BTCUSD")
	v.SetDefault("watch.granularities", []string{"1m", "5m", "15m", "1h"})
	v.SetDefault("watch.candles", 200)
	v.SetDefault("watch.with_indicators", true)
	v.SetDefault("watch.alert_threshold", 3.0)
	v.SetDefault("watch.alert_window", "15m")
	v.SetDefault("watch.alert_cooldown", "5m")
	v.SetDefault("stream.endpoint", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("stream.ping_interval", 20*time.Second)
	v.SetDefault("stream.reconnect_interval", 5*time.Second)
	v.SetDefault("stream.max_reconnect_attempts", 10)
	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 10)
}

func validate(c *types.Config) error {
	if len(c.Sources.SnapshotChain) == 0 {
		return errors.New("sources.snapshot_chain 不能为空")
	}
	if c.Sources.MaxCandles <= 0 {
		return fmt.Errorf("sources.max_candles 必须为正数: %d", c.Sources.MaxCandles)
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout 必须为正数: %v", c.Network.Timeout)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的缓存类型: %q", c.Cache.Backend)
	}
	if c.Watch.AlertThreshold > 0 && c.Watch.AlertWindow <= 0 {
		return fmt.Errorf("watch.alert_window 必须为正数: %v", c.Watch.AlertWindow)
	}
	for _, g := range c.Watch.Granularities {
		if _, err := types.ParseGranularity(g); err != nil {
			return fmt.Errorf("watch.granularities: %w", err)
		}
	}
	return nil
}
