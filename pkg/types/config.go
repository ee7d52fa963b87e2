package types

import "time"

// Config 主配置结构
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Network  NetworkConfig  `mapstructure:"network"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Database DatabaseConfig `mapstructure:"database"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名，为空时只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 单次请求超时时间
}

// SourcesConfig 行情数据源配置
type SourcesConfig struct {
	BinanceURL       string        `mapstructure:"binance_url"`
	CoinGeckoURL     string        `mapstructure:"coingecko_url"`
	CryptoCompareURL string        `mapstructure:"cryptocompare_url"`
	OKXURL           string        `mapstructure:"okx_url"`
	SnapshotChain    []string      `mapstructure:"snapshot_chain"`   // 实时价格的回退顺序
	SeriesAlternate  string        `mapstructure:"series_alternate"` // 历史K线的备用数据源
	RequestSpacing   time.Duration `mapstructure:"request_spacing"`  // 批量请求之间的最小间隔
	MaxCandles       int           `mapstructure:"max_candles"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"` // memory 或 redis
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
	SeriesTTL    time.Duration `mapstructure:"series_ttl"`
	ModelInfoTTL time.Duration `mapstructure:"model_info_ttl"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ForecastConfig 预测服务API配置
type ForecastConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	WakeMaxElapsed time.Duration `mapstructure:"wake_max_elapsed"` // 唤醒服务的最长等待时间
}

// MetricsConfig Prometheus指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// WatchConfig 定时刷新任务配置
type WatchConfig struct {
	Cron           string   `mapstructure:"cron"` // 带秒的cron表达式
	Symbol         string   `mapstructure:"symbol"`
	Granularities  []string `mapstructure:"granularities"`
	Candles        int      `mapstructure:"candles"` // 每个周期归档最新的K线数量
	WithIndicators bool     `mapstructure:"with_indicators"`

	AlertThreshold float64       `mapstructure:"alert_threshold"` // 价格异动阈值（百分比），0 表示关闭
	AlertWindow    time.Duration `mapstructure:"alert_window"`
	AlertCooldown  time.Duration `mapstructure:"alert_cooldown"`
}

// StreamConfig OKX 公共 WebSocket 实时行情配置
type StreamConfig struct {
	Endpoint             string        `mapstructure:"endpoint"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}
