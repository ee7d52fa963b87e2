// Package forecast 访问远程预测服务的健康检查与模型信息接口。
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"btc-market-feed/internal/cache"
	"btc-market-feed/pkg/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	healthTimeout    = 10 * time.Second
	namespaceModel   = "model"
	modelInfoKey     = "info"
	defaultWakeLimit = 2 * time.Minute
)

// ErrUnhealthy 服务可访问但未就绪
var ErrUnhealthy = errors.New("预测服务未就绪")

// HealthStatus /health 响应
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Healthy 服务正常且模型已加载
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy" && h.ModelLoaded
}

// ModelMetadata 模型训练信息，未提供的指标为 nil
type ModelMetadata struct {
	TrainingDate   string   `json:"training_date"`
	TrainSamples   int      `json:"train_samples"`
	TestSamples    int      `json:"test_samples"`
	TestAccuracy   *float64 `json:"test_accuracy,omitempty"`
	CVMeanAccuracy *float64 `json:"cv_mean_accuracy,omitempty"`
	CVStdAccuracy  *float64 `json:"cv_std_accuracy,omitempty"`
}

// ModelInfo /model/info 响应
type ModelInfo struct {
	FeatureCount   int           `json:"feature_count"`
	SequenceLength int           `json:"sequence_length"`
	Metadata       ModelMetadata `json:"metadata"`
}

// Client 预测服务客户端
type Client struct {
	baseURL      string
	httpClient   *http.Client
	cache        *cache.Cache
	modelInfoTTL time.Duration
	infoTimeout  time.Duration
	wakeLimit    time.Duration
	newBackOff   func() backoff.BackOff
}

// NewClient 创建预测服务客户端，c 为空时模型信息不缓存
func NewClient(cfg types.ForecastConfig, httpClient *http.Client, c *cache.Cache, modelInfoTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	wakeLimit := cfg.WakeMaxElapsed
	if wakeLimit <= 0 {
		wakeLimit = defaultWakeLimit
	}
	infoTimeout := cfg.Timeout
	if infoTimeout <= 0 {
		infoTimeout = 15 * time.Second
	}

	client := &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		httpClient:   httpClient,
		cache:        c,
		modelInfoTTL: modelInfoTTL,
		infoTimeout:  infoTimeout,
		wakeLimit:    wakeLimit,
	}
	client.newBackOff = client.defaultBackOff
	return client
}

// Health 检查服务状态
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var status HealthStatus
	if err := c.get(ctx, "/health", &status); err != nil {
		return nil, fmt.Errorf("健康检查失败: %w", err)
	}
	return &status, nil
}

// ModelInfo 获取模型信息，结果按 modelInfoTTL 缓存
func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	return cache.Remember(ctx, c.cache, namespaceModel, modelInfoKey, c.modelInfoTTL,
		func(ctx context.Context) (*ModelInfo, error) {
			ctx, cancel := context.WithTimeout(ctx, c.infoTimeout)
			defer cancel()

			var info ModelInfo
			if err := c.get(ctx, "/model/info", &info); err != nil {
				return nil, fmt.Errorf("获取模型信息失败: %w", err)
			}
			return &info, nil
		})
}

// Wake 轮询健康检查直到服务就绪，免费托管的服务冷启动可能需要一两分钟
func (c *Client) Wake(ctx context.Context) (*HealthStatus, error) {
	var status *HealthStatus
	operation := func() error {
		s, err := c.Health(ctx)
		if err != nil {
			return err
		}
		if !s.Healthy() {
			return fmt.Errorf("%w: status=%s model_loaded=%v", ErrUnhealthy, s.Status, s.ModelLoaded)
		}
		status = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		zap.L().Info("⏳ 等待预测服务启动", zap.Error(err), zap.Duration("retry_in", next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	zap.L().Info("✅ 预测服务已就绪", zap.String("url", c.baseURL))
	return status, nil
}

func (c *Client) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = c.wakeLimit
	return b
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
