package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
)

// 单个响应体的读取上限
const maxBodyBytes = 8 << 20

// NewHTTPClient 按网络配置创建HTTP客户端，超时对每次请求生效
func NewHTTPClient(networkConfig types.NetworkConfig) *http.Client {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},
	}

	// 如果配置了代理，则使用代理
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// endpoint 一个数据源的 REST 接入点
type endpoint struct {
	name    string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func newEndpoint(name, baseURL string, client *http.Client) endpoint {
	if client == nil {
		client = NewHTTPClient(types.NetworkConfig{})
	}
	return endpoint{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// get 发起 GET 请求并把 JSON 响应解码到 out，错误按类型归类为 ProviderError
func (e endpoint) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	requestURL := e.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return unavailable(e.name, 0, fmt.Errorf("创建HTTP请求失败: %w", err))
	}
	req.Header.Set("User-Agent", "BTC-Market-Feed/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return unavailable(e.name, 0, fmt.Errorf("HTTP请求失败: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return &ProviderError{Provider: e.name, Kind: ErrRegionBlocked, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return unavailable(e.name, resp.StatusCode, fmt.Errorf("HTTP响应错误: %s", strings.TrimSpace(string(snippet))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return unavailable(e.name, resp.StatusCode, fmt.Errorf("读取响应体失败: %w", err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return malformed(e.name, "解析JSON失败: %v", err)
	}
	return nil
}
