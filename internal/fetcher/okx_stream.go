package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"btc-market-feed/pkg/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// okxChannel 订阅参数
type okxChannel struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// okxSubscription OKX订阅消息
type okxSubscription struct {
	Op   string       `json:"op"`
	Args []okxChannel `json:"args"`
}

// okxPush 推送消息，订阅确认与错误通过 Event 区分
type okxPush struct {
	Event string      `json:"event"`
	Code  string      `json:"code"`
	Msg   string      `json:"msg"`
	Arg   okxChannel  `json:"arg"`
	Data  []okxTicker `json:"data"`
}

// TickerStream 通过 OKX 公共 WebSocket 订阅实时行情，断线后自动重连
type TickerStream struct {
	config     types.StreamConfig
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewTickerStream 创建实时行情订阅
func NewTickerStream(config types.StreamConfig, network types.NetworkConfig) *TickerStream {
	dialer := *websocket.DefaultDialer
	if network.Timeout > 0 {
		dialer.HandshakeTimeout = network.Timeout
	}
	if network.Proxy != "" {
		if proxyURL, err := url.Parse(network.Proxy); err == nil {
			dialer.Proxy = http.ProxyURL(proxyURL)
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 20 * time.Second
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 5 * time.Second
	}

	s := &TickerStream{
		config: config,
		dialer: &dialer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.config.ReconnectInterval
		b.MaxInterval = time.Minute
		b.MaxElapsedTime = 0
		return b
	}
	return s
}

// Run 订阅 pair 的实时行情，每条行情调用一次 handle。
// 连接断开后按退避间隔重连，连续失败超过 MaxReconnectAttempts 次或订阅被拒绝时返回错误，ctx 取消时返回 ctx.Err()。
func (s *TickerStream) Run(ctx context.Context, pair types.AssetPair, handle func(*types.PriceSnapshot)) error {
	b := s.newBackOff()
	attempts := 0

	for {
		received, err := s.session(ctx, pair, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrMalformedResponse) {
			return err
		}
		if received {
			attempts = 0
			b.Reset()
		}

		attempts++
		if s.config.MaxReconnectAttempts > 0 && attempts > s.config.MaxReconnectAttempts {
			zap.L().Error("❌ 达到最大重连次数，停止重连",
				zap.Int("max_attempts", s.config.MaxReconnectAttempts))
			return fmt.Errorf("达到最大重连次数: %w", err)
		}

		wait := b.NextBackOff()
		zap.L().Warn("⚠️ 实时行情连接断开，准备重连",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// session 一次连接的生命周期，返回期间是否收到过行情
func (s *TickerStream) session(ctx context.Context, pair types.AssetPair, handle func(*types.PriceSnapshot)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.Endpoint, nil)
	if err != nil {
		return false, unavailable(ProviderOKX, 0, fmt.Errorf("WebSocket连接失败: %w", err))
	}
	defer conn.Close()

	sub := okxSubscription{Op: "subscribe", Args: []okxChannel{{Channel: "tickers", InstID: okxInstID(pair)}}}
	if err := conn.WriteJSON(sub); err != nil {
		return false, unavailable(ProviderOKX, 0, fmt.Errorf("发送订阅消息失败: %w", err))
	}
	zap.L().Info("📊 已订阅实时行情", zap.String("instId", okxInstID(pair)))

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(ctx, conn, done)

	received := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, unavailable(ProviderOKX, 0, fmt.Errorf("读取消息失败: %w", err))
		}
		if string(message) == "pong" {
			continue
		}

		var push okxPush
		if err := json.Unmarshal(message, &push); err != nil {
			zap.L().Error("❌ 实时行情格式异常",
				zap.String("provider", ProviderOKX),
				zap.String("kind", "malformed_response"),
				zap.Error(err))
			continue
		}
		if push.Event == "error" {
			return received, malformed(ProviderOKX, "订阅失败: code=%s, msg=%s", push.Code, push.Msg)
		}
		if push.Event != "" || push.Arg.Channel != "tickers" {
			continue
		}

		for _, t := range push.Data {
			snapshot, err := okxSnapshot(ProviderOKX, pair, t, s.tickerTime(t.TS))
			if err != nil {
				zap.L().Error("❌ 实时行情格式异常",
					zap.String("provider", ProviderOKX),
					zap.String("kind", "malformed_response"),
					zap.Error(err))
				continue
			}
			received = true
			handle(snapshot)
		}
	}
}

// keepalive 定时发送 ping；ctx 取消时关闭连接，使阻塞的读取返回
func (s *TickerStream) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				zap.L().Warn("⚠️ 发送心跳失败", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *TickerStream) tickerTime(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms <= 0 {
		return s.now()
	}
	return msToTime(ms)
}
