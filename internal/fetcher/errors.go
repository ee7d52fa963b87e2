package fetcher

import (
	"errors"
	"fmt"
	"strings"
)

// 错误类型，配合 errors.Is 使用
var (
	// ErrProviderUnavailable 网络错误、超时或非 2xx 响应
	ErrProviderUnavailable = errors.New("数据源不可用")
	// ErrRegionBlocked 数据源拒绝为当前地区提供服务（HTTP 451）
	ErrRegionBlocked = errors.New("数据源在当前地区不可用")
	// ErrMalformedResponse 返回 2xx 但内容无法解析，通常意味着上游接口变更
	ErrMalformedResponse = errors.New("数据源返回格式异常")
	// ErrAllProvidersExhausted 回退链上的全部数据源都失败
	ErrAllProvidersExhausted = errors.New("所有价格数据源均失败")
	// ErrInvalidRequest 请求参数不合法，不会发起任何网络请求
	ErrInvalidRequest = errors.New("请求参数不合法")
	// ErrNoAlternate 未配置备用历史K线数据源
	ErrNoAlternate = errors.New("未配置备用K线数据源")
)

// 汇总错误中每个数据源失败原因的最大长度
const maxReasonLen = 100

// ProviderError 单个数据源的失败
type ProviderError struct {
	Provider   string
	Kind       error // ErrProviderUnavailable / ErrRegionBlocked / ErrMalformedResponse
	StatusCode int   // HTTP状态码，没有响应时为 0
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrProviderUnavailable, StatusCode: status, Err: err}
}

func malformed(provider string, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrMalformedResponse, Err: fmt.Errorf(format, args...)}
}

// asProviderError 把任意错误归一为 ProviderError，未分类的错误按不可用处理
func asProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return unavailable(provider, 0, err)
}

// Attempt 回退链中的一次尝试
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustedError 回退链全部失败，列出每个数据源及其失败原因
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	return ErrAllProvidersExhausted.Error() + ": " + strings.Join(e.Reasons(), "; ")
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// Providers 按尝试顺序返回数据源名称
func (e *ExhaustedError) Providers() []string {
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Provider
	}
	return names
}

// Reasons 每个数据源的失败摘要，原因截断到 maxReasonLen 个字符
func (e *ExhaustedError) Reasons() []string {
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		reasons[i] = a.Provider + ": " + truncate(a.Err.Error(), maxReasonLen)
	}
	return reasons
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
