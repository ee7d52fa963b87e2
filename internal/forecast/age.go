package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Freshness 模型新鲜度
type Freshness string

const (
	FreshnessFresh Freshness = "fresh"
	FreshnessOK    Freshness = "ok"
	FreshnessAging Freshness = "aging"
	FreshnessStale Freshness = "stale"
)

// ErrNoTrainingDate 模型信息中没有训练日期
var ErrNoTrainingDate = errors.New("模型信息缺少训练日期")

// 训练日期的紧凑写法，如 20251006_112413
const compactLayout = "20060102_150405"

// ModelAge 模型年龄
type ModelAge struct {
	TrainedAt time.Time
	Days      int
	Freshness Freshness
}

// ParseTrainingDate 解析 20251006_112413 或 RFC 3339 格式的训练日期，无时区信息时按 UTC
func ParseTrainingDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoTrainingDate
	}
	if t, err := time.Parse(compactLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析训练日期: %q", s)
}

// Age 计算模型年龄：超过14天为过期，超过7天为老化，超过3天为正常，否则为新鲜
func Age(info *ModelInfo, now time.Time) (ModelAge, error) {
	if info == nil {
		return ModelAge{}, ErrNoTrainingDate
	}
	trained, err := ParseTrainingDate(info.Metadata.TrainingDate)
	if err != nil {
		return ModelAge{}, err
	}

	days := int(now.Sub(trained) / (24 * time.Hour))
	age := ModelAge{TrainedAt: trained, Days: days}
	switch {
	case days > 14:
		age.Freshness = FreshnessStale
	case days > 7:
		age.Freshness = FreshnessAging
	case days > 3:
		age.Freshness = FreshnessOK
	default:
		age.Freshness = FreshnessFresh
	}
	return age, nil
}

// Message 面向用户的模型年龄提示
func (a ModelAge) Message() string {
	switch a.Freshness {
	case FreshnessStale:
		return fmt.Sprintf("Model is %d days old. Update it with fresh market data for optimal performance.", a.Days)
	case FreshnessAging:
		return fmt.Sprintf("Model is %d days old. Consider updating for enhanced accuracy with recent market patterns.", a.Days)
	case FreshnessOK:
		return fmt.Sprintf("Model is %d days old - performing well with current data.", a.Days)
	default:
		return fmt.Sprintf("Model is fresh (%d days old) - optimal performance expected.", a.Days)
	}
}
