package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend 进程内缓存，条目按写入时的 TTL 过期
type MemoryBackend struct {
	entries map[string]entry
	now     func() time.Time
	mutex   sync.Mutex
}

// NewMemoryBackend 创建内存缓存，now 为 nil 时使用 time.Now
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get 读取未过期的条目，已过期的条目会被顺手删除
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set 写入条目，ttl 不为正时不缓存
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// Sweep 清理所有已过期条目，返回清理数量
func (m *MemoryBackend) Sweep() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len 当前条目数量（包括尚未清理的过期条目）
func (m *MemoryBackend) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}
