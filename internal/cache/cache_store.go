// Package cache хранит недавно обработанные update_id, чтобы повторные доставки
// вебхука Telegram не запускали рассылку дважды.
package cache

import (
	"context"
	"sync"
	"time"
)

// UpdateCache — TTL-множество ключей обновлений.
type UpdateCache struct {
	ttl   time.Duration
	items map[int]time.Time
	mutex sync.Mutex
	now   func() time.Time
}

// NewUpdateCache создает кэш с заданным временем жизни записей.
func NewUpdateCache(ttl time.Duration) *UpdateCache {
	return &UpdateCache{
		ttl:   ttl,
		items: make(map[int]time.Time),
		now:   time.Now,
	}
}

// Seen атомарно проверяет и запоминает ключ.
// Возвращает true, если ключ уже встречался и его срок не истек.
func (c *UpdateCache) Seen(updateID int) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if expiresAt, ok := c.items[updateID]; ok && now.Before(expiresAt) {
		return true
	}
	c.items[updateID] = now.Add(c.ttl)
	return false
}

// Forget удаляет ключ, чтобы повторная доставка была обработана.
func (c *UpdateCache) Forget(updateID int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, updateID)
}

// Len возвращает число записей, включая еще не вычищенные просроченные.
func (c *UpdateCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// CleanupExpired удаляет просроченные записи.
func (c *UpdateCache) CleanupExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, expiresAt := range c.items {
		if !now.Before(expiresAt) {
			delete(c.items, key)
		}
	}
}

// StartCleanupTicker запускает периодическую очистку до отмены контекста.
func (c *UpdateCache) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired()
			}
		}
	}()
}
