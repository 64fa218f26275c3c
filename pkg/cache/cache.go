// Package cache 提供按键缓存、异步加载的可互换资源。
//
// 同一个键在任意时刻最多只有一次加载在进行；加载成功的值在进程生命周期内
// 一直保留，再次获取时立即返回。
package cache

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LoadFunc 构建某个键对应的资源
type LoadFunc[K ~string, V any] func(ctx context.Context, key K) (V, error)

// Result 是一次加载的结果
type Result[V any] struct {
	Value V
	Err   error
}

// Cache 是按键去重加载的资源缓存
type Cache[K ~string, V any] struct {
	load   LoadFunc[K, V]
	group  singleflight.Group
	logger *zap.Logger

	mu     sync.RWMutex
	values map[K]V
}

// New 创建一个新的 Cache 实例
func New[K ~string, V any](load LoadFunc[K, V], logger *zap.Logger) *Cache[K, V] {
	return &Cache[K, V]{
		load:   load,
		logger: logger,
		values: make(map[K]V),
	}
}

// Peek 返回已经加载完成的值，不会触发加载
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Get 返回键对应的值。已缓存则立即返回；已有加载在进行则等待同一次加载；
// 否则发起新的加载。ctx 取消只会让调用方停止等待，加载本身会继续完成并写入缓存
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	select {
	case res := <-c.Join(ctx, key):
		return res.Value, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Join 在返回前就加入或发起加载，返回的通道在加载结束时收到唯一一个结果。
// 已缓存的值立即可读
func (c *Cache[K, V]) Join(ctx context.Context, key K) <-chan Result[V] {
	out := make(chan Result[V], 1)
	if v, ok := c.Peek(key); ok {
		out <- Result[V]{Value: v}
		return out
	}
	flight := c.start(ctx, key)
	go func() {
		res := <-flight
		v, _ := res.Val.(V)
		out <- Result[V]{Value: v, Err: res.Err}
	}()
	return out
}

// Prewarm 在后台提前发起加载，之后的 Get 会加入这次加载
func (c *Cache[K, V]) Prewarm(ctx context.Context, key K) {
	if _, ok := c.Peek(key); ok {
		return
	}
	c.logger.Debug("Prewarming resource", zap.String("key", string(key)))
	c.start(ctx, key)
}

// Keys 返回已加载完成的键
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// start 加入或发起一次加载。singleflight 保证检查与登记是原子的；
// 函数体内再查一次缓存，避免在上一次加载刚结束时重复加载
func (c *Cache[K, V]) start(ctx context.Context, key K) <-chan singleflight.Result {
	loadCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(string(key), func() (interface{}, error) {
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := c.load(loadCtx, key)
		if err != nil {
			c.logger.Warn("Resource load failed", zap.String("key", string(key)), zap.Error(err))
			return nil, err
		}
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
		return v, nil
	})
}
