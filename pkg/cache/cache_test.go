package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type key string

// gatedLoader 在 release 关闭前阻塞所有加载，并记录每个键的加载次数
type gatedLoader struct {
	release chan struct{}
	mu      sync.Mutex
	calls   map[key]int
	started chan key
	fail    atomic.Bool
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{
		release: make(chan struct{}),
		calls:   make(map[key]int),
		started: make(chan key, 16),
	}
}

func (l *gatedLoader) load(ctx context.Context, k key) (string, error) {
	l.mu.Lock()
	l.calls[k]++
	l.mu.Unlock()
	l.started <- k
	<-l.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.fail.Load() {
		return "", errors.New("boom")
	}
	return "value-" + string(k), nil
}

func (l *gatedLoader) count(k key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[k]
}

func TestGetConcurrentCallersShareOneLoad(t *testing.T) {
	loader := newGatedLoader()
	c := New[key, string](loader.load, zap.NewNop())

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "a")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	<-loader.started
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, 1, loader.count("a"))
	for _, v := range results {
		assert.Equal(t, "value-a", v)
	}

	// 之后的调用直接命中缓存
	v, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)
	assert.Equal(t, 1, loader.count("a"))
	assert.Equal(t, []key{"a"}, c.Keys())
}

func TestPrewarmIsJoinedByGet(t *testing.T) {
	loader := newGatedLoader()
	c := New[key, string](loader.load, zap.NewNop())

	c.Prewarm(context.Background(), "opencc")
	assert.Equal(t, key("opencc"), <-loader.started)

	done := make(chan string)
	go func() {
		v, _ := c.Get(context.Background(), "opencc")
		done <- v
	}()
	close(loader.release)

	assert.Equal(t, "value-opencc", <-done)
	assert.Equal(t, 1, loader.count("opencc"))
}

func TestCancelledWaiterDoesNotCancelLoad(t *testing.T) {
	loader := newGatedLoader()
	c := New[key, string](loader.load, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := c.Get(ctx, "b")
		errc <- err
	}()
	<-loader.started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(loader.release)
	assert.Eventually(t, func() bool {
		_, ok := c.Peek("b")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, loader.count("b"))
}

func TestFailedLoadIsNotCached(t *testing.T) {
	loader := newGatedLoader()
	loader.fail.Store(true)
	close(loader.release)
	c := New[key, string](loader.load, zap.NewNop())

	_, err := c.Get(context.Background(), "c")
	require.Error(t, err)
	_, ok := c.Peek("c")
	assert.False(t, ok)

	loader.fail.Store(false)
	v, err := c.Get(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "value-c", v)
	assert.Equal(t, 2, loader.count("c"))
}

func TestJoinSharesFailedLoad(t *testing.T) {
	loader := newGatedLoader()
	loader.fail.Store(true)
	c := New[key, string](loader.load, zap.NewNop())

	first := c.Join(context.Background(), "d")
	<-loader.started
	second := c.Join(context.Background(), "d")
	close(loader.release)

	// 两个等待者即使在加载失败后才读取结果，也只对应同一次加载
	time.Sleep(20 * time.Millisecond)
	assert.Error(t, (<-first).Err)
	assert.Error(t, (<-second).Err)
	assert.Equal(t, 1, loader.count("d"))
}

func TestJoinReturnsCachedValue(t *testing.T) {
	loader := newGatedLoader()
	close(loader.release)
	c := New[key, string](loader.load, zap.NewNop())

	_, err := c.Get(context.Background(), "e")
	require.NoError(t, err)

	res := <-c.Join(context.Background(), "e")
	require.NoError(t, res.Err)
	assert.Equal(t, "value-e", res.Value)
	assert.Equal(t, 1, loader.count("e"))
}
