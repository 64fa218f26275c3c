package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/internal/testutil"
	"github.com/yleoer/zhconv/pkg/cache"
	"github.com/yleoer/zhconv/pkg/database"
	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/rules"
)

// gates 控制每个模式的加载何时完成
type gates struct {
	mu      sync.Mutex
	release map[engine.Mode]chan struct{}
	calls   map[engine.Mode]int
	fail    map[engine.Mode]bool
	engines map[engine.Mode]*testutil.FakeEngine
}

func newGates() *gates {
	g := &gates{
		release: make(map[engine.Mode]chan struct{}),
		calls:   make(map[engine.Mode]int),
		fail:    make(map[engine.Mode]bool),
		engines: make(map[engine.Mode]*testutil.FakeEngine),
	}
	for _, m := range engine.Modes {
		g.release[m] = make(chan struct{})
		g.engines[m] = testutil.NewFakeEngine(m)
	}
	return g
}

func (g *gates) load(ctx context.Context, mode engine.Mode) (engine.Engine, error) {
	g.mu.Lock()
	g.calls[mode]++
	ch := g.release[mode]
	fail := g.fail[mode]
	g.mu.Unlock()
	<-ch
	if fail {
		return nil, errors.New("load failed")
	}
	return g.engines[mode], nil
}

func (g *gates) open(mode engine.Mode) {
	close(g.release[mode])
}

func (g *gates) count(mode engine.Mode) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[mode]
}

type staticFetcher struct {
	groups rules.Groups
	err    error
}

func (f staticFetcher) Fetch(ctx context.Context) (rules.Groups, error) {
	return f.groups, f.err
}

func newProvider(t *testing.T, g *gates, store *testutil.MemoryStore, fetcher rules.Fetcher) *Provider {
	t.Helper()
	c := cache.New[engine.Mode, engine.Engine](g.load, zap.NewNop())
	p := New(c, database.NewPreferences(store), fetcher, zap.NewNop())
	t.Cleanup(func() {
		for _, m := range engine.Modes {
			select {
			case <-g.release[m]:
			default:
				g.open(m)
			}
		}
		p.Close()
	})
	return p
}

func waitForEngine(t *testing.T, p *Provider, want engine.Engine) {
	t.Helper()
	assert.Eventually(t, func() bool {
		eng, ok := p.Engine()
		return ok && eng == want
	}, time.Second, 5*time.Millisecond)
}

func TestStartLoadsPersistedMode(t *testing.T) {
	g := newGates()
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("zhconv-ruleset-mode", "opencc"))
	p := newProvider(t, g, store, nil)

	p.Start()
	assert.Equal(t, engine.ModeOpenCC, p.Mode())
	assert.Equal(t, NoEngine, p.Status())

	g.open(engine.ModeOpenCC)
	eng, err := p.WaitReady(context.Background())
	require.NoError(t, err)
	assert.Same(t, g.engines[engine.ModeOpenCC], eng)
	// 预热与首次加载是同一次加载
	assert.Equal(t, 1, g.count(engine.ModeOpenCC))

	groups, ok := p.RuleGroups()
	assert.True(t, ok)
	assert.Empty(t, groups.Data)
}

func TestToggleBackBeforeLoadsResolve(t *testing.T) {
	g := newGates()
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	p.Start() // mediawiki

	require.NoError(t, p.SetMode(engine.ModeOpenCC))
	require.NoError(t, p.SetMode(engine.ModeMediaWiki))
	assert.Equal(t, NoEngine, p.Status())

	g.open(engine.ModeOpenCC)
	g.open(engine.ModeMediaWiki)
	waitForEngine(t, p, g.engines[engine.ModeMediaWiki])

	assert.Eventually(t, func() bool {
		return len(p.CachedModes()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.count(engine.ModeMediaWiki))
	assert.Equal(t, 1, g.count(engine.ModeOpenCC))

	// 两个模式都已缓存，切换时不再经过未就绪状态
	require.NoError(t, p.SetMode(engine.ModeOpenCC))
	eng, ok := p.Engine()
	require.True(t, ok)
	assert.Same(t, g.engines[engine.ModeOpenCC], eng)
}

func TestStaleLoadDoesNotOverwriteNewerState(t *testing.T) {
	g := newGates()
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	p.Start() // mediawiki, still loading

	require.NoError(t, p.SetMode(engine.ModeBoth))
	g.open(engine.ModeBoth)
	waitForEngine(t, p, g.engines[engine.ModeBoth])

	g.open(engine.ModeMediaWiki)
	assert.Eventually(t, func() bool {
		_, ok := p.cache.Peek(engine.ModeMediaWiki)
		return ok
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	eng, ok := p.Engine()
	require.True(t, ok)
	assert.Same(t, g.engines[engine.ModeBoth], eng)
	assert.Equal(t, engine.ModeBoth, p.Mode())
}

func TestSetModePersists(t *testing.T) {
	g := newGates()
	store := testutil.NewMemoryStore()
	p := newProvider(t, g, store, nil)
	p.Start()

	require.NoError(t, p.SetMode(engine.ModeBoth))
	v, ok, err := store.Get("zhconv-ruleset-mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "both", v)

	assert.ErrorIs(t, p.SetMode("nope"), engine.ErrUnknownMode)
	assert.Equal(t, engine.ModeBoth, p.Mode())
}

func TestSetModeSurvivesStoreFailure(t *testing.T) {
	g := newGates()
	store := testutil.NewMemoryStore()
	store.Fail = true
	p := newProvider(t, g, store, nil)
	p.Start()

	require.NoError(t, p.SetMode(engine.ModeOpenCC))
	assert.Equal(t, engine.ModeOpenCC, p.Mode())
}

func TestLoadFailureLeavesNoEngine(t *testing.T) {
	g := newGates()
	g.fail[engine.ModeMediaWiki] = true
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	p.Start()
	g.open(engine.ModeMediaWiki)

	_, err := p.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	state := p.State()
	assert.Equal(t, NoEngine, state.Status)
	assert.Error(t, state.Err)
	assert.Equal(t, 1, g.count(engine.ModeMediaWiki))
}

func TestStartupLoadFailureIsNotRepeated(t *testing.T) {
	g := newGates()
	g.fail[engine.ModeMediaWiki] = true
	// 加载立即失败，早于后台等待者开始读取结果
	g.open(engine.ModeMediaWiki)
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	p.Start()

	assert.Eventually(t, func() bool { return p.LastError() != nil }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, g.count(engine.ModeMediaWiki))
	assert.Equal(t, NoEngine, p.Status())

	// 显式切换会重新加载
	require.NoError(t, p.SetMode(engine.ModeMediaWiki))
	assert.Eventually(t, func() bool { return g.count(engine.ModeMediaWiki) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRuleGroupsLoadedOnce(t *testing.T) {
	groups := rules.Groups{Data: map[string]string{"IT": "zh-cn:软件; zh-tw:軟體;"}, Timestamp: 1}

	t.Run("success", func(t *testing.T) {
		g := newGates()
		p := newProvider(t, g, testutil.NewMemoryStore(), staticFetcher{groups: groups})
		p.Start()
		g.open(engine.ModeMediaWiki)
		_, err := p.WaitReady(context.Background())
		require.NoError(t, err)
		got, ok := p.RuleGroups()
		assert.True(t, ok)
		assert.Equal(t, groups, got)
	})

	t.Run("failure leaves an empty map", func(t *testing.T) {
		g := newGates()
		p := newProvider(t, g, testutil.NewMemoryStore(), staticFetcher{err: errors.New("offline")})
		p.Start()
		g.open(engine.ModeMediaWiki)
		_, err := p.WaitReady(context.Background())
		require.NoError(t, err)
		got, ok := p.RuleGroups()
		assert.True(t, ok)
		assert.Empty(t, got.Data)
	})
}

func TestSubscribeReceivesLatestState(t *testing.T) {
	g := newGates()
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	states, unsubscribe := p.Subscribe()
	defer unsubscribe()

	p.Start()
	g.open(engine.ModeMediaWiki)

	assert.Eventually(t, func() bool {
		select {
		case s := <-states:
			return s.Status == Ready && s.Mode == engine.ModeMediaWiki
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	g := newGates()
	p := newProvider(t, g, testutil.NewMemoryStore(), nil)
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.WaitReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
