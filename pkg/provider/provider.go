// Package provider 维护当前启用的引擎模式，并让"已就绪的引擎"与之保持同步。
//
// 每次切换模式都会生成新的意图标记；加载完成时只有标记仍与当前意图一致的
// 结果才会生效，过期的加载结果只写入缓存，不会覆盖更新的状态。
package provider

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/cache"
	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/rules"
)

// ErrNotReady 表示引擎或规则组尚未就绪
var ErrNotReady = errors.New("engine not ready")

// Status 是引擎的就绪状态
type Status int

const (
	NoEngine Status = iota
	Ready
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "loading"
}

// ModeStore 持久化引擎模式
type ModeStore interface {
	LoadMode() (engine.Mode, error)
	SaveMode(mode engine.Mode) error
}

// EngineCache 是按模式缓存的引擎
type EngineCache = cache.Cache[engine.Mode, engine.Engine]

// State 是某一时刻的快照
type State struct {
	Status Status
	Mode   engine.Mode
	Engine engine.Engine
	Err    error // 当前模式最近一次加载失败的原因
}

// Provider 持有当前模式与就绪引擎，随进程创建和关闭
type Provider struct {
	cache   *EngineCache
	store   ModeStore
	fetcher rules.Fetcher
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	intent       uint64
	mode         engine.Mode
	eng          engine.Engine
	lastErr      error
	groups       rules.Groups
	groupsLoaded bool
	changed      chan struct{}
	subs         map[chan State]struct{}
}

// New 创建一个新的 Provider 实例。fetcher 可以为 nil，此时规则组为空
func New(c *EngineCache, store ModeStore, fetcher rules.Fetcher, logger *zap.Logger) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		cache:   c,
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		mode:    engine.DefaultMode,
		changed: make(chan struct{}),
		subs:    make(map[chan State]struct{}),
	}
}

// Start 读取上次保存的模式并预热它的引擎，同时启动一次性的规则组加载
func (p *Provider) Start() {
	mode, err := p.store.LoadMode()
	if err != nil {
		p.logger.Warn("Failed to load saved engine mode, using default", zap.Error(err))
		mode = engine.DefaultMode
	}
	p.activate(mode)

	p.wg.Add(1)
	go p.loadRules()
}

// Close 停止等待中的加载并等待后台任务退出
func (p *Provider) Close() {
	p.cancel()
	p.wg.Wait()
	p.mu.Lock()
	for ch := range p.subs {
		close(ch)
		delete(p.subs, ch)
	}
	p.mu.Unlock()
}

// SetMode 切换引擎模式并持久化。持久化失败不影响切换
func (p *Provider) SetMode(mode engine.Mode) error {
	if _, err := engine.ParseMode(string(mode)); err != nil {
		return err
	}
	if err := p.store.SaveMode(mode); err != nil {
		p.logger.Warn("Failed to persist engine mode", zap.String("mode", string(mode)), zap.Error(err))
	}
	p.activate(mode)
	return nil
}

// activate 登记新的意图。已缓存的引擎立即生效，不经过未就绪状态
func (p *Provider) activate(mode engine.Mode) {
	p.mu.Lock()
	p.intent++
	token := p.intent
	p.mode = mode
	p.lastErr = nil
	if eng, ok := p.cache.Peek(mode); ok {
		p.eng = eng
		p.notifyLocked()
		p.mu.Unlock()
		p.logger.Info("Using cached engine", zap.String("mode", string(mode)))
		return
	}
	p.eng = nil
	p.notifyLocked()
	p.mu.Unlock()

	// 在启动 goroutine 之前加入加载，保证同一意图只对应一次加载
	result := p.cache.Join(p.ctx, mode)
	p.wg.Add(1)
	go p.resolve(token, mode, result)
}

func (p *Provider) resolve(token uint64, mode engine.Mode, result <-chan cache.Result[engine.Engine]) {
	defer p.wg.Done()
	var eng engine.Engine
	var err error
	select {
	case res := <-result:
		eng, err = res.Value, res.Err
	case <-p.ctx.Done():
		err = p.ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token != p.intent {
		p.logger.Debug("Discarding stale engine load", zap.String("mode", string(mode)))
		return
	}
	if err != nil {
		if p.ctx.Err() == nil {
			p.logger.Error("Failed to load engine", zap.String("mode", string(mode)), zap.Error(err))
		}
		p.lastErr = err
		p.notifyLocked()
		return
	}
	p.eng = eng
	p.notifyLocked()
}

func (p *Provider) loadRules() {
	defer p.wg.Done()
	var groups rules.Groups
	if p.fetcher != nil {
		var err error
		if groups, err = p.fetcher.Fetch(p.ctx); err != nil {
			p.logger.Warn("Failed to load rule groups, continuing without them", zap.Error(err))
			groups = rules.Groups{}
		} else {
			p.logger.Info("Rule groups loaded", zap.Int("count", len(groups.Data)))
		}
	}
	if groups.Data == nil {
		groups.Data = map[string]string{}
	}
	p.mu.Lock()
	p.groups = groups
	p.groupsLoaded = true
	p.notifyLocked()
	p.mu.Unlock()
}

// notifyLocked 唤醒等待者并向订阅者推送最新状态，调用时必须持有 p.mu
func (p *Provider) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
	state := p.stateLocked()
	for ch := range p.subs {
		// 只保留最新状态
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (p *Provider) stateLocked() State {
	s := State{Status: NoEngine, Mode: p.mode, Err: p.lastErr}
	if p.eng != nil {
		s.Status = Ready
		s.Engine = p.eng
	}
	return s
}

// State 返回当前状态快照
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// Status 返回当前就绪状态
func (p *Provider) Status() Status {
	return p.State().Status
}

// Mode 返回当前引擎模式
func (p *Provider) Mode() engine.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Engine 返回就绪的引擎
func (p *Provider) Engine() (engine.Engine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng, p.eng != nil
}

// RuleGroups 返回规则组；规则组尚在加载时 ok 为 false
func (p *Provider) RuleGroups() (rules.Groups, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groups, p.groupsLoaded
}

// CachedModes 返回已经加载过的模式
func (p *Provider) CachedModes() []engine.Mode {
	return p.cache.Keys()
}

// Subscribe 返回状态变化通道，只缓冲最新的一次状态。调用返回的函数取消订阅
func (p *Provider) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- p.stateLocked()
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[ch]; ok {
			delete(p.subs, ch)
			close(ch)
		}
	}
}

// WaitReady 等待引擎和规则组都就绪。当前模式加载失败时返回 ErrNotReady
func (p *Provider) WaitReady(ctx context.Context) (engine.Engine, error) {
	for {
		p.mu.Lock()
		if p.eng != nil && p.groupsLoaded {
			eng := p.eng
			p.mu.Unlock()
			return eng, nil
		}
		if p.lastErr != nil {
			err := p.lastErr
			p.mu.Unlock()
			return nil, errors.Join(ErrNotReady, err)
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// LastError 返回当前模式最近一次加载失败的原因
func (p *Provider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
