package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/cache"
	"github.com/yleoer/zhconv/pkg/config"
	"github.com/yleoer/zhconv/pkg/database"
	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/logger"
	"github.com/yleoer/zhconv/pkg/provider"
	"github.com/yleoer/zhconv/pkg/rules"
)

// app 持有一次命令执行所需的全部依赖
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    database.Store
	prefs    *database.Preferences
	provider *provider.Provider
	runner   *jobs.Runner
	closers  []func()
}

// newApp 按依赖顺序初始化各个服务。startEngine 为 false 时只初始化存储
func newApp(flags *globalFlags, startEngine bool) (*app, error) {
	a := &app{}
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := flags.apply(cfg); err != nil {
		return nil, err
	}
	a.cfg = cfg
	// 2. 初始化日志器
	log, closeLog, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	a.logger = log
	a.closers = append(a.closers, closeLog)
	a.logger.Debug("Configuration loaded",
		zap.String("dataDir", cfg.DataDir),
		zap.String("dbPath", cfg.DBPath),
		zap.String("tablesDir", cfg.TablesDir),
	)
	// 3. 初始化所有依赖服务
	// 3.1 数据库存储
	store, err := database.NewSQLiteStore(cfg.DBPath, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })
	a.prefs = database.NewPreferences(store)
	if !startEngine {
		return a, nil
	}
	// 3.2 文件解码器与任务执行器
	decoder, err := jobs.NewDecoder(cfg.FallbackEncodings)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = jobs.NewRunner(decoder)
	// 3.3 引擎缓存 (依赖于 Loader)
	loader := engine.NewLoader(engine.LoaderConfig{TablesDir: cfg.TablesDir}, a.logger)
	engines := cache.New[engine.Mode, engine.Engine](loader.Load, a.logger)
	// 3.4 规则组
	fetcher := rules.NewFetcher(cfg.RulesURL, cfg.RulesFile, cfg.HTTPTimeout, a.logger)
	// 4. 启动引擎
	a.provider = provider.New(engines, a.prefs, fetcher, a.logger)
	a.closers = append(a.closers, a.provider.Close)
	if flags.mode != "" {
		mode, err := engine.ParseMode(flags.mode)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.prefs.SaveMode(mode); err != nil {
			a.logger.Warn("Failed to persist engine mode", zap.Error(err))
		}
	}
	a.provider.Start()
	return a, nil
}

// waitReady 等待引擎就绪
func (a *app) waitReady(ctx context.Context) (engine.Engine, error) {
	eng, err := a.provider.WaitReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", a.provider.Mode(), err)
	}
	return eng, nil
}

// options 合并命令行选项与保存的偏好，显式指定的选项会被保存
func (a *app) options(flags *convertFlags) (jobs.Options, error) {
	var opts jobs.Options
	var err error
	if flags.target != "" {
		if opts.Target, err = engine.ParseVariant(flags.target); err != nil {
			return opts, err
		}
		a.savePref(a.prefs.SetTarget(opts.Target))
	} else if opts.Target, err = a.prefs.Target(); err != nil {
		a.logger.Warn("Failed to read saved target", zap.Error(err))
	}
	if flags.wikitextSet {
		opts.Wikitext = flags.wikitext
		a.savePref(a.prefs.SetWikitext(opts.Wikitext))
	} else if opts.Wikitext, err = a.prefs.Wikitext(); err != nil {
		a.logger.Warn("Failed to read saved wikitext option", zap.Error(err))
	}
	if flags.groupsSet {
		opts.Groups = flags.groups
		a.savePref(a.prefs.SetGroups(opts.Groups))
	} else if opts.Groups, err = a.prefs.Groups(); err != nil {
		a.logger.Warn("Failed to read saved rule groups", zap.Error(err))
	}
	return opts, nil
}

func (a *app) savePref(err error) {
	if err != nil {
		a.logger.Warn("Failed to save preference", zap.Error(err))
	}
}

// Close 按初始化的相反顺序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
