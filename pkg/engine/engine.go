package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// 由 -ldflags "-X" 在构建时注入
var (
	BuildTimestamp = ""
	Commit         = "unknown"
)

const goccModule = "github.com/liuzl/gocc"

// Engine 是加载完成的转换引擎，加载后不再修改，可并发使用
type Engine interface {
	// Convert 把文本转换为目标变体。wikitext 为真时处理内联 -{ }- 语法，
	// extraRules 为逐行的附加转换规则
	Convert(ctx context.Context, text string, target Variant, wikitext bool, extraRules string) (string, error)
	Mode() Mode
	BuildTimestamp() string
	Commit() string
	// SourceCommit 返回某个数据源（mediawiki 或 opencc）的版本标识
	SourceCommit(name string) string
	// InferVariantConfidence 推断文本偏向简体还是繁体
	InferVariantConfidence(text string) string
}

// dictEngine 是基于转换表和字典的 Engine 实现
type dictEngine struct {
	mode    Mode
	base    baseConverter
	sources map[string]string
}

func (e *dictEngine) Mode() Mode { return e.mode }

func (e *dictEngine) BuildTimestamp() string { return BuildTimestamp }

func (e *dictEngine) Commit() string { return Commit }

func (e *dictEngine) SourceCommit(name string) string { return e.sources[name] }

func (e *dictEngine) Convert(ctx context.Context, text string, target Variant, wikitext bool, extraRules string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !target.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, target)
	}
	rules := ParseRules(extraRules)
	segs := []segment{{text: text}}
	if wikitext {
		var pageRules []Rule
		segs, pageRules = splitWikitext(text, target)
		rules = append(rules, pageRules...)
	}
	if target == Zh {
		return joinSegments(segs), nil
	}
	segs = rulesTable(rules, target).apply(segs)
	segs, err := e.base.convert(segs, target)
	if err != nil {
		return "", err
	}
	return joinSegments(segs), nil
}

func (e *dictEngine) InferVariantConfidence(text string) string {
	hans := e.hansConfidence(text)
	return fmt.Sprintf("%s:%.2f,%s:%.2f", ZhHans, hans, ZhHant, 1-hans)
}

// hansConfidence 统计只在简体或只在繁体中保持不变的汉字，返回简体所占比例
func (e *dictEngine) hansConfidence(text string) float64 {
	type verdict struct{ hans, hant bool }
	seen := make(map[rune]verdict)
	var hansCount, hantCount int
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		v, ok := seen[r]
		if !ok {
			v = verdict{
				hans: e.unchanged(r, ZhHans),
				hant: e.unchanged(r, ZhHant),
			}
			seen[r] = v
		}
		switch {
		case v.hans && !v.hant:
			hansCount++
		case v.hant && !v.hans:
			hantCount++
		}
	}
	if hansCount+hantCount == 0 {
		return 0.5
	}
	return float64(hansCount) / float64(hansCount+hantCount)
}

func (e *dictEngine) unchanged(r rune, target Variant) bool {
	segs, err := e.base.convert([]segment{{text: string(r)}}, target)
	if err != nil {
		return true
	}
	return joinSegments(segs) == string(r)
}

// LoaderConfig 指定各引擎构建的数据来源
type LoaderConfig struct {
	TablesDir string // MediaWiki 转换表目录
}

// Loader 负责按模式构建引擎
type Loader struct {
	cfg    LoaderConfig
	logger *zap.Logger
}

// NewLoader 创建一个新的 Loader 实例
func NewLoader(cfg LoaderConfig, logger *zap.Logger) *Loader {
	return &Loader{cfg: cfg, logger: logger}
}

// Load 构建指定模式的引擎。这是一个昂贵的操作，调用方应当缓存结果
func (l *Loader) Load(ctx context.Context, mode Mode) (Engine, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	start := time.Now()
	e := &dictEngine{mode: mode, sources: make(map[string]string)}
	var layers layeredConverter
	if mode.usesTables() {
		tables, fingerprint, err := loadTables(l.cfg.TablesDir)
		if err != nil {
			return nil, err
		}
		layers = append(layers, &tableConverter{tables: tables})
		e.sources[string(ModeMediaWiki)] = fingerprint
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mode.usesOpenCC() {
		cc, err := newOpenCCConverter(l.logger)
		if err != nil {
			return nil, err
		}
		layers = append(layers, cc)
		e.sources[string(ModeOpenCC)] = moduleVersion(goccModule)
	}
	e.base = layers
	l.logger.Info("Engine loaded", zap.String("mode", string(mode)), zap.Duration("elapsed", time.Since(start)))
	return e, nil
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return "unknown"
}
