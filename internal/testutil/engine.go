// Package testutil 提供测试用的引擎与存储替身。
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/yleoer/zhconv/pkg/engine"
)

// ErrFakeConvert 是 FakeEngine 对 FailOn 中的文本返回的错误
var ErrFakeConvert = errors.New("fake convert failure")

// ConvertCall 记录一次 Convert 调用的参数
type ConvertCall struct {
	Text       string
	Target     engine.Variant
	Wikitext   bool
	ExtraRules string
}

// FakeEngine 是确定性的引擎替身：按 Pairs 做字符串替换并记录调用
type FakeEngine struct {
	ModeValue engine.Mode
	Pairs     []string // 传给 strings.NewReplacer 的旧/新对
	FailOn    string   // 文本包含该子串时返回 ErrFakeConvert

	mu    sync.Mutex
	calls []ConvertCall
}

// NewFakeEngine 创建一个按 pairs 替换的 FakeEngine
func NewFakeEngine(mode engine.Mode, pairs ...string) *FakeEngine {
	return &FakeEngine{ModeValue: mode, Pairs: pairs}
}

func (e *FakeEngine) Convert(ctx context.Context, text string, target engine.Variant, wikitext bool, extraRules string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, ConvertCall{Text: text, Target: target, Wikitext: wikitext, ExtraRules: extraRules})
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return "", ErrFakeConvert
	}
	if len(e.Pairs) == 0 {
		return text, nil
	}
	return strings.NewReplacer(e.Pairs...).Replace(text), nil
}

// Calls 返回已记录的调用
func (e *FakeEngine) Calls() []ConvertCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ConvertCall(nil), e.calls...)
}

func (e *FakeEngine) Mode() engine.Mode { return e.ModeValue }

func (e *FakeEngine) BuildTimestamp() string { return "2024-01-01T00:00:00Z" }

func (e *FakeEngine) Commit() string { return "fake" }

func (e *FakeEngine) SourceCommit(name string) string { return "fake-" + name }

func (e *FakeEngine) InferVariantConfidence(text string) string { return "zh-Hans:0.50,zh-Hant:0.50" }
