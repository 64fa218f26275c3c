package database

import (
	"encoding/json"
	"strconv"

	"github.com/yleoer/zhconv/pkg/engine"
)

// Namespace 是所有偏好键的前缀，避免与其他产品冲突
const Namespace = "zhconv"

const (
	keyMode     = "ruleset-mode"
	keyInput    = "input"
	keyGroups   = "cgroups"
	keyWikitext = "wikitext"
	keyTarget   = "target"
)

// DefaultTarget 是未保存过目标变体时使用的默认值
const DefaultTarget = engine.ZhHant

// Preferences 在键值存储之上提供带命名空间的用户偏好
type Preferences struct {
	store KVStore
}

// NewPreferences 创建一个新的 Preferences 实例
func NewPreferences(store KVStore) *Preferences {
	return &Preferences{store: store}
}

func (p *Preferences) key(name string) string {
	return Namespace + "-" + name
}

func (p *Preferences) get(name string) (string, bool, error) {
	return p.store.Get(p.key(name))
}

func (p *Preferences) set(name, value string) error {
	return p.store.Set(p.key(name), value)
}

// LoadMode 读取上次使用的引擎模式，未保存或无法识别时返回默认模式
func (p *Preferences) LoadMode() (engine.Mode, error) {
	v, ok, err := p.get(keyMode)
	if err != nil || !ok {
		return engine.DefaultMode, err
	}
	mode, err := engine.ParseMode(v)
	if err != nil {
		return engine.DefaultMode, nil
	}
	return mode, nil
}

// SaveMode 保存引擎模式
func (p *Preferences) SaveMode(mode engine.Mode) error {
	return p.set(keyMode, string(mode))
}

// Target 读取目标变体
func (p *Preferences) Target() (engine.Variant, error) {
	v, ok, err := p.get(keyTarget)
	if err != nil || !ok {
		return DefaultTarget, err
	}
	target, err := engine.ParseVariant(v)
	if err != nil {
		return DefaultTarget, nil
	}
	return target, nil
}

// SetTarget 保存目标变体
func (p *Preferences) SetTarget(target engine.Variant) error {
	return p.set(keyTarget, string(target))
}

// Wikitext 读取是否启用 MediaWiki 语法支持
func (p *Preferences) Wikitext() (bool, error) {
	v, ok, err := p.get(keyWikitext)
	if err != nil || !ok {
		return false, err
	}
	enabled, _ := strconv.ParseBool(v)
	return enabled, nil
}

// SetWikitext 保存是否启用 MediaWiki 语法支持
func (p *Preferences) SetWikitext(enabled bool) error {
	return p.set(keyWikitext, strconv.FormatBool(enabled))
}

// Groups 读取已选择的规则组，保持选择顺序
func (p *Preferences) Groups() ([]string, error) {
	v, ok, err := p.get(keyGroups)
	if err != nil || !ok {
		return nil, err
	}
	var groups []string
	if json.Unmarshal([]byte(v), &groups) != nil {
		return nil, nil
	}
	return groups, nil
}

// SetGroups 保存已选择的规则组
func (p *Preferences) SetGroups(groups []string) error {
	if groups == nil {
		groups = []string{}
	}
	data, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	return p.set(keyGroups, string(data))
}

// Input 读取上次输入的文本
func (p *Preferences) Input() (string, error) {
	v, _, err := p.get(keyInput)
	return v, err
}

// SetInput 保存输入的文本
func (p *Preferences) SetInput(text string) error {
	return p.set(keyInput, text)
}
