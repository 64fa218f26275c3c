package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedVariant 表示目标变体无法识别
var ErrUnsupportedVariant = errors.New("unsupported variant")

// Variant 表示中文的书写变体
type Variant string

const (
	Zh     Variant = "zh"      // 原文
	ZhHant Variant = "zh-Hant" // 繁體
	ZhHans Variant = "zh-Hans" // 简体
	ZhTW   Variant = "zh-TW"   // 臺灣正體
	ZhHK   Variant = "zh-HK"   // 香港繁體
	ZhMO   Variant = "zh-MO"   // 澳門繁體
	ZhCN   Variant = "zh-CN"   // 大陆简体
	ZhSG   Variant = "zh-SG"   // 新加坡简体
	ZhMY   Variant = "zh-MY"   // 大马简体
)

// Variants 按界面展示顺序列出所有变体
var Variants = []Variant{Zh, ZhHant, ZhHans, ZhTW, ZhHK, ZhMO, ZhCN, ZhSG, ZhMY}

var variantNames = map[Variant]string{
	Zh:     "原文",
	ZhHant: "繁體",
	ZhHans: "简体",
	ZhTW:   "臺灣正體",
	ZhHK:   "香港繁體",
	ZhMO:   "澳門繁體",
	ZhCN:   "大陆简体",
	ZhSG:   "新加坡简体",
	ZhMY:   "大马简体",
}

var fallbackChains = map[Variant][]Variant{
	Zh:     {ZhHans, ZhHant, ZhCN, ZhTW, ZhHK, ZhSG, ZhMO, ZhMY},
	ZhHans: {ZhCN, ZhSG, ZhMY},
	ZhHant: {ZhTW, ZhHK, ZhMO},
	ZhCN:   {ZhHans, ZhSG, ZhMY},
	ZhSG:   {ZhHans, ZhCN, ZhMY},
	ZhMY:   {ZhHans, ZhSG, ZhCN},
	ZhTW:   {ZhHant, ZhHK, ZhMO},
	ZhHK:   {ZhHant, ZhMO, ZhTW},
	ZhMO:   {ZhHant, ZhHK, ZhTW},
}

// ParseVariant 解析变体标签，大小写不敏感，返回规范写法
func ParseVariant(s string) (Variant, error) {
	s = strings.TrimSpace(s)
	for _, v := range Variants {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
}

// Valid 报告变体是否受支持
func (v Variant) Valid() bool {
	_, ok := variantNames[v]
	return ok
}

// Name 返回变体的中文名称
func (v Variant) Name() string {
	return variantNames[v]
}

// Label 返回 "zh-TW 臺灣正體" 形式的展示标签
func (v Variant) Label() string {
	return fmt.Sprintf("%s %s", v, v.Name())
}

// IsHans 报告变体是否属于简体一侧
func (v Variant) IsHans() bool {
	switch v {
	case ZhHans, ZhCN, ZhSG, ZhMY:
		return true
	}
	return false
}

// Fallbacks 返回规则缺少该变体文本时依次尝试的变体
func (v Variant) Fallbacks() []Variant {
	return fallbackChains[v]
}
