package engine

import (
	"errors"
	"strings"
)

// ErrInvalidRule 表示转换规则无法解析
var ErrInvalidRule = errors.New("invalid conversion rule")

// Rule 是一条 MediaWiki 风格的转换规则，例如
// "zh-hans:计算机; zh-hant:電腦;" 或 "电脑=>zh-tw:電腦;"
type Rule struct {
	Bid  map[Variant]string      // 双向：变体 -> 文本
	Unid map[Variant][][2]string // 单向：变体 -> (原文, 译文)
}

// ParseRule 解析单条规则，允许 -{ }- 包裹和 "H|" 一类的标记前缀
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-{") && strings.HasSuffix(s, "}-") {
		s = strings.TrimSpace(s[2 : len(s)-2])
	}
	if _, body, ok := splitFlags(s); ok {
		s = body
	}
	rule := Rule{
		Bid:  make(map[Variant]string),
		Unid: make(map[Variant][][2]string),
	}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, rest, ok := strings.Cut(part, "=>"); ok {
			v, to, err := parsePair(rest)
			if err != nil {
				return Rule{}, err
			}
			from = strings.TrimSpace(from)
			if from == "" {
				continue
			}
			rule.Unid[v] = append(rule.Unid[v], [2]string{from, to})
			continue
		}
		v, text, err := parsePair(part)
		if err != nil {
			return Rule{}, err
		}
		rule.Bid[v] = text
	}
	if len(rule.Bid) == 0 && len(rule.Unid) == 0 {
		return Rule{}, ErrInvalidRule
	}
	return rule, nil
}

// ParseRules 逐行解析规则，空行和无法解析的行被忽略
func ParseRules(lines string) []Rule {
	var rules []Rule
	for _, line := range strings.Split(lines, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r, err := ParseRule(line); err == nil {
			rules = append(rules, r)
		}
	}
	return rules
}

func parsePair(s string) (Variant, string, error) {
	tag, text, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", ErrInvalidRule
	}
	v, err := ParseVariant(tag)
	if err != nil {
		return "", "", ErrInvalidRule
	}
	return v, strings.TrimSpace(text), nil
}

// splitFlags 拆分 "H|zh-hans:...;" 中的标记部分
func splitFlags(s string) (flags, body string, ok bool) {
	flags, body, ok = strings.Cut(s, "|")
	if !ok || flags == "" || len(flags) > 4 {
		return "", s, false
	}
	for _, r := range flags {
		if !(r >= 'A' && r <= 'Z' || r == ';' || r == '-') {
			return "", s, false
		}
	}
	return flags, body, true
}

// TextFor 返回规则对目标变体给出的文本，缺失时按回退链查找
func (r Rule) TextFor(target Variant) (string, bool) {
	if t, ok := r.Bid[target]; ok {
		return t, true
	}
	for _, v := range target.Fallbacks() {
		if t, ok := r.Bid[v]; ok {
			return t, true
		}
	}
	return "", false
}

// Pairs 返回转换到目标变体时的替换对
func (r Rule) Pairs(target Variant) [][2]string {
	if target == Zh {
		return nil
	}
	var pairs [][2]string
	if to, ok := r.TextFor(target); ok {
		for _, from := range r.Bid {
			if from != "" {
				pairs = append(pairs, [2]string{from, to})
			}
		}
	}
	// 单向规则没有回退
	pairs = append(pairs, r.Unid[target]...)
	return pairs
}
