package engine

import "strings"

const (
	markupOpen  = "-{"
	markupClose = "}-"
)

// markup 是一段 -{ }- 内联标记
type markup struct {
	flags string
	body  string
	rule  *Rule
}

// scanMarkup 把文本切分为普通文本与内联标记，未闭合的 "-{" 按普通文本处理
func scanMarkup(text string) (plain []string, blocks []markup) {
	for {
		start := strings.Index(text, markupOpen)
		if start < 0 {
			break
		}
		end := strings.Index(text[start+len(markupOpen):], markupClose)
		if end < 0 {
			break
		}
		end += start + len(markupOpen)
		plain = append(plain, text[:start])
		blocks = append(blocks, parseMarkup(text[start+len(markupOpen):end]))
		text = text[end+len(markupClose):]
	}
	plain = append(plain, text)
	return plain, blocks
}

func parseMarkup(content string) markup {
	m := markup{body: content}
	if flags, body, ok := splitFlags(strings.TrimSpace(content)); ok {
		m.flags = flags
		m.body = body
	}
	if strings.Contains(m.flags, "R") {
		return m
	}
	if r, err := ParseRule(m.body); err == nil && len(r.Bid) > 0 {
		m.rule = &r
	}
	return m
}

// render 返回标记在目标变体下的显示文本
func (m markup) render(target Variant) string {
	switch {
	case strings.Contains(m.flags, "H"):
		return ""
	case m.rule == nil:
		return m.body
	}
	if t, ok := m.rule.TextFor(target); ok {
		return t
	}
	return m.body
}

// global 报告该标记是否向整页加入规则
func (m markup) global() bool {
	return m.rule != nil && (strings.Contains(m.flags, "H") || strings.Contains(m.flags, "A"))
}

// splitWikitext 处理页面中的内联转换语法。标记的显示结果不再参与后续转换；
// H 和 A 标记中的规则作用于整页，包括标记之前的文本
func splitWikitext(text string, target Variant) ([]segment, []Rule) {
	plain, blocks := scanMarkup(text)
	var (
		segs  []segment
		rules []Rule
	)
	for _, b := range blocks {
		if b.global() {
			rules = append(rules, *b.rule)
		}
	}
	for i, p := range plain {
		if p != "" {
			segs = append(segs, segment{text: p})
		}
		if i < len(blocks) {
			if out := blocks[i].render(target); out != "" {
				segs = append(segs, segment{text: out, fixed: true})
			}
		}
	}
	return segs, rules
}
