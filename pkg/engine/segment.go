package engine

import (
	"strings"
	"unicode/utf8"
)

// segment 是转换过程中的一段文本，fixed 为真时后续阶段不再改写
type segment struct {
	text  string
	fixed bool
}

func joinSegments(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String()
}

// table 是最长匹配替换表
type table struct {
	pairs  map[string]string
	maxLen int // 以 rune 计
}

func newTable() *table {
	return &table{pairs: make(map[string]string)}
}

// add 加入替换对，后加入的覆盖先加入的
func (t *table) add(from, to string) {
	if from == "" {
		return
	}
	t.pairs[from] = to
	if n := utf8.RuneCountInString(from); n > t.maxLen {
		t.maxLen = n
	}
}

func (t *table) merge(other *table) {
	if other == nil {
		return
	}
	for from, to := range other.pairs {
		t.add(from, to)
	}
}

func (t *table) empty() bool {
	return t == nil || len(t.pairs) == 0
}

// apply 对所有未固定的段做正向最长匹配替换，被替换的部分标记为固定
func (t *table) apply(segs []segment) []segment {
	if t.empty() {
		return segs
	}
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if s.fixed {
			out = append(out, s)
			continue
		}
		out = append(out, t.replace(s.text)...)
	}
	return out
}

func (t *table) replace(text string) []segment {
	var (
		out     []segment
		pending strings.Builder
	)
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	count := len(offsets) - 1

	for i := 0; i < count; {
		matched := false
		for n := min(t.maxLen, count-i); n > 0; n-- {
			if to, ok := t.pairs[text[offsets[i]:offsets[i+n]]]; ok {
				if pending.Len() > 0 {
					out = append(out, segment{text: pending.String()})
					pending.Reset()
				}
				out = append(out, segment{text: to, fixed: true})
				i += n
				matched = true
				break
			}
		}
		if !matched {
			pending.WriteString(text[offsets[i]:offsets[i+1]])
			i++
		}
	}
	if pending.Len() > 0 {
		out = append(out, segment{text: pending.String()})
	}
	return out
}

// rulesTable 把规则展开为目标变体的替换表，后面的规则优先
func rulesTable(rules []Rule, target Variant) *table {
	t := newTable()
	for _, r := range rules {
		for _, p := range r.Pairs(target) {
			t.add(p[0], p[1])
		}
	}
	return t
}
