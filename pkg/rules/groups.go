// Package rules 加载可选的转换规则组（cgroups）。
package rules

import (
	"sort"
	"strings"
	"time"
)

// Groups 是规则组名称到规则文本的映射，加载后只读
type Groups struct {
	Data      map[string]string `json:"data"`
	Timestamp float64           `json:"timestamp"`
}

// Names 返回按名称排序的规则组
func (g Groups) Names() []string {
	names := make([]string, 0, len(g.Data))
	for name := range g.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has 报告规则组是否存在
func (g Groups) Has(name string) bool {
	_, ok := g.Data[name]
	return ok
}

// Join 按选择顺序用换行连接所选规则组的规则，不存在的组被忽略
func (g Groups) Join(selected []string) string {
	blocks := make([]string, 0, len(selected))
	for _, name := range selected {
		if rules, ok := g.Data[name]; ok {
			blocks = append(blocks, rules)
		}
	}
	return strings.Join(blocks, "\n")
}

// UpdatedAt 返回规则数据的更新时间，未知时为零值
func (g Groups) UpdatedAt() time.Time {
	if g.Timestamp <= 0 {
		return time.Time{}
	}
	sec := int64(g.Timestamp)
	nsec := int64((g.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
