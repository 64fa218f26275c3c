package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" zh-tw ")
	require.NoError(t, err)
	assert.Equal(t, ZhTW, v)
	assert.Equal(t, "zh-TW 臺灣正體", v.Label())

	_, err = ParseVariant("en")
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("OpenCC")
	require.NoError(t, err)
	assert.Equal(t, ModeOpenCC, m)

	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseRule(t *testing.T) {
	t.Run("bidirectional with wrapper and flags", func(t *testing.T) {
		r, err := ParseRule("-{H|zh-hans:计算机; zh-hant:電腦;}-")
		require.NoError(t, err)
		assert.Equal(t, map[Variant]string{ZhHans: "计算机", ZhHant: "電腦"}, r.Bid)
	})

	t.Run("unidirectional", func(t *testing.T) {
		r, err := ParseRule("电脑=>zh-tw:電腦; 电脑=>zh-hk:電腦;")
		require.NoError(t, err)
		assert.Empty(t, r.Bid)
		assert.Equal(t, [][2]string{{"电脑", "電腦"}}, r.Unid[ZhTW])
		// 单向规则没有回退
		assert.Empty(t, r.Pairs(ZhMO))
	})

	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"", "计算机", "xx:计算机;", ";;"} {
			_, err := ParseRule(s)
			assert.ErrorIs(t, err, ErrInvalidRule, s)
		}
	})
}

func TestRuleFallback(t *testing.T) {
	r, err := ParseRule("zh-hans:内存; zh-hant:記憶體; zh-hk:內存;")
	require.NoError(t, err)

	tests := []struct {
		target Variant
		want   string
	}{
		{ZhCN, "内存"},
		{ZhMY, "内存"},
		{ZhTW, "記憶體"},
		{ZhHK, "內存"},
		{ZhMO, "記憶體"},
		{Zh, "内存"},
	}
	for _, tt := range tests {
		got, ok := r.TextFor(tt.target)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, tt.target)
	}

	assert.Empty(t, r.Pairs(Zh))
	assert.ElementsMatch(t, [][2]string{{"内存", "內存"}, {"記憶體", "內存"}, {"內存", "內存"}}, r.Pairs(ZhHK))
}

func TestParseRulesSkipsInvalidLines(t *testing.T) {
	rules := ParseRules("zh-cn:软件; zh-tw:軟體;\n\n  garbage\nzh-cn:硬件; zh-tw:硬體;\n")
	assert.Len(t, rules, 2)
}
