package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode 表示引擎模式无法识别
var ErrUnknownMode = errors.New("unknown engine mode")

// Mode 标识当前启用的引擎构建
type Mode string

const (
	ModeMediaWiki Mode = "mediawiki" // MediaWiki 转换表
	ModeOpenCC    Mode = "opencc"    // OpenCC 字典
	ModeBoth      Mode = "both"      // 两者叠加，转换表优先

	DefaultMode = ModeMediaWiki
)

// Modes 列出所有可选的引擎模式
var Modes = []Mode{ModeMediaWiki, ModeOpenCC, ModeBoth}

// ParseMode 解析引擎模式
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) usesTables() bool {
	return m == ModeMediaWiki || m == ModeBoth
}

func (m Mode) usesOpenCC() bool {
	return m == ModeOpenCC || m == ModeBoth
}
