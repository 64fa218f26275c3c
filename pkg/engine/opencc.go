package engine

import (
	"fmt"

	"github.com/liuzl/gocc"
	"go.uber.org/zap"
)

// 各目标变体对应的 OpenCC 配置
var openCCConfigs = map[Variant]string{
	ZhHant: "s2t",
	ZhHans: "t2s",
	ZhTW:   "s2twp",
	ZhHK:   "s2hk",
	ZhMO:   "s2hk",
	ZhCN:   "t2s",
	ZhSG:   "t2s",
	ZhMY:   "t2s",
}

// openCCConverter 使用 gocc 内置的 OpenCC 字典
type openCCConverter struct {
	converters map[Variant]*gocc.OpenCC
}

// newOpenCCConverter 加载所有目标变体需要的 OpenCC 字典
func newOpenCCConverter(logger *zap.Logger) (*openCCConverter, error) {
	byConfig := make(map[string]*gocc.OpenCC)
	c := &openCCConverter{converters: make(map[Variant]*gocc.OpenCC)}
	for v, name := range openCCConfigs {
		cc, ok := byConfig[name]
		if !ok {
			var err error
			cc, err = gocc.New(name)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize OpenCC converter %s: %w", name, err)
			}
			byConfig[name] = cc
			logger.Debug("OpenCC converter initialized", zap.String("config", name))
		}
		c.converters[v] = cc
	}
	return c, nil
}

func (c *openCCConverter) convert(segs []segment, target Variant) ([]segment, error) {
	cc := c.converters[target]
	if cc == nil {
		return segs, nil
	}
	out := make([]segment, len(segs))
	for i, s := range segs {
		if s.fixed || s.text == "" {
			out[i] = s
			continue
		}
		converted, err := cc.Convert(s.text)
		if err != nil {
			return nil, fmt.Errorf("opencc convert to %s: %w", target, err)
		}
		out[i] = segment{text: converted, fixed: true}
	}
	return out, nil
}
