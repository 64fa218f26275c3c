package engine

// baseConverter 是某一引擎构建的基础转换，只改写未固定的段
type baseConverter interface {
	convert(segs []segment, target Variant) ([]segment, error)
}

// tableConverter 使用 MediaWiki 转换表
type tableConverter struct {
	tables map[Variant]*table
}

func (c *tableConverter) convert(segs []segment, target Variant) ([]segment, error) {
	return c.tables[target].apply(segs), nil
}

// layeredConverter 依次应用多个转换，前者的结果不再被后者改写
type layeredConverter []baseConverter

func (c layeredConverter) convert(segs []segment, target Variant) ([]segment, error) {
	var err error
	for _, conv := range c {
		if segs, err = conv.convert(segs, target); err != nil {
			return nil, err
		}
	}
	return segs, nil
}
