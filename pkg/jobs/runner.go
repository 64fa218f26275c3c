package jobs

import (
	"context"
	"strings"
	"unicode"

	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/rules"
)

// Runner 负责执行单个转换任务，本身不产生副作用
type Runner struct {
	decoder *Decoder
}

// NewRunner 创建一个新的 Runner 实例
func NewRunner(decoder *Decoder) *Runner {
	if decoder == nil {
		decoder = &Decoder{}
	}
	return &Runner{decoder: decoder}
}

// Run 把任务转换为目标变体的文本。空输入返回 ErrEmptyInput，
// 文件无法解码返回 ErrInvalidEncoding
func (r *Runner) Run(ctx context.Context, eng engine.Engine, groups rules.Groups, opts Options, job Job) (string, error) {
	text := job.Content
	if job.Kind == KindFile {
		var err error
		if text, err = r.decoder.Decode(job.Bytes); err != nil {
			return "", err
		}
	}
	if isBlank(text) {
		return "", ErrEmptyInput
	}
	return eng.Convert(ctx, text, opts.Target, opts.Wikitext, groups.Join(opts.Groups))
}

// isBlank 报告文本是否只含空白，零宽不换行空格 (U+FEFF) 也算空白
func isBlank(text string) bool {
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	}) == ""
}
