// Package jobs 把单个转换任务交给引擎执行。
package jobs

import (
	"errors"

	"github.com/yleoer/zhconv/pkg/engine"
)

var (
	// ErrInvalidEncoding 表示文件内容无法严格解码为文本
	ErrInvalidEncoding = errors.New("invalid encoding")
	// ErrEmptyInput 表示输入为空或只有空白，任务被跳过
	ErrEmptyInput = errors.New("empty input")
)

// Kind 区分粘贴的文本与文件
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// textJobName 是文本任务在通知中的名称
const textJobName = "text input"

// Job 是一个独立的转换单元，创建后不再修改
type Job struct {
	Kind    Kind
	Name    string // 文件名，文本任务为空
	Content string // 文本任务的内容
	Bytes   []byte // 文件任务的原始字节
}

// NewTextJob 创建一个文本任务
func NewTextJob(content string) Job {
	return Job{Kind: KindText, Content: content}
}

// NewFileJob 创建一个文件任务
func NewFileJob(name string, data []byte) Job {
	return Job{Kind: KindFile, Name: name, Bytes: data}
}

// DisplayName 返回通知中用来指代任务的名称
func (j Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return textJobName
}

// Options 是一批任务共用的转换选项
type Options struct {
	Target   engine.Variant
	Wikitext bool
	Groups   []string // 按选择顺序
}
