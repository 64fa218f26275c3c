// Package pipeline 按顺序执行一批转换任务，隔离每个任务的失败，
// 并把结果交付给调用方提供的 Sink。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/rules"
)

// ErrDelivery 表示转换成功但产物未能交付
var ErrDelivery = errors.New("delivery failed")

// Source 提供就绪的引擎与规则组，通常由 provider.Provider 实现
type Source interface {
	Engine() (engine.Engine, bool)
	RuleGroups() (rules.Groups, bool)
}

// Level 是通知级别
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification 是发给用户的一条消息
type Notification struct {
	Level   Level  `json:"level"`
	Job     string `json:"job"`
	Message string `json:"message"`
}

// Artifact 是一个转换产物
type Artifact struct {
	Name   string `json:"name,omitempty"`   // 产物文件名，文本任务为空
	Source string `json:"source,omitempty"` // 原文件名
	Text   string `json:"text"`
}

// Sink 接收产物与通知
type Sink interface {
	Deliver(ctx context.Context, artifact Artifact) error
	Notify(n Notification)
}

// Outcome 是单个任务的结果。Skipped 的任务没有产物也不会发出通知
type Outcome struct {
	Job      jobs.Job
	Artifact *Artifact
	Err      error
	Skipped  bool
}

// OK 报告任务是否成功产出了产物
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Skipped
}

// Pipeline 把任务依次交给 Runner 执行
type Pipeline struct {
	source Source
	runner *jobs.Runner
	sink   Sink
	logger *zap.Logger
}

// New 创建一个新的 Pipeline 实例
func New(source Source, runner *jobs.Runner, sink Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{source: source, runner: runner, sink: sink, logger: logger}
}

// Ready 报告引擎与规则组是否都已就绪
func (p *Pipeline) Ready() bool {
	_, engineOK := p.source.Engine()
	_, groupsOK := p.source.RuleGroups()
	return engineOK && groupsOK
}

// Run 依次执行 jobs。未就绪时什么也不做；ctx 取消后不再开始新的任务
func (p *Pipeline) Run(ctx context.Context, batch []jobs.Job, opts jobs.Options) []Outcome {
	eng, engineOK := p.source.Engine()
	groups, groupsOK := p.source.RuleGroups()
	if !engineOK || !groupsOK {
		p.logger.Warn("Engine not ready, ignoring batch", zap.Int("jobs", len(batch)))
		return nil
	}

	batchID := uuid.NewString()
	logger := p.logger.With(zap.String("batch", batchID), zap.String("target", string(opts.Target)))
	logger.Info("Starting batch", zap.Int("jobs", len(batch)), zap.String("mode", string(eng.Mode())))

	outcomes := make([]Outcome, 0, len(batch))
	for i, job := range batch {
		if err := ctx.Err(); err != nil {
			logger.Warn("Batch stopped", zap.Int("remaining", len(batch)-i), zap.Error(err))
			break
		}
		outcome := p.runOne(ctx, eng, groups, opts, job, logger)
		outcomes = append(outcomes, outcome)
	}
	logger.Info("Batch finished", zap.Int("outcomes", len(outcomes)))
	return outcomes
}

func (p *Pipeline) runOne(ctx context.Context, eng engine.Engine, groups rules.Groups, opts jobs.Options, job jobs.Job, logger *zap.Logger) Outcome {
	name := job.DisplayName()
	text, err := p.runner.Run(ctx, eng, groups, opts, job)
	if errors.Is(err, jobs.ErrEmptyInput) {
		logger.Debug("Skipping empty job", zap.String("job", name))
		return Outcome{Job: job, Skipped: true}
	}
	if err != nil {
		return p.fail(job, err, logger)
	}

	artifact := Artifact{Source: job.Name, Text: text}
	if job.Kind == jobs.KindFile {
		artifact.Name = ArtifactName(job.Name, opts.Target)
	}
	if err := p.sink.Deliver(ctx, artifact); err != nil {
		return p.fail(job, fmt.Errorf("%w: %v", ErrDelivery, err), logger)
	}
	p.sink.Notify(Notification{
		Level:   LevelSuccess,
		Job:     name,
		Message: fmt.Sprintf("converted to %s", opts.Target),
	})
	logger.Info("Job converted", zap.String("job", name), zap.String("artifact", artifact.Name))
	return Outcome{Job: job, Artifact: &artifact}
}

func (p *Pipeline) fail(job jobs.Job, err error, logger *zap.Logger) Outcome {
	name := job.DisplayName()
	logger.Error("Job failed", zap.String("job", name), zap.Error(err))
	p.sink.Notify(Notification{Level: LevelError, Job: name, Message: Reason(err)})
	return Outcome{Job: job, Err: err}
}

// Reason 把错误转换为面向用户的简短原因
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, jobs.ErrInvalidEncoding):
		return jobs.ErrInvalidEncoding.Error()
	case errors.Is(err, ErrDelivery):
		return ErrDelivery.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "conversion failed"
	}
}

// ArtifactName 在扩展名前插入目标变体：a.txt → a.zh-TW.txt，README → README.zh-TW。
// 以点开头且没有其他点的文件名（.bashrc）视为没有扩展名
func ArtifactName(name string, target engine.Variant) string {
	dir, base := filepath.Split(name)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)
	return dir + stem + "." + string(target) + ext
}
