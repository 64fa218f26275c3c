package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/util"
)

// Collector 在内存中收集产物与通知，供 HTTP 接口返回
type Collector struct {
	mu            sync.Mutex
	Artifacts     []Artifact
	Notifications []Notification
}

func (c *Collector) Deliver(ctx context.Context, artifact Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Artifacts = append(c.Artifacts, artifact)
	return nil
}

func (c *Collector) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications = append(c.Notifications, n)
}

// FileSink 把产物写入目录，通知写入日志。文本任务的产物写入 TextName
type FileSink struct {
	dir      string
	textName string
	logger   *zap.Logger
}

// NewFileSink 创建一个新的 FileSink 实例
func NewFileSink(dir, textName string, logger *zap.Logger) *FileSink {
	return &FileSink{dir: dir, textName: textName, logger: logger}
}

// Deliver 写入产物文件，文件名只保留基础名并清理不安全字符
func (s *FileSink) Deliver(ctx context.Context, artifact Artifact) error {
	name := artifact.Name
	if name == "" {
		name = s.textName
	}
	name = util.SanitizeFileName(filepath.Base(name))
	if name == "" || name == "." {
		return fmt.Errorf("no file name for artifact of %q", artifact.Source)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, []byte(artifact.Text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	s.logger.Debug("Artifact written", zap.String("path", path))
	return nil
}

func (s *FileSink) Notify(n Notification) {
	if n.Level == LevelError {
		s.logger.Error(n.Message, zap.String("job", n.Job))
		return
	}
	s.logger.Info(n.Message, zap.String("job", n.Job))
}
