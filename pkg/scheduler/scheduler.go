package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/database"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/pipeline"
	"github.com/yleoer/zhconv/pkg/util"
)

// Config 是收件箱调度参数
type Config struct {
	InboxDir               string
	StabilityCheckInterval time.Duration // 每次检查的间隔，同时作为事件去抖延迟
	StabilityQuietDuration time.Duration // 文件在多长时间内没有变化才算稳定
	StabilityMaxWait       time.Duration // 最长等待文件稳定的时间
}

// Batcher 执行一批任务，由 pipeline.Pipeline 实现
type Batcher interface {
	Ready() bool
	Run(ctx context.Context, batch []jobs.Job, opts jobs.Options) []pipeline.Outcome
}

// OptionsFunc 返回当前的转换选项，每个文件处理时读取一次
type OptionsFunc func() jobs.Options

// TaskScheduler 负责调度收件箱文件的转换任务
type TaskScheduler struct {
	cfg               Config
	store             database.FileStore
	batcher           Batcher
	options           OptionsFunc
	logger            *zap.Logger
	scanMutex         sync.Mutex // 保证同一时间只转换一个文件
	pendingScans      map[string]*time.Timer
	pendingScansMutex sync.Mutex // 保护 pendingScans map
	ctx               context.Context
	wg                sync.WaitGroup
}

// NewTaskScheduler 创建一个新的 TaskScheduler 实例
func NewTaskScheduler(
	ctx context.Context,
	cfg Config,
	store database.FileStore,
	batcher Batcher,
	options OptionsFunc,
	logger *zap.Logger,
) *TaskScheduler {
	return &TaskScheduler{
		cfg:          cfg,
		store:        store,
		batcher:      batcher,
		options:      options,
		logger:       logger,
		pendingScans: make(map[string]*time.Timer),
		ctx:          ctx,
	}
}

// InitialScan 对收件箱进行初始扫描
func (ts *TaskScheduler) InitialScan() {
	ts.logger.Info("Performing initial scan for unconverted files", zap.String("inbox", ts.cfg.InboxDir))
	entries, err := os.ReadDir(ts.cfg.InboxDir)
	if err != nil {
		ts.logger.Error("Error reading inbox for initial scan", zap.String("inbox", ts.cfg.InboxDir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(ts.cfg.InboxDir, entry.Name())
		if !util.IsRelevantTextFile(path) {
			continue
		}
		processed, err := ts.store.IsFileProcessed(path)
		if err != nil {
			ts.logger.Error("Error checking processed status", zap.String("file", path), zap.Error(err))
		}
		if !processed {
			ts.logger.Debug("Found unconverted file", zap.String("file", path))
			ts.TriggerScan(path)
		}
	}
	ts.logger.Info("Initial scan completed")
}

// TriggerScan 将一个文件添加到延迟处理队列
func (ts *TaskScheduler) TriggerScan(path string) {
	ts.pendingScansMutex.Lock()
	defer ts.pendingScansMutex.Unlock()
	if ts.ctx.Err() != nil {
		return
	}
	// 如果这个文件已经有一个待定的任务，就重置计时器
	if timer, ok := ts.pendingScans[path]; ok {
		if timer.Stop() {
			ts.wg.Done()
		}
	}
	ts.wg.Add(1)
	ts.pendingScans[path] = time.AfterFunc(ts.cfg.StabilityCheckInterval, func() {
		defer ts.wg.Done()
		ts.pendingScansMutex.Lock()
		delete(ts.pendingScans, path)
		ts.pendingScansMutex.Unlock()
		ts.performScan(path)
	})
	ts.logger.Debug("Scheduled conversion", zap.String("file", path), zap.Duration("delay", ts.cfg.StabilityCheckInterval))
}

// Pending 返回等待处理的文件数
func (ts *TaskScheduler) Pending() int {
	ts.pendingScansMutex.Lock()
	defer ts.pendingScansMutex.Unlock()
	return len(ts.pendingScans)
}

// Wait 停止所有待定任务并等待正在进行的转换结束，应在 ctx 结束后调用
func (ts *TaskScheduler) Wait() {
	ts.pendingScansMutex.Lock()
	for path, timer := range ts.pendingScans {
		if timer.Stop() {
			ts.wg.Done()
		}
		delete(ts.pendingScans, path)
	}
	ts.pendingScansMutex.Unlock()
	ts.wg.Wait()
}

// performScan 等待文件稳定后把它作为单个任务的批次执行
func (ts *TaskScheduler) performScan(path string) {
	ts.scanMutex.Lock()
	defer ts.scanMutex.Unlock()
	if ts.ctx.Err() != nil {
		return
	}

	stable, exists := ts.waitForFileStability(path)
	if !exists {
		ts.logger.Debug("File disappeared before conversion", zap.String("file", path))
		return
	}
	if !stable {
		ts.logger.Info("File is still changing, rescheduling", zap.String("file", path))
		ts.TriggerScan(path)
		return
	}
	processed, err := ts.store.IsFileProcessed(path)
	if err != nil {
		// 即使出错也尝试处理，避免遗漏
		ts.logger.Error("Error checking processed status", zap.String("file", path), zap.Error(err))
	}
	if processed {
		ts.logger.Debug("File already converted, skipping", zap.String("file", path))
		return
	}
	if !ts.batcher.Ready() {
		ts.logger.Info("Engine not ready, rescheduling", zap.String("file", path))
		ts.TriggerScan(path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		ts.logger.Error("Error reading file", zap.String("file", path), zap.Error(err))
		return
	}
	job := jobs.NewFileJob(filepath.Base(path), data)
	outcomes := ts.batcher.Run(ts.ctx, []jobs.Job{job}, ts.options())
	if len(outcomes) == 0 {
		// 批次被跳过或被中止，下次启动时重新处理
		return
	}
	outcome := outcomes[0]
	if outcome.Err != nil && errors.Is(outcome.Err, pipeline.ErrDelivery) {
		// 交付失败可以重试，不标记为已处理
		return
	}
	// 成功、跳过与无法解码的文件都不再重复处理
	if err := ts.store.AddProcessedFile(path); err != nil {
		ts.logger.Error("Error marking file as converted", zap.String("file", path), zap.Error(err))
	}
}

// waitForFileStability 检查文件大小和修改时间是否在静默期内保持不变
func (ts *TaskScheduler) waitForFileStability(path string) (stable, exists bool) {
	var prev fileInfo
	var quietSince time.Time
	start := time.Now()
	for time.Since(start) < ts.cfg.StabilityMaxWait {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, false
			}
			ts.logger.Error("Error getting file info", zap.String("file", path), zap.Error(err))
		} else {
			now := time.Now()
			cur := fileInfo{Size: info.Size(), ModTime: info.ModTime()}
			if quietSince.IsZero() || cur.Size != prev.Size || !cur.ModTime.Equal(prev.ModTime) {
				prev = cur
				quietSince = now
			} else if now.Sub(quietSince) >= ts.cfg.StabilityQuietDuration {
				return true, true
			}
		}
		select {
		case <-ts.ctx.Done():
			return false, true
		case <-time.After(ts.cfg.StabilityCheckInterval):
		}
	}
	ts.logger.Warn("Max wait time for stability exceeded", zap.String("file", path), zap.Duration("quiet", ts.cfg.StabilityQuietDuration))
	return false, true
}

// Watch 监听收件箱直到 ctx 结束
func (ts *TaskScheduler) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(ts.cfg.InboxDir); err != nil {
		return err
	}
	ts.logger.Info("Monitoring inbox for new files", zap.String("inbox", ts.cfg.InboxDir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ts.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ts.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (ts *TaskScheduler) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	// 只关注收件箱下的直接文件
	if filepath.Dir(event.Name) != filepath.Clean(ts.cfg.InboxDir) {
		return
	}
	if util.IsDirectory(event.Name) || !util.IsRelevantTextFile(event.Name) {
		return
	}
	ts.logger.Debug("Watcher event", zap.String("op", event.Op.String()), zap.String("file", event.Name))
	ts.TriggerScan(event.Name)
}

type fileInfo struct {
	Size    int64
	ModTime time.Time
}
