package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yuqie6/habtrack/internal/pkg/config"
)

// Watcher 监视数据目录，读数文件续写或新增后触发回调。
// 采集板持续追加写入，单次修改事件会密集出现，按文件去抖。
type Watcher struct {
	cfg      *config.Config
	watcher  *fsnotify.Watcher
	onChange func()

	debounce time.Duration
	mu       sync.Mutex
	timers   map[string]*time.Timer

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWatcher 创建目录监视器，onChange 在去抖窗口静默后被调用
func NewWatcher(cfg *config.Config, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监视器失败: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		watcher:  fw,
		onChange: onChange,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		stopChan: make(chan struct{}),
	}, nil
}

// Start 开始监视数据目录，阻塞直到 ctx 取消或 Stop
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.cfg.Project.DataPath); err != nil {
		return fmt.Errorf("监视数据目录失败: %w", err)
	}
	slog.Info("开始监视数据目录", "path", w.cfg.Project.DataPath, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopChan:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("文件监视错误", "error", err)
		}
	}
}

// Stop 停止监视并释放资源
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()

		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.isDataFile(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[event.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, event.Name)
		w.mu.Unlock()

		slog.Info("检测到读数文件更新", "file", filepath.Base(event.Name))
		w.onChange()
	})
}

// isDataFile 只关心加载器会读取的文件
func (w *Watcher) isDataFile(path string) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".txt") {
		return false
	}
	return strings.HasPrefix(base, w.cfg.Loader.FnamePrefix) || strings.HasPrefix(base, "20")
}
