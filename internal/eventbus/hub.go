package eventbus

import (
	"context"
	"sync"
	"time"
)

// 流水线事件类型
const (
	EventDataLoaded    = "data_loaded"     // 原始读数加载完成
	EventStageComplete = "stage_complete"  // 某个计算阶段落库完成
	EventGhostsDropped = "ghosts_dropped"  // 清洗剔除了幽灵标签
	EventFileChanged   = "file_changed"    // 监视到数据文件更新
	EventRecompute     = "recompute_start" // 增量重算开始
)

type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub 进程内发布订阅，watch 模式下把流水线进度播报给订阅方
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// 慢消费者直接丢弃，避免阻塞计算链路
		}
	}
}

// PublishStage 播报单个阶段完成及其产出行数
func (h *Hub) PublishStage(stage string, rows int64) {
	h.Publish(Event{
		Type: EventStageComplete,
		Data: map[string]any{"stage": stage, "rows": rows},
	})
}

func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}
