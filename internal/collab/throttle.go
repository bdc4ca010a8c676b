package collab

import (
	"sync"
	"time"
)

// cursorThrottle 是光标广播的单槽合并节流器。
// 在一个节流窗口内无论收到多少次位置更新，只在窗口结束时发出一次，
// 且只携带最新的位置；中间位置被直接覆盖，不排队。
// 这在快速输入/滚动时限制了广播量，同时把延迟上界控制在一个窗口内。
type cursorThrottle struct {
	interval time.Duration
	emit     func(cursorUpdate)

	mu      sync.Mutex
	pending *cursorUpdate
	timer   *time.Timer
	stopped bool
}

// cursorUpdate 是待广播的光标位置。
type cursorUpdate struct {
	Line   int
	Column int
	FileID string
}

func newCursorThrottle(interval time.Duration, emit func(cursorUpdate)) *cursorThrottle {
	return &cursorThrottle{interval: interval, emit: emit}
}

// Offer 提交一个新的光标位置。只保留最新值；如果当前没有待触发的
// 定时器则启动一个，窗口结束时发出。
func (t *cursorThrottle) Offer(u cursorUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending = &u
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval, t.fire)
	}
}

func (t *cursorThrottle) fire() {
	t.mu.Lock()
	u := t.pending
	t.pending = nil
	t.timer = nil
	stopped := t.stopped
	t.mu.Unlock()
	if u == nil || stopped {
		return
	}
	t.emit(*u)
}

// Stop 停止节流器并丢弃未发出的位置。幂等。
func (t *cursorThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
