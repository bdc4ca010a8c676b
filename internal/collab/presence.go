package collab

import (
	"strconv"
	"sync"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// colorPalette 是参与者颜色的固定调色板。颜色由参与者 ID 确定性推导，
// 同一个用户在任何进程、任何会话中始终渲染为同一颜色，无需服务端分配。
var colorPalette = []string{
	"#2CA6A4", // Teal
	"#C86E5A", // Terracotta
	"#6366f1", // Indigo
	"#f59e0b", // Amber
	"#10b981", // Emerald
	"#8b5cf6", // Violet
	"#f97316", // Orange
	"#06b6d4", // Cyan
}

// ResolveColor 把参与者 ID 确定性地哈希到调色板中的一个颜色。
// 纯函数：相同 ID 永远得到相同颜色。哈希按 ID 的十进制字符串逐字符计算
// h = h*31 + c（32 位回绕），与前端使用的算法保持一致。
func ResolveColor(participantID uint) string {
	s := strconv.FormatUint(uint64(participantID), 10)
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return colorPalette[int(h)%len(colorPalette)]
}

// PresenceRegistry 维护一个房间当前在线的参与者集合。
// 它是一个显式构造的、按房间划分的对象，没有任何隐藏的单例；
// 生命周期由持有它的会话负责（join 时创建，leave 时丢弃）。
// 纯内存组件，没有失败模式：参与者不存在是合法状态而不是错误。
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[uint]domain.Participant
	order   []uint // 插入顺序，保证 Snapshot 的顺序稳定（顺序本身没有语义）
	version uint64
}

// NewPresenceRegistry 创建一个空的参与者注册表。
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[uint]domain.Participant),
	}
}

// Upsert 插入或整体替换以参与者 ID 为键的条目。
// 没有部分合并——每次更新都是该参与者在线状态字段的完整快照。
// 每次调用都会递增版本号，消费方可据此检测 "有变化" 而无需深度比较。
func (r *PresenceRegistry) Upsert(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.entries[p.ID] = p
	r.version++
}

// Remove 移除指定参与者。用于显式离开和传输层的掉线信号。
// 移除不存在的参与者是空操作（但仍然合法）。
func (r *PresenceRegistry) Remove(participantID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[participantID]; !exists {
		return
	}
	delete(r.entries, participantID)
	for i, id := range r.order {
		if id == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.version++
}

// Snapshot 返回当前全量参与者集合的副本，顺序为插入顺序。
func (r *PresenceRegistry) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Get 返回指定参与者的当前状态。
func (r *PresenceRegistry) Get(participantID uint) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[participantID]
	return p, ok
}

// Version 返回注册表的版本计数器。任何 Upsert/Remove 都会使其递增。
func (r *PresenceRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Len 返回当前在线参与者数量。
func (r *PresenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
