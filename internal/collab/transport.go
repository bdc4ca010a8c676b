package collab

import (
	"context"
	"strconv"
	"time"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// 实时通道中的事件类型。入站 payload 在传输层边界被解析校验一次，
// 核心内部只处理这个封闭的标签变体，不再信任松散的 JSON 形状。
const (
	EventPresenceSync = "presence_sync" // 携带主题当前全量的在线状态集合
	EventPeerJoined   = "peer_joined"   // 有参与者开始跟踪在线状态
	EventPeerLeft     = "peer_left"     // 参与者离开（显式退出或传输超时）
	EventCodeChange   = "code-change"   // 文件内容整体快照广播
	EventChatMessage  = "chat-message"  // 聊天消息实时投递
	EventFileChanged  = "file-changed"  // 存储层变更通知（非本地写入触发 resync）
)

// PresenceState 是参与者通过通道跟踪的在线状态快照。
// 每次 Track 都是完整快照而不是增量。
type PresenceState struct {
	Name     string                   `json:"name"`
	Color    string                   `json:"color"`
	Status   domain.ParticipantStatus `json:"status"`
	OnlineAt time.Time                `json:"online_at"`
	Cursor   *domain.CursorPosition   `json:"cursor,omitempty"`
}

// PresenceEntry 将参与者 key（认证用户 ID）与其状态快照配对。
type PresenceEntry struct {
	Key   uint          `json:"key"`
	State PresenceState `json:"state"`
}

// Event 是传输层交付给会话的已解析事件。
// Type 决定哪些字段有效。
type Event struct {
	Type      string
	Presences []PresenceEntry     // EventPresenceSync: 全量集合
	PeerKey   uint                // EventPeerJoined / EventPeerLeft
	Presence  *PresenceState      // EventPeerJoined
	Operation *domain.Operation   // EventCodeChange
	Message   *domain.ChatMessage // EventChatMessage
	FileID    string              // EventFileChanged，可能为空表示整个房间
}

// Subscription 表示对一个主题的活跃订阅。
type Subscription interface {
	// Events 返回已解析事件流。订阅关闭后通道被关闭。
	// 传输层可能把本会话自己发布的广播原样回送（Redis Pub/Sub 不对
	// 发布者做过滤），消费方按发起者 ID / 消息 ID 幂等处理。
	Events() <-chan Event

	// Ready 是一次性的确认通道：nil 表示订阅已建立，
	// 非 nil 表示建立失败。
	Ready() <-chan error

	// Close 结束订阅并撤销在线状态跟踪。幂等。
	Close() error
}

// ChannelTransport 抽象了一个命名的发布/订阅主题，支持在线状态事件
// 和任意广播消息。协作核心只通过这个窄接口依赖外部实时传输
// （当前实现基于 Redis Pub/Sub，见 internal/infra/transport/redis）。
type ChannelTransport interface {
	// Subscribe 订阅主题并以 state 开始跟踪 key 的在线状态。
	Subscribe(ctx context.Context, topic string, key uint, state PresenceState) (Subscription, error)

	// Publish 向主题广播一个事件。
	Publish(ctx context.Context, topic string, eventType string, payload []byte) error

	// Track 更新 key 在主题上的在线状态（完整快照）。
	Track(ctx context.Context, topic string, key uint, state PresenceState) error
}

// Topic 返回房间对应的通道主题名。
func Topic(roomID uint) string {
	return "room_" + strconv.FormatUint(uint64(roomID), 10)
}
