package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// SessionState 表示会话状态机的状态。
// 流转：Idle → Joining → Active → Closed；
// Active → Joining 只能通过显式的 Join 调用（重新加入）；
// Joining → Idle 发生在连接失败时（本层不做自动重试，由调用方决定）。
type SessionState int32

const (
	StateIdle SessionState = iota
	StateJoining
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	// joinAckTimeout 是 Join 等待传输层订阅确认的上限，超过即失败而不是无限挂起。
	joinAckTimeout = 10 * time.Second
	// cursorInterval 是光标广播的节流窗口：每个会话每窗口至多发出一次。
	cursorInterval = 100 * time.Millisecond
)

// Session 把一个 (房间, 参与者) 绑定到一次传输层订阅上，负责维持
// PresenceRegistry 与出站光标广播的流动，并把入站事件分发给
// FileSyncEngine 和 ChatStream。
//
// 会话事件循环是单线程的：同一房间的 presence 与文件同步回调顺序执行、
// 互不交错，因此核心状态无需额外的跨回调锁。
type Session struct {
	transport ChannelTransport
	registry  *PresenceRegistry
	files     *FileSyncEngine
	chat      *ChatStream

	roomID   uint
	topic    string
	userID   uint
	userName string
	color    string
	notify   Notifier

	throttle *cursorThrottle

	mu         sync.Mutex
	state      SessionState
	generation uint64 // 代数守卫：Leave/Join 递增，过期的在途调用结果被作废
	sub        Subscription
	cursor     *domain.CursorPosition
	status     domain.ParticipantStatus
}

// NewSession 创建一个尚未加入任何主题的会话（Idle 状态）。
// files 和 chat 可以为 nil（例如仅关注 presence 的轻量会话）。
// 会话自己持有 PresenceRegistry：join 时填充，leave 后随会话一起丢弃，
// 没有任何全局共享的注册表。
func NewSession(transport ChannelTransport, files *FileSyncEngine, chat *ChatStream, roomID uint, userID uint, userName string, notify Notifier) *Session {
	if transport == nil {
		panic("ChannelTransport cannot be nil for Session")
	}
	if notify == nil {
		notify = func(Notification) {}
	}
	s := &Session{
		transport: transport,
		registry:  NewPresenceRegistry(),
		files:     files,
		chat:      chat,
		roomID:    roomID,
		topic:     Topic(roomID),
		userID:    userID,
		userName:  userName,
		color:     ResolveColor(userID),
		notify:    notify,
		state:     StateIdle,
		status:    domain.StatusOnline,
	}
	s.throttle = newCursorThrottle(cursorInterval, s.publishCursor)
	return s
}

// Registry 返回会话持有的参与者注册表。
func (s *Session) Registry() *PresenceRegistry { return s.registry }

// Files 返回会话的文件同步引擎，可能为 nil。
func (s *Session) Files() *FileSyncEngine { return s.files }

// Chat 返回会话的聊天流，可能为 nil。
func (s *Session) Chat() *ChatStream { return s.chat }

// State 返回会话当前状态。UI 层据此派生 "已断开" 展示
// （状态不在 Active 时降级显示，而不是崩溃）。
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join 建立到房间主题的订阅并宣告初始在线状态
// （完整快照：名字、计算出的颜色、无光标）。
// 已存在旧订阅时先拆除（幂等的重新加入）。订阅确认等待有 10 秒上限；
// 建立失败返回 ErrConnection 并回到 Idle——错误一定向上暴露，绝不吞掉，
// 也绝不在本层自动重试。
// 成功进入 Active 后立即触发一次文件 resync 和聊天历史种子。
func (s *Session) Join(ctx context.Context) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": s.roomID, "user_id": s.userID})

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.sub != nil {
		// 重新加入：拆掉旧订阅，presence sync 会重新填充注册表。
		_ = s.sub.Close()
		s.sub = nil
	}
	s.generation++
	gen := s.generation
	s.state = StateJoining
	s.cursor = nil
	s.mu.Unlock()

	initial := PresenceState{
		Name:     s.userName,
		Color:    s.color,
		Status:   domain.StatusOnline,
		OnlineAt: time.Now().UTC(),
	}
	sub, err := s.transport.Subscribe(ctx, s.topic, s.userID, initial)
	if err != nil {
		s.failJoin(gen)
		logCtx.WithError(err).Warn("Failed to subscribe to room topic")
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	select {
	case ackErr := <-sub.Ready():
		if ackErr != nil {
			_ = sub.Close()
			s.failJoin(gen)
			logCtx.WithError(ackErr).Warn("Room topic subscription rejected")
			return fmt.Errorf("%w: %v", ErrConnection, ackErr)
		}
	case <-time.After(joinAckTimeout):
		_ = sub.Close()
		s.failJoin(gen)
		logCtx.Warn("Timed out waiting for subscription acknowledgment")
		return fmt.Errorf("%w: subscription acknowledgment timeout", ErrConnection)
	case <-ctx.Done():
		_ = sub.Close()
		s.failJoin(gen)
		return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	}

	s.mu.Lock()
	if gen != s.generation || s.state == StateClosed {
		// 等待确认期间被更新的 Leave/Join 取代，本次结果作废。
		s.mu.Unlock()
		_ = sub.Close()
		return ErrSessionClosed
	}
	s.sub = sub
	s.state = StateActive
	s.mu.Unlock()
	logCtx.Info("Session active on room topic")

	// 自己的条目先行放入注册表；随后的 presence sync 会覆盖为权威快照。
	s.registry.Upsert(domain.Participant{ID: s.userID, Name: s.userName, Color: s.color, Status: domain.StatusOnline})
	s.notifyPresence()

	go s.eventLoop(gen, sub)

	// 进入 Active 即 resync：这是限制重连后分歧时长的正确性兜底。
	if s.files != nil {
		if err := s.files.Resync(ctx); err != nil {
			if !s.isCurrent(gen) {
				return ErrSessionClosed
			}
			// 会话保持 Active，resync 可由调用方重试。
			logCtx.WithError(err).Error("Initial resync failed after join")
			return err
		}
	}
	if s.chat != nil {
		if _, err := s.chat.LoadHistory(ctx); err != nil {
			logCtx.WithError(err).Warn("Failed to seed chat history after join")
		}
	}
	return nil
}

// UpdateCursor 记录本地光标位置并安排广播。
// 节流：每个会话每 100ms 至多发出一次，窗口内的中间位置被合并为最新值，
// 不排队。稳态下的广播失败只记日志并丢弃——presence 是尽力而为的，
// 丢失的光标更新由下一个节流窗口纠正。
func (s *Session) UpdateCursor(line int, column int, fileID string) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.cursor = &domain.CursorPosition{Line: line, Column: column, FileID: fileID}
	s.mu.Unlock()
	s.throttle.Offer(cursorUpdate{Line: line, Column: column, FileID: fileID})
}

// SetStatus 更新本会话参与者的在线状态 (online/away) 并立即广播快照。
func (s *Session) SetStatus(ctx context.Context, status domain.ParticipantStatus) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.status = status
	state := s.presenceStateLocked()
	s.mu.Unlock()

	if err := s.transport.Track(ctx, s.topic, s.userID, state); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": s.roomID, "user_id": s.userID}).
			WithError(err).Warn("Failed to broadcast status change")
	}
}

// Leave 结束订阅，把本地参与者条目从注册表移除，并进入 Closed。幂等。
// 在 Join 或 resync 仍在途时调用也是安全的：代数守卫会作废过期结果。
func (s *Session) Leave() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.generation++
	sub := s.sub
	s.sub = nil
	s.state = StateClosed
	s.mu.Unlock()

	s.throttle.Stop()
	if sub != nil {
		_ = sub.Close()
	}
	s.registry.Remove(s.userID)
	s.notifyPresence()
	logrus.WithFields(logrus.Fields{"room_id": s.roomID, "user_id": s.userID}).Info("Session left room")
}

// --- 内部 ---

// eventLoop 消费订阅事件直到订阅关闭或会话代数变更。
// 同一会话内 presence 快照按接收顺序进入注册表。
func (s *Session) eventLoop(gen uint64, sub Subscription) {
	for ev := range sub.Events() {
		if !s.isCurrent(gen) {
			return
		}
		s.handleEvent(ev)
	}
}

func (s *Session) handleEvent(ev Event) {
	switch ev.Type {
	case EventPresenceSync:
		// 传输层交付的是全量集合：逐条 upsert，再移除集合中不存在的条目。
		// upsert 是幂等的快照替换，因此跨会话的乱序交付是可接受的。
		present := make(map[uint]struct{}, len(ev.Presences))
		for _, entry := range ev.Presences {
			present[entry.Key] = struct{}{}
			s.registry.Upsert(participantFromEntry(entry))
		}
		for _, p := range s.registry.Snapshot() {
			if _, ok := present[p.ID]; !ok {
				s.registry.Remove(p.ID)
			}
		}
		s.notifyPresence()
	case EventPeerJoined:
		if ev.Presence != nil {
			s.registry.Upsert(participantFromEntry(PresenceEntry{Key: ev.PeerKey, State: *ev.Presence}))
			s.notifyPresence()
		}
	case EventPeerLeft:
		s.registry.Remove(ev.PeerKey)
		s.notifyPresence()
	case EventCodeChange:
		if s.files != nil && ev.Operation != nil && ev.Operation.UserID != s.userID {
			s.files.ApplyRemoteOperation(*ev.Operation)
		}
	case EventChatMessage:
		if s.chat != nil && ev.Message != nil {
			s.chat.OnRemoteMessage(*ev.Message)
		}
	case EventFileChanged:
		if s.files != nil {
			if err := s.files.HandleChangeNotification(context.Background(), ev.FileID); err != nil {
				logrus.WithFields(logrus.Fields{"room_id": s.roomID, "file_id": ev.FileID}).
					WithError(err).Warn("Resync after change notification failed")
			}
		}
	default:
		logrus.WithField("event_type", ev.Type).Debug("Session: ignoring unknown event type")
	}
}

// publishCursor 是节流器的发射回调：携带最新光标的完整在线状态快照。
func (s *Session) publishCursor(u cursorUpdate) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.cursor = &domain.CursorPosition{Line: u.Line, Column: u.Column, FileID: u.FileID}
	state := s.presenceStateLocked()
	s.mu.Unlock()

	// 本地注册表同步自己的光标，presence sync 回流时会再次确认。
	s.registry.Upsert(domain.Participant{
		ID: s.userID, Name: s.userName, Color: s.color,
		Status: state.Status, Cursor: state.Cursor,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transport.Track(ctx, s.topic, s.userID, state); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": s.roomID, "user_id": s.userID}).
			WithError(err).Warn("Failed to broadcast cursor update, dropping")
	}
}

func (s *Session) presenceStateLocked() PresenceState {
	return PresenceState{
		Name:     s.userName,
		Color:    s.color,
		Status:   s.status,
		OnlineAt: time.Now().UTC(),
		Cursor:   s.cursor,
	}
}

func (s *Session) failJoin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation && s.state == StateJoining {
		s.state = StateIdle
	}
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Session) notifyPresence() {
	s.notify(Notification{Kind: NotifyPresenceChanged, Participants: s.registry.Snapshot()})
}

// participantFromEntry 把传输层的在线状态条目转换为参与者模型。
func participantFromEntry(entry PresenceEntry) domain.Participant {
	name := entry.State.Name
	if name == "" {
		name = "Anonymous"
	}
	color := entry.State.Color
	if color == "" {
		color = ResolveColor(entry.Key)
	}
	status := entry.State.Status
	if status == "" {
		status = domain.StatusOnline
	}
	return domain.Participant{
		ID:     entry.Key,
		Name:   name,
		Color:  color,
		Status: status,
		Cursor: entry.State.Cursor,
	}
}
