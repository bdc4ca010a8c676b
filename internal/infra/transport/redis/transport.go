package redistransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/collab"
	"github.com/keshav-const/inkwell-code/internal/domain"
)

// 在线状态 Hash 的 TTL。每次 Track 都会刷新；房间长时间无人活动时
// 由 Redis 自行回收，周期清理任务只处理异常残留。
const presenceTTL = 24 * time.Hour

// 清理类命令（取消订阅时的 HDel / peer_left 广播）不依赖调用方 context，
// 用独立的短超时。
const teardownTimeout = 5 * time.Second

// envelope 是 Pub/Sub 频道上的统一消息封装。Key 仅在在线状态事件中有效。
type envelope struct {
	Event   string          `json:"event"`
	Key     uint            `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// filePayload 是 file-changed 事件的载荷。
type filePayload struct {
	FileID string `json:"file_id"`
}

// presenceRecord 是 Hash 中每个参与者条目的存储格式。
// UpdatedAt (Unix 毫秒) 在每次 Track 时刷新，周期清理任务据此
// 识别没有正常注销的残留条目：Hash 的 TTL 被任何活跃成员刷新，
// 单靠 TTL 无法回收个别死条目。
type presenceRecord struct {
	State     collab.PresenceState `json:"state"`
	UpdatedAt int64                `json:"updated_at"`
}

// Transport 是 collab.ChannelTransport 的 Redis 实现：
// 每个主题对应一个 Pub/Sub 频道（广播）和一个 Hash（在线状态权威集合）。
// Track 更新 Hash 并以 peer_joined 广播完整状态快照，对应
// 订阅方收到后对该参与者做整包 upsert。
type Transport struct {
	client    *redis.Client
	keyPrefix string
}

// NewTransport 创建 Redis 传输层实例。
func NewTransport(client *redis.Client, keyPrefix string) *Transport {
	if client == nil {
		panic("redis client cannot be nil for Transport")
	}
	if keyPrefix == "" {
		keyPrefix = "iw:" // 默认前缀 "iw:" (inkwell)
	}
	return &Transport{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (t *Transport) presenceKey(topic string) string {
	return fmt.Sprintf("%stopic:%s:presence", t.keyPrefix, topic)
}

func (t *Transport) pubsubChannel(topic string) string {
	return fmt.Sprintf("%stopic:%s:pubsub", t.keyPrefix, topic)
}

// --- collab.ChannelTransport Implementation ---

// Subscribe 订阅主题并以 state 开始跟踪 key 的在线状态。
// 建立过程异步进行，结果通过 Subscription.Ready 一次性交付：
// 订阅确认 → 写入在线状态 → 广播 peer_joined → 读取全量在线集合
// 并作为首个 presence_sync 事件投递。
func (t *Transport) Subscribe(ctx context.Context, topic string, key uint, state collab.PresenceState) (collab.Subscription, error) {
	pubsub := t.client.Subscribe(ctx, t.pubsubChannel(topic))
	sub := &subscription{
		transport: t,
		topic:     topic,
		key:       key,
		pubsub:    pubsub,
		events:    make(chan collab.Event, 32),
		ready:     make(chan error, 1),
	}
	go sub.establish(ctx, state)
	return sub, nil
}

// Publish 向主题广播一个事件。
func (t *Transport) Publish(ctx context.Context, topic string, eventType string, payload []byte) error {
	env := envelope{Event: eventType, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal envelope for event %s: %w", eventType, err)
	}
	channel := t.pubsubChannel(topic)
	if err := t.client.Publish(ctx, channel, data).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"event":        eventType,
			"payload_size": len(payload),
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish event %s to channel %s: %w", eventType, channel, err)
	}
	return nil
}

// Track 更新 key 在主题上的在线状态（完整快照）并广播。
// 状态更新在线路上复用 peer_joined：载荷始终是整包快照，
// 订阅方收到后整体覆盖该参与者的条目，首次跟踪和后续更新无需区分。
func (t *Transport) Track(ctx context.Context, topic string, key uint, state collab.PresenceState) error {
	if err := t.setPresence(ctx, topic, key, state); err != nil {
		return err
	}
	return t.publishPresence(ctx, topic, collab.EventPeerJoined, key, &state)
}

// --- repository.ChangeNotifier Implementation ---

// NotifyFileChange 把持久化层的文件变更以 file-changed 事件广播到房间主题。
func (t *Transport) NotifyFileChange(ctx context.Context, roomID uint, fileID string) error {
	payload, err := json.Marshal(filePayload{FileID: fileID})
	if err != nil {
		return fmt.Errorf("redis: failed to marshal file change payload: %w", err)
	}
	return t.Publish(ctx, collab.Topic(roomID), collab.EventFileChanged, payload)
}

// SweepStalePresence 扫描全部在线状态 Hash，删除超过 maxAge 未刷新的条目
// 并向相应主题广播 peer_left，让各端的本地注册表收敛。
// 返回清除的条目数。供周期清理任务调用。
func (t *Transport) SweepStalePresence(ctx context.Context, maxAge time.Duration) (int, error) {
	pattern := fmt.Sprintf("%stopic:*:presence", t.keyPrefix)
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0

	iter := t.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		presenceKey := iter.Val()
		topic, ok := t.topicFromPresenceKey(presenceKey)
		if !ok {
			continue
		}
		stateMap, err := t.client.HGetAll(ctx, presenceKey).Result()
		if err != nil {
			logrus.WithField("key", presenceKey).WithError(err).Warn("redis: presence sweep failed to read hash, skipping")
			continue
		}
		for field, raw := range stateMap {
			var record presenceRecord
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				// 无法解析的条目视为残留，直接清除
				record.UpdatedAt = 0
			}
			if record.UpdatedAt > cutoff {
				continue
			}
			key, parseErr := strconv.ParseUint(field, 10, 64)
			if parseErr != nil {
				_ = t.client.HDel(ctx, presenceKey, field).Err()
				continue
			}
			if err := t.removePresence(ctx, topic, uint(key)); err != nil {
				logrus.WithFields(logrus.Fields{"topic": topic, "key": key}).WithError(err).Warn("redis: presence sweep failed to remove entry")
				continue
			}
			if err := t.publishPresence(ctx, topic, collab.EventPeerLeft, uint(key), nil); err != nil {
				logrus.WithFields(logrus.Fields{"topic": topic, "key": key}).WithError(err).Warn("redis: presence sweep failed to broadcast peer_left")
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis: presence sweep scan failed: %w", err)
	}
	return removed, nil
}

// topicFromPresenceKey 从 "<prefix>topic:<topic>:presence" 还原主题名。
func (t *Transport) topicFromPresenceKey(key string) (string, bool) {
	prefix := t.keyPrefix + "topic:"
	const suffix = ":presence"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}

// --- Internal Helpers ---

// setPresence 把状态快照写入在线状态 Hash 并刷新 TTL。
func (t *Transport) setPresence(ctx context.Context, topic string, key uint, state collab.PresenceState) error {
	data, err := json.Marshal(presenceRecord{State: state, UpdatedAt: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence state for key %d: %w", key, err)
	}
	presenceKey := t.presenceKey(topic)
	field := strconv.FormatUint(uint64(key), 10)
	// 用 Pipeline 合并写入和 TTL 刷新，减少网络往返
	pipe := t.client.Pipeline()
	pipe.HSet(ctx, presenceKey, field, data)
	pipe.Expire(ctx, presenceKey, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to set presence for key %d on %s: %w", key, presenceKey, err)
	}
	return nil
}

// removePresence 从在线状态 Hash 中删除参与者。
func (t *Transport) removePresence(ctx context.Context, topic string, key uint) error {
	presenceKey := t.presenceKey(topic)
	field := strconv.FormatUint(uint64(key), 10)
	if err := t.client.HDel(ctx, presenceKey, field).Err(); err != nil {
		return fmt.Errorf("redis: failed to remove presence for key %d on %s: %w", key, presenceKey, err)
	}
	return nil
}

// publishPresence 广播一个在线状态事件（peer_joined / peer_left）。
func (t *Transport) publishPresence(ctx context.Context, topic string, eventType string, key uint, state *collab.PresenceState) error {
	var payload json.RawMessage
	if state != nil {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("redis: failed to marshal presence state for key %d: %w", key, err)
		}
		payload = data
	}
	env := envelope{Event: eventType, Key: key, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence envelope: %w", err)
	}
	channel := t.pubsubChannel(topic)
	if err := t.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish %s to channel %s: %w", eventType, channel, err)
	}
	return nil
}

// presenceSnapshot 读取主题当前的全量在线集合，按 key 升序返回。
func (t *Transport) presenceSnapshot(ctx context.Context, topic string) ([]collab.PresenceEntry, error) {
	presenceKey := t.presenceKey(topic)
	stateMap, err := t.client.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get presence set from %s: %w", presenceKey, err)
	}
	entries := make([]collab.PresenceEntry, 0, len(stateMap))
	for field, raw := range stateMap {
		key, parseErr := strconv.ParseUint(field, 10, 64)
		if parseErr != nil {
			logrus.Warnf("redis: invalid presence field '%s' on %s, skipping", field, presenceKey)
			continue
		}
		var record presenceRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			logrus.Warnf("redis: failed to unmarshal presence record for key %s on %s: %v", field, presenceKey, err)
			continue
		}
		entries = append(entries, collab.PresenceEntry{Key: uint(key), State: record.State})
	}
	// HGetAll 无序，按 key 排序保证快照确定性
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// --- Subscription ---

type subscription struct {
	transport *Transport
	topic     string
	key       uint
	pubsub    *redis.PubSub
	events    chan collab.Event
	ready     chan error
	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Events() <-chan collab.Event { return s.events }
func (s *subscription) Ready() <-chan error         { return s.ready }

// establish 完成订阅握手并启动读循环。任何一步失败都会通过 ready
// 交付错误并关闭底层订阅，由调用方决定是否重试。
func (s *subscription) establish(ctx context.Context, state collab.PresenceState) {
	// 等待 Redis 确认订阅，确认之前发布的消息不会投递到本连接
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.fail(fmt.Errorf("redis: failed to confirm subscription to topic %s: %w", s.topic, err))
		return
	}
	if err := s.transport.setPresence(ctx, s.topic, s.key, state); err != nil {
		s.fail(err)
		return
	}
	if err := s.transport.publishPresence(ctx, s.topic, collab.EventPeerJoined, s.key, &state); err != nil {
		s.fail(err)
		return
	}
	entries, err := s.transport.presenceSnapshot(ctx, s.topic)
	if err != nil {
		s.fail(err)
		return
	}

	// 首个事件必须是全量在线集合，订阅方以此初始化本地注册表；
	// 先入队再启动读循环，保证它排在任何广播消息之前
	s.events <- collab.Event{Type: collab.EventPresenceSync, Presences: entries}
	go s.readLoop()
	s.ready <- nil
}

func (s *subscription) fail(err error) {
	logrus.WithFields(logrus.Fields{"topic": s.topic, "key": s.key}).WithError(err).Warn("Subscription establishment failed")
	_ = s.pubsub.Close()
	close(s.events)
	s.ready <- err
}

// readLoop 把 Pub/Sub 消息解码为 collab.Event 并投递。
// pubsub 关闭后 Channel 被关闭，循环退出并关闭事件通道。
func (s *subscription) readLoop() {
	for msg := range s.pubsub.Channel() {
		ev, ok := s.decode([]byte(msg.Payload))
		if ok {
			s.events <- ev
		}
	}
	close(s.events)
}

// decode 在传输层边界解析并校验入站消息，解析失败的消息丢弃并记日志。
func (s *subscription) decode(data []byte) (collab.Event, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logrus.WithFields(logrus.Fields{"topic": s.topic}).WithError(err).Warn("Discarding malformed channel message")
		return collab.Event{}, false
	}
	switch env.Event {
	case collab.EventPeerJoined:
		var state collab.PresenceState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic, "key": env.Key}).WithError(err).Warn("Discarding malformed presence payload")
			return collab.Event{}, false
		}
		return collab.Event{Type: collab.EventPeerJoined, PeerKey: env.Key, Presence: &state}, true
	case collab.EventPeerLeft:
		return collab.Event{Type: collab.EventPeerLeft, PeerKey: env.Key}, true
	case collab.EventCodeChange:
		var op domain.Operation
		if err := json.Unmarshal(env.Payload, &op); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic}).WithError(err).Warn("Discarding malformed code change payload")
			return collab.Event{}, false
		}
		return collab.Event{Type: collab.EventCodeChange, Operation: &op}, true
	case collab.EventChatMessage:
		var msg domain.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic}).WithError(err).Warn("Discarding malformed chat payload")
			return collab.Event{}, false
		}
		return collab.Event{Type: collab.EventChatMessage, Message: &msg}, true
	case collab.EventFileChanged:
		var p filePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic}).WithError(err).Warn("Discarding malformed file change payload")
			return collab.Event{}, false
		}
		return collab.Event{Type: collab.EventFileChanged, FileID: p.FileID}, true
	default:
		logrus.WithFields(logrus.Fields{"topic": s.topic, "event": env.Event}).Debug("Ignoring unknown channel event")
		return collab.Event{}, false
	}
}

// Close 撤销在线状态跟踪、广播 peer_left 并结束订阅。幂等。
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := s.transport.removePresence(ctx, s.topic, s.key); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic, "key": s.key}).WithError(err).Warn("Failed to remove presence on close")
			s.closeErr = err
		}
		if err := s.transport.publishPresence(ctx, s.topic, collab.EventPeerLeft, s.key, nil); err != nil {
			logrus.WithFields(logrus.Fields{"topic": s.topic, "key": s.key}).WithError(err).Warn("Failed to broadcast peer_left on close")
			if s.closeErr == nil {
				s.closeErr = err
			}
		}
		if err := s.pubsub.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
