package collab_test

import (
	"context"
	"sync"

	"github.com/keshav-const/inkwell-code/internal/collab"
)

// fakeSubscription 是测试用的进程内订阅：事件由测试代码直接注入。
type fakeSubscription struct {
	events chan collab.Event
	ready  chan error

	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func (s *fakeSubscription) Events() <-chan collab.Event { return s.events }
func (s *fakeSubscription) Ready() <-chan error         { return s.ready }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.events)
	})
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver 向订阅注入一个事件。关闭后的订阅静默丢弃。
func (s *fakeSubscription) deliver(ev collab.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

type trackCall struct {
	Topic string
	Key   uint
	State collab.PresenceState
}

type publishCall struct {
	Topic   string
	Event   string
	Payload []byte
}

// fakeTransport 是测试用的进程内传输层。
// 记录所有 Track/Publish 调用，订阅确认立即成功，除非设置了错误注入字段。
type fakeTransport struct {
	mu        sync.Mutex
	subs      []*fakeSubscription
	tracks    []trackCall
	publishes []publishCall

	subscribeErr error // Subscribe 直接失败
	ackErr       error // 订阅确认失败
	ackHang      bool  // 不发送确认，模拟挂起的握手
	publishErr   error // Publish 失败
	trackErr     error // Track 失败
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Subscribe(ctx context.Context, topic string, key uint, state collab.PresenceState) (collab.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return nil, t.subscribeErr
	}
	sub := &fakeSubscription{
		events: make(chan collab.Event, 32),
		ready:  make(chan error, 1),
	}
	if !t.ackHang {
		sub.ready <- t.ackErr
	}
	t.subs = append(t.subs, sub)
	return sub, nil
}

func (t *fakeTransport) Publish(ctx context.Context, topic string, eventType string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publishErr != nil {
		return t.publishErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.publishes = append(t.publishes, publishCall{Topic: topic, Event: eventType, Payload: cp})
	return nil
}

func (t *fakeTransport) Track(ctx context.Context, topic string, key uint, state collab.PresenceState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trackErr != nil {
		return t.trackErr
	}
	t.tracks = append(t.tracks, trackCall{Topic: topic, Key: key, State: state})
	return nil
}

// lastSub 返回最近一次 Subscribe 产生的订阅。
func (t *fakeTransport) lastSub() *fakeSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	return t.subs[len(t.subs)-1]
}

func (t *fakeTransport) trackCalls() []trackCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]trackCall, len(t.tracks))
	copy(out, t.tracks)
	return out
}

func (t *fakeTransport) publishCalls() []publishCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]publishCall, len(t.publishes))
	copy(out, t.publishes)
	return out
}

// notifyRecorder 收集协作核心发出的通知。
type notifyRecorder struct {
	mu            sync.Mutex
	notifications []collab.Notification
}

func (r *notifyRecorder) fn() collab.Notifier {
	return func(n collab.Notification) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.notifications = append(r.notifications, n)
	}
}

func (r *notifyRecorder) all() []collab.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]collab.Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

func (r *notifyRecorder) countKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notif := range r.notifications {
		if notif.Kind == kind {
			n++
		}
	}
	return n
}
