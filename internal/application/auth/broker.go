package auth

import (
	"sync"
	"sync/atomic"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/pkg/metrics"
)

// SubscriptionKey 订阅范围：已登录用户按 UserID，登录完成前按 ClientKey
type SubscriptionKey struct {
	UserID    string
	ClientKey string
}

// Subscription 一次会话变更订阅，Cancel 可重复调用
type Subscription struct {
	id        uint64
	broker    *Broker
	callback  func(*entity.SessionEvent)
	clientKey string
	userID    atomic.Pointer[string]
	identity  atomic.Pointer[entity.Identity]

	// 恢复事件投递前到达的事件先缓存，保证恢复事件最先送达
	deliverMu sync.Mutex
	mu        sync.Mutex
	primed    bool
	pending   []*entity.SessionEvent

	once sync.Once
	done chan struct{}
}

// Identity 返回订阅方当前身份，未登录时为 nil
func (s *Subscription) Identity() *entity.Identity {
	return s.identity.Load()
}

// Done 订阅取消后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel 取消订阅
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.remove(s.id)
		close(s.done)
	})
}

func (s *Subscription) matches(event *entity.SessionEvent) bool {
	if uid := s.userID.Load(); uid != nil && *uid != "" && *uid == event.UserID {
		return true
	}
	return s.clientKey != "" && s.clientKey == event.ClientKey
}

// prime 投递恢复事件，再按到达顺序补发期间缓存的事件
func (s *Subscription) prime(restored *entity.SessionEvent) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.deliver(restored)
	for {
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		if len(pending) == 0 {
			s.primed = true
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		for _, event := range pending {
			s.deliver(event)
		}
	}
}

func (s *Subscription) receive(event *entity.SessionEvent) {
	s.mu.Lock()
	if !s.primed {
		s.pending = append(s.pending, event)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.deliver(event)
}

// deliver 整体替换身份缓存后回调
func (s *Subscription) deliver(event *entity.SessionEvent) {
	if event.Identity != nil {
		id := *event.Identity
		s.identity.Store(&id)
		uid := id.ID
		s.userID.Store(&uid)
	} else if event.Type == entity.SessionEventSignedOut {
		s.identity.Store(nil)
	}
	s.callback(event)
}

// Broker 进程内会话事件分发
type Broker struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]*Subscription
}

// NewBroker 创建事件分发器
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*Subscription)}
}

// Subscribe 注册订阅
func (b *Broker) Subscribe(key SubscriptionKey, callback func(*entity.SessionEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	sub := &Subscription{
		id:        b.next,
		broker:    b,
		callback:  callback,
		clientKey: key.ClientKey,
		done:      make(chan struct{}),
	}
	uid := key.UserID
	sub.userID.Store(&uid)
	b.subs[sub.id] = sub
	metrics.SessionSubscribers.Inc()
	return sub
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		metrics.SessionSubscribers.Dec()
	}
}

// Dispatch 把事件投递给匹配的订阅，回调在锁外执行
func (b *Broker) Dispatch(event *entity.SessionEvent) int {
	b.mu.RLock()
	matched := make([]*Subscription, 0, 4)
	for _, sub := range b.subs {
		if sub.matches(event) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.receive(event)
	}
	return len(matched)
}

// Len 当前订阅数
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
