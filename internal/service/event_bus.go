package service

import (
	"fmt"
	"log"
	"sync"

	"osaccount/internal/model"
)

// EventListener 账号事件监听函数
type EventListener func(event model.AccountEvent)

// Subscription 一个订阅，事件按发布顺序逐个投递给监听函数
type Subscription struct {
	Event model.EventType
	Name  string

	listener EventListener
	mu       sync.Mutex
	pending  []model.AccountEvent
	closed   bool
	notify   chan struct{}
	done     chan struct{}
}

func newSubscription(event model.EventType, name string, listener EventListener) *Subscription {
	s := &Subscription{
		Event:    event,
		Name:     name,
		listener: listener,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscription) enqueue(ev model.AccountEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	for range s.notify {
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			s.deliver(ev)
		}
	}
}

func (s *Subscription) deliver(ev model.AccountEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] 事件监听异常: name=%s, event=%s, err=%v", s.Name, ev.Type, r)
		}
	}()
	s.listener(ev)
}

// close 停止接收新事件，已排队的事件仍会投递
func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// Done 订阅关闭且排队事件投递完毕后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// EventBus 账号切换事件总线
type EventBus struct {
	mu   sync.RWMutex
	subs map[model.EventType][]*Subscription
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[model.EventType][]*Subscription)}
}

// On 注册监听，同一名称下可以注册多个监听
func (b *EventBus) On(event model.EventType, name string, listener EventListener) (*Subscription, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrEventNotSupported, event)
	}
	if name == "" || listener == nil {
		return nil, fmt.Errorf("%w: subscriber name and listener are required", ErrInvalidParameters)
	}
	sub := newSubscription(event, name, listener)

	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()

	log.Printf("[DEBUG] 注册事件监听: event=%s, name=%s", event, name)
	return sub, nil
}

// Off 取消监听，sub为nil时取消该名称下的全部监听
func (b *EventBus) Off(event model.EventType, name string, sub *Subscription) error {
	if !event.Valid() {
		return fmt.Errorf("%w: %q", ErrEventNotSupported, event)
	}
	if name == "" {
		return fmt.Errorf("%w: subscriber name is required", ErrInvalidParameters)
	}

	b.mu.Lock()
	kept := b.subs[event][:0]
	var removed []*Subscription
	for _, s := range b.subs[event] {
		if s.Name == name && (sub == nil || s == sub) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	b.subs[event] = kept
	b.mu.Unlock()

	for _, s := range removed {
		s.close()
	}
	log.Printf("[DEBUG] 取消事件监听: event=%s, name=%s, removed=%d", event, name, len(removed))
	return nil
}

// Subscribers 返回事件上名为name的订阅数
func (b *EventBus) Subscribers(event model.EventType, name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs[event] {
		if s.Name == name {
			n++
		}
	}
	return n
}

// Publish 将事件排入每个订阅者的队列
func (b *EventBus) Publish(ev model.AccountEvent) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subs[ev.Type]...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.enqueue(ev)
	}
}

// OnActivating 发布activating事件
func (b *EventBus) OnActivating(localID int) {
	b.Publish(model.AccountEvent{Type: model.EventActivating, LocalID: localID})
}

// OnActivated 发布activate事件
func (b *EventBus) OnActivated(localID int) {
	b.Publish(model.AccountEvent{Type: model.EventActivate, LocalID: localID})
}

// Close 关闭全部订阅
func (b *EventBus) Close() {
	b.mu.Lock()
	all := b.subs
	b.subs = make(map[model.EventType][]*Subscription)
	b.mu.Unlock()
	for _, subs := range all {
		for _, s := range subs {
			s.close()
		}
	}
}
