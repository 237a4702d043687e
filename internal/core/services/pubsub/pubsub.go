// Package pubsub типизированный канал "один издатель - много подписчиков".
// Доставка неблокирующая: если буфер подписчика заполнен, сообщение отбрасывается и учитывается в Dropped.
package pubsub

import (
	"sync"
	"sync/atomic"
)

type Topic[T any] struct {
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	closed  bool
	dropped atomic.Uint64
}

type Subscription[T any] struct {
	topic *Topic[T]
	ch    chan T
	once  sync.Once
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe регистрирует подписчика с буфером buffer.
// Для закрытого топика возвращается подписка с уже закрытым каналом.
func (t *Topic[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 0 {
		buffer = 0
	}

	sub := &Subscription[T]{
		topic: t,
		ch:    make(chan T, buffer),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}

	t.subs[sub] = struct{}{}
	return sub
}

// Publish рассылает значение всем текущим подписчикам и возвращает число доставок.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return 0
	}

	delivered := 0
	for sub := range t.subs {
		select {
		case sub.ch <- v:
			delivered++
		default:
			t.dropped.Add(1)
		}
	}

	return delivered
}

func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

func (t *Topic[T]) Dropped() uint64 {
	return t.dropped.Load()
}

// Close отписывает всех и закрывает их каналы. Повторный вызов безопасен.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	for sub := range t.subs {
		delete(t.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Unsubscribe идемпотентен, после него канал C закрыт.
func (s *Subscription[T]) Unsubscribe() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()

	delete(s.topic.subs, s)
	s.once.Do(func() { close(s.ch) })
}
