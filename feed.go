package minter

import (
	"sync"
	"sync/atomic"
)

// Feed fans attempt snapshots out to subscribers. Each subscriber has its own
// buffered channel; a subscriber that falls behind drops its oldest update.
type Feed[T any] interface {
	On(func(message T)) (cleanup func())
	Broadcast(message T)
	Subscribers() int
	Close()
}

const feedBufferSize = 32

type subscriber[T any] struct {
	id       int
	messages chan T
	callback func(message T)
}

type feed[T any] struct {
	subscribers      map[int]*subscriber[T]
	nextSubscriberID int
	mu               sync.RWMutex
	closed           atomic.Bool
}

func NewFeed[T any]() Feed[T] {
	return &feed[T]{
		subscribers: make(map[int]*subscriber[T]),
	}
}

func (f *feed[T]) On(callback func(message T)) (cleanup func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed.Load() {
		return func() {}
	}

	id := f.nextSubscriberID
	f.nextSubscriberID++

	sub := &subscriber[T]{
		id:       id,
		messages: make(chan T, feedBufferSize),
		callback: callback,
	}
	f.subscribers[id] = sub

	go func() {
		for msg := range sub.messages {
			sub.callback(msg)
		}
	}()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s, exists := f.subscribers[id]; exists {
			delete(f.subscribers, id)
			close(s.messages)
		}
	}
}

func (f *feed[T]) Broadcast(message T) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed.Load() {
		return
	}

	for _, sub := range f.subscribers {
		select {
		case sub.messages <- message:
			continue
		default:
		}

		// Full: drop the oldest so the latest state always gets through.
		select {
		case <-sub.messages:
		default:
		}
		select {
		case sub.messages <- message:
		default:
			log.Debug().Msgf("feed subscriber %d dropped update", sub.id)
		}
	}
}

func (f *feed[T]) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *feed[T]) Close() {
	if f.closed.Swap(true) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subscribers {
		close(sub.messages)
	}
	f.subscribers = make(map[int]*subscriber[T])
}
