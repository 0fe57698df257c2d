package stream

import (
	"sync"
	"sync/atomic"
)

// Message is one published event.
type Message struct {
	Topic   string
	Payload any
}

// Subscription receives the messages of the topics it has joined.
type Subscription struct {
	ch      chan Message
	topics  map[string]struct{}
	dropped atomic.Uint64
}

// C is closed by Hub.Unsubscribe.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Dropped counts messages this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub is a topic-keyed, best-effort broadcaster. Publish never blocks: a
// subscriber whose buffer is full misses the message. Subscribers only see
// messages published after they joined a topic.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given buffer size and initial topics.
func (h *Hub) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		ch:     make(chan Message, buffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Join adds topic to an existing subscription.
func (h *Hub) Join(sub *Subscription, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		sub.topics[topic] = struct{}{}
	}
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers payload to every subscriber of topic that has room for it.
func (h *Hub) Publish(topic string, payload any) {
	msg := Message{Topic: topic, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if _, ok := sub.topics[topic]; !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Dropped is the total number of undelivered messages across subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
