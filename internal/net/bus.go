package net

import (
	"fmt"
	"sync"

	"LessonBoard/internal/protocol"
)

// Bus is an in-process Transport. Publishing to a room send channel delivers
// synchronously to the subscribers of its topic, the same routing the hub
// applies. It does not validate payloads.
type Bus struct {
	mu  sync.Mutex
	reg registry
}

func NewBus() *Bus {
	return &Bus{reg: newRegistry()}
}

func (b *Bus) Subscribe(channel string, h Handler) func() {
	b.mu.Lock()
	id, _ := b.reg.add(channel, h)
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.reg.remove(channel, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(channel string, payload []byte) error {
	topic, ok := protocol.TopicFor(channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnroutable, channel)
	}
	b.mu.Lock()
	hs := b.reg.handlers(topic)
	b.mu.Unlock()
	for _, h := range hs {
		h(append([]byte(nil), payload...))
	}
	return nil
}

// Subscriptions counts live handlers across all channels.
func (b *Bus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, hs := range b.reg.subs {
		n += len(hs)
	}
	return n
}
