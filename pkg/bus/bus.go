package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize = 100
	publishTimeout    = 100 * time.Millisecond
)

// MessageBus carries observed messages to the moderator and enforcements
// back to the channels. Publishing never blocks for longer than
// publishTimeout; overflow is dropped and counted.
type MessageBus struct {
	inbound  chan ObservedMessage
	outbound chan Enforcement
	closed   bool
	dropped  droppedCounters
	mu       sync.RWMutex
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan ObservedMessage, size),
		outbound: make(chan Enforcement, size),
	}
}

func (mb *MessageBus) PublishInbound(msg ObservedMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- msg:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
		case <-timer.C:
			mb.dropped.inbound.Add(1)
			droppedMessages.WithLabelValues("inbound").Inc()
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (ObservedMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return ObservedMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return ObservedMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg Enforcement) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.outbound <- msg:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.outbound <- msg:
		case <-timer.C:
			mb.dropped.outbound.Add(1)
			droppedMessages.WithLabelValues("outbound").Inc()
		}
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (Enforcement, bool) {
	select {
	case msg, ok := <-mb.outbound:
		if !ok {
			return Enforcement{}, false
		}
		return msg, true
	case <-ctx.Done():
		return Enforcement{}, false
	}
}

// Pending reports how many messages wait in each queue.
func (mb *MessageBus) Pending() (inbound, outbound int) {
	return len(mb.inbound), len(mb.outbound)
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.inbound.Load()
}

func (mb *MessageBus) DroppedOutbound() uint64 {
	return mb.dropped.outbound.Load()
}
