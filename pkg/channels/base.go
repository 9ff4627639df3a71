package channels

import (
	"context"
	"sync/atomic"

	"github.com/dotsetgreg/dotmod/pkg/bus"
)

// Channel is a chat platform the moderator watches and acts on.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Enforce(ctx context.Context, e bus.Enforcement) error
	IsRunning() bool
}

type BaseChannel struct {
	bus     *bus.MessageBus
	running atomic.Bool
	name    string
}

func NewBaseChannel(name string, bus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{
		bus:  bus,
		name: name,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// HandleMessage stamps msg with this channel and hands it to the moderator.
func (c *BaseChannel) HandleMessage(msg bus.ObservedMessage) {
	if msg.Content == "" {
		return
	}
	msg.Channel = c.name
	if msg.Origin == "" {
		msg.Origin = bus.OriginLive
	}
	c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
