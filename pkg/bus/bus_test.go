package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		mb.PublishInbound(ObservedMessage{Channel: "test", AuthorID: "u", ChannelID: "c", Content: "msg"})
	}

	mb.PublishInbound(ObservedMessage{Channel: "test", AuthorID: "u", ChannelID: "c", Content: "overflow"})
	if mb.DroppedInbound() != 1 {
		t.Fatalf("expected dropped inbound count 1, got %d", mb.DroppedInbound())
	}
}

func TestMessageBus_PublishOutboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBusSize(2)
	defer mb.Close()

	for i := 0; i < cap(mb.outbound); i++ {
		mb.PublishOutbound(Enforcement{Channel: "test", Kind: EnforceNotice, ChannelID: "c", Content: "msg"})
	}

	mb.PublishOutbound(Enforcement{Channel: "test", Kind: EnforceNotice, ChannelID: "c", Content: "overflow"})
	if mb.DroppedOutbound() != 1 {
		t.Fatalf("expected dropped outbound count 1, got %d", mb.DroppedOutbound())
	}
	if in, out := mb.Pending(); in != 0 || out != 2 {
		t.Fatalf("expected pending 0/2, got %d/%d", in, out)
	}
}

func TestMessageBus_RoundTrip(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	sent := ObservedMessage{Channel: "discord", Origin: OriginScan, MessageID: "m1", Timestamp: time.Unix(100, 0)}
	mb.PublishInbound(sent)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected a message")
	}
	if got != sent {
		t.Fatalf("got %+v, want %+v", got, sent)
	}
}

func TestMessageBus_ConsumeHonoursContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected cancelled consume to return ok=false")
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatalf("expected closed outbound subscribe to return ok=false")
	}

	// publishing after close is a no-op
	mb.PublishInbound(ObservedMessage{})
	mb.PublishOutbound(Enforcement{})
	mb.Close()
}
