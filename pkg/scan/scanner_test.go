package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotmod/pkg/bus"
)

type fakeHistory struct {
	mu     sync.Mutex
	latest []bus.ObservedMessage
	after  map[string][]bus.ObservedMessage
	calls  []string
	err    error
}

func (f *fakeHistory) Latest(_ context.Context, channelID string, limit int) ([]bus.ObservedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("latest:%s:%d", channelID, limit))
	if f.err != nil {
		return nil, f.err
	}
	return append([]bus.ObservedMessage(nil), f.latest...), nil
}

func (f *fakeHistory) After(_ context.Context, channelID, afterID string, limit int) ([]bus.ObservedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("after:%s:%s:%d", channelID, afterID, limit))
	if f.err != nil {
		return nil, f.err
	}
	return append([]bus.ObservedMessage(nil), f.after[afterID]...), nil
}

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func message(id string, offset time.Duration) bus.ObservedMessage {
	return bus.ObservedMessage{Channel: "discord", MessageID: id, AuthorID: "u1", Content: "msg " + id, Timestamp: t0.Add(offset)}
}

func consumeAll(mb *bus.MessageBus) []bus.ObservedMessage {
	var out []bus.ObservedMessage
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		m, ok := mb.ConsumeInbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func ids(msgs []bus.ObservedMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID
	}
	return out
}

func TestScanOnce_FirstPassThenCursor(t *testing.T) {
	hist := &fakeHistory{
		// newest first, as chat APIs return them
		latest: []bus.ObservedMessage{message("3", 3*time.Second), message("1", time.Second), message("2", 2*time.Second)},
		after: map[string][]bus.ObservedMessage{
			"3": {message("5", 5*time.Second), message("4", 4*time.Second)},
		},
	}
	mb := bus.NewMessageBus()
	defer mb.Close()
	s := NewScanner(hist, mb, []string{"c1"}, time.Second)

	n, err := s.ScanOnce(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "3", s.Cursor("c1"))

	got := consumeAll(mb)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
	for _, m := range got {
		assert.Equal(t, bus.OriginScan, m.Origin)
		assert.Equal(t, "c1", m.ChannelID)
	}

	n, err = s.ScanOnce(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "5", s.Cursor("c1"))
	assert.Equal(t, []string{"4", "5"}, ids(consumeAll(mb)))

	// nothing new keeps the cursor
	n, err = s.ScanOnce(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "5", s.Cursor("c1"))

	assert.Equal(t, []string{"latest:c1:20", "after:c1:3:50", "after:c1:5:50"}, hist.calls)
}

func TestScanOnce_ErrorKeepsCursor(t *testing.T) {
	hist := &fakeHistory{err: errors.New("rate limited")}
	mb := bus.NewMessageBus()
	defer mb.Close()
	s := NewScanner(hist, mb, []string{"c1"}, time.Second)

	_, err := s.ScanOnce(context.Background(), "c1")
	assert.Error(t, err)
	assert.Empty(t, s.Cursor("c1"))
}

func TestNewScanner_IntervalFloor(t *testing.T) {
	s := NewScanner(&fakeHistory{}, bus.NewMessageBus(), nil, time.Second)
	assert.Equal(t, MinInterval, s.Interval())

	s = NewScanner(&fakeHistory{}, bus.NewMessageBus(), nil, time.Minute)
	assert.Equal(t, time.Minute, s.Interval())
}

func TestStartStop_NoChannels(t *testing.T) {
	s := NewScanner(&fakeHistory{}, bus.NewMessageBus(), nil, time.Minute)
	s.Start(context.Background())
	s.Stop()
}

func TestStartStop_PerChannelLoops(t *testing.T) {
	hist := &fakeHistory{}
	s := NewScanner(hist, bus.NewMessageBus(), []string{"c1", "c2"}, time.Minute)
	s.Start(context.Background())
	s.Stop()

	hist.mu.Lock()
	defer hist.mu.Unlock()
	assert.Empty(t, hist.calls, "first pass waits one interval")
}
