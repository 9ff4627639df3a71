package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/logger"
)

const (
	// InitialFetch is how many of the latest messages the first pass reads.
	InitialFetch = 20
	// FollowFetch caps each later pass, which reads after the cursor.
	FollowFetch = 50

	MinInterval = 5 * time.Second
)

// ChannelHistory reads past messages from a chat channel. Implementations
// drop bot and webhook messages.
type ChannelHistory interface {
	Latest(ctx context.Context, channelID string, limit int) ([]bus.ObservedMessage, error)
	After(ctx context.Context, channelID, afterID string, limit int) ([]bus.ObservedMessage, error)
}

// Scanner periodically backfills configured channels onto the bus so that
// messages missed by the live gateway are still moderated. Each channel has
// its own goroutine and cursor.
type Scanner struct {
	history  ChannelHistory
	bus      *bus.MessageBus
	channels []string
	interval time.Duration

	mu      sync.Mutex
	cursors map[string]string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScanner(history ChannelHistory, mb *bus.MessageBus, channels []string, interval time.Duration) *Scanner {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Scanner{
		history:  history,
		bus:      mb,
		channels: channels,
		interval: interval,
		cursors:  make(map[string]string),
	}
}

func (s *Scanner) Interval() time.Duration {
	return s.interval
}

// Start launches one ticker per channel. The first pass runs one interval
// after start.
func (s *Scanner) Start(ctx context.Context) {
	if len(s.channels) == 0 {
		logger.InfoC("scan", "No scan channels configured")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, channelID := range s.channels {
		s.wg.Add(1)
		go s.loop(runCtx, channelID)
	}
	logger.InfoCF("scan", "Channel scanner started", map[string]any{
		"channels": len(s.channels),
		"interval": s.interval.String(),
	})
}

func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) loop(ctx context.Context, channelID string) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx, channelID); err != nil && ctx.Err() == nil {
				scanErrors.Inc()
				logger.WarnCF("scan", "Channel scan failed", map[string]any{
					"channel_id": channelID,
					"error":      err.Error(),
				})
			}
		}
	}
}

// ScanOnce runs a single pass over channelID and returns how many messages
// were published.
func (s *Scanner) ScanOnce(ctx context.Context, channelID string) (int, error) {
	cursor := s.Cursor(channelID)

	var (
		msgs []bus.ObservedMessage
		err  error
	)
	if cursor == "" {
		msgs, err = s.history.Latest(ctx, channelID, InitialFetch)
	} else {
		msgs, err = s.history.After(ctx, channelID, cursor, FollowFetch)
	}
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	for _, m := range msgs {
		m.Origin = bus.OriginScan
		if m.ChannelID == "" {
			m.ChannelID = channelID
		}
		s.bus.PublishInbound(m)
	}
	scannedMessages.Add(float64(len(msgs)))

	newest := msgs[len(msgs)-1]
	s.mu.Lock()
	s.cursors[channelID] = newest.MessageID
	s.mu.Unlock()

	logger.DebugCF("scan", "Channel scanned", map[string]any{
		"channel_id": channelID,
		"messages":   len(msgs),
		"cursor":     newest.MessageID,
	})
	return len(msgs), nil
}

// Cursor returns the ID of the newest message seen in channelID, or "".
func (s *Scanner) Cursor(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[channelID]
}
