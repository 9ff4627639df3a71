package moderator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dotsetgreg/dotmod/pkg/audit"
	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/logger"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
)

const (
	defaultDedupeSize = 4096
	defaultDedupeTTL  = time.Hour
	auditTimeout      = 5 * time.Second
)

// Decider is the part of the engine the moderator drives.
type Decider interface {
	Process(ctx context.Context, msg moderation.Message, weights moderation.ChannelWeights) moderation.Decision
}

// AuditLog receives every decision. Failures are logged and never block
// enforcement.
type AuditLog interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Options struct {
	Bus     *bus.MessageBus
	Engine  Decider
	Audit   AuditLog
	Weights moderation.ChannelWeights
	Routing Routing
	// DedupeSize and DedupeTTL bound the set of recently seen message IDs
	// used to skip messages that arrive both live and through a scan.
	DedupeSize int
	DedupeTTL  time.Duration
	Now        func() time.Time
}

// Moderator consumes observed messages in arrival order, decides on each
// and publishes the resulting enforcements.
type Moderator struct {
	bus     *bus.MessageBus
	engine  Decider
	audit   AuditLog
	weights moderation.ChannelWeights
	routing Routing
	now     func() time.Time

	seenMu sync.Mutex
	seen   *expirable.LRU[string, struct{}]

	processed atomic.Uint64
	running   atomic.Bool
}

func New(opts Options) *Moderator {
	size := opts.DedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}
	ttl := opts.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Moderator{
		bus:     opts.Bus,
		engine:  opts.Engine,
		audit:   opts.Audit,
		weights: opts.Weights,
		routing: opts.Routing,
		now:     now,
		seen:    expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Run blocks until ctx is cancelled or the bus is closed.
func (m *Moderator) Run(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)
	logger.InfoC("moderator", "Moderator loop started")

	for {
		msg, ok := m.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("moderator", "Moderator loop stopped")
			return
		}
		m.Handle(ctx, msg)
	}
}

func (m *Moderator) IsRunning() bool {
	return m.running.Load()
}

// Processed is the number of messages decided since start.
func (m *Moderator) Processed() uint64 {
	return m.processed.Load()
}

// Handle decides on one message and publishes its enforcements. It returns
// false when the message was skipped as a duplicate.
func (m *Moderator) Handle(ctx context.Context, obs bus.ObservedMessage) (moderation.Decision, bool) {
	if m.markSeen(obs) {
		duplicates.WithLabelValues(string(obs.Origin)).Inc()
		return moderation.Decision{}, false
	}

	msg := moderation.Message{
		ID:          obs.MessageID,
		CommunityID: obs.CommunityID,
		ChannelID:   obs.ChannelID,
		AuthorID:    obs.AuthorID,
		Content:     obs.Content,
		Timestamp:   obs.Timestamp,
	}
	decision := m.engine.Process(ctx, msg, m.weights)
	m.processed.Add(1)
	handled.WithLabelValues(string(obs.Origin), string(decision.Action)).Inc()

	m.recordAudit(ctx, obs, msg, decision)

	var out []bus.Enforcement
	if obs.Origin == bus.OriginScan {
		out = ScanEnforcements(obs, decision, m.routing, m.now())
	} else {
		out = Enforcements(obs, decision, m.routing, m.now())
	}
	for _, e := range out {
		m.bus.PublishOutbound(e)
	}

	if decision.Action != moderation.ActionAllow {
		logger.InfoCF("moderator", "Moderation decision", map[string]any{
			"decision_id":  decision.ID,
			"action":       string(decision.Action),
			"origin":       string(obs.Origin),
			"channel_id":   obs.ChannelID,
			"author_id":    obs.AuthorID,
			"message_id":   obs.MessageID,
			"total":        decision.Context.TotalScore,
			"review_note":  decision.Context.ReviewNote,
			"enforcements": len(out),
		})
	}
	return decision, true
}

// markSeen reports whether obs was already handled, recording it otherwise.
// Messages without an ID are never deduplicated.
func (m *Moderator) markSeen(obs bus.ObservedMessage) bool {
	if obs.MessageID == "" {
		return false
	}
	key := obs.ChannelID + "/" + obs.MessageID
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if m.seen.Contains(key) {
		return true
	}
	m.seen.Add(key, struct{}{})
	return false
}

func (m *Moderator) recordAudit(ctx context.Context, obs bus.ObservedMessage, msg moderation.Message, d moderation.Decision) {
	if m.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := m.audit.Record(actx, audit.NewEntry(string(obs.Origin), msg, d)); err != nil {
		logger.WarnCF("moderator", "Audit write failed", map[string]any{
			"decision_id": d.ID,
			"error":       err.Error(),
		})
	}
}
