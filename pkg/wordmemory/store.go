package wordmemory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/logger"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultMaxRecentPerKey = 50
)

// Key scopes one author's activity within one channel of one community.
type Key struct {
	CommunityID string
	ChannelID   string
	AuthorID    string
}

func (k Key) String() string {
	return k.CommunityID + "/" + k.ChannelID + "/" + k.AuthorID
}

// Event is one observed message as persisted in the log, one JSON object per
// line.
type Event struct {
	TimestampMillis int64          `json:"timestampMillis"`
	CommunityID     string         `json:"communityId"`
	ChannelID       string         `json:"channelId"`
	AuthorID        string         `json:"authorId"`
	Content         string         `json:"content"`
	TokenCounts     map[string]int `json:"tokenCounts"`
}

func (e Event) key() Key {
	return Key{CommunityID: e.CommunityID, ChannelID: e.ChannelID, AuthorID: e.AuthorID}
}

type recentMessage struct {
	timestampMillis int64
	content         string
}

type Options struct {
	// Retention is how long an event counts towards the aggregate.
	// Zero means DefaultRetention.
	Retention time.Duration
	// MaxRecentPerKey bounds the recent-message ring of each key.
	MaxRecentPerKey int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Path           string        `json:"path"`
	Retention      time.Duration `json:"retention"`
	Events         int           `json:"events"`
	Keys           int           `json:"keys"`
	DistinctTokens int           `json:"distinct_tokens"`
	TotalTokens    int           `json:"total_tokens"`
	OldestEvent    time.Time     `json:"oldest_event,omitempty"`
	NewestEvent    time.Time     `json:"newest_event,omitempty"`
	LastCompaction time.Time     `json:"last_compaction,omitempty"`
}

// TokenCount pairs a token with its windowed count.
type TokenCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// Store is a time-windowed token frequency counter per Key, rebuilt from an
// append-only JSONL log. Every read and write holds the store mutex, so the
// aggregate is never observed half-updated. An empty path keeps the store in
// memory only.
type Store struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	maxRecent int
	now       func() time.Time

	events []Event
	counts map[Key]map[string]int
	totals map[Key]int
	recent map[Key][]recentMessage

	lastCompaction time.Time
	closed         bool
}

// Open creates a store backed by path and loads the existing log once.
func Open(path string, opts Options) (*Store, error) {
	s := &Store{
		path:      strings.TrimSpace(path),
		retention: opts.Retention,
		maxRecent: opts.MaxRecentPerKey,
		now:       opts.Now,
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.maxRecent <= 0 {
		s.maxRecent = DefaultMaxRecentPerKey
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.reset()
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Retention() time.Duration {
	return s.retention
}

func (s *Store) reset() {
	s.events = nil
	s.counts = make(map[Key]map[string]int)
	s.totals = make(map[Key]int)
	s.recent = make(map[Key][]recentMessage)
}

// Load rebuilds the aggregate from the log. Corrupt and expired lines are
// skipped and trigger a compaction that drops them from disk. A missing file
// is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.reset()
	if s.path == "" {
		return nil
	}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open word memory %s: %w", s.path, err)
	}
	defer f.Close()

	cutoff := s.cutoff()
	compactNeeded := false
	skipped, expired := 0, 0
	lineNo := 0
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				var ev Event
				if err := json.Unmarshal(line, &ev); err != nil {
					skipped++
					corruptLines.Inc()
					compactNeeded = true
					logger.WarnCF("memory", "Invalid JSONL entry skipped", map[string]any{
						"path":  s.path,
						"line":  lineNo,
						"error": err.Error(),
					})
				} else if ev.TimestampMillis < cutoff {
					expired++
					compactNeeded = true
				} else if !s.addLocked(ev) {
					skipped++
					compactNeeded = true
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read word memory %s: %w", s.path, readErr)
		}
	}
	liveEvents.Set(float64(len(s.events)))

	logger.InfoCF("memory", "Word memory loaded", map[string]any{
		"path":    s.path,
		"events":  len(s.events),
		"keys":    len(s.counts),
		"skipped": skipped,
		"expired": expired,
	})

	if compactNeeded {
		if err := s.rewriteLocked(); err != nil {
			logger.WarnCF("memory", "Compaction after load failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// RecordMessage prunes expired events and then adds content for key. Blank
// content or content without tokens is a no-op. The in-memory aggregate is
// updated even when the durable write fails; the write error is returned.
func (s *Store) RecordMessage(key Key, content string, ts time.Time) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	counts := CountTokens(content)
	if len(counts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	ev := Event{
		TimestampMillis: ts.UnixMilli(),
		CommunityID:     key.CommunityID,
		ChannelID:       key.ChannelID,
		AuthorID:        key.AuthorID,
		Content:         content,
		TokenCounts:     counts,
	}

	pruned := s.pruneLocked()
	if ev.TimestampMillis < s.cutoff() {
		// already outside the window; it would be dropped on the next prune
		logger.DebugCF("memory", "Skipping expired message", map[string]any{"key": key.String()})
		if pruned > 0 {
			return s.rewriteLocked()
		}
		return nil
	}
	s.addLocked(ev)
	recordedEvents.Inc()
	liveEvents.Set(float64(len(s.events)))

	if pruned > 0 {
		return s.rewriteLocked()
	}
	return s.appendLocked(ev)
}

// Prune removes expired events and compacts the log when anything was
// removed. It returns the number of events dropped.
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return s.pruneAndCompactLocked()
}

// Compact prunes and unconditionally rewrites the log.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.pruneLocked()
	return s.rewriteLocked()
}

// TokenCount returns the windowed count of token for key. The token is
// trimmed and lowercased before lookup.
func (s *Store) TokenCount(key Key, token string) int {
	token = normalizeToken(token)
	if token == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.pruneAndCompactLocked()
	return s.counts[key][token]
}

// TokenCounts returns a copy of every windowed token count for key.
func (s *Store) TokenCounts(key Key) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return map[string]int{}
	}
	s.pruneAndCompactLocked()
	src := s.counts[key]
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TotalTokens is the sum of every windowed token count for key.
func (s *Store) TotalTokens(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.pruneAndCompactLocked()
	return s.totals[key]
}

// TopTokens returns up to n tokens for key by descending count.
func (s *Store) TopTokens(key Key, n int) []TokenCount {
	if n <= 0 {
		return nil
	}
	counts := s.TokenCounts(key)
	out := make([]TokenCount, 0, len(counts))
	for tok, c := range counts {
		out = append(out, TokenCount{Token: tok, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Token < out[j].Token
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RecentMessages returns up to limit non-blank message contents for key,
// newest first.
func (s *Store) RecentMessages(key Key, limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return []string{}
	}
	s.pruneAndCompactLocked()
	ring := s.recent[key]
	out := make([]string, 0, min(limit, len(ring)))
	for i := len(ring) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.TrimSpace(ring[i].content) != "" {
			out = append(out, ring[i].content)
		}
	}
	return out
}

// Keys lists every key with live events, sorted.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.counts))
	for k := range s.counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Path:           s.path,
		Retention:      s.retention,
		Events:         len(s.events),
		Keys:           len(s.counts),
		LastCompaction: s.lastCompaction,
	}
	for _, tokens := range s.counts {
		st.DistinctTokens += len(tokens)
	}
	for _, total := range s.totals {
		st.TotalTokens += total
	}
	for i, ev := range s.events {
		ts := time.UnixMilli(ev.TimestampMillis)
		if i == 0 || ts.Before(st.OldestEvent) {
			st.OldestEvent = ts
		}
		if i == 0 || ts.After(st.NewestEvent) {
			st.NewestEvent = ts
		}
	}
	return st
}

// Close stops the store accepting writes. The log is already durable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) cutoff() int64 {
	return s.now().Add(-s.retention).UnixMilli()
}

func (s *Store) addLocked(ev Event) bool {
	if len(ev.TokenCounts) == 0 {
		ev.TokenCounts = CountTokens(ev.Content)
	}
	if len(ev.TokenCounts) == 0 {
		return false
	}
	key := ev.key()
	s.events = append(s.events, ev)

	tokens := s.counts[key]
	if tokens == nil {
		tokens = make(map[string]int, len(ev.TokenCounts))
		s.counts[key] = tokens
	}
	for tok, c := range ev.TokenCounts {
		if c <= 0 {
			continue
		}
		tokens[tok] += c
		s.totals[key] += c
	}

	if strings.TrimSpace(ev.Content) != "" {
		ring := s.recent[key]
		msg := recentMessage{timestampMillis: ev.TimestampMillis, content: ev.Content}
		// keep the ring ordered by timestamp even when backfill arrives late
		idx := sort.Search(len(ring), func(i int) bool { return ring[i].timestampMillis > msg.timestampMillis })
		ring = append(ring, recentMessage{})
		copy(ring[idx+1:], ring[idx:])
		ring[idx] = msg
		if len(ring) > s.maxRecent {
			ring = ring[len(ring)-s.maxRecent:]
		}
		s.recent[key] = ring
	}
	return true
}

// pruneLocked subtracts every expired event from the aggregate and returns
// how many were removed.
func (s *Store) pruneLocked() int {
	cutoff := s.cutoff()
	kept := s.events[:0]
	removed := 0
	touched := make(map[Key]struct{})
	for _, ev := range s.events {
		if ev.TimestampMillis >= cutoff {
			kept = append(kept, ev)
			continue
		}
		removed++
		key := ev.key()
		touched[key] = struct{}{}
		tokens := s.counts[key]
		for tok, c := range ev.TokenCounts {
			if c <= 0 || tokens == nil {
				continue
			}
			tokens[tok] -= c
			s.totals[key] -= c
			if tokens[tok] <= 0 {
				delete(tokens, tok)
			}
		}
		if len(tokens) == 0 {
			delete(s.counts, key)
			delete(s.totals, key)
		}
	}
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = Event{}
	}
	s.events = kept

	for key := range touched {
		ring := s.recent[key]
		start := 0
		for start < len(ring) && ring[start].timestampMillis < cutoff {
			start++
		}
		if start == len(ring) {
			delete(s.recent, key)
		} else if start > 0 {
			s.recent[key] = append([]recentMessage(nil), ring[start:]...)
		}
	}

	if removed > 0 {
		expiredEvents.Add(float64(removed))
		liveEvents.Set(float64(len(s.events)))
	}
	return removed
}

func (s *Store) pruneAndCompactLocked() (int, error) {
	removed := s.pruneLocked()
	if removed == 0 {
		return 0, nil
	}
	return removed, s.rewriteLocked()
}

func (s *Store) appendLocked(ev Event) error {
	if s.path == "" {
		return nil
	}
	line, err := json.Marshal(ev)
	if err != nil {
		writeErrors.WithLabelValues("append").Inc()
		return fmt.Errorf("encode memory event: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return s.writeFailed("append", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return s.writeFailed("append", err)
	}
	// one Write per line so a crash never leaves half a record behind a good one
	if _, err := f.Write(line); err != nil {
		f.Close()
		return s.writeFailed("append", err)
	}
	if err := f.Close(); err != nil {
		return s.writeFailed("append", err)
	}
	return nil
}

// rewriteLocked replaces the log with the live events via a temp file and
// rename.
func (s *Store) rewriteLocked() error {
	if s.path == "" {
		s.lastCompaction = s.now()
		return nil
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		compactions.WithLabelValues("error").Inc()
		return s.writeFailed("compact", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		compactions.WithLabelValues("error").Inc()
		return s.writeFailed("compact", err)
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		compactions.WithLabelValues("error").Inc()
		return s.writeFailed("compact", err)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ev := range s.events {
		if err := enc.Encode(ev); err != nil {
			return cleanup(err)
		}
	}
	if err := w.Flush(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		compactions.WithLabelValues("error").Inc()
		return s.writeFailed("compact", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		logger.DebugCF("memory", "chmod compacted log failed", map[string]any{"error": err.Error()})
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		compactions.WithLabelValues("error").Inc()
		return s.writeFailed("compact", err)
	}
	s.lastCompaction = s.now()
	compactions.WithLabelValues("ok").Inc()
	logger.DebugCF("memory", "Word memory compacted", map[string]any{
		"path":   s.path,
		"events": len(s.events),
	})
	return nil
}

func (s *Store) writeFailed(op string, err error) error {
	writeErrors.WithLabelValues(op).Inc()
	logger.ErrorCF("memory", "Word memory write failed", map[string]any{
		"op":    op,
		"path":  s.path,
		"error": err.Error(),
	})
	return fmt.Errorf("word memory %s: %w", op, err)
}
