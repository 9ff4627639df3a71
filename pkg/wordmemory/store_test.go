package wordmemory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var (
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	keyA     = Key{CommunityID: "g1", ChannelID: "c1", AuthorID: "u1"}
	keyB     = Key{CommunityID: "g1", ChannelID: "c1", AuthorID: "u2"}
)

func openTestStore(t *testing.T, path string, clock *fakeClock) *Store {
	t.Helper()
	s, err := Open(path, Options{Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"stop", "bullying", "people", "stop bullying", "bullying people"}, Tokenize("Stop, BULLYING people!!"))
	assert.Nil(t, Tokenize("   "))
	assert.Nil(t, Tokenize("!!! ..."))
	assert.Equal(t, []string{"kys"}, Tokenize("kys"))

	counts := CountTokens("spam spam spam")
	assert.Equal(t, 3, counts["spam"])
	assert.Equal(t, 2, counts["spam spam"])
}

func TestRecordMessage_Counts(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, filepath.Join(t.TempDir(), "memory.jsonl"), clock)

	require.NoError(t, s.RecordMessage(keyA, "Stop bullying people", baseTime))

	assert.Equal(t, 1, s.TokenCount(keyA, "bullying"))
	assert.Equal(t, 1, s.TokenCount(keyA, "  BULLYING "))
	assert.Equal(t, 1, s.TokenCount(keyA, "stop bullying"))
	assert.Equal(t, 0, s.TokenCount(keyA, "unknown"))
	assert.Equal(t, 0, s.TokenCount(keyA, "   "))
	assert.Equal(t, 0, s.TokenCount(keyB, "bullying"))
	assert.Equal(t, 5, s.TotalTokens(keyA))
	assert.Equal(t, 0, s.TotalTokens(keyB))
	assert.Len(t, s.TokenCounts(keyA), 5)
	assert.Empty(t, s.TokenCounts(keyB))

	counts := s.TokenCounts(keyA)
	counts["bullying"] = 99
	assert.Equal(t, 1, s.TokenCount(keyA, "bullying"), "returned map must be a copy")

	top := s.TopTokens(keyA, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Count)
}

func TestRecordMessage_BlankIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)

	require.NoError(t, s.RecordMessage(keyA, "", baseTime))
	require.NoError(t, s.RecordMessage(keyA, "   \n", baseTime))
	require.NoError(t, s.RecordMessage(keyA, "?!?! ...", baseTime))

	assert.Equal(t, 0, s.Stats().Events)
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRetentionBoundary(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, filepath.Join(t.TempDir(), "memory.jsonl"), clock)
	require.Equal(t, 30*24*time.Hour, s.Retention())

	require.NoError(t, s.RecordMessage(keyA, "kys", baseTime))

	clock.Set(baseTime.Add(DefaultRetention - time.Second))
	assert.Equal(t, 1, s.TokenCount(keyA, "kys"))
	assert.Equal(t, []string{"kys"}, s.RecentMessages(keyA, 5))

	clock.Set(baseTime.Add(DefaultRetention + time.Second))
	assert.Equal(t, 0, s.TokenCount(keyA, "kys"))
	assert.Empty(t, s.RecentMessages(keyA, 5))
	assert.Equal(t, 0, s.Stats().Events)
	assert.Empty(t, s.Keys())
}

func TestPrune_SubtractsExactly(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, filepath.Join(t.TempDir(), "memory.jsonl"), clock)

	require.NoError(t, s.RecordMessage(keyA, "spam spam link", baseTime))
	clock.Set(baseTime.Add(10 * 24 * time.Hour))
	require.NoError(t, s.RecordMessage(keyA, "spam again", clock.Now()))

	assert.Equal(t, 3, s.TokenCount(keyA, "spam"))
	assert.Equal(t, 1, s.TokenCount(keyA, "link"))

	clock.Set(baseTime.Add(DefaultRetention + time.Minute))
	assert.Equal(t, 1, s.TokenCount(keyA, "spam"))
	assert.Equal(t, 0, s.TokenCount(keyA, "link"))
	assert.Equal(t, map[string]int{"spam": 1, "again": 1, "spam again": 1}, s.TokenCounts(keyA))
	assert.Equal(t, 3, s.TotalTokens(keyA))
	assert.Equal(t, []string{"spam again"}, s.RecentMessages(keyA, 10))
}

func TestRecordMessage_PrunesBeforeAdding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)

	require.NoError(t, s.RecordMessage(keyA, "first message", baseTime))
	require.NoError(t, s.RecordMessage(keyB, "second message", baseTime.Add(time.Hour)))
	assert.Len(t, readLines(t, path), 2)

	// the first two events expire; the third write compacts instead of appending
	later := baseTime.Add(DefaultRetention + 2*time.Hour)
	clock.Set(later)
	require.NoError(t, s.RecordMessage(keyA, "third message", later))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "third message", ev.Content)
	assert.Equal(t, later.UnixMilli(), ev.TimestampMillis)
	assert.False(t, s.Stats().LastCompaction.IsZero())
}

func TestRecordMessage_ExpiredTimestampIgnored(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, filepath.Join(t.TempDir(), "memory.jsonl"), clock)

	require.NoError(t, s.RecordMessage(keyA, "ancient history", baseTime.Add(-DefaultRetention-time.Hour)))
	assert.Equal(t, 0, s.TotalTokens(keyA))
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)

	require.NoError(t, s.RecordMessage(keyA, "free nitro here", baseTime))
	require.NoError(t, s.RecordMessage(keyA, "free nitro again", baseTime.Add(time.Minute)))
	require.NoError(t, s.RecordMessage(keyB, "hello", baseTime.Add(2*time.Minute)))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path, clock)
	assert.Equal(t, 2, reopened.TokenCount(keyA, "free nitro"))
	assert.Equal(t, 1, reopened.TokenCount(keyB, "hello"))
	assert.Equal(t, []string{"free nitro again", "free nitro here"}, reopened.RecentMessages(keyA, 10))
	assert.Equal(t, 3, reopened.Stats().Events)
	assert.Equal(t, []Key{keyA, keyB}, reopened.Keys())

	for _, line := range readLines(t, path) {
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.NotEmpty(t, ev.TokenCounts)
	}
}

func TestLoad_SkipsCorruptLinesAndCompacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	good := func(content string, ts time.Time) string {
		b, err := json.Marshal(Event{
			TimestampMillis: ts.UnixMilli(),
			CommunityID:     keyA.CommunityID,
			ChannelID:       keyA.ChannelID,
			AuthorID:        keyA.AuthorID,
			Content:         content,
			TokenCounts:     CountTokens(content),
		})
		require.NoError(t, err)
		return string(b)
	}
	data := good("one", baseTime) + "\n" +
		"{not json\n" +
		"\n" +
		good("stale", baseTime.Add(-DefaultRetention-time.Hour)) + "\n" +
		good("two", baseTime.Add(time.Second)) // no trailing newline
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	clock := &fakeClock{t: baseTime.Add(time.Minute)}
	s := openTestStore(t, path, clock)

	assert.Equal(t, 2, s.Stats().Events)
	assert.Equal(t, 1, s.TokenCount(keyA, "one"))
	assert.Equal(t, 1, s.TokenCount(keyA, "two"))
	assert.Equal(t, 0, s.TokenCount(keyA, "stale"))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}

func TestLoad_RebuildsMissingTokenCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	line := fmt.Sprintf(`{"timestampMillis":%d,"communityId":"g1","channelId":"c1","authorId":"u1","content":"spam spam"}`, baseTime.UnixMilli())
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))

	s := openTestStore(t, path, &fakeClock{t: baseTime})
	assert.Equal(t, 2, s.TokenCount(keyA, "spam"))
}

func TestRecentMessages(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, "", clock)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordMessage(keyA, fmt.Sprintf("message %d", i), baseTime.Add(time.Duration(i)*time.Second)))
	}
	// late backfill lands in timestamp order
	require.NoError(t, s.RecordMessage(keyA, "backfilled", baseTime.Add(-time.Hour)))

	assert.Equal(t, []string{"message 4", "message 3"}, s.RecentMessages(keyA, 2))
	all := s.RecentMessages(keyA, 100)
	require.Len(t, all, 6)
	assert.Equal(t, "backfilled", all[5])
	assert.Empty(t, s.RecentMessages(keyA, 0))
	assert.Empty(t, s.RecentMessages(keyA, -1))
	assert.Empty(t, s.RecentMessages(keyB, 3))
}

func TestRecentMessages_RingIsBounded(t *testing.T) {
	s, err := Open("", Options{MaxRecentPerKey: 3, Now: (&fakeClock{t: baseTime}).Now})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordMessage(keyA, fmt.Sprintf("m%d", i), baseTime.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.Equal(t, []string{"m9", "m8", "m7"}, s.RecentMessages(keyA, 10))
	assert.Equal(t, 10, s.TotalTokens(keyA), "ring eviction does not touch counts")
}

func TestWriteFailureKeepsAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)
	require.NoError(t, s.RecordMessage(keyA, "first", baseTime))

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	err := s.RecordMessage(keyA, "second", baseTime)
	require.Error(t, err)
	assert.Equal(t, 1, s.TokenCount(keyA, "second"))
	assert.Equal(t, 2, s.Stats().Events)
}

func TestClosedStore(t *testing.T) {
	s, err := Open("", Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.RecordMessage(keyA, "hello", time.Now()), ErrStoreClosed)
	_, err = s.Prune()
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Compact(), ErrStoreClosed)
	assert.Equal(t, 0, s.TokenCount(keyA, "hello"))
}

func TestConcurrentRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			own := Key{CommunityID: "g1", ChannelID: "c1", AuthorID: fmt.Sprintf("w%d", w)}
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, s.RecordMessage(keyA, "shared word", baseTime))
				assert.NoError(t, s.RecordMessage(own, "solo", baseTime))
				_ = s.TotalTokens(keyA)
				_ = s.RecentMessages(own, 3)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, s.TokenCount(keyA, "shared word"))
	assert.Equal(t, workers*perWorker*3, s.TotalTokens(keyA))
	assert.Len(t, readLines(t, path), workers*perWorker*2)

	reopened := openTestStore(t, path, clock)
	assert.Equal(t, s.TokenCounts(keyA), reopened.TokenCounts(keyA))
}

func TestCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	clock := &fakeClock{t: baseTime}
	s := openTestStore(t, path, clock)
	require.NoError(t, s.RecordMessage(keyA, "a b", baseTime))
	require.NoError(t, s.RecordMessage(keyA, "c d", baseTime))

	require.NoError(t, s.Compact())
	assert.Len(t, readLines(t, path), 2)

	clock.Set(baseTime.Add(DefaultRetention + time.Hour))
	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, readLines(t, path))
}
