package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/dotmod/pkg/moderation"
)

var ErrEmptyDecision = errors.New("audit entry has no action")

// Entry is one logged moderation decision.
type Entry struct {
	ID             string                     `json:"id"`
	Origin         string                     `json:"origin"`
	MessageID      string                     `json:"message_id"`
	CommunityID    string                     `json:"community_id"`
	ChannelID      string                     `json:"channel_id"`
	AuthorID       string                     `json:"author_id"`
	Action         moderation.Action          `json:"action"`
	ProposedAction moderation.Action          `json:"proposed_action"`
	TotalScore     int                        `json:"total_score"`
	Context        moderation.DecisionContext `json:"context"`
	EvaluatedAt    time.Time                  `json:"evaluated_at"`
}

// NewEntry builds the audit row for a decision about msg.
func NewEntry(origin string, msg moderation.Message, d moderation.Decision) Entry {
	return Entry{
		ID:             d.ID,
		Origin:         origin,
		MessageID:      msg.ID,
		CommunityID:    msg.CommunityID,
		ChannelID:      msg.ChannelID,
		AuthorID:       msg.AuthorID,
		Action:         d.Action,
		ProposedAction: d.Context.ProposedAction,
		TotalScore:     d.Context.TotalScore,
		Context:        d.Context,
		EvaluatedAt:    d.EvaluatedAt,
	}
}

// Store is the SQLite decision log. One shared connection serialises writers.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create audit db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			origin TEXT NOT NULL DEFAULT '',
			message_id TEXT NOT NULL DEFAULT '',
			community_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			author_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			proposed_action TEXT NOT NULL DEFAULT '',
			total_score INTEGER NOT NULL DEFAULT 0,
			matched_keyword TEXT NOT NULL DEFAULT '',
			blocked_pattern TEXT NOT NULL DEFAULT '',
			context_json TEXT NOT NULL DEFAULT '{}',
			evaluated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS decisions_time_idx ON decisions(evaluated_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS decisions_author_idx ON decisions(community_id, author_id, evaluated_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init audit schema (%s): %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

// Record stores e. Recording the same decision ID twice keeps the first row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Action == "" {
		return ErrEmptyDecision
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = time.Now()
	}
	raw, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("encode decision context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO decisions(id, origin, message_id, community_id, channel_id, author_id, action, proposed_action, total_score, matched_keyword, blocked_pattern, context_json, evaluated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Origin, e.MessageID, e.CommunityID, e.ChannelID, e.AuthorID,
		string(e.Action), string(e.ProposedAction), e.TotalScore,
		e.Context.MatchedKeyword, e.Context.BlockedPattern, string(raw), e.EvaluatedAt.UnixMilli())
	if err != nil {
		recordCount.WithLabelValues("error").Inc()
		return fmt.Errorf("record decision: %w", err)
	}
	recordCount.WithLabelValues("ok").Inc()
	return nil
}

const selectColumns = `id, origin, message_id, community_id, channel_id, author_id, action, proposed_action, total_score, context_json, evaluated_at_ms`

// Recent lists the newest decisions first. A non-empty action filters by
// final action.
func (s *Store) Recent(ctx context.Context, limit int, action moderation.Action) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM decisions
WHERE (? = '' OR action = ?)
ORDER BY evaluated_at_ms DESC
LIMIT ?`, string(action), string(action), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByAuthor lists an author's decisions in one community, newest first.
func (s *Store) ByAuthor(ctx context.Context, communityID, authorID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM decisions
WHERE community_id = ? AND author_id = ?
ORDER BY evaluated_at_ms DESC
LIMIT ?`, communityID, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list author decisions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Counts tallies logged decisions by final action.
func (s *Store) Counts(ctx context.Context) (map[moderation.Action]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM decisions GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	out := map[moderation.Action]int{}
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		out[moderation.Action(action)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision counts: %w", err)
	}
	return out, nil
}

// SweepBefore deletes decisions evaluated before cutoff and returns how many
// rows were removed.
func (s *Store) SweepBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE evaluated_at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep decisions rows: %w", err)
	}
	sweptRows.Add(float64(n))
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	out := []Entry{}
	for rows.Next() {
		var e Entry
		var action, proposed, ctxRaw string
		var evaluatedMS int64
		if err := rows.Scan(&e.ID, &e.Origin, &e.MessageID, &e.CommunityID, &e.ChannelID, &e.AuthorID, &action, &proposed, &e.TotalScore, &ctxRaw, &evaluatedMS); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Action = moderation.Action(action)
		e.ProposedAction = moderation.Action(proposed)
		e.EvaluatedAt = time.UnixMilli(evaluatedMS)
		if ctxRaw != "" {
			// rows written by older builds may lack fields; keep what decodes
			_ = json.Unmarshal([]byte(ctxRaw), &e.Context)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}
