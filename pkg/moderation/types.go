package moderation

import (
	"time"

	"github.com/dotsetgreg/dotmod/pkg/classifier"
)

type Action string

const (
	ActionAllow    Action = "ALLOW"
	ActionWarn     Action = "WARN"
	ActionDelete   Action = "DELETE"
	ActionEscalate Action = "ESCALATE_TO_MODS"
)

// Severity orders actions from Allow (0) to Escalate (3).
func (a Action) Severity() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionDelete:
		return 2
	case ActionEscalate:
		return 3
	default:
		return 0
	}
}

// AgeGapLabel is recorded as the matched keyword when a message references a
// minor, an adult and a relationship context together.
const AgeGapLabel = "age gap (adult/minor)"

// Thresholds are inclusive lower bounds; the engine assumes
// Escalate >= Delete >= Warn.
type Thresholds struct {
	Warn     int `json:"warn"`
	Delete   int `json:"delete"`
	Escalate int `json:"escalate"`
}

// Message is one observed chat message.
type Message struct {
	ID          string    `json:"id,omitempty"`
	CommunityID string    `json:"community_id"`
	ChannelID   string    `json:"channel_id"`
	AuthorID    string    `json:"author_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChannelWeights returns the configured risk weight of a channel, 0 when the
// channel has none.
type ChannelWeights func(channelID string) int

// StaticWeights adapts a map to ChannelWeights.
func StaticWeights(m map[string]int) ChannelWeights {
	return func(channelID string) int {
		return m[channelID]
	}
}

// DecisionContext is the evidence behind one decision. Empty strings mean no
// match.
type DecisionContext struct {
	Content              string               `json:"content"`
	MatchedKeyword       string               `json:"matched_keyword,omitempty"`
	BlockedPattern       string               `json:"blocked_pattern,omitempty"`
	RiskLevel            classifier.RiskLevel `json:"risk_level"`
	RiskRationale        string               `json:"risk_rationale"`
	RiskSource           classifier.Source    `json:"risk_source"`
	ReviewNote           string               `json:"review_note"`
	ProposedAction       Action               `json:"proposed_action"`
	RecentKeywordMatches int                  `json:"recent_keyword_matches"`
	TotalRecentTokens    int                  `json:"total_recent_tokens"`
	BaseScore            int                  `json:"base_score"`
	FormatScore          int                  `json:"format_score"`
	HistoryScore         int                  `json:"history_score"`
	ChannelScore         int                  `json:"channel_score"`
	ClassifierFloor      int                  `json:"classifier_floor"`
	TotalScore           int                  `json:"total_score"`
	MessageLength        int                  `json:"message_length"`
	LinkCount            int                  `json:"link_count"`
	UppercaseRatio       float64              `json:"uppercase_ratio"`
	Thresholds           Thresholds           `json:"thresholds"`
}

type Decision struct {
	ID          string          `json:"id"`
	Action      Action          `json:"action"`
	Context     DecisionContext `json:"context"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}
