package moderation

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotmod/pkg/classifier"
	"github.com/dotsetgreg/dotmod/pkg/logger"
	"github.com/dotsetgreg/dotmod/pkg/normalize"
	"github.com/dotsetgreg/dotmod/pkg/patterns"
	"github.com/dotsetgreg/dotmod/pkg/wordmemory"
)

// Memory is the slice of the word memory store the engine reads and feeds.
type Memory interface {
	TokenCount(key wordmemory.Key, token string) int
	TotalTokens(key wordmemory.Key) int
	RecordMessage(key wordmemory.Key, content string, ts time.Time) error
}

// Rules are the compiled matchers, built once at startup.
type Rules struct {
	// Keywords are tried in order; the first hit wins.
	Keywords []*patterns.Pattern
	// Blocked are tried in order against the link-exempt text.
	Blocked []*patterns.Pattern
	// ExemptLinks are stripped before blocked matching and link counting.
	ExemptLinks []*patterns.Pattern
}

type Options struct {
	Thresholds Thresholds
	Rules      Rules
	Normalizer *normalize.Normalizer
	Memory     Memory
	Classifier classifier.Classifier
	Now        func() time.Time
}

// Engine turns a message into a Decision. It holds no mutable state; the
// memory store is the only shared resource it touches.
type Engine struct {
	thresholds Thresholds
	rules      Rules
	normalizer *normalize.Normalizer
	memory     Memory
	classifier classifier.Classifier
	now        func() time.Time
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		thresholds: opts.Thresholds,
		rules:      opts.Rules,
		normalizer: opts.Normalizer,
		memory:     opts.Memory,
		classifier: opts.Classifier,
		now:        opts.Now,
	}
	if e.normalizer == nil {
		e.normalizer = normalize.New(nil, normalize.MorphologyStem)
	}
	if e.classifier == nil {
		e.classifier = classifier.Disabled{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

func (e *Engine) Normalizer() *normalize.Normalizer {
	return e.normalizer
}

// Process evaluates msg and then records its normalised content into the
// memory store, whatever the decision. A failed write is logged and does not
// affect the returned decision.
func (e *Engine) Process(ctx context.Context, msg Message, weights ChannelWeights) Decision {
	decision := e.Evaluate(ctx, msg, weights)
	e.Record(msg)
	return decision
}

// Record feeds the normalised message into the memory store.
func (e *Engine) Record(msg Message) {
	if e.memory == nil {
		return
	}
	normalized := e.normalizer.Normalize(msg.Content)
	if normalized == "" {
		return
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	if err := e.memory.RecordMessage(keyOf(msg), normalized, ts); err != nil {
		logger.WarnCF("moderation", "Recording message into word memory failed", map[string]any{
			"channel_id": msg.ChannelID,
			"author_id":  msg.AuthorID,
			"error":      err.Error(),
		})
	}
}

// Evaluate scores msg and returns the action with its evidence. It never
// fails; blank content yields an Allow-leaning context with no matches.
func (e *Engine) Evaluate(ctx context.Context, msg Message, weights ChannelWeights) Decision {
	started := time.Now()
	content := msg.Content
	key := keyOf(msg)

	// 1. normalise, and separately normalise the text with exempt links removed
	full := e.normalizer.NormalizeAndExpand(content)
	sanitized := e.stripExemptLinks(content)
	clean := e.normalizer.NormalizeAndExpand(sanitized)

	// 2. keywords, then the age-gap compound rule
	matchedKeyword := ""
	if hit := patterns.FirstMatch(e.rules.Keywords, content, full.Normalized, full.Expanded); hit != nil {
		matchedKeyword = hit.Source()
	} else if isAgeGapConcern(content, full.Normalized, full.Expanded) {
		matchedKeyword = AgeGapLabel
	}

	// 3. blocked patterns against the exempt-stripped variants
	blockedPattern := ""
	if hit := patterns.FirstMatch(e.rules.Blocked, sanitized, clean.Normalized, clean.Expanded); hit != nil {
		blockedPattern = hit.Source()
	}

	// 4. message shape
	messageLength := len([]rune(content))
	linkCount := countLinks(strings.ToLower(sanitized))
	upperRatio := uppercaseRatio(content)
	formatScore := scoreMessageFormat(messageLength, linkCount, upperRatio)

	// 5. history
	totalRecent, recentMatches := 0, 0
	if e.memory != nil {
		totalRecent = e.memory.TotalTokens(key)
		if matchedKeyword != "" {
			recentMatches = e.memory.TokenCount(key, e.historyToken(matchedKeyword))
		}
	}
	historyScore := scoreHistory(totalRecent, recentMatches)

	// 6. channel
	channelScore := 0
	if weights != nil {
		channelScore = weights(msg.ChannelID)
	}

	// 7. base
	baseScore := 0
	if blockedPattern != "" {
		baseScore += 70
	}
	if matchedKeyword != "" {
		baseScore += 30
	}

	// 8. classifier floor
	risk := e.classifier.Classify(ctx, content, classifier.RuleContext{
		MatchedKeyword: matchedKeyword,
		BlockedPattern: blockedPattern,
	})
	floor := e.floorFor(risk.Level)

	// 9-10. total and tiering
	total := baseScore + formatScore + historyScore + channelScore
	if floor > total {
		total = floor
	}
	proposed := e.tier(total)

	// 11-12. review passes
	sig := signals{
		matchedKeyword: matchedKeyword,
		blockedPattern: blockedPattern,
		risk:           risk.Level,
		formatScore:    formatScore,
		historyScore:   historyScore,
		channelScore:   channelScore,
	}
	adjusted := quickReview(proposed, sig, func() bool {
		return isReportContext(content, full.Normalized, full.Expanded)
	})
	final, note := finalReview(adjusted, sig)

	if final != proposed {
		overrideCount.WithLabelValues(string(proposed), string(final)).Inc()
	}
	decisionCount.WithLabelValues(string(final)).Inc()
	totalScores.Observe(float64(total))
	evaluateDuration.Observe(time.Since(started).Seconds())

	decision := Decision{
		ID:          uuid.NewString(),
		Action:      final,
		EvaluatedAt: e.now(),
		Context: DecisionContext{
			Content:              content,
			MatchedKeyword:       matchedKeyword,
			BlockedPattern:       blockedPattern,
			RiskLevel:            risk.Level,
			RiskRationale:        risk.Rationale,
			RiskSource:           risk.Source,
			ReviewNote:           note,
			ProposedAction:       proposed,
			RecentKeywordMatches: recentMatches,
			TotalRecentTokens:    totalRecent,
			BaseScore:            baseScore,
			FormatScore:          formatScore,
			HistoryScore:         historyScore,
			ChannelScore:         channelScore,
			ClassifierFloor:      floor,
			TotalScore:           total,
			MessageLength:        messageLength,
			LinkCount:            linkCount,
			UppercaseRatio:       upperRatio,
			Thresholds:           e.thresholds,
		},
	}

	if final != ActionAllow {
		logger.DebugCF("moderation", "Message flagged", map[string]any{
			"decision_id": decision.ID,
			"action":      string(final),
			"proposed":    string(proposed),
			"total":       total,
			"keyword":     matchedKeyword,
			"blocked":     blockedPattern,
			"channel_id":  msg.ChannelID,
		})
	}
	return decision
}

func (e *Engine) floorFor(level classifier.RiskLevel) int {
	switch level {
	case classifier.RiskHigh:
		return e.thresholds.Escalate
	case classifier.RiskMedium:
		return e.thresholds.Delete
	default:
		return 0
	}
}

// tier maps a total to an action, checking the highest tier first.
func (e *Engine) tier(total int) Action {
	switch {
	case total >= e.thresholds.Escalate:
		return ActionEscalate
	case total >= e.thresholds.Delete:
		return ActionDelete
	case total >= e.thresholds.Warn:
		return ActionWarn
	default:
		return ActionAllow
	}
}

// historyToken maps a keyword to the form messages are stored under.
func (e *Engine) historyToken(keyword string) string {
	if n := e.normalizer.Normalize(keyword); n != "" {
		return n
	}
	return keyword
}

func (e *Engine) stripExemptLinks(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	for _, p := range e.rules.ExemptLinks {
		content = p.ReplaceAll(content, " ")
	}
	return content
}

func keyOf(msg Message) wordmemory.Key {
	return wordmemory.Key{CommunityID: msg.CommunityID, ChannelID: msg.ChannelID, AuthorID: msg.AuthorID}
}

func scoreMessageFormat(length, links int, upperRatio float64) int {
	score := 0
	switch {
	case length >= 800:
		score += 20
	case length >= 400:
		score += 10
	}
	switch {
	case links >= 2:
		score += 12
	case links == 1:
		score += 6
	}
	if upperRatio >= 0.7 {
		score += 8
	}
	return score
}

func scoreHistory(totalRecentTokens, recentKeywordMatches int) int {
	score := 0
	switch {
	case totalRecentTokens >= 2000:
		score += 12
	case totalRecentTokens >= 800:
		score += 6
	}
	if recentKeywordMatches > 0 {
		score += min(recentKeywordMatches*5, 25)
	}
	return score
}

// uppercaseRatio is the share of upper-case letters, or 0 when the message
// has fewer than 12 letters.
func uppercaseRatio(content string) float64 {
	letters, upper := 0, 0
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters < 12 {
		return 0
	}
	return float64(upper) / float64(letters)
}
