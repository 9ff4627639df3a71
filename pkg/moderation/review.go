package moderation

import (
	"github.com/dotsetgreg/dotmod/pkg/classifier"
	"github.com/dotsetgreg/dotmod/pkg/patterns"
)

var (
	linkPattern         = patterns.MustCompileRegex(`https?://\S+`)
	minorPattern        = patterns.MustCompileRegex(`\b(minor|underage|child|kid|teen|13|14|15|16|17)\b`)
	adultPattern        = patterns.MustCompileRegex(`\b(adult|18\+|18\s*plus|over\s*18|18\s*\+)\b`)
	relationshipPattern = patterns.MustCompileRegex(`\b(cuddle|cuddling|dating|relationship|boyfriend|girlfriend|bf|gf|romantic|flirt|kiss|sexual|dm|dms|messages|screenshots|evidence|proof|gifting|gifted)\b`)
	reportPattern       = patterns.MustCompileRegex(`\b(report|reported|reporting|screenshots|evidence|proof|log|logs)\b`)
)

const (
	noteNoAction     = "No moderation action required."
	noteRuleMatch    = "Rule match present; keep action."
	noteRiskElevated = "LLM risk elevated; keep action."
	noteHistory      = "Recent history indicates spam; keep action."
	noteChannel      = "Channel risk profile elevated; keep action."
	noteFormat       = "Message formatting indicates spam; keep action."
	noteDowngraded   = "Low risk with no rule matches; action downgraded."
)

type signals struct {
	matchedKeyword string
	blockedPattern string
	risk           classifier.RiskLevel
	formatScore    int
	historyScore   int
	channelScore   int
}

func (s signals) softOnly() bool {
	return s.formatScore < 10 && s.historyScore < 5 && s.channelScore == 0
}

func countLinks(text string) int {
	return linkPattern.CountMatches(text)
}

func isAgeGapConcern(candidates ...string) bool {
	return minorPattern.MatchAny(candidates...) &&
		adultPattern.MatchAny(candidates...) &&
		relationshipPattern.MatchAny(candidates...)
}

func isReportContext(candidates ...string) bool {
	return reportPattern.MatchAny(candidates...)
}

// quickReview only revisits a proposed Delete. Messages that read like a
// report, or that scored on soft signals alone, drop to a warning unless a
// blocked pattern or High risk backs the deletion.
func quickReview(proposed Action, s signals, reportContext func() bool) Action {
	if proposed != ActionDelete {
		return proposed
	}
	if s.blockedPattern != "" || s.risk == classifier.RiskHigh {
		return proposed
	}
	if reportContext() || s.softOnly() {
		return ActionWarn
	}
	if s.matchedKeyword == AgeGapLabel {
		return ActionEscalate
	}
	return proposed
}

// finalReview keeps any action backed by evidence and downgrades the rest to
// Allow. The note names the first reason that held.
func finalReview(action Action, s signals) (Action, string) {
	if action == ActionAllow {
		return action, noteNoAction
	}
	switch {
	case s.blockedPattern != "" || s.matchedKeyword != "":
		return action, noteRuleMatch
	case s.risk != "" && s.risk != classifier.RiskLow:
		return action, noteRiskElevated
	case s.historyScore > 0:
		return action, noteHistory
	case s.channelScore > 0:
		return action, noteChannel
	case s.formatScore >= 12:
		return action, noteFormat
	}
	return ActionAllow, noteDowngraded
}
