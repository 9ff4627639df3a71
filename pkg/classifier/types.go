package classifier

import (
	"context"
	"strings"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel accepts LOW, MEDIUM or HIGH in any case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	}
	return "", false
}

// Source says which path produced a Classification.
type Source string

const (
	SourceDisabled Source = "disabled"
	SourceRules    Source = "rules"
	SourceRemote   Source = "llm"
	SourceCache    Source = "cache"
)

// RuleContext carries the rule matches the engine found before asking the
// classifier. Empty strings mean no match.
type RuleContext struct {
	MatchedKeyword string `json:"matched_keyword,omitempty"`
	BlockedPattern string `json:"blocked_pattern,omitempty"`
}

type Classification struct {
	Level     RiskLevel `json:"risk_level"`
	Rationale string    `json:"rationale"`
	Source    Source    `json:"source"`
}

// Classifier maps a message and its rule matches to a risk level. Classify
// never fails: every implementation resolves to a value.
type Classifier interface {
	Classify(ctx context.Context, content string, rules RuleContext) Classification
}

const (
	disabledRationale      = "LLM classification disabled."
	defaultRemoteRationale = "LLM classification applied."
)

// ClassifyByRules is the deterministic fallback: a blocked pattern is High,
// a keyword is Medium, anything else Low.
func ClassifyByRules(rules RuleContext) Classification {
	switch {
	case rules.BlockedPattern != "":
		return Classification{Level: RiskHigh, Rationale: "Blocked pattern matched.", Source: SourceRules}
	case rules.MatchedKeyword != "":
		return Classification{Level: RiskMedium, Rationale: "Keyword match detected.", Source: SourceRules}
	default:
		return Classification{Level: RiskLow, Rationale: "No rules matched.", Source: SourceRules}
	}
}

// Disabled always answers Low without calling out.
type Disabled struct {
	Debug bool
}

func (d Disabled) Classify(_ context.Context, content string, rules RuleContext) Classification {
	result := Classification{Level: RiskLow, Rationale: disabledRationale, Source: SourceDisabled}
	classifyCount.WithLabelValues(string(result.Source), string(result.Level)).Inc()
	if d.Debug {
		logReasoning(content, rules, result, "LLM classification disabled in config.")
	}
	return result
}

// Rules answers with ClassifyByRules only. It is what an enabled classifier
// without an endpoint degrades to.
type Rules struct{}

func (Rules) Classify(_ context.Context, _ string, rules RuleContext) Classification {
	return ClassifyByRules(rules)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, content string, rules RuleContext) Classification

func (f Func) Classify(ctx context.Context, content string, rules RuleContext) Classification {
	return f(ctx, content, rules)
}
