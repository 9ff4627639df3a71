package moderation

import (
	"fmt"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/classifier"
	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/logger"
	"github.com/dotsetgreg/dotmod/pkg/normalize"
	"github.com/dotsetgreg/dotmod/pkg/patterns"
)

// CompileRules builds the matcher lists from the moderation config. Blocked
// regexes come first, then literal blocked phrases.
func CompileRules(cfg config.ModerationConfig) Rules {
	blocked := patterns.CompileRegexList(cfg.BlockedPatterns, config.DefaultBlockedPatterns())
	blocked = append(blocked, patterns.CompileBlockedPhrases(cfg.BlockedPhrases)...)
	return Rules{
		Keywords:    patterns.CompileKeywords(cfg.Keywords),
		Blocked:     blocked,
		ExemptLinks: patterns.CompileRegexList(cfg.ExemptLinkPatterns, config.DefaultExemptLinkPatterns()),
	}
}

// NewNormalizer loads the synonym table and morphology mode from config.
func NewNormalizer(cfg config.NormalizerConfig) (*normalize.Normalizer, error) {
	mode, err := normalize.ParseMorphologyMode(cfg.Morphology)
	if err != nil {
		return nil, err
	}
	table, err := normalize.LoadSynonyms(cfg.SynonymsPath)
	if err != nil {
		return nil, err
	}
	return normalize.New(table, mode), nil
}

// NewEngineFromConfig wires an Engine from cfg. cls may be nil, in which case
// one is built from the classifier section.
func NewEngineFromConfig(cfg *config.Config, mem Memory, cls classifier.Classifier) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	norm, err := NewNormalizer(cfg.Normalizer)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	if cls == nil {
		cls = classifier.CreateClassifier(cfg.Classifier)
	}
	rules := CompileRules(cfg.Moderation)
	t := cfg.Moderation.Thresholds

	logger.InfoCF("moderation", "Decision engine ready", map[string]any{
		"keywords":     len(rules.Keywords),
		"blocked":      len(rules.Blocked),
		"exempt_links": len(rules.ExemptLinks),
		"morphology":   string(norm.Mode()),
		"warn":         t.Warn,
		"delete":       t.Delete,
		"escalate":     t.Escalate,
	})

	return NewEngine(Options{
		Thresholds: Thresholds{Warn: t.Warn, Delete: t.Delete, Escalate: t.Escalate},
		Rules:      rules,
		Normalizer: norm,
		Memory:     mem,
		Classifier: cls,
		Now:        time.Now,
	}), nil
}
