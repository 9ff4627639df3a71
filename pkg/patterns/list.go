package patterns

import (
	"strings"

	"github.com/dotsetgreg/dotmod/pkg/logger"
)

// CompileKeywords compiles terms in order, skipping blanks.
func CompileKeywords(terms []string) []*Pattern {
	out := make([]*Pattern, 0, len(terms))
	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		out = append(out, CompileKeyword(term))
	}
	return out
}

// CompileBlockedPhrases compiles phrase entries in order, skipping blanks.
func CompileBlockedPhrases(phrases []string) []*Pattern {
	out := make([]*Pattern, 0, len(phrases))
	for _, phrase := range phrases {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		out = append(out, CompileBlocked(phrase))
	}
	return out
}

// CompileRegexList compiles configured expressions in order. Invalid entries
// are dropped with a warning; if nothing usable remains the defaults are
// compiled instead.
func CompileRegexList(exprs []string, defaults []string) []*Pattern {
	out := compileValid(exprs)
	if len(out) > 0 {
		return out
	}
	if len(exprs) > 0 {
		logger.WarnCF("patterns", "No usable blocked patterns configured, using defaults", map[string]any{
			"configured": len(exprs),
			"defaults":   len(defaults),
		})
	}
	return compileValid(defaults)
}

func compileValid(exprs []string) []*Pattern {
	out := make([]*Pattern, 0, len(exprs))
	for _, expr := range exprs {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		p, err := CompileRegex(expr)
		if err != nil {
			droppedPatterns.Inc()
			logger.WarnCF("patterns", "Invalid regex ignored", map[string]any{
				"pattern": expr,
				"error":   err.Error(),
			})
			continue
		}
		out = append(out, p)
	}
	return out
}

// FirstMatch returns the first pattern in list that matches any candidate.
func FirstMatch(list []*Pattern, candidates ...string) *Pattern {
	for _, p := range list {
		if p.MatchAny(candidates...) {
			return p
		}
	}
	return nil
}
