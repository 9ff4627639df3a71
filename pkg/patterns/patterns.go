package patterns

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single regex evaluation. Configured patterns
// are operator supplied and may backtrack badly on hostile input.
const DefaultMatchTimeout = 250 * time.Millisecond

const (
	alnum    = `[\p{L}\p{N}]`
	nonAlnum = `[^\p{L}\p{N}]*`

	leadingBoundary  = `(?<!` + alnum + `)`
	trailingBoundary = `(?!` + alnum + `)`
)

// Kind records how a Pattern was built.
type Kind string

const (
	KindKeyword      Kind = "keyword"
	KindKeywordExact Kind = "keyword_exact"
	KindBlocked      Kind = "blocked"
	KindRegex        Kind = "regex"
)

// Pattern is a compiled matcher bound to the term or expression it was built
// from. A Pattern with no regex never matches. Patterns are immutable and safe
// for concurrent use.
type Pattern struct {
	source string
	kind   Kind
	re     *regexp2.Regexp
}

// CompileKeyword builds an obfuscation tolerant matcher for term. Any run of
// non-alphanumeric runes may separate consecutive characters and a trailing
// alphanumeric suffix is allowed, so "harass" also matches "harassment".
func CompileKeyword(term string) *Pattern {
	return compileKeyword(term, true)
}

// CompileKeywordExact is CompileKeyword without the suffix allowance.
func CompileKeywordExact(term string) *Pattern {
	return compileKeyword(term, false)
}

func compileKeyword(term string, allowSuffix bool) *Pattern {
	kind := KindKeyword
	if !allowSuffix {
		kind = KindKeywordExact
	}
	chars := make([]rune, 0, len(term))
	for _, r := range term {
		if !unicode.IsSpace(r) {
			chars = append(chars, r)
		}
	}
	if len(chars) == 0 {
		return never(term, kind)
	}

	var b strings.Builder
	b.WriteString(leadingBoundary)
	for i, r := range chars {
		b.WriteString(charClass(r))
		if i < len(chars)-1 {
			b.WriteString(nonAlnum)
		}
	}
	if allowSuffix {
		b.WriteString(`(?:` + nonAlnum + alnum + `+)?`)
	}
	b.WriteString(trailingBoundary)
	return mustBuild(term, kind, b.String())
}

// CompileBlocked builds a phrase matcher. Whitespace runs in term match one
// or more whitespace runes in the text; characters are otherwise adjacent.
func CompileBlocked(term string) *Pattern {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return never(term, KindBlocked)
	}

	var b strings.Builder
	b.WriteString(leadingBoundary)
	pendingSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			b.WriteString(`\s+`)
			pendingSpace = false
		}
		b.WriteString(charClass(r))
	}
	b.WriteString(trailingBoundary)
	return mustBuild(term, KindBlocked, b.String())
}

// CompileRegex compiles a raw case-insensitive expression. Unlike the term
// compilers it reports invalid syntax to the caller.
func CompileRegex(expr string) (*Pattern, error) {
	if strings.TrimSpace(expr) == "" {
		return never(expr, KindRegex), nil
	}
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}
	re.MatchTimeout = DefaultMatchTimeout
	return &Pattern{source: expr, kind: KindRegex, re: re}, nil
}

// MustCompileRegex is CompileRegex for expressions known at build time.
func MustCompileRegex(expr string) *Pattern {
	p, err := CompileRegex(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the term or expression the pattern was compiled from.
func (p *Pattern) Source() string {
	if p == nil {
		return ""
	}
	return p.source
}

func (p *Pattern) Kind() Kind {
	if p == nil {
		return ""
	}
	return p.kind
}

// Expr returns the compiled expression, or "" for a never-matching pattern.
func (p *Pattern) Expr() string {
	if p == nil || p.re == nil {
		return ""
	}
	return p.re.String()
}

// Match reports whether the pattern occurs anywhere in text. A match that
// exceeds the timeout is reported as no match.
func (p *Pattern) Match(text string) bool {
	if p == nil || p.re == nil || text == "" {
		return false
	}
	ok, err := p.re.MatchString(text)
	if err != nil {
		matchTimeouts.WithLabelValues(string(p.kind)).Inc()
		return false
	}
	return ok
}

// MatchAny reports whether any non-blank candidate matches.
func (p *Pattern) MatchAny(candidates ...string) bool {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if p.Match(c) {
			return true
		}
	}
	return false
}

// FindString returns the leftmost match in text, or "".
func (p *Pattern) FindString(text string) string {
	if p == nil || p.re == nil || text == "" {
		return ""
	}
	m, err := p.re.FindStringMatch(text)
	if err != nil || m == nil {
		return ""
	}
	return m.String()
}

// ReplaceAll substitutes every match in text with repl. On timeout the input
// is returned unchanged.
func (p *Pattern) ReplaceAll(text, repl string) string {
	if p == nil || p.re == nil || text == "" {
		return text
	}
	out, err := p.re.Replace(text, repl, -1, -1)
	if err != nil {
		matchTimeouts.WithLabelValues(string(p.kind)).Inc()
		return text
	}
	return out
}

// CountMatches returns the number of non-overlapping matches in text.
func (p *Pattern) CountMatches(text string) int {
	if p == nil || p.re == nil || text == "" {
		return 0
	}
	n := 0
	m, err := p.re.FindStringMatch(text)
	for err == nil && m != nil {
		n++
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		matchTimeouts.WithLabelValues(string(p.kind)).Inc()
	}
	return n
}

func never(source string, kind Kind) *Pattern {
	return &Pattern{source: source, kind: kind}
}

func mustBuild(source string, kind Kind, expr string) *Pattern {
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		// every rune is escaped or a fixed class, so this only fires on a bug
		panic(fmt.Sprintf("patterns: build %s %q: %v", kind, source, err))
	}
	re.MatchTimeout = DefaultMatchTimeout
	return &Pattern{source: source, kind: kind, re: re}
}

var lookAlikes = map[rune]string{
	'a': `[a@]`,
	'e': `[e3]`,
	'i': `[i1!]`,
	'o': `[o0]`,
	's': `[s5$]`,
	't': `[t7]`,
}

func charClass(r rune) string {
	if class, ok := lookAlikes[unicode.ToLower(r)]; ok {
		return class
	}
	return regexp2.Escape(string(r))
}
