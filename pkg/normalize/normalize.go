package normalize

import (
	"fmt"
	"strings"
	"unicode"
)

// MorphologyMode selects how individual tokens are reduced after cleaning.
type MorphologyMode string

const (
	MorphologyNone  MorphologyMode = "none"
	MorphologyStem  MorphologyMode = "stem"
	MorphologyLemma MorphologyMode = "lemma"
)

// ParseMorphologyMode accepts the mode names case-insensitively. An empty
// string means stemming.
func ParseMorphologyMode(s string) (MorphologyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return MorphologyNone, nil
	case "", "stem":
		return MorphologyStem, nil
	case "lemma":
		return MorphologyLemma, nil
	default:
		return "", fmt.Errorf("unknown morphology mode %q", s)
	}
}

// Result holds the normalised text and its synonym-expanded variant.
type Result struct {
	Normalized string `json:"normalized"`
	Expanded   string `json:"expanded"`
}

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	mode       MorphologyMode
	expansions map[string][]string
}

// New builds a Normalizer from a head-term → synonyms table. Every head and
// its synonyms form one group; a term that appears in several groups expands
// to the union of all of them.
func New(synonyms map[string][]string, mode MorphologyMode) *Normalizer {
	if mode == "" {
		mode = MorphologyStem
	}
	n := &Normalizer{mode: mode}
	n.expansions = n.buildExpansions(synonyms)
	return n
}

func (n *Normalizer) Mode() MorphologyMode {
	return n.mode
}

// Synonyms returns the closure group for a normalised term, excluding the
// term itself.
func (n *Normalizer) Synonyms(term string) []string {
	group := n.expansions[n.normalizeToken(term)]
	out := make([]string, len(group))
	copy(out, group)
	return out
}

func (n *Normalizer) NormalizeAndExpand(text string) Result {
	normalized := n.Normalize(text)
	return Result{
		Normalized: normalized,
		Expanded:   n.ExpandWithSynonyms(normalized),
	}
}

// Normalize lowercases, replaces every run of non-letter/non-digit runes with
// one space, collapses whitespace and applies the configured morphology.
func (n *Normalizer) Normalize(text string) string {
	fields := cleanFields(text)
	if len(fields) == 0 {
		return ""
	}
	if n.mode == MorphologyNone {
		return strings.Join(fields, " ")
	}
	out := fields[:0]
	for _, tok := range fields {
		if reduced := n.applyMorphology(tok); reduced != "" {
			out = append(out, reduced)
		}
	}
	return strings.Join(out, " ")
}

// ExpandWithSynonyms emits each token followed by its synonym group,
// preserving first-seen order without duplicates.
func (n *Normalizer) ExpandWithSynonyms(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	for _, tok := range tokens {
		add(tok)
		for _, syn := range n.expansions[tok] {
			add(syn)
		}
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) buildExpansions(synonyms map[string][]string) map[string][]string {
	if len(synonyms) == 0 {
		return map[string][]string{}
	}
	// iterate heads in sorted order so group ordering does not depend on map order
	heads := sortedKeys(synonyms)

	uf := newUnionFind()
	for _, head := range heads {
		key := n.normalizeToken(head)
		if key == "" {
			continue
		}
		uf.add(key)
		for _, syn := range synonyms[head] {
			if v := n.normalizeToken(syn); v != "" {
				uf.union(key, v)
			}
		}
	}

	components := make(map[string][]string)
	for _, term := range uf.order {
		root := uf.find(term)
		components[root] = append(components[root], term)
	}

	expansions := make(map[string][]string, len(uf.order))
	for _, term := range uf.order {
		members := components[uf.find(term)]
		out := make([]string, 0, len(members)-1)
		for _, m := range members {
			if m != term {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			expansions[term] = out
		}
	}
	return expansions
}

// unionFind groups synonym terms into connected components while keeping the
// order terms were first seen.
type unionFind struct {
	parent map[string]string
	order  []string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(term string) {
	if _, ok := u.parent[term]; ok {
		return
	}
	u.parent[term] = term
	u.order = append(u.order, term)
}

func (u *unionFind) find(term string) string {
	for u.parent[term] != term {
		u.parent[term] = u.parent[u.parent[term]]
		term = u.parent[term]
	}
	return term
}

func (u *unionFind) union(a, b string) {
	u.add(a)
	u.add(b)
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// normalizeToken cleans a synonym table entry. Multi-word phrases are kept as
// the collapsed phrase without morphology.
func (n *Normalizer) normalizeToken(token string) string {
	fields := cleanFields(token)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		if n.mode == MorphologyNone {
			return fields[0]
		}
		return n.applyMorphology(fields[0])
	default:
		return strings.Join(fields, " ")
	}
}

func (n *Normalizer) applyMorphology(token string) string {
	if n.mode == MorphologyLemma {
		if lemma := Lemmatize(token); lemma != token {
			return lemma
		}
	}
	if n.mode == MorphologyStem || n.mode == MorphologyLemma {
		return Stem(token)
	}
	return token
}

var irregularPlurals = map[string]string{
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"mice":     "mouse",
	"geese":    "goose",
}

// Lemmatize maps a small set of irregular plurals to their singular form.
func Lemmatize(token string) string {
	if lemma, ok := irregularPlurals[token]; ok {
		return lemma
	}
	return token
}

// Stem strips one English suffix. Tokens of three runes or fewer are kept.
func Stem(token string) string {
	length := len([]rune(token))
	if length <= 3 {
		return token
	}
	switch {
	case strings.HasSuffix(token, "ing") && length > 5:
		return strings.TrimSuffix(token, "ing")
	case strings.HasSuffix(token, "ed") && length > 4:
		return strings.TrimSuffix(token, "ed")
	case strings.HasSuffix(token, "es") && length > 4:
		return strings.TrimSuffix(token, "es")
	case strings.HasSuffix(token, "s"):
		return strings.TrimSuffix(token, "s")
	}
	return token
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// cleanFields lowercases and splits text on every non-letter/non-digit rune.
func cleanFields(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTokenRune(r)
	})
}
