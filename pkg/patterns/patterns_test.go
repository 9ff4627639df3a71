package patterns

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileKeyword(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		term  string
		text  string
		match bool
	}{
		{term: "harass", text: "h@r@ss", match: true},
		{term: "harass", text: "h4r@ss", match: false},
		{term: "harass", text: "h a r a s s", match: true},
		{term: "harass", text: "stop HARASSING me", match: true},
		{term: "harass", text: "harassment", match: true},
		{term: "harass", text: "harassment-free zone", match: true},
		{term: "harass", text: "noharass", match: false},
		{term: "harass", text: "haras", match: false},
		{term: "kys", text: "k.y.s", match: true},
		{term: "kys", text: "just K_Y_S already", match: true},
		{term: "kys", text: "skys", match: false},
		{term: "kill yourself", text: "go k1ll y0urself", match: true},
		{term: "kill yourself", text: "killyourself", match: true},
		{term: "phone #", text: "whats ur phone # lol", match: true},
		{term: "scam", text: "$c@m alert", match: true},
		{term: "scam", text: "sc4m", match: false},
		{term: "meth", text: "something", match: false},
	}
	for _, fix := range fixtures {
		p := CompileKeyword(fix.term)
		assert.Equal(fix.match, p.Match(fix.text), "%q vs %q", fix.term, fix.text)
		assert.Equal(fix.term, p.Source())
		assert.Equal(KindKeyword, p.Kind())
	}
}

func TestCompileKeywordExact(t *testing.T) {
	p := CompileKeywordExact("harass")
	assert.True(t, p.Match("do not harass"))
	assert.True(t, p.Match("h.a.r.a.s.s!"))
	assert.False(t, p.Match("harassment"))
	assert.False(t, p.Match("harassed"))
	assert.Equal(t, KindKeywordExact, p.Kind())

	assert.True(t, CompileKeyword("harass").Match("harassment"))
}

func TestCompileBlocked(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		term  string
		text  string
		match bool
	}{
		{term: "free nitro", text: "FREE   nitro here", match: true},
		{term: "free nitro", text: "fr33 n1tro", match: true},
		{term: "free nitro", text: "free\tnitro", match: true},
		{term: "free nitro", text: "freenitro", match: false},
		{term: "free nitro", text: "f.r.e.e nitro", match: false},
		{term: "free nitro", text: "carefree nitro", match: false},
		{term: "discord.gg", text: "join discord.gg/abc", match: true},
		{term: "discord.gg", text: "discordxgg", match: false},
	}
	for _, fix := range fixtures {
		assert.Equal(fix.match, CompileBlocked(fix.term).Match(fix.text), "%q vs %q", fix.term, fix.text)
	}
}

func TestBlankTermNeverMatches(t *testing.T) {
	for _, p := range []*Pattern{
		CompileKeyword(""),
		CompileKeyword("   "),
		CompileKeywordExact("\t"),
		CompileBlocked(" "),
	} {
		assert.False(t, p.Match("anything at all"))
		assert.False(t, p.MatchAny("", " ", "text"))
		assert.Equal(t, "", p.Expr())
		assert.Equal(t, 0, p.CountMatches("text"))
	}

	var nilPattern *Pattern
	assert.False(t, nilPattern.Match("text"))
	assert.Equal(t, "", nilPattern.Source())
}

func TestCompileRegex(t *testing.T) {
	p, err := CompileRegex(`discord(\.|\s)*(gg|com)(/|\s)*(invite)?`)
	require.NoError(t, err)
	assert.True(t, p.Match("check out https://DISCORD.GG/freenitro"))
	assert.Equal(t, KindRegex, p.Kind())

	repeat, err := CompileRegex(`(.)\1{6,}`)
	require.NoError(t, err)
	assert.True(t, repeat.Match("lolllllllll"))
	assert.False(t, repeat.Match("lollll"))

	_, err = CompileRegex(`(unclosed`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPattern))

	blank, err := CompileRegex("  ")
	require.NoError(t, err)
	assert.False(t, blank.Match("x"))
}

func TestPatternHelpers(t *testing.T) {
	links := MustCompileRegex(`https?://\S+`)
	assert.Equal(t, 2, links.CountMatches("a http://x.io b https://y.gg/z c"))
	assert.Equal(t, 0, links.CountMatches("no links"))

	gif := MustCompileRegex(`https?://(?:www\.)?tenor\.com/view/\S*gif\S*`)
	assert.Equal(t, "lol   ok", gif.ReplaceAll("lol https://tenor.com/view/cat-gif-123 ok", " "))
	assert.Equal(t, "https://tenor.com/view/cat-gif-123", gif.FindString("lol https://tenor.com/view/cat-gif-123 ok"))
}

func TestMatchAnySkipsBlank(t *testing.T) {
	p := CompileKeyword("kys")
	assert.True(t, p.MatchAny("", "   ", "kys"))
	assert.False(t, p.MatchAny("", "   "))
	assert.False(t, p.MatchAny())
}

func TestCompileRegexList(t *testing.T) {
	list := CompileRegexList([]string{"(", "free\\s*nitro", "  "}, []string{"fallback"})
	require.Len(t, list, 1)
	assert.Equal(t, "free\\s*nitro", list[0].Source())

	list = CompileRegexList([]string{"(", "[z-a]"}, []string{"fallback"})
	require.Len(t, list, 1)
	assert.Equal(t, "fallback", list[0].Source())

	list = CompileRegexList(nil, []string{"a", "b"})
	assert.Len(t, list, 2)
}

func TestFirstMatchKeepsOrder(t *testing.T) {
	list := CompileKeywords([]string{"kill", "kill yourself", ""})
	require.Len(t, list, 2)

	hit := FirstMatch(list, "", "please kill yourself")
	require.NotNil(t, hit)
	assert.Equal(t, "kill", hit.Source())
	assert.Nil(t, FirstMatch(list, "hello there"))

	phrases := CompileBlockedPhrases([]string{"", "free nitro"})
	assert.Len(t, phrases, 1)
}

func TestPatternConcurrentUse(t *testing.T) {
	p := CompileKeyword("harass")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.True(t, p.Match("h@r@$$"))
				assert.False(t, p.Match("hello"))
			}
		}()
	}
	wg.Wait()
}
