package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		in  string
		out string
	}{
		{in: "bullying", out: "bully"},
		{in: "jumped", out: "jump"},
		{in: "liked", out: "lik"},
		{in: "boxes", out: "box"},
		{in: "threats", out: "threat"},
		{in: "sing", out: "sing"},
		{in: "bus", out: "bus"},
		{in: "is", out: "is"},
		{in: "", out: ""},
		{in: "ring", out: "ring"},
		{in: "shed", out: "shed"},
		{in: "goes", out: "goe"},
	}
	for _, fix := range fixtures {
		assert.Equal(fix.out, Stem(fix.in), fix.in)
	}
}

func TestLemmatize(t *testing.T) {
	n := New(nil, MorphologyLemma)
	assert.Equal(t, "child person woman raid", n.Normalize("Children, people & WOMEN raids"))
	assert.Equal(t, "mouse", Lemmatize("mice"))
	assert.Equal(t, "cats", Lemmatize("cats"))
}

func TestParseMorphologyMode(t *testing.T) {
	mode, err := ParseMorphologyMode("")
	require.NoError(t, err)
	assert.Equal(t, MorphologyStem, mode)

	mode, err = ParseMorphologyMode(" LEMMA ")
	require.NoError(t, err)
	assert.Equal(t, MorphologyLemma, mode)

	_, err = ParseMorphologyMode("porter")
	assert.Error(t, err)
}

func TestNormalize_Cleaning(t *testing.T) {
	n := New(nil, MorphologyNone)
	assert := assert.New(t)

	assert.Equal("hello world", n.Normalize("  Hello,   WORLD!! 👋 "))
	assert.Equal("k y s", n.Normalize("k.y.s"))
	assert.Equal("über café 42", n.Normalize("Über--café__42"))
	assert.Equal("", n.Normalize(""))
	assert.Equal("", n.Normalize("   \t\n"))
	assert.Equal("", n.Normalize("?!...***"))

	res := n.NormalizeAndExpand("  ")
	assert.Equal(Result{}, res)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(DefaultSynonyms(), MorphologyNone)
	inputs := []string{
		"Stop BULLYING people!!",
		"check out https://discord.gg/freenitro",
		"h4r@ss   me\tnow",
		"",
		"ÀÉÎ ünïcödé text",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		assert.Equal(t, once, n.Normalize(once), in)
	}

	// stems that are already fixed points stay put under stemming too
	stem := New(nil, MorphologyStem)
	for _, in := range []string{"bullying people", "threats jumped", "kys"} {
		once := stem.Normalize(in)
		assert.Equal(t, once, stem.Normalize(once), in)
	}
}

// Suffix stripping is applied once per call, so a stem that still ends in a
// strippable suffix loses it on the next pass.
func TestNormalize_StemSecondPassStripsAgain(t *testing.T) {
	stem := New(nil, MorphologyStem)
	for in, want := range map[string][2]string{
		"classes": {"class", "clas"},
		"passes":  {"pass", "pas"},
	} {
		once := stem.Normalize(in)
		assert.Equal(t, want[0], once, in)
		assert.Equal(t, want[1], stem.Normalize(once), in)
	}
}

func TestExpand_DefaultTable(t *testing.T) {
	n := New(DefaultSynonyms(), MorphologyStem)

	res := n.NormalizeAndExpand("Stop bullying people!")
	assert.Equal(t, "stop bully people", res.Normalized)
	assert.Contains(t, res.Expanded, "harass")
	assert.Contains(t, res.Expanded, "intimidate")
	assert.Contains(t, res.Expanded, "stop bully")
}

func TestExpand_Symmetric(t *testing.T) {
	n := New(map[string][]string{"harass": {"bully"}}, MorphologyNone)

	assert.ElementsMatch(t, []string{"bully"}, n.Synonyms("harass"))
	assert.ElementsMatch(t, []string{"harass"}, n.Synonyms("bully"))
	assert.Equal(t, "bully harass", n.ExpandWithSynonyms("bully"))
	assert.Equal(t, "harass bully", n.ExpandWithSynonyms("harass"))
}

func TestExpand_Transitive(t *testing.T) {
	n := New(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"x": {"y"},
	}, MorphologyNone)

	assert.Equal(t, []string{"b", "c"}, n.Synonyms("a"))
	assert.Equal(t, []string{"a", "b"}, n.Synonyms("c"))
	assert.Equal(t, []string{"y"}, n.Synonyms("x"))
	assert.Empty(t, n.Synonyms("z"))
}

func TestExpand_DedupesAndKeepsOrder(t *testing.T) {
	n := New(map[string][]string{"scam": {"fraud", "con job"}}, MorphologyNone)

	got := n.ExpandWithSynonyms("fraud scam fraud")
	assert.Equal(t, "fraud scam con job", got)
	assert.Equal(t, "", n.ExpandWithSynonyms(""))
}

func TestExpand_KeysNormalized(t *testing.T) {
	n := New(map[string][]string{" Threatening!! ": {"INTIMIDATES", "Scare  Off"}}, MorphologyStem)

	assert.Equal(t, []string{"intimidat", "scare off"}, n.Synonyms("threatening"))
	assert.Equal(t, "threaten intimidat scare off", n.NormalizeAndExpand("THREATENING").Expanded)
}

func TestLoadSynonyms(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "syn.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("raid:\n  - brigade\n  - flood\n"), 0o644))
	table, err := LoadSynonyms(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"brigade", "flood"}, table["raid"])

	jsonPath := filepath.Join(dir, "syn.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"raid":["brigade"]}`), 0o644))
	table, err = LoadSynonyms(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"brigade"}, table["raid"])

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"raid":`), 0o644))
	_, err = LoadSynonyms(jsonPath)
	assert.Error(t, err)

	_, err = LoadSynonyms(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	table, err = LoadSynonyms("")
	require.NoError(t, err)
	assert.NotEmpty(t, table["bully"])
}
