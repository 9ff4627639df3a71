package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
	"github.com/dotsetgreg/dotmod/pkg/wordmemory"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// withTestConfig points the CLI at a config whose stores live in a temp dir.
func withTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Memory.Path = filepath.Join(dir, "memory.jsonl")
	cfg.Audit.Path = filepath.Join(dir, "audit.db")
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(path, cfg))
	t.Setenv("DOTMOD_CONFIG", path)
	return cfg
}

func TestRootHelpListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	require.NoError(t, err)
	for _, name := range []string{"gateway", "evaluate", "memory", "audit", "status", "version"} {
		assert.Contains(t, output, name)
	}
	assert.NotContains(t, output, "docs")
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	_, err := runRootCommandForTest()
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	output, err := runRootCommandForTest("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "dotmod dev"), output)

	output, err = runRootCommandForTest("--version")
	require.NoError(t, err)
	assert.Contains(t, output, "dotmod dev")
}

func TestEvaluateCommand_OneShot(t *testing.T) {
	cfg := withTestConfig(t)

	output, err := runRootCommandForTest("evaluate", "--channel", "c1", "--author", "u1", "join discord.gg/abc for free nitro")
	require.NoError(t, err)

	var d moderation.Decision
	require.NoError(t, json.Unmarshal([]byte(output), &d))
	assert.NotEmpty(t, d.ID)
	assert.NotEmpty(t, d.Context.BlockedPattern)
	assert.NotEqual(t, moderation.ActionAllow, d.Action)

	// without --record nothing reaches the memory log
	_, statErr := os.Stat(cfg.Memory.Path)
	if statErr == nil {
		data, err := os.ReadFile(cfg.Memory.Path)
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(string(data)))
	}
}

func TestEvaluateCommand_RecordFeedsMemory(t *testing.T) {
	cfg := withTestConfig(t)

	_, err := runRootCommandForTest("evaluate", "--guild", "g1", "--channel", "c1", "--author", "u1", "--record", "kys loser")
	require.NoError(t, err)

	store, err := wordmemory.Open(cfg.Memory.Path, wordmemory.Options{})
	require.NoError(t, err)
	defer store.Close()
	key := wordmemory.Key{CommunityID: "g1", ChannelID: "c1", AuthorID: "u1"}
	assert.Equal(t, 1, store.Stats().Events)
	assert.Equal(t, 3, store.TotalTokens(key))

	output, err := runRootCommandForTest("memory", "recent", "--guild", "g1", "--channel", "c1", "--author", "u1")
	require.NoError(t, err)
	assert.Contains(t, output, "Tokens in window: 3")
}

func TestEvaluateCommand_RequiresMessage(t *testing.T) {
	withTestConfig(t)
	_, err := runRootCommandForTest("evaluate")
	assert.Error(t, err)
}

func TestMemoryCommands(t *testing.T) {
	withTestConfig(t)

	output, err := runRootCommandForTest("memory", "stats")
	require.NoError(t, err)
	var stats wordmemory.Stats
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	assert.Zero(t, stats.Events)

	output, err = runRootCommandForTest("memory", "compact")
	require.NoError(t, err)
	assert.Contains(t, output, "0 events kept")

	_, err = runRootCommandForTest("memory", "recent", "--channel", "c1")
	assert.Error(t, err)
}

func TestAuditCommands(t *testing.T) {
	withTestConfig(t)

	output, err := runRootCommandForTest("audit", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "No decisions logged.")

	_, err = runRootCommandForTest("audit", "list", "--action", "BAN")
	assert.Error(t, err)

	output, err = runRootCommandForTest("audit", "counts")
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestParseActionFilter(t *testing.T) {
	cases := map[string]moderation.Action{
		"":                 "",
		"allow":            moderation.ActionAllow,
		" Delete ":         moderation.ActionDelete,
		"escalate":         moderation.ActionEscalate,
		"ESCALATE_TO_MODS": moderation.ActionEscalate,
	}
	for in, want := range cases {
		got, err := parseActionFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseActionFilter("kick")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	withTestConfig(t)

	output, err := runRootCommandForTest("status")
	require.NoError(t, err)
	assert.Contains(t, output, "dotmod Status")
	assert.Contains(t, output, "Config valid: ✓")
	assert.Contains(t, output, "Thresholds: warn=20 delete=50 escalate=80")
	assert.Contains(t, output, "Discord token: not set")
}

func TestGatewayRequiresToken(t *testing.T) {
	withTestConfig(t)
	t.Setenv("DOTMOD_DISCORD_TOKEN", "")

	_, err := runRootCommandForTest("gateway")
	assert.ErrorIs(t, err, config.ErrMissingToken)
}

func TestSetupMaintenance(t *testing.T) {
	cfg := config.DefaultConfig()
	store, err := wordmemory.Open("", wordmemory.Options{})
	require.NoError(t, err)
	defer store.Close()

	svc, err := setupMaintenance(cfg, store, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"memory-sweep (17 * * * *)"}, svc.Jobs())

	cfg.Memory.SweepSchedule = "every tuesday"
	_, err = setupMaintenance(cfg, store, nil)
	assert.Error(t, err)
}

func TestSimpleInteractiveMode(t *testing.T) {
	eng, err := moderation.NewEngineFromConfig(config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	ev := &evaluator{engine: eng, weights: moderation.StaticWeights(nil)}

	in := strings.NewReader("\nhello there\njoin discord.gg/abc\nquit\nnever read\n")
	out := &bytes.Buffer{}
	simpleInteractiveMode(in, out, ev)

	text := out.String()
	assert.Contains(t, text, "ALLOW score=")
	assert.Contains(t, text, `pattern=`)
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, 2, strings.Count(text, "risk="))
}

func TestDocsGenerate(t *testing.T) {
	outDir := t.TempDir()
	rootFactory := func() *cobra.Command { return buildRootCommand(false) }

	require.NoError(t, generateDocumentation(rootFactory, outDir, false))
	for _, rel := range []string{
		filepath.Join("reference", "cli", "dotmod.md"),
		filepath.Join("reference", "cli", "dotmod_evaluate.md"),
		filepath.Join("reference", "config.md"),
		filepath.Join("reference", "moderation.md"),
	} {
		_, err := os.Stat(filepath.Join(outDir, rel))
		assert.NoError(t, err, rel)
	}

	configRef, err := os.ReadFile(filepath.Join(outDir, "reference", "config.md"))
	require.NoError(t, err)
	assert.Contains(t, string(configRef), "`moderation.thresholds.warn`")
	assert.Contains(t, string(configRef), "DOTMOD_DISCORD_TOKEN")

	require.NoError(t, generateDocumentation(rootFactory, outDir, true))

	require.NoError(t, os.WriteFile(filepath.Join(outDir, "reference", "config.md"), []byte("stale"), 0o644))
	err = generateDocumentation(rootFactory, outDir, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference/config.md")
}

func TestDocsGenerate_RemovesPagesForDroppedCommands(t *testing.T) {
	outDir := t.TempDir()
	rootFactory := func() *cobra.Command { return buildRootCommand(false) }
	require.NoError(t, generateDocumentation(rootFactory, outDir, false))

	orphan := filepath.Join(outDir, "reference", "cli", "dotmod_onboard.md")
	require.NoError(t, os.WriteFile(orphan, []byte("# dotmod onboard\n"), 0o644))
	err := generateDocumentation(rootFactory, outDir, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dotmod_onboard.md")

	require.NoError(t, generateDocumentation(rootFactory, outDir, false))
	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, generateDocumentation(rootFactory, outDir, true))
}
