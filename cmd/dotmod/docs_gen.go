package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/normalize"
	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"
)

const cliDocsDir = "reference/cli"

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Render the CLI, config and rule references",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if the docs on disk differ from the rendered set")

	docs := &cobra.Command{
		Use:    "docs",
		Short:  "Reference docs maintenance",
		Hidden: true,
	}
	docs.AddCommand(gen)
	return docs
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	docs, err := renderDocs(rootFactory())
	if err != nil {
		return err
	}
	if checkOnly {
		return docs.check(outputDir)
	}
	return docs.write(outputDir)
}

// docSet holds rendered pages keyed by slash-separated path under the docs root.
type docSet map[string][]byte

func renderDocs(root *cobra.Command) (docSet, error) {
	docs := docSet{}
	if err := renderCommandPages(root, docs); err != nil {
		return nil, err
	}
	docs["reference/config.md"] = []byte(configReferenceMarkdown())
	docs["reference/moderation.md"] = []byte(moderationReferenceMarkdown())
	return docs, nil
}

// renderCommandPages adds one markdown page per visible command, named the
// way cobra links them (dotmod_memory_recent.md).
func renderCommandPages(cmd *cobra.Command, docs docSet) error {
	if !cmd.IsAvailableCommand() && cmd.HasParent() {
		return nil
	}
	cmd.DisableAutoGenTag = true

	var buf bytes.Buffer
	if err := cobraDoc.GenMarkdownCustom(cmd, &buf, func(name string) string { return name }); err != nil {
		return fmt.Errorf("render %s: %w", cmd.CommandPath(), err)
	}
	name := strings.ReplaceAll(cmd.CommandPath(), " ", "_") + ".md"
	docs[path.Join(cliDocsDir, name)] = buf.Bytes()

	for _, child := range cmd.Commands() {
		if child.IsAdditionalHelpTopicCommand() {
			continue
		}
		if err := renderCommandPages(child, docs); err != nil {
			return err
		}
	}
	return nil
}

func (d docSet) paths() []string {
	out := make([]string, 0, len(d))
	for rel := range d {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func (d docSet) write(root string) error {
	orphans, err := d.orphans(root)
	if err != nil {
		return err
	}
	for _, rel := range orphans {
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("remove %s: %w", rel, err)
		}
	}
	for _, rel := range d.paths() {
		target := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, d[rel], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func (d docSet) check(root string) error {
	var stale []string
	for _, rel := range d.paths() {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !bytes.Equal(got, d[rel]) {
			stale = append(stale, rel)
		}
	}
	orphans, err := d.orphans(root)
	if err != nil {
		return err
	}
	stale = append(stale, orphans...)
	if len(stale) > 0 {
		return fmt.Errorf("docs out of date: %s; run `dotmod docs generate`", strings.Join(stale, ", "))
	}
	return nil
}

// orphans lists CLI pages on disk for commands that no longer exist.
func (d docSet) orphans(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(cliDocsDir)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		rel := path.Join(cliDocsDir, e.Name())
		if _, ok := d[rel]; !ok {
			out = append(out, rel)
		}
	}
	return out, nil
}

type configRow struct {
	key  string
	kind string
	env  string
	def  string
}

func configReferenceMarkdown() string {
	rows := configRows(reflect.ValueOf(config.DefaultConfig()).Elem(), "")

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Keys are listed in file order. Values shown are those of `config.DefaultConfig()`.\n\n")
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", r.key, r.kind, codeOrDash(r.env), codeOrDash(r.def))
	}
	return b.String()
}

// configRows walks the populated defaults, so each row carries its own value.
func configRows(v reflect.Value, prefix string) []configRow {
	var rows []configRow
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if !f.IsExported() || name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			rows = append(rows, configRows(v.Field(i), name)...)
			continue
		}
		rows = append(rows, configRow{
			key:  name,
			kind: kindName(f.Type),
			env:  f.Tag.Get("env"),
			def:  defaultValue(v.Field(i)),
		})
	}
	return rows
}

func defaultValue(v reflect.Value) string {
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.Len() == 0 {
		return ""
	}
	if v.Kind() == reflect.Slice {
		return fmt.Sprintf("%d entries", v.Len())
	}
	raw, err := json.Marshal(v.Interface())
	if err != nil || string(raw) == `""` {
		return ""
	}
	return string(raw)
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Slice:
		return "list of " + kindName(t.Elem())
	case reflect.Map:
		return "map of " + kindName(t.Key()) + " to " + kindName(t.Elem())
	case reflect.Int, reflect.Int64:
		return "int"
	default:
		return t.Kind().String()
	}
}

func codeOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return "`" + strings.ReplaceAll(v, "|", `\|`) + "`"
}

// moderationReferenceMarkdown documents the built-in rule set that applies
// when the config leaves the lists empty.
func moderationReferenceMarkdown() string {
	t := config.DefaultConfig().Moderation.Thresholds

	var b strings.Builder
	b.WriteString("# Moderation Reference\n\n")

	b.WriteString("## Thresholds\n\n")
	b.WriteString("| Action | Minimum score |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| `WARN` | %d |\n", t.Warn)
	fmt.Fprintf(&b, "| `DELETE` | %d |\n", t.Delete)
	fmt.Fprintf(&b, "| `ESCALATE_TO_MODS` | %d |\n\n", t.Escalate)

	b.WriteString("## Default Keywords\n\n")
	writeCodeList(&b, config.DefaultKeywords())

	b.WriteString("## Default Blocked Patterns\n\n")
	writeCodeList(&b, config.DefaultBlockedPatterns())

	b.WriteString("## Default Exempt Link Patterns\n\n")
	writeCodeList(&b, config.DefaultExemptLinkPatterns())

	syn := normalize.DefaultSynonyms()
	heads := make([]string, 0, len(syn))
	for head := range syn {
		heads = append(heads, head)
	}
	sort.Strings(heads)
	b.WriteString("## Synonym Table\n\n")
	b.WriteString("| Term | Synonyms |\n")
	b.WriteString("| --- | --- |\n")
	for _, head := range heads {
		fmt.Fprintf(&b, "| `%s` | %s |\n", head, strings.Join(syn[head], ", "))
	}
	return b.String()
}

func writeCodeList(b *strings.Builder, items []string) {
	for _, item := range items {
		b.WriteString("- `" + strings.ReplaceAll(item, "`", "\\`") + "`\n")
	}
	b.WriteString("\n")
}
