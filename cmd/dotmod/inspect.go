package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/audit"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
	"github.com/dotsetgreg/dotmod/pkg/wordmemory"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func memoryStatsCmd(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return writeJSON(out, store.Stats())
}

type memoryRecentOptions struct {
	key   wordmemory.Key
	limit int
	top   int
}

func memoryRecentCmd(out io.Writer, opts memoryRecentOptions) error {
	if opts.key.ChannelID == "" || opts.key.AuthorID == "" {
		return fmt.Errorf("--channel and --author are required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(out, "Key: %s\n", opts.key)
	fmt.Fprintf(out, "Tokens in window: %d\n", store.TotalTokens(opts.key))
	if top := store.TopTokens(opts.key, opts.top); len(top) > 0 {
		fmt.Fprintln(out, "\nTop tokens:")
		for _, tc := range top {
			fmt.Fprintf(out, "  %-24s %d\n", tc.Token, tc.Count)
		}
	}
	recent := store.RecentMessages(opts.key, opts.limit)
	if len(recent) == 0 {
		fmt.Fprintln(out, "\nNo recent messages.")
		return nil
	}
	fmt.Fprintln(out, "\nRecent messages:")
	for _, m := range recent {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	return nil
}

func memoryCompactCmd(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	before := store.Stats().Events
	if err := store.Compact(); err != nil {
		return err
	}
	after := store.Stats().Events
	fmt.Fprintf(out, "✓ Compacted %s: %d events kept, %d expired\n", store.Path(), after, before-after)
	return nil
}

type auditListOptions struct {
	limit       int
	action      string
	communityID string
	authorID    string
	asJSON      bool
}

func openAudit() (*audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Audit.Enabled {
		return nil, fmt.Errorf("audit log is disabled (audit.enabled=false)")
	}
	return audit.Open(cfg.AuditPath())
}

func auditListCmd(out io.Writer, opts auditListOptions) error {
	action, err := parseActionFilter(opts.action)
	if err != nil {
		return err
	}
	store, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var entries []audit.Entry
	if opts.authorID != "" {
		entries, err = store.ByAuthor(ctx, opts.communityID, opts.authorID, opts.limit)
	} else {
		entries, err = store.Recent(ctx, opts.limit, action)
	}
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(out, entries)
	}
	return writeAuditTable(out, entries)
}

func writeAuditTable(out io.Writer, entries []audit.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No decisions logged.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tSCORE\tORIGIN\tCHANNEL\tAUTHOR\tNOTE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.EvaluatedAt.Format(time.RFC3339), e.Action, e.TotalScore, e.Origin,
			e.ChannelID, e.AuthorID, e.Context.ReviewNote)
	}
	return tw.Flush()
}

func auditCountsCmd(out io.Writer) error {
	store, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.Counts(context.Background())
	if err != nil {
		return err
	}
	actions := make([]moderation.Action, 0, len(counts))
	for a := range counts {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Severity() < actions[j].Severity() })
	for _, a := range actions {
		fmt.Fprintf(out, "%-18s %d\n", a, counts[a])
	}
	return nil
}

func parseActionFilter(s string) (moderation.Action, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return "", nil
	case "ESCALATE":
		return moderation.ActionEscalate, nil
	}
	for _, a := range []moderation.Action{moderation.ActionAllow, moderation.ActionWarn, moderation.ActionDelete, moderation.ActionEscalate} {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q (want ALLOW, WARN, DELETE or ESCALATE_TO_MODS)", s)
}
