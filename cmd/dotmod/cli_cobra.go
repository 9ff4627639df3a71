package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "dotmod",
		Short: "Discord moderation gateway with scored, explainable decisions",
		Long: strings.TrimSpace(`dotmod watches Discord channels and decides, for every message, whether to
allow it, warn the author, delete it, or escalate it to moderators.

Use CLI commands to run the gateway, try messages against the configured
rules, and inspect the word memory and the decision audit log.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newGatewayCommand())
	root.AddCommand(newEvaluateCommand())
	root.AddCommand(newMemoryCommand())
	root.AddCommand(newAuditCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the Discord moderation gateway",
		Long:    "Connect to Discord, moderate live and scanned messages, and serve health and metrics endpoints.",
		Example: "  dotmod gateway\n  dotmod gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gatewayCmd(cmd.OutOrStdout(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newEvaluateCommand() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate [message]",
		Short: "Score a message against the configured rules",
		Long: strings.TrimSpace(`Run one message through the decision engine and print the decision as JSON.

The word memory is read for history scoring but not updated unless --record
is given. With --interactive, every entered line is evaluated in turn.`),
		Example: strings.Join([]string{
			`  dotmod evaluate "join my server discord.gg/abc"`,
			`  dotmod evaluate --channel 123 --author 456 --record "kys"`,
			"  dotmod evaluate --interactive",
		}, "\n"),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := ""
			if len(args) == 1 {
				content = args[0]
			}
			return evaluateCmd(cmd.OutOrStdout(), opts, content)
		},
	}
	cmd.Flags().StringVar(&opts.communityID, "guild", "", "Guild (community) ID used for history lookups")
	cmd.Flags().StringVar(&opts.channelID, "channel", "", "Channel ID used for history and channel weight")
	cmd.Flags().StringVar(&opts.authorID, "author", "", "Author ID used for history lookups")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record the message into word memory after deciding")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Evaluate lines read from the terminal")
	return cmd
}

func newMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain the word memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print word memory statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return memoryStatsCmd(cmd.OutOrStdout())
		},
	}

	var recentOpts memoryRecentOptions
	recent := &cobra.Command{
		Use:     "recent",
		Short:   "Show an author's recent messages and top tokens in one channel",
		Example: "  dotmod memory recent --guild 1 --channel 2 --author 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			return memoryRecentCmd(cmd.OutOrStdout(), recentOpts)
		},
	}
	recent.Flags().StringVar(&recentOpts.key.CommunityID, "guild", "", "Guild (community) ID")
	recent.Flags().StringVar(&recentOpts.key.ChannelID, "channel", "", "Channel ID")
	recent.Flags().StringVar(&recentOpts.key.AuthorID, "author", "", "Author ID")
	recent.Flags().IntVarP(&recentOpts.limit, "limit", "n", 10, "Maximum recent messages to show")
	recent.Flags().IntVar(&recentOpts.top, "top", 10, "Number of top tokens to show")

	compact := &cobra.Command{
		Use:   "compact",
		Short: "Drop expired events and rewrite the memory log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return memoryCompactCmd(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(stats, recent, compact)
	return cmd
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the decision audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var listOpts auditListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List logged decisions, newest first",
		Example: strings.Join([]string{
			"  dotmod audit list --limit 50",
			"  dotmod audit list --action DELETE",
			"  dotmod audit list --guild 1 --author 3 --json",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditListCmd(cmd.OutOrStdout(), listOpts)
		},
	}
	list.Flags().IntVarP(&listOpts.limit, "limit", "n", 20, "Maximum decisions to list")
	list.Flags().StringVar(&listOpts.action, "action", "", "Only list decisions with this final action")
	list.Flags().StringVar(&listOpts.communityID, "guild", "", "Guild (community) ID, used with --author")
	list.Flags().StringVar(&listOpts.authorID, "author", "", "Only list decisions about this author")
	list.Flags().BoolVar(&listOpts.asJSON, "json", false, "Print entries as JSON")

	counts := &cobra.Command{
		Use:   "counts",
		Short: "Count logged decisions by action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditCountsCmd(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(list, counts)
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and storage status",
		Example: "  dotmod status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Example: "  dotmod version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
