package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/stratamem/pkg/config"
	"github.com/dotsetgreg/stratamem/pkg/memory"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "stratamem",
		Short: "Hybrid multi-tier memory: vector, episodic, semantic, and working tiers",
		Long: strings.TrimSpace(`stratamem is a four-tier memory subsystem.

Use CLI commands to append events to the durable episodic log, search across
tiers, run consolidation passes, and inspect memory statistics. The shell
command opens an interactive session against a live in-process stack.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newInitCommand())
	root.AddCommand(newLogCommand())
	root.AddCommand(newRecentCommand())
	root.AddCommand(newSearchCommand())
	root.AddCommand(newConsolidateCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newShellCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "init",
		Short:   "Initialize ~/.stratamem config and workspace directories",
		Example: "  stratamem init",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfigPath()
			if _, err := os.Stat(path); err == nil {
				cmd.Printf("Config already exists at %s\n", path)
				return nil
			}
			cfg := config.DefaultConfig()
			if err := config.SaveConfig(path, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if err := os.MkdirAll(cfg.WorkspacePath(), 0755); err != nil {
				return fmt.Errorf("create workspace: %w", err)
			}
			cmd.Printf("Created %s\n", path)
			cmd.Printf("Workspace at %s\n", cfg.WorkspacePath())
			return nil
		},
	}
}

func newLogCommand() *cobra.Command {
	var eventType string

	cmd := &cobra.Command{
		Use:   "log <text>",
		Short: "Append an event to the episodic log",
		Long:  "Store a timestamped event in the durable episodic tier, embedding the text for later similarity search.",
		Example: strings.Join([]string{
			"  stratamem log \"deployed release 1.4 to staging\"",
			"  stratamem log --type deploy \"rolled back 1.4\"",
		}, "\n"),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			text := strings.Join(args, " ")
			ev := memory.EpisodicEvent{
				Type:      eventType,
				Context:   map[string]any{"content": text},
				Embedding: rt.embedder.Embed(text),
			}
			if err := rt.episodic.StoreEvent(cmd.Context(), ev); err != nil {
				return err
			}
			cmd.Println("Logged.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventType, "type", "t", "note", "Event type")
	return cmd
}

func newRecentCommand() *cobra.Command {
	var count int
	var eventType string

	cmd := &cobra.Command{
		Use:     "recent",
		Short:   "List recent episodic events",
		Example: "  stratamem recent -n 20",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			var events []memory.EpisodicEvent
			if eventType != "" {
				events, err = rt.episodic.RetrieveByType(cmd.Context(), eventType)
				if len(events) > count {
					events = events[len(events)-count:]
				}
			} else {
				events, err = rt.episodic.RetrieveRecent(cmd.Context(), count)
			}
			if err != nil {
				return err
			}
			if len(events) == 0 {
				cmd.Println("No events.")
				return nil
			}
			for _, ev := range events {
				printEvent(cmd, ev)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 10, "Maximum events to list")
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "Filter by event type")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:     "search <text>",
		Short:   "Search all memory tiers by similarity",
		Example: "  stratamem search \"staging deploy\" -k 5",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			if k <= 0 {
				k = rt.cfg.Search.DefaultK
			}
			query := rt.embedder.Embed(strings.Join(args, " "))
			results, err := rt.coordinator.IntegratedSearch(cmd.Context(), query, k)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				cmd.Println("No matches.")
				return nil
			}
			for _, r := range results {
				cmd.Printf("%-9s %.4f  %s  %s\n", r.Tier, r.Score, r.ID, r.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "limit", "k", 0, "Number of results (default from config)")
	return cmd
}

func newConsolidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "consolidate",
		Short:   "Promote recent episodic events into the semantic graph",
		Long:    "Run an episodic-to-semantic consolidation pass over the durable event log.",
		Example: "  stratamem consolidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			applied, err := rt.coordinator.ConsolidateEpisodicToSemantic(cmd.Context(), rt.cfg.Consolidation.RecentEventLimit)
			if err != nil {
				return err
			}
			cmd.Printf("Applied %d semantic upserts.\n", applied)
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show per-tier entry counts",
		Example: "  stratamem stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			printStats(cmd.Context(), cmd, rt)
			return nil
		},
	}
}

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "shell",
		Short:   "Open an interactive session against a live memory stack",
		Example: "  stratamem shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntimeFromConfig()
			if err != nil {
				return err
			}
			defer rt.Close()

			return runShell(cmd.Context(), rt)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  stratamem version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func openRuntimeFromConfig() (*memoryRuntime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openRuntime(cfg)
}

func printEvent(cmd *cobra.Command, ev memory.EpisodicEvent) {
	content := ""
	if s, ok := ev.Context["content"].(string); ok {
		content = s
	}
	cmd.Printf("%s  %-12s %s  %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, ev.ID, content)
}

func printStats(ctx context.Context, cmd *cobra.Command, rt *memoryRuntime) {
	stats, err := rt.coordinator.MemoryStatistics(ctx)
	if err != nil {
		cmd.Printf("stats unavailable: %v\n", err)
		return
	}
	cmd.Printf("vector:   %d\n", stats.Vector)
	cmd.Printf("episodic: %d\n", stats.Episodic)
	cmd.Printf("semantic: %d\n", stats.Semantic)
	cmd.Printf("working:  %d\n", stats.Working)
	cmd.Printf("total:    %d\n", stats.Total)

	m := rt.coordinator.ConsolidationMetrics()
	if m.Total > 0 {
		cmd.Printf("consolidated: %d (working->episodic %d, episodic->semantic %d)\n",
			m.Total, m.WorkingToEpisodic, m.EpisodicToSemantic)
	}
}
