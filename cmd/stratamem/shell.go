package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/stratamem/pkg/memory"
)

const shellHelp = `Commands:
  remember <text>            add a working-memory context (attention 0.8)
  remember @<a> <text>       add with explicit attention, e.g. @0.5
  log <type> <text>          append an episodic event
  search <text>              integrated search across all tiers
  recall [min]               list active working contexts
  relate <a> <rel> <b> [w]   add concepts a and b with a weighted relation
  path <a> <b>               shortest path between two concepts
  consolidate                run both consolidation passes
  decay                      apply the configured attention decay
  stats                      per-tier entry counts
  help                       this help
  exit                       leave the shell`

func runShell(ctx context.Context, rt *memoryRuntime) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".stratamem_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("stratamem shell. Type 'help' for commands, 'exit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := dispatchShellCommand(ctx, rt, input); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func dispatchShellCommand(ctx context.Context, rt *memoryRuntime, input string) error {
	fields := strings.Fields(input)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Println(shellHelp)
		return nil
	case "remember":
		return shellRemember(ctx, rt, rest)
	case "log":
		return shellLog(ctx, rt, rest)
	case "search":
		return shellSearch(ctx, rt, rest)
	case "recall":
		return shellRecall(ctx, rt, rest)
	case "relate":
		return shellRelate(ctx, rt, rest)
	case "path":
		return shellPath(ctx, rt, rest)
	case "consolidate":
		return shellConsolidate(ctx, rt)
	case "decay":
		return rt.coordinator.Decay(ctx, rt.cfg.Consolidation.DecayFactor)
	case "stats":
		printStatsPlain(ctx, rt)
		return nil
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func shellRemember(ctx context.Context, rt *memoryRuntime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: remember [@attention] <text>")
	}
	attention := 0.8
	if strings.HasPrefix(args[0], "@") {
		v, err := strconv.ParseFloat(args[0][1:], 64)
		if err != nil {
			return fmt.Errorf("bad attention %q", args[0])
		}
		attention = v
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: remember [@attention] <text>")
	}
	text := strings.Join(args, " ")
	return rt.coordinator.Remember(ctx, memory.WorkingContext{
		Content:   text,
		Attention: attention,
		Embedding: rt.embedder.Embed(text),
	})
}

func shellLog(ctx context.Context, rt *memoryRuntime, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: log <type> <text>")
	}
	text := strings.Join(args[1:], " ")
	return rt.episodic.StoreEvent(ctx, memory.EpisodicEvent{
		Type:      args[0],
		Context:   map[string]any{"content": text},
		Embedding: rt.embedder.Embed(text),
	})
}

func shellSearch(ctx context.Context, rt *memoryRuntime, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <text>")
	}
	query := rt.embedder.Embed(strings.Join(args, " "))
	results, err := rt.coordinator.IntegratedSearch(ctx, query, rt.cfg.Search.DefaultK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%-9s %.4f  %s  %s\n", r.Tier, r.Score, r.ID, r.Content)
	}
	return nil
}

func shellRecall(ctx context.Context, rt *memoryRuntime, args []string) error {
	min := 0.0
	if len(args) > 0 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("bad minimum attention %q", args[0])
		}
		min = v
	}
	contexts, err := rt.coordinator.ActiveContexts(ctx, min)
	if err != nil {
		return err
	}
	if len(contexts) == 0 {
		fmt.Println("Nothing in working memory.")
		return nil
	}
	for _, wc := range contexts {
		fmt.Printf("%.2f  %s  %s\n", wc.Attention, wc.ID, wc.Content)
	}
	return nil
}

func shellRelate(ctx context.Context, rt *memoryRuntime, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: relate <concept> <relation> <concept> [weight]")
	}
	weight := 0.5
	if len(args) >= 4 {
		v, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("bad weight %q", args[3])
		}
		weight = v
	}
	return rt.coordinator.Relate(ctx, args[0], args[2], args[1], weight)
}

func shellPath(ctx context.Context, rt *memoryRuntime, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: path <concept> <concept>")
	}
	path, err := rt.coordinator.ConceptPath(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(path, " -> "))
	return nil
}

func shellConsolidate(ctx context.Context, rt *memoryRuntime) error {
	moved, err := rt.coordinator.ConsolidateWorkingToEpisodic(ctx, rt.cfg.Consolidation.ImportanceThreshold)
	if err != nil {
		return err
	}
	applied, err := rt.coordinator.ConsolidateEpisodicToSemantic(ctx, rt.cfg.Consolidation.RecentEventLimit)
	if err != nil {
		return err
	}
	fmt.Printf("Moved %d contexts to episodic, applied %d semantic upserts.\n", moved, applied)
	return nil
}

func printStatsPlain(ctx context.Context, rt *memoryRuntime) {
	stats, err := rt.coordinator.MemoryStatistics(ctx)
	if err != nil {
		fmt.Printf("stats unavailable: %v\n", err)
		return
	}
	fmt.Printf("vector %d, episodic %d, semantic %d, working %d (total %d)\n",
		stats.Vector, stats.Episodic, stats.Semantic, stats.Working, stats.Total)

	snap := rt.coordinator.PerformanceSnapshot()
	fmt.Printf("search %.2fms, storage %.2fms, cache hit %.0f%%, rss %.1fMB\n",
		snap.SearchLatencyMS, snap.StorageLatencyMS, snap.CacheHitRate*100, snap.MemoryUsageMB)
}
