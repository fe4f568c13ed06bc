// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/expression-learner/internal/feeds"
)

var topicsCmd = &cobra.Command{
	Use:   "topics [source...]",
	Short: "List news headlines used as conversation topics",
	Long: `Topics fetches the configured RSS and Atom feeds and prints their latest
headlines. Name one or more sources to restrict the listing; with none,
every configured source is shown. A feed that fails to load is reported
and listed as empty.`,
	RunE: runTopics,
}

func init() {
	topicsCmd.Flags().Int("limit", 0, "headlines per source (default from config, 10)")
	topicsCmd.Flags().Bool("json", false, "output topics as JSON")
	topicsCmd.Flags().Bool("stats", false, "report feed cache statistics on stderr")

	rootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	client := feeds.NewClient(cfg.Feeds, logger)
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = client.DefaultLimit()
	}

	var sources []string
	if len(args) > 0 {
		known := map[string]bool{}
		for _, s := range client.Sources() {
			known[s] = true
		}
		for _, s := range args {
			if !known[s] {
				return fmt.Errorf("unknown source %q; available: %v", s, client.Sources())
			}
		}
		sources = args
	}

	results := client.TopicsFromSources(context.Background(), sources, limit)
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		cs := client.CacheStats()
		fmt.Fprintf(cmd.ErrOrStderr(), "Feed cache: %d entries, %d expired\n", cs.TotalEntries, cs.ExpiredEntries)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n", name)
		if len(results[name]) == 0 {
			fmt.Fprintln(out, "  (no topics)")
			continue
		}
		for j, t := range results[name] {
			fmt.Fprintf(out, "  %2d. %s\n      %s\n", j+1, t.Headline, t.URL)
		}
	}
	return nil
}
