// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/expression-learner/internal/sessions"
	"github.com/pdiddy/expression-learner/pkg/types"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions and learned expressions",
	Long: `Sessions reads the local session database written by serve. Use
subcommands to list sessions, search the expressions extracted from
assistant replies, or export them.`,
}

// --- list subcommand ---

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionsList,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if list == nil {
			list = []types.Session{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVARIANT\tTURNS\tCREATED\tTOPIC")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Variant, s.TurnCount, s.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(s.Topic, 50))
	}
	return tw.Flush()
}

// --- search subcommand ---

var sessionsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search learned expressions by phrase or meaning",
	Long: `Search matches every word of the query against the phrase and meaning
of stored expressions, using the full-text index when SQLite provides
FTS5. Without a query it lists expressions in session and turn order.`,
	RunE: runSessionsSearch,
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.SearchExpressions(context.Background(), queryOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if results == nil {
			results = []sessions.SearchResult{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return formatSearchOutput(out, results)
}

func formatSearchOutput(w io.Writer, results []sessions.SearchResult) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPHRASE\tMEANING\tSESSION\tTURN")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n",
			i+1, truncate(r.Phrase, 40), truncate(r.Meaning, 50), shortID(r.SessionID), r.Turn)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var sessionsExportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Export learned expressions to YAML or JSON",
	Long: `Export writes the stored expressions, or the subset matching a query
and --session, to standard output or to the file named by --output.`,
	RunE: runSessionsExport,
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	opts := queryOptsFromFlags(cmd, args)
	ctx := context.Background()
	switch format {
	case "yaml", "":
		err = store.ExportYAML(ctx, w, opts)
	case "json":
		err = store.ExportJSON(ctx, w, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
	}
	return nil
}

func init() {
	sessionsListCmd.Flags().Bool("json", false, "output sessions as JSON")

	sessionsSearchCmd.Flags().String("session", "", "restrict to one session ID")
	sessionsSearchCmd.Flags().Int("limit", 0, "maximum results (default from config, 20)")
	sessionsSearchCmd.Flags().Bool("json", false, "output results as JSON")

	sessionsExportCmd.Flags().String("session", "", "restrict to one session ID")
	sessionsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	sessionsExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsSearchCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// --- shared helpers ---

func openStore() (*sessions.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no session database at %s; run serve first", cfg.Store.Path)
	}
	return sessions.Open(cfg.Store)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) sessions.QueryOptions {
	sessionID, _ := cmd.Flags().GetString("session")
	opts := sessions.QueryOptions{
		Query:     strings.Join(args, " "),
		SessionID: sessionID,
	}
	if cmd.Flags().Lookup("limit") != nil {
		opts.MaxResults, _ = cmd.Flags().GetInt("limit")
	}
	return opts
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
