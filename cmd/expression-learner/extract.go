// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/expression-learner/internal/expressions"
	"github.com/pdiddy/expression-learner/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract [[phrase::meaning]] expressions from text",
	Long: `Extract reads text from a file, or standard input when no file is given,
and prints every valid [[phrase::meaning]] marker in order of appearance.
Whitespace inside each field is collapsed. Markers with an empty or
overlong field, or with no letters or digits, are skipped.

With --chunk-size the text is fed to the incremental extractor in pieces
of that many bytes, as a streaming reply would arrive. The output is the
same for every chunk size.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Int("chunk-size", 0, "feed the text incrementally in pieces of this many bytes")
	extractCmd.Flags().String("format", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	format, _ := cmd.Flags().GetString("format")
	if chunkSize < 0 {
		return fmt.Errorf("--chunk-size must not be negative")
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var found []types.Expression
	if chunkSize > 0 {
		found = expressions.ExtractFragments(splitChunks(string(data), chunkSize))
	} else {
		found = expressions.Extract(string(data))
	}

	return writeExpressions(cmd.OutOrStdout(), found, format)
}

// splitChunks cuts s into pieces of n bytes. Pieces may end inside a
// multi-byte character.
func splitChunks(s string, n int) []string {
	chunks := make([]string, 0, len(s)/n+1)
	for len(s) > n {
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func writeExpressions(w io.Writer, found []types.Expression, format string) error {
	if found == nil {
		found = []types.Expression{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(found); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if len(found) == 0 {
			fmt.Fprintln(w, "No expressions found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PHRASE\tMEANING")
		for _, e := range found {
			fmt.Fprintf(tw, "%s\t%s\n", e.Phrase, e.Meaning)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d expressions\n", len(found))
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use text, json or yaml", format)
	}
}
