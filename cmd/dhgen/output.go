package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dhgen/internal/generation"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes a human readable summary of a generation flow.
func printResult(out io.Writer, res *generation.Result) {
	if res == nil {
		return
	}
	header := fmt.Sprintf("Job %s: %s", res.JobID, res.State)
	if res.Character != "" {
		header += " (" + res.Character + ")"
	}
	fmt.Fprintln(out, header)
	if res.Failure != "" {
		fmt.Fprintf(out, "Failure: %s\n", res.Failure)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "Unset slots: %s\n", strings.Join(res.Skipped, ", "))
	}
	if len(res.Files) > 0 {
		rows := make([][]string, 0, len(res.Files))
		for _, f := range res.Files {
			rows = append(rows, []string{
				filepath.Base(f.Path),
				string(f.Artifact.Kind),
				humanize.IBytes(uint64(f.Bytes)),
				shortHash(f.SHA256),
			})
		}
		fmt.Fprintf(out, "Saved to %s\n", res.OutputDir)
		fmt.Fprintln(out, renderTable([]string{"File", "Kind", "Size", "SHA256"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
	}
	for _, uri := range res.Mirrored {
		fmt.Fprintf(out, "Mirrored: %s\n", uri)
	}
	if res.Elapsed > 0 {
		fmt.Fprintf(out, "Elapsed: %s\n", res.Elapsed.Round(100*time.Millisecond))
	}
}

func shortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
