// Package cli formats kioku results, run tallies and status for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText prints one line per result (default).
	OutputText SearchOutputFormat = "text"
	// OutputDetailed adds a flattened snippet under each result.
	OutputDetailed SearchOutputFormat = "detailed"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

const (
	ruleWidth     = 80
	detailSnippet = 100
)

// ParseOutputFormat maps a flag or result_format value to a format. The config
// value "simple" is the same as "text"; empty falls back to def.
func ParseOutputFormat(s string, def SearchOutputFormat) (SearchOutputFormat, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case string(OutputText), config.FormatSimple:
		return OutputText, nil
	case string(OutputDetailed):
		return OutputDetailed, nil
	case string(OutputJSON):
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, detailed or json)", s)
}

// WriteSearchResults writes response to w in the given format. The text formats
// head the list with the query description.
func WriteSearchResults(w io.Writer, query *models.SearchQuery, response *models.SearchResponse, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	if response.Status == models.StatusUnavailable {
		_, err := fmt.Fprintf(w, "Semantic search unavailable: %s\n", response.Reason)
		return err
	}

	desc := query.Description()
	if len(response.Results) == 0 {
		_, err := fmt.Fprintf(w, "No results found for: %s\n", desc)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", desc)
	b.WriteString(strings.Repeat("─", ruleWidth) + "\n")
	for _, r := range response.Results {
		fmt.Fprintf(&b, "%.2f  %s\n", r.Similarity, r.Filename())
		if format == OutputDetailed {
			if r.Snippet != "" {
				fmt.Fprintf(&b, "      %s\n", truncateRunes(utils.Flatten(r.Snippet), detailSnippet))
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteStats writes the tally of one run under title.
func WriteStats(w io.Writer, title string, stats *models.IndexStats) {
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "Duration: %.2f seconds\n", stats.Elapsed.Seconds())
	fmt.Fprintf(w, "Total files: %d\n", stats.Total)
	fmt.Fprintf(w, "Unchanged: %d\n", stats.Unchanged)
	fmt.Fprintf(w, "Processed: %d\n", stats.Processed)
	fmt.Fprintf(w, "Skipped: %d\n", stats.Skipped)
	fmt.Fprintf(w, "Failed: %d\n", stats.Failed)
	fmt.Fprintf(w, "Total tokens: %s\n", Thousands(int64(stats.Tokens)))
	fmt.Fprintf(w, "Total cost: $%.4f\n", stats.Cost)
	if stats.Processed > 0 {
		fmt.Fprintf(w, "Avg tokens/file: %.0f\n", stats.AvgTokens())
		fmt.Fprintf(w, "Processing rate: %.1f files/sec\n", stats.Rate())
	}
	for _, e := range stats.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// WriteStatus writes the index summary.
func WriteStatus(w io.Writer, st *indexer.Status, searchAvailable bool) {
	fmt.Fprintf(w, "Vault: %s\n", st.Vault)
	fmt.Fprintf(w, "Provider: %s (%s, %d dimensions)\n", st.Provider, st.Model, st.Dimensions)
	fmt.Fprintf(w, "Documents: %d\n", st.Documents)
	fmt.Fprintf(w, "Vectors: %d (%d live, %d tombstoned)\n", st.Vectors, st.Live, st.Tombstoned)
	fmt.Fprintf(w, "Total tokens: %s\n", Thousands(int64(st.Tokens)))
	fmt.Fprintf(w, "Total cost: $%.4f\n", st.Cost)
	fmt.Fprintf(w, "Search available: %t\n", searchAvailable)
	fmt.Fprintln(w, "Files:")
	for _, f := range st.Files {
		if f.Exists {
			fmt.Fprintf(w, "  %s (%s)\n", f.Path, FormatBytes(f.Bytes))
		} else {
			fmt.Fprintf(w, "  %s (missing)\n", f.Path)
		}
	}
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(st.DiskBytes))
}

// WriteRuns writes ledger entries as an aligned table, newest first.
func WriteRuns(w io.Writer, runs []*models.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tTOTAL\tPROCESSED\tSKIPPED\tFAILED\tTOKENS\tCOST\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Kind, r.Total, r.Processed, r.Skipped, r.Failed, r.Tokens, r.Cost,
			r.Elapsed.Round(time.Millisecond), r.Error)
	}
	return tw.Flush()
}

// Thousands formats n with comma separators.
func Thousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
