// Package cli renders command output for the ragkb binary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/search"
	"github.com/hyperjump/ragkb/pkg/utils"
)

// OutputFormat selects how command output is rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQueryResponse writes an answer and its sources.
func WriteQueryResponse(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "Sources (%d, %s mode, %dms):\n", len(resp.Sources), resp.Mode, resp.QueryTime)
	for i, src := range resp.Sources {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s [chunk %d] relevance %.3f\n", i+1, src.Source, src.ChunkID, src.RelevanceScore)
		fmt.Fprintf(w, "   %s\n", utils.Truncate(src.ContentPreview, 120))
	}
	fmt.Fprintln(w)
	return nil
}

// WriteDocuments writes a document listing.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tCHUNKS\tSTATUS\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Filename, d.ChunkCount, d.Status, d.UploadTime.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// WriteIngestResult writes the outcome of ingesting one document.
func WriteIngestResult(w io.Writer, doc *models.Document, format OutputFormat) error {
	resp := models.NewIngestResponse(doc)
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s: %s (id %s)\n", resp.Filename, resp.Message, resp.DocID)
	return nil
}

// WriteStats writes knowledge base statistics.
func WriteStats(w io.Writer, stats *search.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Documents:\t%d\n", stats.Documents)
	fmt.Fprintf(tw, "Chunks:\t%d\n", stats.Chunks)
	fmt.Fprintf(tw, "Vectors:\t%d\n", stats.Vector.TotalVectors)
	fmt.Fprintf(tw, "Embedding model:\t%s (%d dims)\n", stats.Vector.ModelName, stats.Vector.Dimension)
	fmt.Fprintf(tw, "Index type:\t%s\n", stats.Vector.IndexType)
	fmt.Fprintf(tw, "FAISS available:\t%t\n", stats.FAISSAvailable)
	fmt.Fprintf(tw, "Answer mode:\t%s\n", stats.Mode)
	fmt.Fprintf(tw, "Disk usage:\t%s\n", FormatBytes(stats.DiskUsageBytes))
	return tw.Flush()
}

// FormatBytes renders n using binary units, e.g. "1.5 KiB".
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
