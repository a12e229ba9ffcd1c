package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/pkg/utils"
)

const (
	maxExtractedSentences = 3
	fallbackExcerptRunes  = 300
	sourceNoteWindow      = 3
)

// ExtractiveSynthesizer answers from the top result alone by lexical sentence overlap.
type ExtractiveSynthesizer struct{}

// Mode returns ModeExtractive.
func (e *ExtractiveSynthesizer) Mode() string {
	return ModeExtractive
}

// Synthesize picks sentences from the top chunk that share a word with the query.
func (e *ExtractiveSynthesizer) Synthesize(_ context.Context, query string, results []models.QueryResult) string {
	if len(results) == 0 {
		return NoInformationMessage
	}
	top := results[0]

	queryWords := wordSet(query)
	var matched []string
	for _, s := range splitSentences(top.Text) {
		if intersects(queryWords, wordSet(s)) {
			matched = append(matched, s)
			if len(matched) == maxExtractedSentences {
				break
			}
		}
	}

	var b strings.Builder
	if len(matched) > 0 {
		b.WriteString("Based on the available information:\n\n")
		b.WriteString(strings.Join(matched, ". "))
	} else {
		fmt.Fprintf(&b, "I found information related to your query in %s, but I couldn't extract specific details. Here's what I found:\n\n",
			top.Metadata.SourceOr("the document"))
		b.WriteString(utils.Truncate(top.Text, fallbackExcerptRunes))
	}
	fmt.Fprintf(&b, "\n\nSource: %s (Relevance: %.2f)", top.Metadata.SourceOr("Unknown document"), top.Score)

	if len(results) > 1 {
		if sources := distinctSources(results, sourceNoteWindow); len(sources) > 1 {
			fmt.Fprintf(&b, "\n\nInformation was found across %d sources: %s", len(sources), strings.Join(sources, ", "))
		}
	}
	return b.String()
}

// splitSentences splits on '.', '!' and '?' and drops blank segments.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

// distinctSources lists the distinct source labels among the first n results, in first-seen order.
func distinctSources(results []models.QueryResult, n int) []string {
	if len(results) > n {
		results = results[:n]
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		src := r.Metadata.SourceOr("Unknown")
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}
