// Package llm holds the completion clients used for classification,
// extraction and review summaries.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks the model for a JSON reply where the provider supports it.
	JSON bool
}

// Client is implemented by each model provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

var citationPattern = regexp.MustCompile(`[ \t]*\[\d+(?:,\s*\d+)*\]`)

// StripCitations removes bracketed reference markers such as "[1]" or
// "[2, 3]" that search-grounded models append to sentences.
func StripCitations(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
