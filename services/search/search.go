// Package search wraps the web search providers used to ground model output.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// snippetLimit caps each cleaned snippet in runes.
const snippetLimit = 600

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Request describes a search.
type Request struct {
	Query      string
	MaxResults int
	// Domains restricts results to these sites when the provider supports it.
	Domains []string
	// Region is an ISO 3166 country code used for localisation.
	Region string
}

// Searcher is implemented by each provider.
type Searcher interface {
	Name() string
	Search(ctx context.Context, req Request) ([]Result, error)
}

// Chain tries each searcher in order and returns the first non-empty answer.
// An empty answer from any provider without error is reported as an empty
// result; an error is returned only when every provider failed.
type Chain []Searcher

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, ">")
}

func (c Chain) Search(ctx context.Context, req Request) ([]Result, error) {
	if len(c) == 0 {
		return nil, errors.New("search: no providers configured")
	}
	var (
		errs     []error
		answered bool
	)
	for _, s := range c {
		results, err := s.Search(ctx, req)
		if err != nil {
			log.Printf("[search] %s failed for %q: %v", s.Name(), req.Query, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		answered = true
		if len(results) > 0 {
			return results, nil
		}
		log.Printf("[search] %s returned no results for %q", s.Name(), req.Query)
	}
	if answered {
		return nil, nil
	}
	return nil, errors.Join(errs...)
}

// CleanSnippet strips markup from a provider snippet, collapses whitespace
// and truncates the result to at most limit runes.
func CleanSnippet(raw string, limit int) string {
	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			doc.Find("script, style, noscript").Remove()
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:limit])) + "..."
	}
	return text
}

// Digest renders results as plain text for a model prompt, bounded by
// maxChars bytes.
func Digest(results []Result, maxChars int) string {
	var b strings.Builder
	for i, r := range results {
		entry := fmt.Sprintf("[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
		if maxChars > 0 && b.Len()+len(entry) > maxChars {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}

// URLs returns the distinct result URLs in order.
func URLs(results []Result) []string {
	seen := make(map[string]struct{}, len(results))
	urls := make([]string, 0, len(results))
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

func clean(results []Result) []Result {
	out := results[:0]
	for _, r := range results {
		r.Title = CleanSnippet(r.Title, 200)
		r.Snippet = CleanSnippet(r.Snippet, snippetLimit)
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" && r.Snippet == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func maxResults(n int) int {
	if n <= 0 {
		return 5
	}
	if n > 20 {
		return 20
	}
	return n
}
