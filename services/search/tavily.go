package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"movieagent/internal/httpc"
)

const tavilyURL = "https://api.tavily.com/search"

type Tavily struct {
	apiKey   string
	endpoint string
	caller   *httpc.Caller
}

func NewTavily(apiKey string, httpClient *http.Client, endpoint string, retries int) *Tavily {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = tavilyURL
	}
	return &Tavily{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		caller:   &httpc.Caller{HTTP: httpClient, Service: "tavily", Retries: retries},
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	IncludeAnswer  bool     `json:"include_answer"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, req Request) ([]Result, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:          req.Query,
		MaxResults:     maxResults(req.MaxResults),
		SearchDepth:    "basic",
		IncludeDomains: req.Domains,
	})
	if err != nil {
		return nil, err
	}
	var resp tavilyResponse
	err = t.caller.JSON(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+t.apiKey)
		return r, nil
	}, &resp)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return clean(results), nil
}
