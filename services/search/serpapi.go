package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"movieagent/internal/httpc"
)

const serpAPIURL = "https://serpapi.com/search.json"

type SerpAPI struct {
	apiKey   string
	endpoint string
	caller   *httpc.Caller
}

func NewSerpAPI(apiKey string, httpClient *http.Client, endpoint string, retries int) *SerpAPI {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = serpAPIURL
	}
	return &SerpAPI{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		caller:   &httpc.Caller{HTTP: httpClient, Service: "serpapi", Retries: retries},
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, req Request) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", withSites(req.Query, req.Domains))
	params.Set("num", strconv.Itoa(maxResults(req.MaxResults)))
	params.Set("api_key", s.apiKey)
	if req.Region != "" {
		params.Set("gl", strings.ToLower(req.Region))
	}
	endpoint := s.endpoint + "?" + params.Encode()

	var resp serpResponse
	err := s.caller.JSON(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		// SerpAPI reports an empty result page as an error string.
		if strings.Contains(strings.ToLower(resp.Error), "hasn't returned any results") {
			return nil, nil
		}
		return nil, fmt.Errorf("serpapi: %s", resp.Error)
	}
	results := make([]Result, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		results = append(results, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return clean(results), nil
}

func withSites(query string, domains []string) string {
	if len(domains) == 0 {
		return query
	}
	sites := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			sites = append(sites, "site:"+d)
		}
	}
	if len(sites) == 0 {
		return query
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}
