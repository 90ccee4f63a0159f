package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"movieagent/config"
	"movieagent/internal/httpc"
	"movieagent/services/cache"
	"movieagent/services/classifier"
	"movieagent/services/discovery"
	"movieagent/services/llm"
	"movieagent/services/metadata"
	"movieagent/services/search"
)

// app holds the wired services for one process.
type app struct {
	cfg       *config.Config
	cache     *cache.Cache
	pipeline  *discovery.Pipeline
	providers []string
}

// newApp builds every provider that has a credential. Providers without one
// stay nil so the pipeline can report which keys are missing.
func newApp(ctx context.Context, cfg *config.Config) *app {
	client := httpc.NewClient(httpc.Options{
		Timeout:           cfg.Upstream.Timeout.Std(),
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		UserAgent:         cfg.Upstream.UserAgent,
	})
	store := cache.New(cfg.Cache.Size, cfg.Cache.TTL.Std())
	creds := cfg.Credentials
	retries := cfg.Upstream.Retries

	deps := discovery.Deps{Cache: store}
	if creds.TMDB != "" {
		deps.TMDB = metadata.NewTMDBClient(creds.TMDB, client, metadata.TMDBOptions{
			Language: cfg.Discovery.Language,
			Region:   cfg.Discovery.Region,
			Retries:  retries,
			Cache:    store,
		})
	}
	if creds.OMDB != "" {
		deps.OMDB = metadata.NewOMDBClient(creds.OMDB, client, "", retries)
	}

	var chain search.Chain
	if creds.Tavily != "" {
		chain = append(chain, search.NewTavily(creds.Tavily, client, "", retries))
	}
	if creds.SerpAPI != "" {
		chain = append(chain, search.NewSerpAPI(creds.SerpAPI, client, "", retries))
	}
	if len(chain) > 0 {
		deps.Search = chain
	}

	perplexity, gemini := buildModels(ctx, cfg, client)
	switch {
	case perplexity != nil:
		deps.LLM = perplexity
	case gemini != nil:
		deps.LLM = gemini
	}
	deps.Classifier = classifier.New(classifierModel(cfg.LLM.Classifier, perplexity, gemini), cfg.Discovery.ShortQueryWords)

	providers := creds.Configured()
	if missing := creds.Missing(config.EnvTMDBKey, config.EnvTavilyKey, config.EnvPerplexityKey, config.EnvGeminiKey); len(missing) > 0 {
		log.Printf("[movie-agent] not configured: %s", strings.Join(missing, ", "))
	}
	log.Printf("[movie-agent] providers: %s", strings.Join(providers, ", "))

	return &app{
		cfg:       cfg,
		cache:     store,
		pipeline:  discovery.New(deps, discovery.OptionsFromConfig(cfg)),
		providers: providers,
	}
}

// buildModels returns the configured model clients. Either may be nil.
func buildModels(ctx context.Context, cfg *config.Config, client *http.Client) (llm.Client, llm.Client) {
	var perplexity, gemini llm.Client
	creds := cfg.Credentials
	if creds.Perplexity != "" {
		perplexity = llm.NewPerplexity(creds.Perplexity, cfg.LLM.PerplexityModel, client, "", cfg.Upstream.Retries)
	}
	if creds.Gemini != "" {
		g, err := llm.NewGemini(ctx, creds.Gemini, cfg.LLM.GeminiModel, client, cfg.Upstream.Retries)
		if err != nil {
			log.Printf("[movie-agent] gemini disabled: %v", err)
		} else {
			gemini = g
		}
	}
	return perplexity, gemini
}

// classifierModel picks the model used to classify ambiguous queries.
// Gemini is preferred because classification needs only one short token.
func classifierModel(choice string, perplexity, gemini llm.Client) llm.Client {
	switch choice {
	case "none", "off", "rules":
		return nil
	case "perplexity":
		if perplexity != nil {
			return perplexity
		}
	case "gemini":
		if gemini != nil {
			return gemini
		}
	}
	if gemini != nil {
		return gemini
	}
	return perplexity
}
