// Package discovery resolves free-text movie and OTT queries by fusing
// catalogue metadata, web search results and model output into the fixed
// response envelope.
package discovery

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"movieagent/config"
	"movieagent/models"
	"movieagent/services/cache"
	"movieagent/services/classifier"
	"movieagent/services/llm"
	"movieagent/services/metadata"
	"movieagent/services/search"
)

// MovieDB is the catalogue used for lookups, trending lists and platforms.
type MovieDB interface {
	Search(ctx context.Context, mediaType models.MediaType, query string, year int) ([]metadata.TMDBResult, error)
	Details(ctx context.Context, mediaType models.MediaType, id int64) (*metadata.TMDBDetails, error)
	NowPlaying(ctx context.Context, mediaType models.MediaType) ([]metadata.TMDBResult, error)
	Trending(ctx context.Context, mediaType models.MediaType) ([]metadata.TMDBResult, error)
	Genres(ctx context.Context, mediaType models.MediaType) (map[int]string, error)
	WatchProviders(ctx context.Context, mediaType models.MediaType, id int64) (string, error)
	Region() string
}

// RatingsDB supplies ratings and secondary metadata by title.
type RatingsDB interface {
	Lookup(ctx context.Context, title string, year int, mediaType models.MediaType) (*metadata.OMDBTitle, error)
}

// Store caches response envelopes.
type Store interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Classifier labels a query as a list or a single-title request.
type Classifier interface {
	Classify(ctx context.Context, query string) classifier.Result
}

// Deps are the providers a Pipeline may use. Any of them may be nil when the
// matching credential is not configured.
type Deps struct {
	TMDB       MovieDB
	OMDB       RatingsDB
	Search     search.Searcher
	LLM        llm.Client
	Classifier Classifier
	Cache      Store
}

// Options tune pipeline behaviour. Zero values take defaults.
type Options struct {
	Region           string
	DefaultPageSize  int
	MaxPageSize      int
	WeeklyWindowDays int
	SearchResults    int
	MaxConcurrency   int
	ListReviews      bool
	ReviewDomains    []string
	// Now is the clock used for the weekly window.
	Now func() time.Time
}

// OptionsFromConfig maps the discovery and upstream settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Region:           cfg.Discovery.Region,
		DefaultPageSize:  cfg.Discovery.DefaultPageSize,
		MaxPageSize:      cfg.Discovery.MaxPageSize,
		WeeklyWindowDays: cfg.Discovery.WeeklyWindowDays,
		SearchResults:    cfg.Discovery.SearchResults,
		MaxConcurrency:   cfg.Upstream.MaxConcurrency,
		ListReviews:      cfg.Discovery.ListReviews,
		ReviewDomains:    cfg.Discovery.ReviewDomains,
	}
}

const (
	digestChars         = 6000
	noReviews           = "No reviews available"
	noDescription       = "Description not available"
	defaultPageSize     = 10
	defaultMaxPageSize  = 50
	defaultWindowDays   = 10
	defaultSearchCount  = 8
	defaultConcurrency  = 8
	reviewMaxTokens     = 600
	extractionMaxTokens = 1500
)

type Pipeline struct {
	tmdb       MovieDB
	omdb       RatingsDB
	search     search.Searcher
	llm        llm.Client
	classifier Classifier
	cache      Store
	opts       Options
}

func New(deps Deps, opts Options) *Pipeline {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaultMaxPageSize
	}
	if opts.WeeklyWindowDays <= 0 {
		opts.WeeklyWindowDays = defaultWindowDays
	}
	if opts.SearchResults <= 0 {
		opts.SearchResults = defaultSearchCount
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultConcurrency
	}
	if strings.TrimSpace(opts.Region) == "" {
		opts.Region = "IN"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cls := deps.Classifier
	if cls == nil {
		cls = classifier.New(nil, 0)
	}
	return &Pipeline{
		tmdb:       deps.TMDB,
		omdb:       deps.OMDB,
		search:     deps.Search,
		llm:        deps.LLM,
		classifier: cls,
		cache:      deps.Cache,
		opts:       opts,
	}
}

// NormalizeQuery trims the text and applies paging defaults and limits.
func (p *Pipeline) NormalizeQuery(q models.Query) models.Query {
	q.Text = strings.Join(strings.Fields(q.Text), " ")
	if q.Type == "" {
		q.Type = models.MediaTypeMovie
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = p.opts.DefaultPageSize
	}
	if q.PageSize > p.opts.MaxPageSize {
		q.PageSize = p.opts.MaxPageSize
	}
	return q
}

// Resolve classifies the query and runs the matching resolver. Only
// envelopes without search hints are cached.
func (p *Pipeline) Resolve(ctx context.Context, q models.Query) (models.Envelope, error) {
	q = p.NormalizeQuery(q)
	key := cacheKeyFor(q)
	if p.cache != nil {
		var cached models.Envelope
		if ok, err := p.cache.Get(key, &cached); err != nil {
			log.Printf("[discovery] cache read failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	var (
		env models.Envelope
		err error
	)
	switch {
	case q.Weekly:
		env, err = p.ResolveWeekly(ctx, q)
	default:
		result := p.classifier.Classify(ctx, q.Text)
		log.Printf("[discovery] query=%q classified %s by %s", q.Text, result.Kind, result.Stage)
		if result.Kind == classifier.List {
			env, err = p.ResolveList(ctx, q)
		} else {
			env, err = p.ResolveSpecific(ctx, q)
		}
	}
	if err != nil {
		return models.Envelope{}, err
	}

	if p.cache != nil && !env.Degraded() {
		if err := p.cache.Set(key, env); err != nil {
			log.Printf("[discovery] cache write failed: %v", err)
		}
	}
	return env, nil
}

func cacheKeyFor(q models.Query) string {
	return cache.Key(
		FoldTitle(q.Text),
		string(q.Type),
		strconv.FormatBool(q.Weekly),
		strconv.Itoa(q.Page),
		strconv.Itoa(q.PageSize),
	)
}

// missingKeys lists the credentials that would enable a request given which
// providers are absent.
func (p *Pipeline) missingKeys(needTMDB, needSearch, needLLM bool) []string {
	var keys []string
	if needTMDB && p.tmdb == nil {
		keys = append(keys, config.EnvTMDBKey)
	}
	if needSearch && p.search == nil {
		keys = append(keys, config.EnvTavilyKey+" or "+config.EnvSerpAPIKey)
	}
	if needLLM && p.llm == nil {
		keys = append(keys, config.EnvPerplexityKey+" or "+config.EnvGeminiKey)
	}
	return keys
}

func (p *Pipeline) complete(ctx context.Context, req llm.Request) (string, error) {
	started := time.Now()
	reply, err := p.llm.Complete(ctx, req)
	if err != nil {
		log.Printf("[discovery] %s completion failed after %s: %v", p.llm.Name(), time.Since(started).Round(time.Millisecond), err)
		return "", err
	}
	return reply, nil
}

func (p *Pipeline) searchWeb(ctx context.Context, req search.Request) ([]search.Result, error) {
	if req.Region == "" {
		req.Region = p.opts.Region
	}
	return p.search.Search(ctx, req)
}
