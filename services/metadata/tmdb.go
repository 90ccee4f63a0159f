package metadata

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"movieagent/internal/httpc"
	"movieagent/models"
	"movieagent/services/cache"
)

const (
	tmdbBaseURL    = "https://api.themoviedb.org/3"
	tmdbImageBase  = "https://image.tmdb.org/t/p/"
	tmdbPosterSize = "w500"
)

// CastLimit is the number of billed cast members kept per title.
const CastLimit = 8

// Store caches decoded values. services/cache.Cache satisfies it.
type Store interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// TMDBOptions configures NewTMDBClient.
type TMDBOptions struct {
	BaseURL  string
	Language string
	Region   string
	Retries  int
	// Cache holds genre lists. Optional.
	Cache Store
}

type TMDBClient struct {
	apiKey   string
	baseURL  string
	language string
	region   string
	caller   *httpc.Caller
	cache    Store
}

func NewTMDBClient(apiKey string, httpClient *http.Client, opts TMDBOptions) *TMDBClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = tmdbBaseURL
	}
	region := strings.ToUpper(strings.TrimSpace(opts.Region))
	if region == "" {
		region = "IN"
	}
	return &TMDBClient{
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  baseURL,
		language: normalizeLanguage(opts.Language),
		region:   region,
		caller:   &httpc.Caller{HTTP: httpClient, Service: "tmdb", Retries: opts.Retries},
		cache:    opts.Cache,
	}
}

func (c *TMDBClient) Region() string { return c.region }

// TMDBResult is one entry of a search, discover or trending listing.
type TMDBResult struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	PosterPath    string  `json:"poster_path"`
	GenreIDs      []int   `json:"genre_ids"`
	VoteAverage   float64 `json:"vote_average"`
	Popularity    float64 `json:"popularity"`
	MediaType     string  `json:"media_type"`
}

// DisplayTitle returns Title for movies and Name for series.
func (r TMDBResult) DisplayTitle() string {
	if strings.TrimSpace(r.Title) != "" {
		return strings.TrimSpace(r.Title)
	}
	return strings.TrimSpace(r.Name)
}

func (r TMDBResult) Date() string {
	if r.ReleaseDate != "" {
		return r.ReleaseDate
	}
	return r.FirstAirDate
}

func (r TMDBResult) Year() int { return parseTMDBYear(r.ReleaseDate, r.FirstAirDate) }

type tmdbListResponse struct {
	Page         int          `json:"page"`
	Results      []TMDBResult `json:"results"`
	TotalResults int          `json:"total_results"`
}

type TMDBGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbProvider struct {
	ProviderName    string `json:"provider_name"`
	DisplayPriority int    `json:"display_priority"`
}

type tmdbRegionProviders struct {
	Flatrate []tmdbProvider `json:"flatrate"`
	Free     []tmdbProvider `json:"free"`
	Ads      []tmdbProvider `json:"ads"`
	Rent     []tmdbProvider `json:"rent"`
	Buy      []tmdbProvider `json:"buy"`
}

type tmdbWatchProviders struct {
	Results map[string]tmdbRegionProviders `json:"results"`
}

// TMDBDetails is a movie or series record with credits and watch providers
// appended.
type TMDBDetails struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Name         string      `json:"name"`
	Overview     string      `json:"overview"`
	ReleaseDate  string      `json:"release_date"`
	FirstAirDate string      `json:"first_air_date"`
	Genres       []TMDBGenre `json:"genres"`
	VoteAverage  float64     `json:"vote_average"`
	PosterPath   string      `json:"poster_path"`
	IMDBID       string      `json:"imdb_id"`
	CreatedBy    []struct {
		Name string `json:"name"`
	} `json:"created_by"`
	Credits struct {
		Cast []struct {
			Name  string `json:"name"`
			Order int    `json:"order"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	ExternalIDs struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
	WatchProviders tmdbWatchProviders `json:"watch/providers"`
}

func (d *TMDBDetails) DisplayTitle() string {
	if strings.TrimSpace(d.Title) != "" {
		return strings.TrimSpace(d.Title)
	}
	return strings.TrimSpace(d.Name)
}

func (d *TMDBDetails) Date() string {
	if d.ReleaseDate != "" {
		return d.ReleaseDate
	}
	return d.FirstAirDate
}

func (d *TMDBDetails) Year() int { return parseTMDBYear(d.ReleaseDate, d.FirstAirDate) }

// GenreNames returns the genre names in TMDB order.
func (d *TMDBDetails) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// CastNames returns up to limit billed cast members.
func (d *TMDBDetails) CastNames(limit int) []string {
	cast := append(d.Credits.Cast[:0:0], d.Credits.Cast...)
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	names := make([]string, 0, limit)
	for _, member := range cast {
		if len(names) == limit {
			break
		}
		if member.Name != "" {
			names = append(names, member.Name)
		}
	}
	return names
}

// Director returns the credited director, or the series creators.
func (d *TMDBDetails) Director() string {
	for _, member := range d.Credits.Crew {
		if member.Job == "Director" && member.Name != "" {
			return member.Name
		}
	}
	creators := make([]string, 0, len(d.CreatedBy))
	for _, c := range d.CreatedBy {
		if c.Name != "" {
			creators = append(creators, c.Name)
		}
	}
	return strings.Join(creators, ", ")
}

func (d *TMDBDetails) IMDb() string {
	if d.IMDBID != "" {
		return d.IMDBID
	}
	return d.ExternalIDs.IMDBID
}

// Platform returns the streaming services offering the title in region.
func (d *TMDBDetails) Platform(region string) string {
	return d.WatchProviders.platform(region)
}

func (w tmdbWatchProviders) platform(region string) string {
	entry, ok := w.Results[strings.ToUpper(region)]
	if !ok {
		return ""
	}
	providers := append([]tmdbProvider(nil), entry.Flatrate...)
	if len(providers) == 0 {
		providers = append(append(providers, entry.Free...), entry.Ads...)
	}
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].DisplayPriority < providers[j].DisplayPriority
	})
	seen := make(map[string]struct{}, len(providers))
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		name := strings.TrimSpace(p.ProviderName)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
		if len(names) == 3 {
			break
		}
	}
	return strings.Join(names, ", ")
}

// Search queries /search/{movie|tv}. year narrows the search when positive.
func (c *TMDBClient) Search(ctx context.Context, mediaType models.MediaType, query string, year int) ([]TMDBResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("region", c.region)
	if year > 0 {
		if mediaType == models.MediaTypeTV {
			params.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			params.Set("year", strconv.Itoa(year))
		}
	}
	var resp tmdbListResponse
	if err := c.get(ctx, "/search/"+tmdbKind(mediaType), params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Details fetches one title with credits, external ids and watch providers.
func (c *TMDBClient) Details(ctx context.Context, mediaType models.MediaType, id int64) (*TMDBDetails, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits,watch/providers,external_ids")
	var details TMDBDetails
	if err := c.get(ctx, fmt.Sprintf("/%s/%d", tmdbKind(mediaType), id), params, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// NowPlaying lists movies in cinemas or series currently on the air in the
// configured region.
func (c *TMDBClient) NowPlaying(ctx context.Context, mediaType models.MediaType) ([]TMDBResult, error) {
	path := "/movie/now_playing"
	if mediaType == models.MediaTypeTV {
		path = "/tv/on_the_air"
	}
	params := url.Values{}
	params.Set("region", c.region)
	params.Set("page", "1")
	var resp tmdbListResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Trending lists this week's trending titles.
func (c *TMDBClient) Trending(ctx context.Context, mediaType models.MediaType) ([]TMDBResult, error) {
	params := url.Values{}
	params.Set("region", c.region)
	var resp tmdbListResponse
	if err := c.get(ctx, "/trending/"+tmdbKind(mediaType)+"/week", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// WatchProviders returns the platform string for one title in the region.
func (c *TMDBClient) WatchProviders(ctx context.Context, mediaType models.MediaType, id int64) (string, error) {
	var resp tmdbWatchProviders
	if err := c.get(ctx, fmt.Sprintf("/%s/%d/watch/providers", tmdbKind(mediaType), id), url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.platform(c.region), nil
}

// Genres returns the genre id to name map, cached in the shared store when
// one is configured.
func (c *TMDBClient) Genres(ctx context.Context, mediaType models.MediaType) (map[int]string, error) {
	key := cache.Key("tmdb", "genres", tmdbKind(mediaType), c.language)
	if c.cache != nil {
		var cached map[int]string
		if ok, _ := c.cache.Get(key, &cached); ok && len(cached) > 0 {
			return cached, nil
		}
	}
	var resp struct {
		Genres []TMDBGenre `json:"genres"`
	}
	if err := c.get(ctx, "/genre/"+tmdbKind(mediaType)+"/list", url.Values{}, &resp); err != nil {
		return nil, err
	}
	genres := make(map[int]string, len(resp.Genres))
	for _, g := range resp.Genres {
		genres[g.ID] = g.Name
	}
	if c.cache != nil && len(genres) > 0 {
		if err := c.cache.Set(key, genres); err != nil {
			log.Printf("[tmdb] cache genres failed: %v", err)
		}
	}
	return genres, nil
}

func (c *TMDBClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	if params.Get("language") == "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()
	started := time.Now()
	err := c.caller.JSON(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
	if err != nil {
		log.Printf("[tmdb] GET %s failed after %s: %v", path, time.Since(started).Round(time.Millisecond), err)
		return err
	}
	return nil
}

// BestMatch picks the result that best fits query: exact title first, then
// closest fuzzy match, then a matching year, then popularity.
func BestMatch(query string, year int, results []TMDBResult) (TMDBResult, bool) {
	if len(results) == 0 {
		return TMDBResult{}, false
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		result TMDBResult
		exact  bool
		rank   int
		year   bool
	}
	candidates := make([]scored, 0, len(results))
	for _, r := range results {
		title := strings.ToLower(r.DisplayTitle())
		original := strings.ToLower(strings.TrimSpace(r.OriginalTitle + r.OriginalName))
		candidates = append(candidates, scored{
			result: r,
			exact:  title == needle || (original != "" && original == needle),
			rank:   fuzzyRank(needle, title),
			year:   year > 0 && r.Year() == year,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.year != b.year {
			return a.year
		}
		return a.result.Popularity > b.result.Popularity
	})
	return candidates[0].result, true
}

// fuzzyRank returns the edit distance between needle and title when one is a
// fuzzy subsequence of the other, and a large value otherwise.
func fuzzyRank(needle, title string) int {
	const noMatch = 1 << 20
	if rank := fuzzy.RankMatchFold(needle, title); rank >= 0 {
		return rank
	}
	if rank := fuzzy.RankMatchFold(title, needle); rank >= 0 {
		return rank
	}
	return noMatch
}

// PosterURL builds an image URL from a TMDB poster path.
func PosterURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return tmdbImageBase + tmdbPosterSize + path
}

// SplitYear separates a trailing four digit year from a query such as
// "Stree 2 2024".
func SplitYear(query string) (string, int) {
	query = strings.TrimSpace(query)
	fields := strings.Fields(query)
	if len(fields) < 2 {
		return query, 0
	}
	last := strings.Trim(fields[len(fields)-1], "()")
	if len(last) != 4 {
		return query, 0
	}
	year, err := strconv.Atoi(last)
	if err != nil || year < 1888 || year > time.Now().Year()+2 {
		return query, 0
	}
	return strings.Join(fields[:len(fields)-1], " "), year
}

func tmdbKind(mediaType models.MediaType) string {
	if mediaType == models.MediaTypeTV {
		return "tv"
	}
	return "movie"
}

func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return "en-US"
	}
	parts := strings.SplitN(lang, "-", 2)
	base := strings.ToLower(parts[0])
	if len(parts) == 2 && parts[1] != "" {
		return base + "-" + strings.ToUpper(parts[1])
	}
	if base == "en" {
		return "en-US"
	}
	return base
}

func parseTMDBYear(primary, fallback string) int {
	for _, value := range []string{primary, fallback} {
		if len(value) < 4 {
			continue
		}
		if year, err := strconv.Atoi(value[:4]); err == nil {
			return year
		}
	}
	return 0
}
