package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movieagent/models"
	"movieagent/services/metadata"
	"movieagent/services/search"
)

const streeDetails = `{
  "id": 1,
  "title": "Stree 2",
  "overview": "The town of Chanderi is haunted again.",
  "release_date": "2024-08-15",
  "vote_average": 7.2,
  "poster_path": "/stree2.jpg",
  "imdb_id": "tt27510174",
  "genres": [{"id": 27, "name": "Horror"}, {"id": 35, "name": "Comedy"}],
  "credits": {
    "cast": [{"name": "Shraddha Kapoor", "order": 1}, {"name": "Rajkummar Rao", "order": 0}],
    "crew": [{"name": "Amar Kaushik", "job": "Director"}]
  },
  "watch/providers": {"results": {"IN": {"flatrate": [{"provider_name": "Amazon Prime Video", "display_priority": 1}]}}}
}`

func streeTMDB() *fakeTMDB {
	return &fakeTMDB{
		search: map[string][]metadata.TMDBResult{
			"Stree 2": {{ID: 1, Title: "Stree 2", ReleaseDate: "2024-08-15", VoteAverage: 7.2, Popularity: 80}},
		},
		details: map[int64]string{1: streeDetails},
	}
}

func TestResolveSpecificStree2(t *testing.T) {
	p := New(Deps{
		TMDB:   streeTMDB(),
		Search: &fakeSearcher{results: reviewResults},
		LLM:    &fakeLLM{textReply: "Overall assessment: A fun sequel [1].\n\nStory: Tight pacing [2]."},
	}, Options{})

	env, err := p.Resolve(context.Background(), models.Query{Text: "Stree 2", Type: models.MediaTypeMovie})
	require.NoError(t, err)
	require.Equal(t, models.EnvelopeSpecific, env.Kind)
	require.Len(t, env.Items, 1)
	assert.Nil(t, env.Hints)

	item := env.Items[0]
	assert.Equal(t, "Stree 2", item.Title)
	require.NotNil(t, item.Description)
	assert.Equal(t, "The town of Chanderi is haunted again.", *item.Description)
	require.NotNil(t, item.ReviewsSummary)
	assert.Equal(t, "Overall assessment: A fun sequel.\n\nStory: Tight pacing.", *item.ReviewsSummary)
	assert.Equal(t, "movie", item.Type)
	assert.Equal(t, []string{"Rajkummar Rao", "Shraddha Kapoor"}, item.Cast)
	require.NotNil(t, item.Director)
	assert.Equal(t, "Amar Kaushik", *item.Director)
	require.NotNil(t, item.Platform)
	assert.Equal(t, "Amazon Prime Video", *item.Platform)
	require.NotNil(t, item.Genre)
	assert.Equal(t, "Horror, Comedy", *item.Genre)
	require.NotNil(t, item.Rating)
	assert.Equal(t, 7.2, *item.Rating)
	assert.Equal(t, []string{"https://indianexpress.com/stree-2-review", "https://www.ndtv.com/stree-2"}, item.Sources)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/stree2.jpg", item.Poster)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body, "movies")
	assert.NotContains(t, body, "search_hints")
}

func TestResolveSpecificSearchesReviewDomainsFirst(t *testing.T) {
	searcher := &fakeSearcher{}
	p := New(Deps{TMDB: streeTMDB(), Search: searcher, LLM: &fakeLLM{textReply: "ok"}}, Options{ReviewDomains: []string{"ndtv.com"}})

	_, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Stree 2"})
	require.NoError(t, err)
	require.Len(t, searcher.requests, 2)
	assert.Equal(t, "Stree 2 movie reviews", searcher.requests[0].Query)
	assert.Equal(t, []string{"ndtv.com"}, searcher.requests[0].Domains)
	assert.Empty(t, searcher.requests[1].Domains)
	assert.Equal(t, "IN", searcher.requests[0].Region)
}

func TestResolveSpecificConfidentAbsence(t *testing.T) {
	model := &fakeLLM{textReply: "unused"}
	p := New(Deps{TMDB: &fakeTMDB{}, Search: &fakeSearcher{}, LLM: model}, Options{})

	_, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Xyzzy Plugh"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, model.callCount())
}

func TestResolveSpecificTrailingYearBelongsToTitle(t *testing.T) {
	catalogue := &fakeTMDB{
		filterYear: true,
		search: map[string][]metadata.TMDBResult{
			"Wonder Woman":      {{ID: 1, Title: "Wonder Woman", ReleaseDate: "2017-05-30", Popularity: 60}},
			"Wonder Woman 1984": {{ID: 2, Title: "Wonder Woman 1984", ReleaseDate: "2020-12-16", VoteAverage: 6.3, Popularity: 40}},
		},
		details: map[int64]string{2: `{"id": 2, "title": "Wonder Woman 1984", "overview": "Diana faces Cheetah.", "release_date": "2020-12-16", "vote_average": 6.3}`},
	}
	p := New(Deps{TMDB: catalogue}, Options{})

	env, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Wonder Woman 1984"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	assert.Nil(t, env.Hints)
	assert.Equal(t, "Wonder Woman 1984", env.Items[0].Title)
	assert.Equal(t, int64(2), env.Items[0].TMDBID)
	assert.Equal(t, 2, catalogue.searchCalls)
}

func TestResolveSpecificYearNarrowedAbsence(t *testing.T) {
	catalogue := &fakeTMDB{filterYear: true}
	p := New(Deps{TMDB: catalogue}, Options{})

	_, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Xyzzy Plugh 1999"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, catalogue.searchCalls)
}

func TestResolveSpecificUpstreamFailureIsNotAbsence(t *testing.T) {
	p := New(Deps{
		TMDB:   &fakeTMDB{searchErr: errors.New("tmdb: status 503")},
		Search: &fakeSearcher{},
		LLM:    &fakeLLM{},
	}, Options{})

	env, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Stree 2"})
	require.NoError(t, err)
	assert.Empty(t, env.Items)
	require.NotNil(t, env.Hints)
	assert.False(t, env.Hints.FoundResults)
	require.NotNil(t, env.Hints.FoundMatch)
	assert.False(t, *env.Hints.FoundMatch)
	assert.NotEmpty(t, env.Hints.Suggestions)
}

func TestResolveSpecificMissingCredentials(t *testing.T) {
	p := New(Deps{Search: &fakeSearcher{}}, Options{})

	_, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Stree 2"})
	require.ErrorIs(t, err, ErrMissingCredential)
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, []string{"TMDB_API_KEY", "PERPLEXITY_API_KEY or GEMINI_API_KEY"}, credErr.Keys)
}

func TestResolveSpecificExtractsFromSnippetsAndAsksOMDB(t *testing.T) {
	ratings := &fakeOMDB{titles: map[string]*metadata.OMDBTitle{
		"Kalki 2898 AD": {Title: "Kalki 2898 AD", IMDBRating: "7.1", Plot: "N/A", Response: "True"},
	}}
	p := New(Deps{
		OMDB:   ratings,
		Search: &fakeSearcher{results: reviewResults},
		LLM: &fakeLLM{
			jsonReply: "```json\n{\"title\": \"Kalki 2898 AD\", \"description\": \"A dystopian epic.\", \"release_date\": \"2024-06-27\", \"cast\": \"Prabhas, Deepika Padukone\", \"rating\": null}\n```",
			textReply: "Overall assessment: Ambitious.",
		},
	}, Options{})

	env, err := p.ResolveSpecific(context.Background(), models.Query{Text: "kalki"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	assert.Nil(t, env.Hints)

	item := env.Items[0]
	assert.Equal(t, "Kalki 2898 AD", item.Title)
	assert.Equal(t, []string{"Prabhas", "Deepika Padukone"}, item.Cast)
	require.NotNil(t, item.Rating)
	assert.Equal(t, 7.1, *item.Rating)
	require.NotNil(t, item.ReleaseDate)
	assert.Equal(t, "2024-06-27", *item.ReleaseDate)
	assert.Equal(t, []string{"Kalki 2898 AD"}, ratings.calls)
}

func TestResolveSpecificEchoedTitleIsNoMatch(t *testing.T) {
	p := New(Deps{
		Search: &fakeSearcher{results: reviewResults},
		LLM:    &fakeLLM{jsonReply: `{"title": "Qwerty Zxcv!"}`, textReply: "Nothing useful."},
	}, Options{})

	env, err := p.ResolveSpecific(context.Background(), models.Query{Text: "qwerty zxcv"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	require.NotNil(t, env.Hints)
	assert.True(t, env.Hints.FoundResults)
	require.NotNil(t, env.Hints.FoundMatch)
	assert.False(t, *env.Hints.FoundMatch)
	assert.Contains(t, env.Hints.Suggestions, "Check the spelling of the title")
	require.NotNil(t, env.Items[0].Description)
	assert.Equal(t, "Description not available", *env.Items[0].Description)
}

func TestResolveSpecificWithoutModelHasNoReviews(t *testing.T) {
	p := New(Deps{TMDB: streeTMDB()}, Options{})

	env, err := p.ResolveSpecific(context.Background(), models.Query{Text: "Stree 2"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	require.NotNil(t, env.Items[0].ReviewsSummary)
	assert.Equal(t, "No reviews available", *env.Items[0].ReviewsSummary)
	assert.Empty(t, env.Items[0].Sources)
}

const bollywoodList = `Here you go:
[
  {"title": "Jawan", "type": "movie", "platform": "Netflix", "release_date": "2023-09-07", "genre": "action, thriller", "rating": 9.5},
  {"title": "JAWAN ", "type": "movie", "platform": "Netflix"},
  {"title": "Pathaan", "type": "movie", "platform": "Prime Video", "rating": "7/10"},
  {"title": "Animal", "type": "movie", "platform": "Netflix"},
  {"title": "Fighter", "type": "movie", "platform": null}
]`

func TestResolveListDedupesAndPaginates(t *testing.T) {
	p := New(Deps{Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: bollywoodList}}, Options{})

	first, err := p.ResolveList(context.Background(), models.Query{Text: "top bollywood movies", Page: 1, PageSize: 2})
	require.NoError(t, err)
	second, err := p.ResolveList(context.Background(), models.Query{Text: "top bollywood movies", Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, models.EnvelopeList, first.Kind)
	assert.Equal(t, 4, first.Total)
	assert.Equal(t, []string{"Jawan", "Pathaan"}, titles(first.Items))
	assert.Equal(t, []string{"Animal", "Fighter"}, titles(second.Items))
	assert.Equal(t, 2, second.Page)
	assert.Equal(t, 2, second.PageSize)

	seen := map[string]bool{}
	for _, item := range append(first.Items, second.Items...) {
		key := FoldTitle(item.Title)
		assert.False(t, seen[key], "duplicate %q", item.Title)
		seen[key] = true
	}

	jawan := first.Items[0]
	require.NotNil(t, jawan.Genre)
	assert.Equal(t, "Action, Thriller", *jawan.Genre)
	require.NotNil(t, first.Items[1].Rating)
	assert.Equal(t, 7.0, *first.Items[1].Rating)
	assert.Nil(t, second.Items[1].Platform)
}

func TestResolveListPageBeyondEnd(t *testing.T) {
	p := New(Deps{Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: bollywoodList}}, Options{})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "top bollywood movies", Page: 5, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, env.Items)
	assert.Equal(t, 4, env.Total)
	assert.Nil(t, env.Hints)
}

func TestResolveListRepairsMalformedJSON(t *testing.T) {
	reply := "[{'title': 'Jawan', 'type': 'movie', 'rating': 7,},]"
	p := New(Deps{Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: reply}}, Options{})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "best movies"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jawan"}, titles(env.Items))
}

func TestResolveListUnusableReplyIsEmptySentinel(t *testing.T) {
	store := &memStore{}
	p := New(Deps{
		Search: &fakeSearcher{results: reviewResults},
		LLM:    &fakeLLM{jsonReply: "Sorry, I could not find any titles."},
		Cache:  store,
	}, Options{})

	env, err := p.Resolve(context.Background(), models.Query{Text: "top netflix movies this week"})
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeList, env.Kind)
	assert.Empty(t, env.Items)
	require.NotNil(t, env.Hints)
	assert.False(t, env.Hints.FoundResults)
	assert.NotEmpty(t, env.Hints.Suggestions)
	assert.Zero(t, store.len())

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"releases": [], "search_hints": {"found_results": false, "suggestions": [
		"top Netflix movies this week", "best Malayalam thrillers on Prime Video", "new movies released this week in India"
	]}, "page": 1, "page_size": 10, "total": 0}`, string(raw))
}

func TestResolveListProviderRatingBeatsModel(t *testing.T) {
	ratings := &fakeOMDB{titles: map[string]*metadata.OMDBTitle{
		"Jawan":   {Title: "Jawan", IMDBRating: "7.0", Director: "Atlee"},
		"Pathaan": {Title: "Pathaan", IMDBRating: "N/A"},
	}}
	p := New(Deps{OMDB: ratings, Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: bollywoodList}}, Options{MaxConcurrency: 2})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "top bollywood movies"})
	require.NoError(t, err)
	require.Len(t, env.Items, 4)

	jawan := env.Items[0]
	require.NotNil(t, jawan.Rating)
	assert.Equal(t, 7.0, *jawan.Rating)
	require.NotNil(t, jawan.Director)
	assert.Equal(t, "Atlee", *jawan.Director)
	require.NotNil(t, jawan.Platform)
	assert.Equal(t, "Netflix", *jawan.Platform)

	pathaan := env.Items[1]
	require.NotNil(t, pathaan.Rating)
	assert.Equal(t, 7.0, *pathaan.Rating)
}

func TestResolveListFallsBackToCatalogue(t *testing.T) {
	catalogue := &fakeTMDB{
		search: map[string][]metadata.TMDBResult{
			"Fighter": {{ID: 9, Title: "Fighter", VoteAverage: 6.4, Popularity: 10}},
		},
		providers: map[int64]string{9: "Netflix"},
	}
	list := `[{"title": "Fighter", "type": "movie"}]`
	p := New(Deps{TMDB: catalogue, Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: list}}, Options{})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "best action movies"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	require.NotNil(t, env.Items[0].Rating)
	assert.Equal(t, 6.4, *env.Items[0].Rating)
	require.NotNil(t, env.Items[0].Platform)
	assert.Equal(t, "Netflix", *env.Items[0].Platform)
	assert.Equal(t, int64(9), env.Items[0].TMDBID)
}

func TestResolveListKeepsPerItemType(t *testing.T) {
	ratings := &fakeOMDB{titles: map[string]*metadata.OMDBTitle{
		"Panchayat": {Title: "Panchayat", IMDBRating: "9.0"},
	}}
	list := `[
		{"title": "Panchayat", "type": "tv", "platform": "Prime Video"},
		{"title": "Jawan", "type": "movie", "platform": "Netflix"},
		{"title": "The Railway Men", "type": "docuseries", "platform": "Netflix"}
	]`
	p := New(Deps{OMDB: ratings, Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: list}}, Options{})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "best Netflix shows"})
	require.NoError(t, err)
	require.Len(t, env.Items, 3)

	assert.Equal(t, "tv", env.Items[0].Type)
	require.NotNil(t, env.Items[0].Rating)
	assert.Equal(t, 9.0, *env.Items[0].Rating)
	assert.Equal(t, "movie", env.Items[1].Type)
	assert.Equal(t, "movie", env.Items[2].Type, "unknown types fall back to the query type")

	assert.Equal(t, models.MediaTypeTV, ratings.types["Panchayat"])
	assert.Equal(t, models.MediaTypeMovie, ratings.types["Jawan"])
}

func TestResolveListReviews(t *testing.T) {
	list := `[{"title": "Fighter", "type": "movie"}]`
	p := New(Deps{Search: &fakeSearcher{results: reviewResults}, LLM: &fakeLLM{jsonReply: list, textReply: "Slick aerial action [3]."}}, Options{ListReviews: true})

	env, err := p.ResolveList(context.Background(), models.Query{Text: "best action movies"})
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	require.NotNil(t, env.Items[0].ReviewsSummary)
	assert.Equal(t, "Slick aerial action.", *env.Items[0].ReviewsSummary)
}

func TestResolveListMissingCredentials(t *testing.T) {
	p := New(Deps{TMDB: &fakeTMDB{}}, Options{})

	_, err := p.ResolveList(context.Background(), models.Query{Text: "top movies"})
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, []string{"TAVILY_API_KEY or SERPAPI_KEY", "PERPLEXITY_API_KEY or GEMINI_API_KEY"}, credErr.Keys)
}

func TestResolveWeeklyKeepsRecentReleases(t *testing.T) {
	catalogue := &fakeTMDB{
		nowPlaying: []metadata.TMDBResult{
			{ID: 1, Title: "Recent", ReleaseDate: "2025-03-15", GenreIDs: []int{28}, VoteAverage: 6.5},
			{ID: 2, Title: "Old", ReleaseDate: "2025-01-01"},
			{ID: 3, Title: "Today", ReleaseDate: "2025-03-20", GenreIDs: []int{28, 99}},
		},
		genres:    map[int]string{28: "Action"},
		providers: map[int64]string{1: "Netflix"},
	}
	now := func() time.Time { return time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC) }
	p := New(Deps{TMDB: catalogue}, Options{Now: now})

	env, err := p.Resolve(context.Background(), models.Query{Weekly: true})
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeList, env.Kind)
	assert.Equal(t, 2, env.Total)
	assert.Equal(t, []string{"Recent", "Today"}, titles(env.Items))

	recent := env.Items[0]
	require.NotNil(t, recent.Genre)
	assert.Equal(t, "Action", *recent.Genre)
	require.NotNil(t, recent.Platform)
	assert.Equal(t, "Netflix", *recent.Platform)
	assert.Nil(t, env.Items[1].Platform)
}

func TestResolveWeeklyFallsBackToTrending(t *testing.T) {
	catalogue := &fakeTMDB{
		nowPlaying: []metadata.TMDBResult{{ID: 2, Title: "Old", ReleaseDate: "2020-01-01"}},
		trending:   []metadata.TMDBResult{{ID: 5, Title: "Trending", ReleaseDate: "2024-12-01"}},
	}
	p := New(Deps{TMDB: catalogue}, Options{Now: func() time.Time { return time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC) }})

	env, err := p.ResolveWeekly(context.Background(), models.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Trending"}, titles(env.Items))
}

func TestResolveWeeklyWithoutCatalogueRunsListQuery(t *testing.T) {
	searcher := &fakeSearcher{results: reviewResults}
	p := New(Deps{Search: searcher, LLM: &fakeLLM{jsonReply: `[{"title": "Panchayat", "type": "tv"}]`}}, Options{Region: "IN"})

	env, err := p.ResolveWeekly(context.Background(), models.Query{Type: models.MediaTypeTV})
	require.NoError(t, err)
	assert.Equal(t, []string{"Panchayat"}, titles(env.Items))
	require.NotEmpty(t, searcher.requests)
	assert.Equal(t, "new OTT shows released this week in India", searcher.requests[0].Query)
	assert.Equal(t, "tv", env.Items[0].Type)
}

func TestResolveWeeklyMissingCredentials(t *testing.T) {
	_, err := New(Deps{}, Options{}).ResolveWeekly(context.Background(), models.Query{})
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolveCachesFoundResults(t *testing.T) {
	catalogue := streeTMDB()
	store := &memStore{}
	p := New(Deps{TMDB: catalogue, Cache: store}, Options{})

	first, err := p.Resolve(context.Background(), models.Query{Text: "Stree 2"})
	require.NoError(t, err)
	second, err := p.Resolve(context.Background(), models.Query{Text: "  stree   2 "})
	require.NoError(t, err)

	assert.Equal(t, 1, store.len())
	assert.Equal(t, 1, catalogue.searchCalls)
	assert.Equal(t, first.Items[0].Title, second.Items[0].Title)
}

func TestNormalizeQueryClampsPaging(t *testing.T) {
	p := New(Deps{}, Options{DefaultPageSize: 5, MaxPageSize: 20})

	q := p.NormalizeQuery(models.Query{Text: "  top   movies ", Page: -1, PageSize: 500})
	assert.Equal(t, "top movies", q.Text)
	assert.Equal(t, models.MediaTypeMovie, q.Type)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 20, q.PageSize)

	q = p.NormalizeQuery(models.Query{})
	assert.Equal(t, 5, q.PageSize)
}

func TestResolveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Deps{TMDB: streeTMDB(), Search: &fakeSearcher{err: context.Canceled}, LLM: &fakeLLM{}}, Options{})

	_, err := p.ResolveSpecific(ctx, models.Query{Text: "Stree 2"})
	require.ErrorIs(t, err, context.Canceled)
}

func titles(items []models.NormalizedItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title)
	}
	return out
}

var _ search.Searcher = (*fakeSearcher)(nil)
