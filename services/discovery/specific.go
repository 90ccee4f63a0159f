package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sourcegraph/conc"

	"movieagent/internal/llmjson"
	"movieagent/models"
	"movieagent/services/llm"
	"movieagent/services/metadata"
	"movieagent/services/search"
)

// catalogueLookup is the outcome of the TMDB half of a single-title lookup.
type catalogueLookup struct {
	record   *Record
	answered bool
	empty    bool
}

// webLookup is the outcome of the review search half.
type webLookup struct {
	results  []search.Result
	answered bool
}

// ResolveSpecific looks up one title. The result always has at most one
// item; ErrNotFound is returned only when the catalogue and the web search
// both answered with nothing.
func (p *Pipeline) ResolveSpecific(ctx context.Context, q models.Query) (models.Envelope, error) {
	q = p.NormalizeQuery(q)
	canSearch := p.search != nil && p.llm != nil
	if p.tmdb == nil && !canSearch {
		return models.Envelope{}, &CredentialError{Keys: p.missingKeys(true, true, true)}
	}

	title, year := metadata.SplitYear(q.Text)

	var (
		catalogue catalogueLookup
		web       webLookup
		wg        conc.WaitGroup
	)
	if p.tmdb != nil {
		wg.Go(func() { catalogue = p.lookupCatalogue(ctx, q.Type, q.Text, title, year) })
	}
	if p.search != nil {
		wg.Go(func() { web = p.searchReviews(ctx, title, q.Type) })
	}
	wg.Wait()

	if ctx.Err() != nil {
		return models.Envelope{}, ctx.Err()
	}
	if p.tmdb != nil && catalogue.answered && catalogue.empty &&
		(p.search == nil || (web.answered && len(web.results) == 0)) {
		log.Printf("[discovery] no source knows %q", q.Text)
		return models.Envelope{}, ErrNotFound
	}

	digest := search.Digest(web.results, digestChars)
	var records []Record
	if catalogue.record != nil {
		records = append(records, *catalogue.record)
	} else if p.llm != nil && len(web.results) > 0 {
		if r, ok := p.extractRecord(ctx, q, digest); ok {
			records = append(records, r)
		}
	}
	if len(records) == 0 {
		return specificNoMatch(q, nil), nil
	}

	if !hasRating(records) && p.omdb != nil {
		lookupTitle, lookupYear := records[0].Title, yearOf(records[0].ReleaseDate)
		if lookupYear == 0 {
			lookupYear = year
		}
		if r, ok := p.lookupRatings(ctx, lookupTitle, lookupYear, q.Type); ok {
			records = append(records, r)
		}
	}

	item := Merge(SpecificPrecedence, records...)
	if item.Description == nil {
		item.Description = models.OptString(noDescription)
	}
	item.Type = string(q.Type)
	item.Sources = search.URLs(web.results)
	item.ReviewsSummary = models.OptString(p.reviewSummary(ctx, item.Title, q.Type, yearOf(derefString(item.ReleaseDate)), digest))

	if catalogue.record == nil && echoesQuery(item.Title, q.Text) {
		return specificNoMatch(q, &item), nil
	}
	return models.Envelope{Kind: models.EnvelopeSpecific, Items: []models.NormalizedItem{item}}, nil
}

// lookupCatalogue searches TMDB for title narrowed by year. A trailing number
// may belong to the title ("Wonder Woman 1984"), so an empty narrowed search
// is retried with the full text and no year before the title counts as absent.
func (p *Pipeline) lookupCatalogue(ctx context.Context, mediaType models.MediaType, text, title string, year int) catalogueLookup {
	best, ok, err := p.catalogueMatch(ctx, mediaType, title, year)
	if err == nil && !ok && year > 0 {
		best, ok, err = p.catalogueMatch(ctx, mediaType, text, 0)
	}
	if err != nil {
		return catalogueLookup{}
	}
	if !ok {
		return catalogueLookup{answered: true, empty: true}
	}
	record := Record{
		Source:      SourceTMDB,
		Title:       best.DisplayTitle(),
		Description: best.Overview,
		ReleaseDate: best.Date(),
		Rating:      best.VoteAverage,
		Poster:      metadata.PosterURL(best.PosterPath),
		TMDBID:      best.ID,
	}
	details, err := p.tmdb.Details(ctx, mediaType, best.ID)
	if err != nil {
		log.Printf("[discovery] tmdb details %d failed: %v", best.ID, err)
		return catalogueLookup{record: &record, answered: true}
	}
	return catalogueLookup{record: detailsRecord(record, details, p.tmdb.Region()), answered: true}
}

func (p *Pipeline) catalogueMatch(ctx context.Context, mediaType models.MediaType, title string, year int) (metadata.TMDBResult, bool, error) {
	results, err := p.tmdb.Search(ctx, mediaType, title, year)
	if err != nil {
		log.Printf("[discovery] tmdb search %q failed: %v", title, err)
		return metadata.TMDBResult{}, false, err
	}
	best, ok := metadata.BestMatch(title, year, results)
	return best, ok, nil
}

// detailsRecord overlays the detail payload on the search hit.
func detailsRecord(base Record, d *metadata.TMDBDetails, region string) *Record {
	r := base
	if t := d.DisplayTitle(); t != "" {
		r.Title = t
	}
	if d.Overview != "" {
		r.Description = d.Overview
	}
	if date := d.Date(); date != "" {
		r.ReleaseDate = date
	}
	if d.VoteAverage > 0 {
		r.Rating = d.VoteAverage
	}
	if d.PosterPath != "" {
		r.Poster = metadata.PosterURL(d.PosterPath)
	}
	r.Genre = titleGenre(strings.Join(d.GenreNames(), ", "))
	r.Cast = d.CastNames(metadata.CastLimit)
	r.Director = d.Director()
	r.Platform = d.Platform(region)
	r.IMDBID = d.IMDb()
	return &r
}

func (p *Pipeline) searchReviews(ctx context.Context, title string, mediaType models.MediaType) webLookup {
	req := search.Request{
		Query:      fmt.Sprintf("%s %s reviews", title, mediaType.Label()),
		MaxResults: p.opts.SearchResults,
		Domains:    p.opts.ReviewDomains,
	}
	results, err := p.searchWeb(ctx, req)
	if err == nil && len(results) == 0 && len(req.Domains) > 0 {
		req.Domains = nil
		results, err = p.searchWeb(ctx, req)
	}
	if err != nil {
		log.Printf("[discovery] review search for %q failed: %v", title, err)
		return webLookup{}
	}
	return webLookup{results: results, answered: true}
}

func (p *Pipeline) extractRecord(ctx context.Context, q models.Query, digest string) (Record, bool) {
	reply, err := p.complete(ctx, llm.Request{
		System:      extractSystem,
		Prompt:      extractPrompt(q.Text, q.Type, digest),
		Temperature: 0,
		MaxTokens:   extractionMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return Record{}, false
	}
	parsed, err := llmjson.ParseRecord(reply)
	if err != nil {
		log.Printf("[discovery] unusable extraction for %q: %v", q.Text, err)
		return Record{}, false
	}
	return Record{
		Source:      SourceModel,
		Title:       parsed.Title,
		Description: parsed.Description,
		ReleaseDate: isoDate(string(parsed.ReleaseDate)),
		Genre:       titleGenre(string(parsed.Genre)),
		Cast:        []string(parsed.Cast),
		Director:    parsed.Director,
		Platform:    string(parsed.Platform),
		Rating:      float64(parsed.Rating),
	}, true
}

// lookupRatings asks OMDb for a title. Not found and failures both yield
// false.
func (p *Pipeline) lookupRatings(ctx context.Context, title string, year int, mediaType models.MediaType) (Record, bool) {
	t, err := p.omdb.Lookup(ctx, title, year, mediaType)
	if err != nil || t == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[discovery] omdb lookup %q failed: %v", title, err)
		}
		return Record{}, false
	}
	return Record{
		Source:      SourceOMDB,
		Title:       t.Title,
		Description: t.PlotText(),
		ReleaseDate: isoDate(t.ReleasedText()),
		Genre:       titleGenre(t.GenreText()),
		Cast:        t.CastList(),
		Director:    t.DirectorText(),
		Rating:      t.Rating(),
		Poster:      t.PosterURL(),
		IMDBID:      t.IMDBID,
	}, true
}

func (p *Pipeline) reviewSummary(ctx context.Context, title string, mediaType models.MediaType, year int, digest string) string {
	if p.llm == nil || title == "" {
		return noReviews
	}
	reply, err := p.complete(ctx, llm.Request{
		System:      reviewSystem,
		Prompt:      reviewPrompt(title, mediaType, year, digest),
		Temperature: 0.3,
		MaxTokens:   reviewMaxTokens,
	})
	if err != nil {
		return noReviews
	}
	summary := llm.StripCitations(reply)
	if summary == "" {
		return noReviews
	}
	return summary
}

func specificNoMatch(q models.Query, item *models.NormalizedItem) models.Envelope {
	matched := false
	hints := &models.SearchHints{
		FoundResults: item != nil,
		FoundMatch:   &matched,
		Suggestions:  noMatchSuggestions(q.Text, q.Type),
	}
	items := []models.NormalizedItem{}
	if item != nil {
		items = append(items, *item)
	}
	return models.Envelope{Kind: models.EnvelopeSpecific, Items: items, Hints: hints}
}

func hasRating(records []Record) bool {
	for _, r := range records {
		if r.Rating > 0 {
			return true
		}
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
