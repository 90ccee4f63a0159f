package discovery

import (
	"context"
	"log"

	"github.com/sourcegraph/conc/pool"

	"movieagent/internal/llmjson"
	"movieagent/models"
	"movieagent/services/llm"
	"movieagent/services/metadata"
	"movieagent/services/search"
)

const (
	listMaxTokens       = 2500
	listReviewMaxTokens = 200
)

// ResolveList answers a list query from web search results extracted by the
// model, then enriches the requested page with provider data.
func (p *Pipeline) ResolveList(ctx context.Context, q models.Query) (models.Envelope, error) {
	return p.resolveListQuery(ctx, q, q.Text)
}

func (p *Pipeline) resolveListQuery(ctx context.Context, q models.Query, searchQuery string) (models.Envelope, error) {
	q = p.NormalizeQuery(q)
	if p.search == nil || p.llm == nil {
		return models.Envelope{}, &CredentialError{Keys: p.missingKeys(false, true, true)}
	}

	results, err := p.searchWeb(ctx, search.Request{Query: searchQuery, MaxResults: p.opts.SearchResults})
	if err != nil {
		if ctx.Err() != nil {
			return models.Envelope{}, ctx.Err()
		}
		log.Printf("[discovery] list search for %q failed: %v", searchQuery, err)
		return emptyList(q), nil
	}
	if len(results) == 0 {
		return emptyList(q), nil
	}

	reply, err := p.complete(ctx, llm.Request{
		System:      listSystem,
		Prompt:      listPrompt(searchQuery, q.Type, search.Digest(results, digestChars)),
		Temperature: 0,
		MaxTokens:   listMaxTokens,
		JSON:        true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Envelope{}, ctx.Err()
		}
		return emptyList(q), nil
	}
	items, err := llmjson.ParseList(reply)
	if err != nil {
		log.Printf("[discovery] unusable list reply for %q: %v", searchQuery, err)
		return emptyList(q), nil
	}

	records := make([]Record, 0, len(items))
	for _, it := range items {
		itemType := q.Type
		if it.Type != "" {
			itemType = models.MediaType(it.Type)
		}
		records = append(records, Record{
			Source:      SourceModel,
			Type:        itemType,
			Title:       it.Title,
			Description: it.Description,
			ReleaseDate: isoDate(string(it.ReleaseDate)),
			Genre:       titleGenre(string(it.Genre)),
			Platform:    string(it.Platform),
			Rating:      float64(it.Rating),
		})
	}
	records = dedupe(records)
	if len(records) == 0 {
		return emptyList(q), nil
	}

	page := paginate(records, q.Page, q.PageSize)
	merged := p.enrichPage(ctx, q.Type, page, search.URLs(results))
	return models.Envelope{
		Kind:     models.EnvelopeList,
		Items:    merged,
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    len(records),
	}, nil
}

// enrichPage runs one bounded task per record and merges each with whatever
// the ratings provider, catalogue and review model returned for it. Records
// without a Type are treated as fallback.
func (p *Pipeline) enrichPage(ctx context.Context, fallback models.MediaType, page []Record, sources []string) []models.NormalizedItem {
	out := make([]models.NormalizedItem, len(page))
	workers := pool.New().WithMaxGoroutines(p.opts.MaxConcurrency)
	for i, base := range page {
		workers.Go(func() {
			mediaType := base.Type
			if mediaType == "" {
				mediaType = fallback
			}
			records := []Record{base}
			records = append(records, p.providerRecords(ctx, mediaType, base)...)

			item := Merge(ListPrecedence, records...)
			item.Type = string(mediaType)
			item.Sources = append([]string{}, sources...)
			if p.opts.ListReviews && p.llm != nil {
				item.ReviewsSummary = models.OptString(p.listReview(ctx, item.Title, mediaType))
			}
			out[i] = item
		})
	}
	workers.Wait()
	return out
}

// providerRecords fetches lower-precedence records for one list entry. OMDb
// is preferred for ratings; TMDB fills in when OMDb is absent and supplies
// the platform when nobody else did.
func (p *Pipeline) providerRecords(ctx context.Context, mediaType models.MediaType, base Record) []Record {
	var out []Record
	year := yearOf(base.ReleaseDate)
	if p.omdb != nil {
		if r, ok := p.lookupRatings(ctx, base.Title, year, mediaType); ok {
			out = append(out, r)
		}
	}
	needCatalogue := p.omdb == nil || base.Platform == ""
	if p.tmdb == nil || !needCatalogue {
		return out
	}
	if base.TMDBID > 0 {
		if base.Platform == "" {
			if platform := p.platformFor(ctx, mediaType, base.TMDBID); platform != "" {
				out = append(out, Record{Source: SourceTMDB, Platform: platform})
			}
		}
		return out
	}
	results, err := p.tmdb.Search(ctx, mediaType, base.Title, year)
	if err != nil {
		log.Printf("[discovery] tmdb search %q failed: %v", base.Title, err)
		return out
	}
	best, ok := metadata.BestMatch(base.Title, year, results)
	if !ok {
		return out
	}
	r := Record{
		Source:      SourceTMDB,
		Title:       best.DisplayTitle(),
		Description: best.Overview,
		ReleaseDate: best.Date(),
		Poster:      metadata.PosterURL(best.PosterPath),
		TMDBID:      best.ID,
	}
	if p.omdb == nil {
		r.Rating = best.VoteAverage
	}
	if base.Platform == "" {
		r.Platform = p.platformFor(ctx, mediaType, best.ID)
	}
	return append(out, r)
}

func (p *Pipeline) platformFor(ctx context.Context, mediaType models.MediaType, id int64) string {
	platform, err := p.tmdb.WatchProviders(ctx, mediaType, id)
	if err != nil {
		log.Printf("[discovery] watch providers for %d failed: %v", id, err)
		return ""
	}
	return platform
}

func (p *Pipeline) listReview(ctx context.Context, title string, mediaType models.MediaType) string {
	reply, err := p.complete(ctx, llm.Request{
		System:      listReviewSystem,
		Prompt:      listReviewPrompt(title, mediaType),
		Temperature: 0.3,
		MaxTokens:   listReviewMaxTokens,
	})
	if err != nil {
		return noReviews
	}
	if summary := llm.StripCitations(reply); summary != "" {
		return summary
	}
	return noReviews
}

// emptyList is the sentinel returned when nothing usable came back.
func emptyList(q models.Query) models.Envelope {
	return models.Envelope{
		Kind:     models.EnvelopeList,
		Items:    []models.NormalizedItem{},
		Hints:    &models.SearchHints{FoundResults: false, Suggestions: exampleQueries(q.Type)},
		Page:     q.Page,
		PageSize: q.PageSize,
	}
}
