package discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"movieagent/models"
	"movieagent/services/metadata"
)

// ResolveWeekly lists this week's releases. The catalogue is used when
// configured; otherwise the list pipeline runs a fixed region query.
func (p *Pipeline) ResolveWeekly(ctx context.Context, q models.Query) (models.Envelope, error) {
	q = p.NormalizeQuery(q)
	canSearch := p.search != nil && p.llm != nil
	if p.tmdb == nil {
		if !canSearch {
			return models.Envelope{}, &CredentialError{Keys: p.missingKeys(true, true, true)}
		}
		return p.resolveListQuery(ctx, q, weeklyQuery(q.Type, p.opts.Region))
	}

	candidates, err := p.weeklyCandidates(ctx, q.Type)
	if err != nil {
		if ctx.Err() != nil {
			return models.Envelope{}, ctx.Err()
		}
		if canSearch {
			return p.resolveListQuery(ctx, q, weeklyQuery(q.Type, p.opts.Region))
		}
		return emptyList(q), nil
	}

	genres, err := p.tmdb.Genres(ctx, q.Type)
	if err != nil {
		log.Printf("[discovery] genre list unavailable: %v", err)
	}
	records := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, Record{
			Source:      SourceTMDB,
			Title:       c.DisplayTitle(),
			Description: c.Overview,
			ReleaseDate: c.Date(),
			Genre:       genreNames(c.GenreIDs, genres),
			Rating:      c.VoteAverage,
			Poster:      metadata.PosterURL(c.PosterPath),
			TMDBID:      c.ID,
		})
	}
	records = dedupe(records)
	if len(records) == 0 {
		return emptyList(q), nil
	}

	page := paginate(records, q.Page, q.PageSize)
	return models.Envelope{
		Kind:     models.EnvelopeList,
		Items:    p.enrichPage(ctx, q.Type, page, nil),
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    len(records),
	}, nil
}

// weeklyCandidates returns releases inside the weekly window, falling back
// to the trending list when nothing qualifies.
func (p *Pipeline) weeklyCandidates(ctx context.Context, mediaType models.MediaType) ([]metadata.TMDBResult, error) {
	current, err := p.tmdb.NowPlaying(ctx, mediaType)
	if err != nil {
		log.Printf("[discovery] now playing failed, trying trending: %v", err)
	}
	if mediaType == models.MediaTypeMovie {
		current = withinWindow(current, p.opts.Now(), p.opts.WeeklyWindowDays)
	}
	if len(current) > 0 {
		return current, nil
	}
	trending, trendErr := p.tmdb.Trending(ctx, mediaType)
	if trendErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, trendErr
	}
	return trending, nil
}

// withinWindow keeps results released in the days before now, inclusive.
func withinWindow(results []metadata.TMDBResult, now time.Time, days int) []metadata.TMDBResult {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -days)
	out := results[:0:0]
	for _, r := range results {
		released, err := time.Parse("2006-01-02", r.Date())
		if err != nil {
			continue
		}
		if released.Before(start) || released.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func genreNames(ids []int, names map[int]string) string {
	if len(names) == 0 {
		return ""
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return strings.Join(out, ", ")
}
