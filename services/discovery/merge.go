package discovery

import (
	"math"
	"strings"

	"movieagent/models"
)

// Source identifies the provider that produced a Record.
type Source string

const (
	SourceTMDB  Source = "tmdb"
	SourceOMDB  Source = "omdb"
	SourceModel Source = "model"
)

// Record is a partial title description from one source. Zero values mean
// the source did not supply the field. Type is not merged; it picks the
// lookups made for the record.
type Record struct {
	Source      Source
	Type        models.MediaType
	Title       string
	Description string
	ReleaseDate string
	Genre       string
	Cast        []string
	Director    string
	Platform    string
	Rating      float64
	Poster      string
	IMDBID      string
	TMDBID      int64
}

// Field names a mergeable NormalizedItem field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldReleaseDate Field = "release_date"
	FieldGenre       Field = "genre"
	FieldCast        Field = "cast"
	FieldDirector    Field = "director"
	FieldPlatform    Field = "platform"
	FieldRating      Field = "rating"
	FieldPoster      Field = "poster"
	FieldIMDBID      Field = "imdb_id"
	FieldTMDBID      Field = "tmdb_id"
)

// Precedence orders sources per field. Fields without an entry use Default.
// A source missing from a field's order never supplies that field.
type Precedence struct {
	Default []Source
	Fields  map[Field][]Source
}

func (p Precedence) order(f Field) []Source {
	if order, ok := p.Fields[f]; ok {
		return order
	}
	return p.Default
}

// SpecificPrecedence is used for single-title lookups: catalogue data wins
// over anything a model produced.
var SpecificPrecedence = Precedence{
	Default: []Source{SourceTMDB, SourceOMDB, SourceModel},
}

// ListPrecedence is used for list results. The model chose the titles and
// describes them; the ratings provider owns the rating.
var ListPrecedence = Precedence{
	Default: []Source{SourceModel, SourceTMDB, SourceOMDB},
	Fields: map[Field][]Source{
		FieldRating:   {SourceOMDB, SourceTMDB, SourceModel},
		FieldPlatform: {SourceModel, SourceTMDB},
	},
}

// Merge folds records into one item, taking every field from the first
// source in its precedence order that supplied a value. Type and Sources are
// left for the caller.
func Merge(p Precedence, records ...Record) models.NormalizedItem {
	bySource := make(map[Source][]Record, len(records))
	for _, r := range records {
		bySource[r.Source] = append(bySource[r.Source], r)
	}
	pick := func(f Field, get func(Record) bool) (Record, bool) {
		for _, src := range p.order(f) {
			for _, r := range bySource[src] {
				if get(r) {
					return r, true
				}
			}
		}
		return Record{}, false
	}
	str := func(f Field, get func(Record) string) *string {
		r, ok := pick(f, func(r Record) bool { return strings.TrimSpace(get(r)) != "" })
		if !ok {
			return nil
		}
		return models.OptString(get(r))
	}

	item := models.NormalizedItem{Cast: []string{}, Sources: []string{}}
	if title := str(FieldTitle, func(r Record) string { return r.Title }); title != nil {
		item.Title = *title
	}
	item.Description = str(FieldDescription, func(r Record) string { return r.Description })
	item.ReleaseDate = str(FieldReleaseDate, func(r Record) string { return r.ReleaseDate })
	item.Genre = str(FieldGenre, func(r Record) string { return r.Genre })
	item.Director = str(FieldDirector, func(r Record) string { return r.Director })
	item.Platform = str(FieldPlatform, func(r Record) string { return r.Platform })
	if r, ok := pick(FieldCast, func(r Record) bool { return len(r.Cast) > 0 }); ok {
		item.Cast = append([]string(nil), r.Cast...)
	}
	if r, ok := pick(FieldRating, func(r Record) bool { return r.Rating > 0 }); ok {
		item.Rating = models.OptFloat(roundRating(r.Rating))
	}
	if poster := str(FieldPoster, func(r Record) string { return r.Poster }); poster != nil {
		item.Poster = *poster
	}
	if id := str(FieldIMDBID, func(r Record) string { return r.IMDBID }); id != nil {
		item.IMDBID = *id
	}
	if r, ok := pick(FieldTMDBID, func(r Record) bool { return r.TMDBID > 0 }); ok {
		item.TMDBID = r.TMDBID
	}
	return item
}

// roundRating clamps to the 0-10 scale with one decimal.
func roundRating(v float64) float64 {
	if v > 10 {
		v = 10
	}
	return math.Round(v*10) / 10
}
