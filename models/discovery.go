package models

import (
	"encoding/json"
	"strings"
)

// MediaType is the kind of title a query is about.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// ParseMediaType normalizes user supplied type values. Anything that is not
// recognisably a series is treated as a movie.
func ParseMediaType(value string) MediaType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "tv", "series", "show", "shows", "ott":
		return MediaTypeTV
	default:
		return MediaTypeMovie
	}
}

// Label returns the phrase used when talking about the media type in prompts
// and search queries.
func (m MediaType) Label() string {
	if m == MediaTypeTV {
		return "OTT series"
	}
	return "movie"
}

// PluralLabel is the plural form of Label.
func (m MediaType) PluralLabel() string {
	if m == MediaTypeTV {
		return "OTT shows"
	}
	return "movies"
}

// Query is the immutable input of a discovery request.
type Query struct {
	Text     string
	Type     MediaType
	Weekly   bool
	Page     int
	PageSize int
}

// NormalizedItem is the canonical output unit. Every field except Title is
// nullable and is encoded as null when unknown.
type NormalizedItem struct {
	Title          string   `json:"title"`
	Description    *string  `json:"description"`
	ReleaseDate    *string  `json:"release_date"`
	Genre          *string  `json:"genre"`
	Cast           []string `json:"cast"`
	Director       *string  `json:"director"`
	Platform       *string  `json:"platform"`
	Rating         *float64 `json:"rating"`
	ReviewsSummary *string  `json:"reviews_summary"`
	Type           string   `json:"type"`
	Sources        []string `json:"sources"`

	Poster string `json:"poster,omitempty"`
	IMDBID string `json:"imdb_id,omitempty"`
	TMDBID int64  `json:"tmdb_id,omitempty"`
}

// SearchHints is attached to an envelope when the pipeline judged the result
// to be of poor quality.
type SearchHints struct {
	FoundResults bool     `json:"found_results"`
	FoundMatch   *bool    `json:"found_match,omitempty"`
	Suggestions  []string `json:"suggestions"`
}

// EnvelopeKind selects the top-level key of the encoded envelope.
type EnvelopeKind int

const (
	EnvelopeSpecific EnvelopeKind = iota
	EnvelopeList
)

// Envelope is the fixed response shape the front end expects. Specific
// envelopes encode as {"movies": [...]}, list envelopes as {"releases": [...]}
// together with pagination totals.
type Envelope struct {
	Kind     EnvelopeKind
	Items    []NormalizedItem
	Hints    *SearchHints
	Page     int
	PageSize int
	Total    int
}

type specificEnvelopeJSON struct {
	Movies      []NormalizedItem `json:"movies"`
	SearchHints *SearchHints     `json:"search_hints,omitempty"`
}

type listEnvelopeJSON struct {
	Releases    []NormalizedItem `json:"releases"`
	SearchHints *SearchHints     `json:"search_hints,omitempty"`
	Page        int              `json:"page,omitempty"`
	PageSize    int              `json:"page_size,omitempty"`
	Total       int              `json:"total"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	items := e.Items
	if items == nil {
		items = []NormalizedItem{}
	}
	if e.Kind == EnvelopeList {
		return json.Marshal(listEnvelopeJSON{
			Releases:    items,
			SearchHints: e.Hints,
			Page:        e.Page,
			PageSize:    e.PageSize,
			Total:       e.Total,
		})
	}
	return json.Marshal(specificEnvelopeJSON{Movies: items, SearchHints: e.Hints})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["releases"]; ok {
		var list listEnvelopeJSON
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*e = Envelope{
			Kind:     EnvelopeList,
			Items:    list.Releases,
			Hints:    list.SearchHints,
			Page:     list.Page,
			PageSize: list.PageSize,
			Total:    list.Total,
		}
		return nil
	}
	var specific specificEnvelopeJSON
	if err := json.Unmarshal(data, &specific); err != nil {
		return err
	}
	*e = Envelope{Kind: EnvelopeSpecific, Items: specific.Movies, Hints: specific.SearchHints}
	return nil
}

// Degraded reports whether the envelope is short of a clean answer: it has
// no items or it carries search hints.
func (e Envelope) Degraded() bool {
	return len(e.Items) == 0 || e.Hints != nil
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error       string       `json:"error"`
	Details     string       `json:"details,omitempty"`
	SearchHints *SearchHints `json:"search_hints,omitempty"`
}

// OptString returns nil for blank values so they encode as null.
func OptString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// OptFloat returns nil for non-positive values; providers use 0 for "unrated".
func OptFloat(value float64) *float64 {
	if value <= 0 {
		return nil
	}
	return &value
}
