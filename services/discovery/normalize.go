package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"movieagent/models"
	"movieagent/services/metadata"
)

// FoldTitle reduces a title to its comparison form: transliterated to ASCII,
// lower-cased, punctuation dropped and whitespace collapsed.
func FoldTitle(title string) string {
	ascii := unidecode.Unidecode(title)
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, ascii)
	return strings.Join(strings.Fields(folded), " ")
}

// dedupe keeps the first record for each folded title.
func dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		key := FoldTitle(r.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// paginate returns the page-th slice of size items. page is 1-based.
func paginate[T any](items []T, page, size int) []T {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		return []T{}
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// titleGenre normalises a comma separated genre list to title case.
func titleGenre(genre string) string {
	parts := strings.FieldsFunc(genre, func(r rune) bool { return r == ',' || r == '/' || r == '|' })
	caser := cases.Title(language.English)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = caser.String(p)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// regionName returns the English country name for an ISO 3166 code.
func regionName(code string) string {
	region, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}

// isoDate converts the release date formats providers use to YYYY-MM-DD.
// Unrecognised values are returned unchanged.
func isoDate(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02", "02 Jan 2006", "2 January 2006", "January 2, 2006", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

func yearOf(date string) int {
	date = isoDate(date)
	if len(date) >= 4 {
		if year, err := strconv.Atoi(date[:4]); err == nil && year > 1800 {
			return year
		}
	}
	return 0
}

// echoesQuery reports whether a model produced title is just the raw query.
func echoesQuery(title, query string) bool {
	return FoldTitle(title) != "" && FoldTitle(title) == FoldTitle(query)
}

func noMatchSuggestions(query string, mediaType models.MediaType) []string {
	suggestions := make([]string, 0, 4)
	if len(strings.Fields(query)) < 2 && len([]rune(strings.TrimSpace(query))) < 4 {
		suggestions = append(suggestions, "The title looks too short; try the full name")
	}
	if _, year := metadata.SplitYear(query); year == 0 {
		suggestions = append(suggestions, fmt.Sprintf("Try adding the release year, e.g. \"%s %d\"", strings.TrimSpace(query), time.Now().Year()))
	}
	suggestions = append(suggestions, "Check the spelling of the title")
	if mediaType == models.MediaTypeMovie {
		suggestions = append(suggestions, "If this is a series, search with type=tv")
	} else {
		suggestions = append(suggestions, "If this is a film, search with type=movie")
	}
	return suggestions
}

// exampleQueries are offered when a list search produced nothing usable.
func exampleQueries(mediaType models.MediaType) []string {
	if mediaType == models.MediaTypeTV {
		return []string{
			"best Hindi web series on Prime Video",
			"new OTT shows released this week",
			"top thriller series on Netflix India",
		}
	}
	return []string{
		"top Netflix movies this week",
		"best Malayalam thrillers on Prime Video",
		"new movies released this week in India",
	}
}

// QuerySuggestions is offered with a 400 for an empty query.
func QuerySuggestions() []string {
	return []string{
		"Stree 2",
		"top Netflix movies this week",
		"new OTT shows released this week",
	}
}
