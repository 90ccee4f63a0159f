package discovery

import (
	"fmt"

	"movieagent/models"
)

const listSystem = `You extract movie and OTT series titles from web search results.
Use ONLY titles that appear in the text you are given. Do not invent titles.
Respond with ONLY a JSON array, no other text. Each object must have exactly these fields:
- "title": the title as written in the sources
- "type": "movie" or "tv"
- "platform": the streaming service or "Theatrical", or null when unknown
- "release_date": YYYY-MM-DD, or null when unknown
- "genre": comma separated genres, or null when unknown
- "rating": a number from 0 to 10, or null when unknown`

const extractSystem = `You extract facts about one movie or OTT series from web search results.
Use ONLY information present in the text you are given.
Respond with ONLY a JSON object, no other text, with exactly these fields:
"title", "description", "release_date" (YYYY-MM-DD), "genre", "cast" (array of names),
"director", "platform", "rating" (number 0-10). Use null for anything the text does not state.`

const reviewSystem = `You are an Indian movie and OTT critic. Summarize genuine critic and audience reviews clearly, without citations, links or source names.`

const listReviewSystem = `You are an Indian movie and OTT critic. Give a concise, user-friendly review summary without citations.`

func listPrompt(query string, mediaType models.MediaType, digest string) string {
	return fmt.Sprintf(`User request: %q (prefer %s).

Search results:
%s

List every matching title mentioned in the search results.`, query, mediaType.PluralLabel(), digest)
}

func extractPrompt(query string, mediaType models.MediaType, digest string) string {
	return fmt.Sprintf(`The user is looking for the %s %q.

Search results:
%s

Extract the record for this title.`, mediaType.Label(), query, digest)
}

func reviewPrompt(title string, mediaType models.MediaType, year int, digest string) string {
	name := title
	if year > 0 {
		name = fmt.Sprintf("%s (%d)", title, year)
	}
	material := digest
	if material == "" {
		material = "(no articles were retrieved; rely on well-known published reviews)"
	}
	return fmt.Sprintf(`Write a review summary of the %s %q in 200-250 words.
Use exactly these sections, each starting on its own line with the heading followed by a colon:
Overall assessment:
Story:
Performances:
Direction:
Reception:

Review material:
%s`, mediaType.Label(), name, material)
}

func listReviewPrompt(title string, mediaType models.MediaType) string {
	return fmt.Sprintf(`Summarize reviews for the %s %q in at most 80 words.`, mediaType.Label(), title)
}

func weeklyQuery(mediaType models.MediaType, region string) string {
	return fmt.Sprintf("new %s released this week in %s", mediaType.PluralLabel(), regionName(region))
}
