// Package classifier decides whether a free-text query asks about one title
// or wants a list of titles.
package classifier

import (
	"context"
	"log"
	"strings"
	"unicode"

	"movieagent/services/llm"
)

type Kind string

const (
	List     Kind = "LIST"
	Specific Kind = "SPECIFIC"
)

// Stage records which step produced a classification.
type Stage string

const (
	StageRule     Stage = "rule"
	StageShort    Stage = "short"
	StageModel    Stage = "model"
	StageFallback Stage = "fallback"
)

type Result struct {
	Kind  Kind
	Stage Stage
	// Match is the keyword that decided a rule classification.
	Match string
}

const DefaultShortWords = 5

var platformNames = []string{
	"netflix", "prime video", "amazon prime", "hotstar", "disney+ hotstar", "jiocinema",
	"jio cinema", "zee5", "sonyliv", "sony liv", "apple tv+", "apple tv", "hulu", "hbo",
	"hbo max", "mubi", "voot", "mx player",
}

var listCues = []string{
	"top", "best", "this week", "this month", "recommend", "recommendations",
	"list of", "new releases", "latest", "upcoming", "trending", "movies like",
	"shows like", "similar to", "suggest", "what to watch",
	"movies", "shows", "films", "series to watch",
}

var questionWords = map[string]struct{}{
	"what": {}, "which": {}, "who": {}, "how": {}, "when": {}, "where": {},
	"why": {}, "should": {}, "could": {}, "can": {}, "any": {},
}

const classifySystem = `You classify search queries for a movie and OTT streaming guide.
Answer with exactly one word:
LIST if the user wants several titles (recommendations, rankings, new releases, what is on a platform, titles like another title).
SPECIFIC if the user asks about one particular movie or series.
Do not explain.`

type Classifier struct {
	model      llm.Client
	shortWords int
}

// New builds a classifier. model may be nil, in which case queries that the
// rules cannot decide use the heuristic fallback.
func New(model llm.Client, shortWords int) *Classifier {
	if shortWords <= 0 {
		shortWords = DefaultShortWords
	}
	return &Classifier{model: model, shortWords: shortWords}
}

func (c *Classifier) Classify(ctx context.Context, query string) Result {
	tokens := tokenize(query)
	padded := " " + strings.Join(tokens, " ") + " "

	if match, ok := firstMatch(padded, platformNames); ok {
		return Result{Kind: List, Stage: StageRule, Match: match}
	}
	if match, ok := firstMatch(padded, listCues); ok {
		return Result{Kind: List, Stage: StageRule, Match: match}
	}

	hasQuestion := containsQuestionWord(tokens)
	if len(tokens) <= c.shortWords && !hasQuestion {
		return Result{Kind: Specific, Stage: StageShort}
	}

	if c.model != nil {
		reply, err := c.model.Complete(ctx, llm.Request{
			System:      classifySystem,
			Prompt:      "Query: " + strings.TrimSpace(query),
			Temperature: 0,
			MaxTokens:   5,
		})
		if err != nil {
			log.Printf("[classifier] %s failed, using heuristic: %v", c.model.Name(), err)
		} else if kind, ok := parseReply(reply); ok {
			return Result{Kind: kind, Stage: StageModel}
		} else {
			log.Printf("[classifier] ambiguous reply from %s: %q", c.model.Name(), truncate(reply, 40))
		}
	}

	if hasQuestion {
		return Result{Kind: List, Stage: StageFallback}
	}
	return Result{Kind: Specific, Stage: StageFallback}
}

// parseReply reads the first token of a model reply.
func parseReply(reply string) (Kind, bool) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return "", false
	}
	first := strings.ToUpper(strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	switch Kind(first) {
	case List:
		return List, true
	case Specific:
		return Specific, true
	}
	return "", false
}

// tokenize lower-cases the query and splits it into words. '+' is kept so
// "apple tv+" stays distinct from "apple tv".
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+'
	})
}

func firstMatch(padded string, phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return phrase, true
		}
	}
	return "", false
}

func containsQuestionWord(tokens []string) bool {
	for _, t := range tokens {
		if _, ok := questionWords[t]; ok {
			return true
		}
	}
	return false
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
