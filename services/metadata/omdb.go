package metadata

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"movieagent/internal/httpc"
	"movieagent/models"
)

const omdbBaseURL = "https://www.omdbapi.com/"

type OMDBClient struct {
	apiKey  string
	baseURL string
	caller  *httpc.Caller
}

func NewOMDBClient(apiKey string, httpClient *http.Client, baseURL string, retries int) *OMDBClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = omdbBaseURL
	}
	return &OMDBClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		caller:  &httpc.Caller{HTTP: httpClient, Service: "omdb", Retries: retries},
	}
}

// OMDBTitle is the OMDb title record. OMDb uses "N/A" for unknown values.
type OMDBTitle struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Released   string `json:"Released"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Poster     string `json:"Poster"`
	IMDBRating string `json:"imdbRating"`
	IMDBID     string `json:"imdbID"`
	Type       string `json:"Type"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

// Lookup fetches a title by name, narrowed by year when positive. A title OMDb
// does not know yields nil and no error.
func (c *OMDBClient) Lookup(ctx context.Context, title string, year int, mediaType models.MediaType) (*OMDBTitle, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", strings.TrimSpace(title))
	if year > 0 {
		params.Set("y", strconv.Itoa(year))
	}
	if mediaType == models.MediaTypeTV {
		params.Set("type", "series")
	} else {
		params.Set("type", "movie")
	}
	endpoint := c.baseURL + "?" + params.Encode()

	var record OMDBTitle
	err := c.caller.JSON(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &record)
	if err != nil {
		log.Printf("[omdb] lookup %q failed: %v", title, err)
		return nil, err
	}
	if strings.EqualFold(record.Response, "False") {
		if strings.Contains(strings.ToLower(record.Error), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("omdb: %s", record.Error)
	}
	return &record, nil
}

// Rating returns the IMDb rating on a 0-10 scale, falling back to Rotten
// Tomatoes and Metacritic. Zero means unrated.
func (t *OMDBTitle) Rating() float64 {
	if v, err := strconv.ParseFloat(omdbValue(t.IMDBRating), 64); err == nil && v > 0 {
		return v
	}
	for _, r := range t.Ratings {
		value := omdbValue(r.Value)
		switch r.Source {
		case "Rotten Tomatoes":
			if pct, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil && pct > 0 {
				return pct / 10
			}
		case "Metacritic":
			score, _, _ := strings.Cut(value, "/")
			if v, err := strconv.ParseFloat(score, 64); err == nil && v > 0 {
				return v / 10
			}
		}
	}
	return 0
}

func (t *OMDBTitle) CastList() []string {
	value := omdbValue(t.Actors)
	if value == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (t *OMDBTitle) PlotText() string     { return omdbValue(t.Plot) }
func (t *OMDBTitle) GenreText() string    { return omdbValue(t.Genre) }
func (t *OMDBTitle) DirectorText() string { return omdbValue(t.Director) }
func (t *OMDBTitle) ReleasedText() string { return omdbValue(t.Released) }
func (t *OMDBTitle) PosterURL() string    { return omdbValue(t.Poster) }

func omdbValue(value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "N/A") {
		return ""
	}
	return value
}
