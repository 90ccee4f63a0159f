package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"movieagent/models"
	"movieagent/services/discovery"
)

type discoveryService interface {
	Resolve(context.Context, models.Query) (models.Envelope, error)
}

var _ discoveryService = (*discovery.Pipeline)(nil)

type MovieAgentHandler struct {
	Service discoveryService
}

func NewMovieAgentHandler(s discoveryService) *MovieAgentHandler {
	return &MovieAgentHandler{Service: s}
}

// Query answers GET /api/movieAgent?query=...&type=movie|tv&weekly=true&page=&pageSize=
func (h *MovieAgentHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
		return
	}

	q := parseQuery(r)
	if q.Text == "" && !q.Weekly {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "Query parameter is required",
			SearchHints: &models.SearchHints{
				FoundResults: false,
				Suggestions:  discovery.QuerySuggestions(),
			},
		})
		return
	}

	env, err := h.Service.Resolve(r.Context(), q)
	if err != nil {
		h.writeError(w, q, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *MovieAgentHandler) writeError(w http.ResponseWriter, q models.Query, err error) {
	var credErr *discovery.CredentialError
	switch {
	case errors.As(err, &credErr):
		log.Printf("[movie-agent] query=%q: %v", q.Text, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Missing API credentials",
			Details: strings.Join(credErr.Keys, ", "),
		})
	case errors.Is(err, discovery.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{
			Error: "Title not found",
			SearchHints: &models.SearchHints{
				FoundResults: false,
				Suggestions:  discovery.QuerySuggestions(),
			},
		})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
		log.Printf("[movie-agent] query=%q canceled", q.Text)
	default:
		log.Printf("[movie-agent] query=%q failed: %v", q.Text, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func parseQuery(r *http.Request) models.Query {
	values := r.URL.Query()
	weekly, _ := strconv.ParseBool(strings.TrimSpace(values.Get("weekly")))
	q := models.Query{
		Text:   strings.TrimSpace(values.Get("query")),
		Type:   models.ParseMediaType(values.Get("type")),
		Weekly: weekly,
	}
	q.Page = parsePositive(values.Get("page"))
	q.PageSize = parsePositive(values.Get("pageSize"))
	if q.PageSize == 0 {
		q.PageSize = parsePositive(values.Get("page_size"))
	}
	return q
}

func parsePositive(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[movie-agent] encode response: %v", err)
	}
}
