package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"movieagent/internal/httpc"
)

const (
	perplexityURL          = "https://api.perplexity.ai/chat/completions"
	defaultPerplexityModel = "sonar-pro"
)

type Perplexity struct {
	apiKey   string
	model    string
	endpoint string
	caller   *httpc.Caller
}

func NewPerplexity(apiKey, model string, httpClient *http.Client, endpoint string, retries int) *Perplexity {
	if strings.TrimSpace(model) == "" {
		model = defaultPerplexityModel
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = perplexityURL
	}
	return &Perplexity{
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		endpoint: endpoint,
		caller:   &httpc.Caller{HTTP: httpClient, Service: "perplexity", Retries: retries},
	}
}

func (p *Perplexity) Name() string { return "perplexity" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *Perplexity) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	err = p.caller.JSON(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+p.apiKey)
		return r, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("perplexity returned empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
