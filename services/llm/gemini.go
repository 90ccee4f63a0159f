package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"google.golang.org/genai"

	"movieagent/internal/httpc"
)

const defaultGeminiModel = "gemini-2.0-flash"

// generator is the slice of the genai models API the client needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models  generator
	model   string
	retries int
	delay   time.Duration

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewGemini builds a Gemini client that sends its requests through
// httpClient. Rate limited and server-side failures are retried up to
// retries extra times.
func NewGemini(ctx context.Context, apiKey, model string, httpClient *http.Client, retries int) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, model, retries), nil
}

func newGemini(models generator, model string, retries int) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	if retries < 0 {
		retries = 0
	}
	return &Gemini{
		models:      models,
		model:       model,
		retries:     retries,
		delay:       500 * time.Millisecond,
		minInterval: 100 * time.Millisecond,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	err := retry.Do(
		func() error {
			if err := g.throttle(ctx); err != nil {
				return err
			}
			r, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.retries+1)),
		retry.Delay(g.delay),
		retry.MaxDelay(5*time.Second),
		retry.RetryIf(geminiRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[gemini] attempt %d failed, retrying: %v", n+1, err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned empty response")
	}
	return text, nil
}

// geminiRetryable treats API errors like HTTP status errors: 429 and 5xx are
// retried.
func geminiRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return httpc.Retryable(err)
}

// throttle spaces consecutive requests by at least minInterval.
func (g *Gemini) throttle(ctx context.Context) error {
	g.throttleMu.Lock()
	defer g.throttleMu.Unlock()
	if g.minInterval <= 0 {
		return nil
	}
	if wait := g.minInterval - time.Since(g.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.lastRequest = time.Now()
	return nil
}
