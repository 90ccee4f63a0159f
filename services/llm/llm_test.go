package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	reply string
	err   error
	// failures are returned, in order, before reply or err.
	failures []error
	calls    int
	model    string
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestPerplexityComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer px-key" {
			t.Fatalf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != "sonar-pro" || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Fatalf("unexpected request %+v", body)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  SPECIFIC \n"}}]}`))
	}))
	defer srv.Close()

	client := NewPerplexity("px-key", "", srv.Client(), srv.URL, 0)
	got, err := client.Complete(context.Background(), Request{System: "classify", Prompt: "Stree 2"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "SPECIFIC" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestPerplexityEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewPerplexity("k", "", srv.Client(), srv.URL, 0).Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGeminiComplete(t *testing.T) {
	gen := &fakeGenerator{reply: "[{\"title\":\"Panchayat\"}]"}
	client := newGemini(gen, "", 0)
	client.minInterval = 0

	got, err := client.Complete(context.Background(), Request{System: "json only", Prompt: "list", JSON: true, MaxTokens: 256, Temperature: 0.2})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != `[{"title":"Panchayat"}]` {
		t.Fatalf("unexpected reply %q", got)
	}
	if gen.model != defaultGeminiModel {
		t.Fatalf("expected default model, got %q", gen.model)
	}
	if gen.config.ResponseMIMEType != "application/json" || gen.config.MaxOutputTokens != 256 || gen.config.SystemInstruction == nil {
		t.Fatalf("unexpected config %+v", gen.config)
	}
}

func TestGeminiErrors(t *testing.T) {
	client := newGemini(&fakeGenerator{err: errors.New("quota")}, "gemini-test", 0)
	client.minInterval = 0
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected upstream error")
	}

	client = newGemini(&fakeGenerator{reply: "   "}, "gemini-test", 0)
	client.minInterval = 0
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty reply")
	}

	if _, err := NewGemini(context.Background(), " ", "", nil, 0); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGeminiThrottleHonoursContext(t *testing.T) {
	client := newGemini(&fakeGenerator{reply: "ok"}, "", 1)
	client.minInterval = time.Hour
	client.lastRequest = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Complete(ctx, Request{Prompt: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestGeminiRetriesServerErrors(t *testing.T) {
	gen := &fakeGenerator{
		reply:    "SPECIFIC",
		failures: []error{genai.APIError{Code: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}},
	}
	client := newGemini(gen, "", 1)
	client.minInterval = 0
	client.delay = time.Millisecond

	got, err := client.Complete(context.Background(), Request{Prompt: "Stree 2"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "SPECIFIC" || gen.calls != 2 {
		t.Fatalf("expected reply after one retry, got %q after %d calls", got, gen.calls)
	}
}

func TestGeminiDoesNotRetryClientErrors(t *testing.T) {
	gen := &fakeGenerator{err: genai.APIError{Code: http.StatusBadRequest, Status: "400 Bad Request"}}
	client := newGemini(gen, "", 3)
	client.minInterval = 0
	client.delay = time.Millisecond

	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected upstream error")
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", gen.calls)
	}
}

func TestStripCitations(t *testing.T) {
	in := "Overall assessment: A fun sequel [1][2].\n\nStory:  Tight  pacing [3, 4]."
	want := "Overall assessment: A fun sequel.\n\nStory: Tight pacing."
	if got := StripCitations(in); got != want {
		t.Fatalf("StripCitations() = %q, want %q", got, want)
	}
}
