package model

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:   baseURL,
		Name:      "smollm2:360m",
		TimeoutMs: 2000,
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if req.Model != "smollm2:360m" {
			t.Errorf("Model = %q, want smollm2:360m", req.Model)
		}
		if req.Options.NumPredict != 150 {
			t.Errorf("NumPredict = %d, want 150", req.Options.NumPredict)
		}

		json.NewEncoder(w).Encode(generateResponse{
			Model:    "smollm2:360m",
			Response: `{"text":"on it","action":"led_on"}`,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	resp, err := p.Complete(context.Background(), domain.CompletionRequest{
		Prompt:    "turn on the led",
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"text":"on it","action":"led_on"}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Model != "smollm2:360m" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestOllamaCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	_, err := p.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestOllamaCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Error: "out of memory"})
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	_, err := p.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestOllamaCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Complete(ctx, domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrModelTimeout) {
		t.Errorf("error = %v, want ErrModelTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Complete took %v, want prompt timeout", elapsed)
	}
}

func TestOllamaCompleteServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	_, err := p.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestOllamaIsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	if !p.IsHealthy(context.Background()) {
		t.Error("IsHealthy = false, want true")
	}

	server.Close()
	if p.IsHealthy(context.Background()) {
		t.Error("IsHealthy = true after server close, want false")
	}
}

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"smollm2:360m","size":725000000}]}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].Name != "smollm2:360m" {
		t.Errorf("models = %+v", models)
	}
}

func TestOllamaWarmup(t *testing.T) {
	var warmed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/generate" {
			warmed = true
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			if err := json.Unmarshal(body, &req); err != nil {
				t.Fatalf("warmup body: %v", err)
			}
			if req["keep_alive"] == nil {
				t.Error("warmup request missing keep_alive")
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewOllamaProvider(testModelConfig(server.URL), newTestLogger())
	if err := p.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if !warmed {
		t.Error("warmup request never reached the server")
	}
}
