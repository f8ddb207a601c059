// Package model provides the local language-model capability behind
// domain.ModelProvider: the Ollama HTTP adapter plus the circuit breaker
// and rate-limit wrappers that protect a small board from a misbehaving
// or overloaded model server.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
)

var (
	_ domain.ModelProvider = (*OllamaProvider)(nil)
	_ domain.HealthChecker = (*OllamaProvider)(nil)
)

// Connection is local so the dial timeout stays short; the response
// timeout is long because the first request may page the model in.
const (
	ollamaConnTimeout = 5 * time.Second
	maxResponseBytes  = 1 << 20
)

// OllamaProvider calls the native Ollama generate API. Completions are
// non-streaming; the intent resolver only needs the final text.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// OllamaModel describes one locally available model.
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// NewOllamaProvider creates a provider for the configured Ollama server.
func NewOllamaProvider(cfg config.ModelConfig, logger *slog.Logger) *OllamaProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	respTimeout := cfg.Timeout()
	if respTimeout <= 0 {
		respTimeout = 15 * time.Second
	}

	return &OllamaProvider{
		baseURL: baseURL,
		model:   cfg.Name,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   ollamaConnTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     120 * time.Second,
			},
			// Per-call deadlines come from the caller's context; this is
			// the backstop for callers that forget one.
			Timeout: ollamaConnTimeout + respTimeout,
		},
		logger: logger,
	}
}

// Name implements domain.ModelProvider.
func (p *OllamaProvider) Name() string { return "ollama" }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Complete implements domain.ModelProvider using POST /api/generate.
func (p *OllamaProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
			Stop:        req.Stop,
		},
	})
	if err != nil {
		return nil, domain.WrapOp("ollama.complete", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.WrapOp("ollama.complete", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, domain.NewDomainError("ollama.complete", domain.ErrModelUnavailable,
			fmt.Sprintf("status %d: %s", httpResp.StatusCode, truncate(string(body), 200)))
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewDomainError("ollama.complete", domain.ErrModelUnavailable,
			"unparseable response body")
	}
	if resp.Error != "" {
		return nil, domain.NewDomainError("ollama.complete", domain.ErrModelUnavailable, resp.Error)
	}

	return &domain.CompletionResponse{Text: resp.Response, Model: resp.Model}, nil
}

// IsHealthy reports whether the Ollama server answers at all.
func (p *OllamaProvider) IsHealthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return false
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}

// ListModels returns the models the server has pulled locally.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, domain.WrapOp("ollama.list_models", err)
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, domain.NewDomainError("ollama.list_models", domain.ErrModelUnavailable,
			fmt.Sprintf("status %d", httpResp.StatusCode))
	}

	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.WrapOp("ollama.list_models", err)
	}
	return resp.Models, nil
}

// Warmup asks the server to page the model in without generating, so the
// first real command does not pay the load latency. Failures are for the
// caller to log as a warning; a cold model still works, just slower.
func (p *OllamaProvider) Warmup(ctx context.Context) error {
	payload := fmt.Sprintf(`{"model":%q,"keep_alive":"30m"}`, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate",
		strings.NewReader(payload))
	if err != nil {
		return domain.WrapOp("ollama.warmup", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return domain.NewDomainError("ollama.warmup", domain.ErrModelUnavailable,
			fmt.Sprintf("status %d", httpResp.StatusCode))
	}
	p.logger.Info("model warmed up", "model", p.model, "base_url", p.baseURL)
	return nil
}

// classifyTransportError maps HTTP client failures onto the two model
// error categories: deadline problems are timeouts, everything else means
// the server is unreachable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewDomainError("ollama", domain.ErrModelTimeout, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewDomainError("ollama", domain.ErrModelTimeout, err.Error())
	}
	return domain.NewDomainError("ollama", domain.ErrModelUnavailable, err.Error())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
