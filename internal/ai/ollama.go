package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pauljones0/flipscout/internal/models"
)

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Format  string        `json:"format"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// OllamaEvaluator asks a locally hosted model through Ollama's generate endpoint.
type OllamaEvaluator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaEvaluator(baseURL, model string, timeout time.Duration) *OllamaEvaluator {
	return &OllamaEvaluator{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaEvaluator) Name() string { return "ollama" }

func (o *OllamaEvaluator) Evaluate(ctx context.Context, l models.Listing) (models.Verdict, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:   o.model,
		Prompt:  BuildPrompt(l),
		Format:  "json",
		Stream:  false,
		Options: ollamaOptions{Temperature: 0.1, TopP: 0.9},
	})
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Verdict{}, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return models.Verdict{}, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if out.Error != "" {
		return models.Verdict{}, fmt.Errorf("ollama error: %s", out.Error)
	}
	return ParseVerdict(out.Response)
}
