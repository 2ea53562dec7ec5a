// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lycheng/paperboy/pkg/types"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaEngine implements Engine over the local Ollama generate API.
type OllamaEngine struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewOllamaEngine builds an engine from config, applying defaults for
// the endpoint and request timeout.
func NewOllamaEngine(cfg types.SummaryConfig) *OllamaEngine {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaEngine{
		BaseURL: baseURL,
		Model:   cfg.Model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete sends one prompt and returns the generated text.
func (e *OllamaEngine) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:   e.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: 0.3},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling completion service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var or ollamaResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return "", fmt.Errorf("parsing completion response: %w", err)
	}
	if or.Error != "" {
		return "", fmt.Errorf("completion service error: %s", or.Error)
	}
	if or.Response == "" {
		return "", fmt.Errorf("completion service returned empty response")
	}
	return or.Response, nil
}
