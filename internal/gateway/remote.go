package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emarinelli/mirror/internal/reliability"
)

const (
	defaultRemoteBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultRemoteModel   = "gemini-1.5-pro-latest"

	remoteMaxAttempts    = 3
	remoteBackoffBase    = 250 * time.Millisecond
	remoteBackoffCap     = 2 * time.Second
	remoteErrorBodyLimit = 4 << 10
)

// RemoteGenerator calls a Gemini-style generateContent HTTP endpoint.
type RemoteGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewRemoteGenerator(baseURL, apiKey, model string, maxTokens int, temperature float64) *RemoteGenerator {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultRemoteBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultRemoteModel
	}
	if maxTokens <= 0 {
		maxTokens = 200
	}
	if temperature <= 0 {
		temperature = 0.7
	}
	return &RemoteGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type remoteRequest struct {
	Contents         []remoteContent        `json:"contents"`
	GenerationConfig remoteGenerationConfig `json:"generationConfig"`
}

type remoteContent struct {
	Parts []remotePart `json:"parts"`
}

type remotePart struct {
	Text string `json:"text"`
}

type remoteGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type remoteResponse struct {
	Candidates []remoteCandidate `json:"candidates"`
	Error      *remoteError      `json:"error"`
}

type remoteCandidate struct {
	Content remoteContent `json:"content"`
}

type remoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (g *RemoteGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(remoteRequest{
		Contents: []remoteContent{{Parts: []remotePart{{Text: prompt}}}},
		GenerationConfig: remoteGenerationConfig{
			MaxOutputTokens: g.maxTokens,
			Temperature:     g.temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	var lastErr error
	for attempt := 0; attempt < remoteMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, remoteBackoffBase, remoteBackoffCap)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := g.doRequest(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

func (g *RemoteGenerator) doRequest(ctx context.Context, url string, payload []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, remoteErrorBodyLimit))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("remote generation status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", reliability.IsRetryableHTTPStatus(parsed.Error.Code),
			fmt.Errorf("remote generation error %d (%s): %s", parsed.Error.Code, parsed.Error.Status, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("remote generation returned no candidates")
	}

	var out strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return strings.TrimSpace(out.String()), false, nil
}
