package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// anthropic implements Caller for the Anthropic messages API.
type anthropic struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewAnthropic returns the Claude strategy.
func NewAnthropic() Caller {
	return &anthropic{
		baseURL:    "https://api.anthropic.com",
		model:      "claude-sonnet-4-20250514",
		httpClient: newHTTPClient(),
	}
}

func newAnthropic(baseURL string) *anthropic {
	return &anthropic{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      "claude-sonnet-4-20250514",
		httpClient: newHTTPClient(),
	}
}

func (a *anthropic) Name() string { return "claude" }

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a *anthropic) Call(ctx context.Context, secret, prompt string) (string, error) {
	payload := anthropicRequest{
		Model:     a.model,
		MaxTokens: 1024,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", secret)
	req.Header.Set("anthropic-version", anthropicVersion)

	var out anthropicResponse
	if err := doJSON(a.httpClient, a.Name(), req, &out); err != nil {
		return "", err
	}
	if len(out.Content) == 0 {
		return "", &Error{Provider: a.Name(), Message: "empty completion"}
	}
	return out.Content[0].Text, nil
}

func (a *anthropic) Validate(ctx context.Context, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", secret)
	req.Header.Set("anthropic-version", anthropicVersion)
	return doJSON(a.httpClient, a.Name(), req, nil)
}
