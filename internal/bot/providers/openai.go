package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// openAICompat implements Caller for services exposing the OpenAI-style
// chat-completions API (Groq, DeepSeek).
type openAICompat struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGroq returns the Groq (Llama) strategy.
func NewGroq() Caller {
	return &openAICompat{
		name:       "groq",
		baseURL:    "https://api.groq.com/openai/v1",
		model:      "llama-3.1-8b-instant",
		httpClient: newHTTPClient(),
	}
}

// NewDeepSeek returns the DeepSeek strategy.
func NewDeepSeek() Caller {
	return &openAICompat{
		name:       "deepseek",
		baseURL:    "https://api.deepseek.com/v1",
		model:      "deepseek-chat",
		httpClient: newHTTPClient(),
	}
}

// newOpenAICompat is used by tests to point a strategy at a stub server.
func newOpenAICompat(name, baseURL, model string) *openAICompat {
	return &openAICompat{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: newHTTPClient(),
	}
}

func (c *openAICompat) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAICompat) Call(ctx context.Context, secret, prompt string) (string, error) {
	payload := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	var out chatResponse
	if err := doJSON(c.httpClient, c.name, req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &Error{Provider: c.name, Message: "empty completion"}
	}
	return out.Choices[0].Message.Content, nil
}

func (c *openAICompat) Validate(ctx context.Context, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	return doJSON(c.httpClient, c.name, req, nil)
}

// doJSON executes the request and decodes a JSON body into out (when non-nil).
// Non-2xx responses become *Error with the service's error message when one
// can be extracted.
func doJSON(hc *http.Client, provider string, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return transportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return &Error{
			Provider:  provider,
			Status:    resp.StatusCode,
			Message:   msg,
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Provider: provider, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
