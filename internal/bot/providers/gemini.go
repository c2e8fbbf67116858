package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// gemini implements Caller for the Google Gemini generateContent API.
type gemini struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGemini returns the Gemini strategy.
func NewGemini() Caller {
	return &gemini{
		baseURL:    "https://generativelanguage.googleapis.com",
		model:      "gemini-2.5-flash",
		httpClient: newHTTPClient(),
	}
}

func newGemini(baseURL string) *gemini {
	return &gemini{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      "gemini-2.5-flash",
		httpClient: newHTTPClient(),
	}
}

func (g *gemini) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *gemini) Call(ctx context.Context, secret, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := g.baseURL + "/v1beta/models/" + g.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", secret)

	var out geminiResponse
	if err := doJSON(g.httpClient, g.Name(), req, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Provider: g.Name(), Message: "empty completion"}
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (g *gemini) Validate(ctx context.Context, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1beta/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", secret)
	return doJSON(g.httpClient, g.Name(), req, nil)
}
