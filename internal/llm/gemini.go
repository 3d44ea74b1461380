package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
)

// Part is one piece of user content: text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64 encoded bytes.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Request describes a single-turn structured generation call.
type Request struct {
	SystemInstruction string
	Parts             []Part
	// ResponseSchema is marshalled as-is into generationConfig.responseSchema.
	ResponseSchema any
}

// Client defines the behaviour required by the vision package.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// GeminiClient wraps the Google Generative Language REST API.
type GeminiClient struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	tokenSource oauth2.TokenSource
}

// Option customises a GeminiClient.
type Option func(*GeminiClient)

// WithBaseURL points the client at another endpoint root.
func WithBaseURL(base string) Option {
	return func(c *GeminiClient) {
		c.baseURL = strings.TrimSuffix(strings.TrimSpace(base), "/")
	}
}

// NewGeminiClient constructs a Gemini client for the desired model. A zero
// timeout leaves the request unbounded.
func NewGeminiClient(apiKey, model string, timeout time.Duration, tokenSource oauth2.TokenSource, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		apiKey:      strings.TrimSpace(apiKey),
		model:       normalizeModel(model, defaultModel),
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: timeout},
		tokenSource: tokenSource,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateJSON sends the request with responseMimeType application/json and
// returns the joined text of the first candidate.
func (c *GeminiClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	if len(req.Parts) == 0 {
		return "", fmt.Errorf("gemini: missing content parts")
	}

	generationConfig := map[string]any{
		"responseMimeType": "application/json",
	}
	if req.ResponseSchema != nil {
		generationConfig["responseSchema"] = req.ResponseSchema
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": req.Parts,
			},
		},
		"generationConfig": generationConfig,
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []Part{{Text: req.SystemInstruction}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	model := c.model
	if override := ModelFromContext(ctx); override != "" {
		model = override
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	if c.tokenSource == nil {
		if c.apiKey == "" {
			return "", fmt.Errorf("gemini: missing API key or service account credentials")
		}
		endpoint = fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(c.apiKey))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return "", fmt.Errorf("gemini: fetch oauth token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, failure.Error.Message)
	}

	var completion struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("gemini decode response: %w", err)
	}

	if len(completion.Candidates) == 0 || len(completion.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var parts []string
	for _, part := range completion.Candidates[0].Content.Parts {
		if trimmed := strings.TrimSpace(part.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("gemini candidate missing text (finish reason %q)", completion.Candidates[0].FinishReason)
	}
	return strings.Join(parts, ""), nil
}

func normalizeModel(model, fallback string) string {
	clean := strings.TrimSpace(model)
	clean = strings.TrimPrefix(clean, "models/")
	if clean == "" {
		return fallback
	}
	return clean
}
