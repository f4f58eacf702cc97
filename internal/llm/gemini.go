// Package llm talks to the optional generative-text backend. The renderer
// treats it as best-effort and falls back to a deterministic template when
// it is absent or misbehaves.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gemini is a minimal client for the generateContent endpoint.
type Gemini struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewGemini builds a client; returns nil when no API key is configured so
// callers can wire "no generative backend" as a nil Generator.
func NewGemini(baseURL, model, apiKey string) *Gemini {
	if apiKey == "" {
		return nil
	}
	return &Gemini{
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate submits the prompt and returns the first candidate's text.
// An empty result is an error so callers always get usable text or a
// reason to fall back.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil {
		return "", fmt.Errorf("generative backend not configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generative backend error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty generation result")
	}

	text := strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("empty generation result")
	}
	return text, nil
}
