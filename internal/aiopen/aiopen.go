// Package aiopen calls Gemini to generate a personalized opening line for
// aiOpener placeholders. Any failure (timeout, non-2xx, malformed body)
// falls back to a fixed default so template rendering never blocks on it.
package aiopen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultFallback = "Hi! Let's connect."
	endpoint        = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"
)

// Client calls the Gemini generateContent API for a single-shot opener.
type Client struct {
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// New builds a Client. timeout bounds every call and should come from
// Config.ExternalCallTimeout unless the caller overrides it. rps/burst bound
// how often Opener may reach the Gemini API; a limit of 0 means unbounded.
func New(apiKey string, timeout time.Duration, rps float64, burst int) *Client {
	limit := rate.Limit(rps)
	if limit == 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = 1
	}

	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, burst),
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

// Opener returns a personalized opening line for prompt, or the fixed
// fallback on any error.
func (c *Client) Opener(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return defaultFallback, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return defaultFallback, fmt.Errorf("wait for gemini rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return defaultFallback, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return defaultFallback, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return defaultFallback, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return defaultFallback, fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return defaultFallback, fmt.Errorf("read gemini response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return defaultFallback, fmt.Errorf("decode gemini response: %w", err)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return defaultFallback, fmt.Errorf("gemini response had no candidates")
	}

	text := out.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return defaultFallback, fmt.Errorf("gemini response text was empty")
	}

	return text, nil
}
