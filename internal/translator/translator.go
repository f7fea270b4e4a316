// Package translator fetches acceptable English translations for a set of
// Italian source words from the external translation vendor, producing the
// typed mapping result or an error and normalising every candidate the
// vendor returns.
package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client fetches translations from an HTTP endpoint expecting a JSON body
// {"words": [...]} and returning {"<word>": ["<candidate>", ...], ...}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default *http.Client, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client against baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fetchRequest struct {
	Words []string `json:"words"`
}

// Fetch returns, per requested word, the list of acceptable translations
// the vendor reports, each normalised per Normalize. A non-nil error means
// the translator is unavailable for the whole request; callers treat that
// as a match-wide condition, not a per-word one.
func (c *Client) Fetch(ctx context.Context, words []string) (map[string][]string, error) {
	body, err := json.Marshal(fetchRequest{Words: words})
	if err != nil {
		return nil, fmt.Errorf("translator: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("translator: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translator: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translator: unexpected status %d", resp.StatusCode)
	}

	var raw map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("translator: decode response: %w", err)
	}

	out := make(map[string][]string, len(raw))
	for word, candidates := range raw {
		normalized := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			if n := Normalize(candidate); n != "" {
				normalized = append(normalized, n)
			}
		}
		out[word] = normalized
	}
	return out, nil
}

// Normalize lowercases s and strips every character that is not in
// [a-z ], digits included.
func Normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
