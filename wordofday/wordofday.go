// Package wordofday fetches a word-of-the-day entry for a language code.
package wordofday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrNoLanguage is returned when the user has no word-of-day language configured.
var ErrNoLanguage = errors.New("no word-of-day language configured")

// Entry is one word-of-the-day response.
type Entry struct {
	LanguageCode  string
	Word          string
	Transliterate string
	Translation   string
}

type Client struct {
	HTTPClient *http.Client
	BaseURL    string // override for tests
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://wotd.transparent.com/rss"
}

// Fetch returns today's word for the given language code.
func (c *Client) Fetch(ctx context.Context, languageCode string) (*Entry, error) {
	if languageCode == "" {
		return nil, ErrNoLanguage
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s.json", c.baseURL(), languageCode), nil)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("wotd request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wotd request failed: %s", resp.Status)
	}
	var body struct {
		Word          string `json:"word"`
		Transliterate string `json:"wotd:transliteratedWord"`
		Translation   string `json:"translation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode wotd response: %w", err)
	}
	if body.Word == "" {
		return nil, fmt.Errorf("empty wotd response for language %q", languageCode)
	}
	return &Entry{
		LanguageCode:  languageCode,
		Word:          body.Word,
		Transliterate: body.Transliterate,
		Translation:   body.Translation,
	}, nil
}
