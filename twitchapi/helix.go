// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and live-status checks, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// HelixClient provides the minimal Helix surface the scheduler needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // override for tests; defaults to https://api.twitch.tv/helix
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return "https://api.twitch.tv/helix"
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// AreLive reports, for a batch of channel ids, whether each channel is currently streaming.
// Every requested id has an entry in the returned map; ids absent from the Helix response
// are reported as offline. Helix caps a single streams query at 100 user ids.
func (hc *HelixClient) AreLive(ctx context.Context, channelIDs []string) (map[string]bool, error) {
	live := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		live[id] = false
	}
	if len(channelIDs) == 0 {
		return live, nil
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(channelIDs); start += 100 {
		end := start + 100
		if end > len(channelIDs) {
			end = len(channelIDs)
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
		q := req.URL.Query()
		for _, id := range channelIDs[start:end] {
			q.Add("user_id", id)
		}
		q.Set("first", fmt.Sprintf("%d", end-start))
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := hc.http().Do(req)
		if err != nil {
			return nil, err
		}
		var body struct {
			Data []struct {
				UserID string `json:"user_id"`
				Type   string `json:"type"`
			} `json:"data"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&body)
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
		if decErr != nil {
			return nil, decErr
		}
		for _, s := range body.Data {
			if s.Type == "live" {
				live[s.UserID] = true
			}
		}
	}
	return live, nil
}
