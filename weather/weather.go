// Package weather fetches current conditions from OpenWeather for a user's configured
// location. Locations are rows in the locations table keyed by an opaque id stored on
// the user. Both failure modes the scheduler cares about are typed sentinels so the
// caller can treat them as "not dispatchable right now" rather than hard errors.
package weather

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

var (
	// ErrAPIKeyMissing is returned when no OpenWeather API key is configured.
	ErrAPIKeyMissing = errors.New("openweather api key unavailable")
	// ErrNoSuchLocation is returned when the user's location id has no row.
	ErrNoSuchLocation = errors.New("no such location")
)

// Location is one row of the locations table.
type Location struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	TimeZone  string
}

// Report is the rendered-down subset of an OpenWeather response the bot announces.
type Report struct {
	LocationName string
	TemperatureC float64
	FeelsLikeC   float64
	Humidity     int
	Conditions   []string
}

// Client fetches weather reports. APIKey empty means the weather action is unavailable.
type Client struct {
	DB         *sql.DB
	APIKey     string
	HTTPClient *http.Client
	BaseURL    string // override for tests; defaults to https://api.openweathermap.org
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
	return "https://api.openweathermap.org"
}

// GetLocation loads a location row; ErrNoSuchLocation when absent.
func (c *Client) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	if locationID == "" {
		return nil, ErrNoSuchLocation
	}
	var loc Location
	err := c.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), latitude, longitude, COALESCE(time_zone,'') FROM locations WHERE id=$1`, locationID).
		Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.TimeZone)
	if err == sql.ErrNoRows {
		return nil, ErrNoSuchLocation
	}
	if err != nil {
		return nil, fmt.Errorf("location lookup: %w", err)
	}
	return &loc, nil
}

// Fetch returns the current weather report for the given location id.
func (c *Client) Fetch(ctx context.Context, locationID string) (*Report, error) {
	if c.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	loc, err := c.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", loc.Latitude))
	q.Set("lon", fmt.Sprintf("%f", loc.Longitude))
	q.Set("units", "metric")
	q.Set("appid", c.APIKey)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/data/2.5/weather?"+q.Encode(), nil)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather request failed: %s", resp.Status)
	}
	var body struct {
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	rep := &Report{
		LocationName: loc.Name,
		TemperatureC: body.Main.Temp,
		FeelsLikeC:   body.Main.FeelsLike,
		Humidity:     body.Main.Humidity,
	}
	for _, w := range body.Weather {
		rep.Conditions = append(rep.Conditions, w.Description)
	}
	return rep, nil
}
