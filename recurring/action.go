// Package recurring implements the recurring action scheduler: per-channel configuration
// of automated chat actions (cuteness leaderboard, super trivia, weather, word of the day),
// the cooldown-gated random selection of which due action fires next, and the event loop
// that hands rendered events to the chat layer.
package recurring

import (
	"encoding/json"
	"fmt"
)

// ActionType tags the closed set of recurring action variants.
type ActionType string

const (
	ActionTypeCuteness     ActionType = "cuteness"
	ActionTypeSuperTrivia  ActionType = "super_trivia"
	ActionTypeWeather      ActionType = "weather"
	ActionTypeWordOfTheDay ActionType = "word_of_the_day"
)

// AllActionTypes returns a fresh slice of every action type, safe for the caller to shuffle.
func AllActionTypes() []ActionType {
	return []ActionType{ActionTypeCuteness, ActionTypeSuperTrivia, ActionTypeWeather, ActionTypeWordOfTheDay}
}

// DefaultMinutesBetween is the per-type cadence used when a channel has no explicit override.
func (t ActionType) DefaultMinutesBetween() int {
	switch t {
	case ActionTypeSuperTrivia:
		return 60
	case ActionTypeWeather:
		return 30
	case ActionTypeWordOfTheDay:
		return 90
	case ActionTypeCuteness:
		return 120
	default:
		return 60
	}
}

func (t ActionType) String() string { return string(t) }

// ParseActionType validates a stored action type tag.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionTypeCuteness, ActionTypeSuperTrivia, ActionTypeWeather, ActionTypeWordOfTheDay:
		return ActionType(s), nil
	}
	return "", fmt.Errorf("unknown recurring action type %q", s)
}

// WeatherConfig is the Weather variant's payload.
type WeatherConfig struct {
	AlertsOnly bool `json:"alertsOnly,omitempty"`
}

// WordOfTheDayConfig is the WordOfTheDay variant's payload.
type WordOfTheDayConfig struct {
	LanguageCode string `json:"languageCode,omitempty"`
}

// Action is one channel's configuration for one action type. It is an immutable value
// object: created from the repository row on read and replaced wholesale on write.
// Exactly one of the variant payload pointers is set, matching Type; Cuteness and
// SuperTrivia carry no extra payload.
type Action struct {
	Type            ActionType
	TwitchChannel   string
	TwitchChannelID string
	IsEnabled       bool
	MinutesBetween  *int // nil falls back to Type.DefaultMinutesBetween()

	Weather      *WeatherConfig
	WordOfTheDay *WordOfTheDayConfig
}

// CadenceMinutes resolves the effective cadence for this action.
func (a *Action) CadenceMinutes() int {
	if a.MinutesBetween != nil && *a.MinutesBetween > 0 {
		return *a.MinutesBetween
	}
	return a.Type.DefaultMinutesBetween()
}

// actionConfig is the JSON shape persisted in recurring_actions.configuration_json.
type actionConfig struct {
	IsEnabled      bool    `json:"isEnabled"`
	MinutesBetween *int    `json:"minutesBetween,omitempty"`
	AlertsOnly     *bool   `json:"alertsOnly,omitempty"`
	LanguageCode   *string `json:"languageCode,omitempty"`
}

// EncodeConfiguration serializes the action's settings to the JSON configuration blob.
func EncodeConfiguration(a *Action) (string, error) {
	if a == nil {
		return "", fmt.Errorf("action nil")
	}
	cfg := actionConfig{
		IsEnabled:      a.IsEnabled,
		MinutesBetween: a.MinutesBetween,
	}
	switch a.Type {
	case ActionTypeWeather:
		if a.Weather != nil {
			cfg.AlertsOnly = &a.Weather.AlertsOnly
		}
	case ActionTypeWordOfTheDay:
		if a.WordOfTheDay != nil {
			cfg.LanguageCode = &a.WordOfTheDay.LanguageCode
		}
	case ActionTypeCuteness, ActionTypeSuperTrivia:
		// no variant payload
	default:
		return "", fmt.Errorf("unknown recurring action type %q", a.Type)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal action config: %w", err)
	}
	return string(b), nil
}

// DecodeConfiguration reconstructs an Action from a stored row's type tag, channel and
// configuration blob. An empty blob yields a disabled action with defaults.
func DecodeConfiguration(actionType, twitchChannel, twitchChannelID, configJSON string) (*Action, error) {
	t, err := ParseActionType(actionType)
	if err != nil {
		return nil, err
	}
	a := &Action{
		Type:            t,
		TwitchChannel:   twitchChannel,
		TwitchChannelID: twitchChannelID,
	}
	if configJSON == "" {
		return a, nil
	}
	var cfg actionConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal action config: %w", err)
	}
	a.IsEnabled = cfg.IsEnabled
	a.MinutesBetween = cfg.MinutesBetween
	switch t {
	case ActionTypeWeather:
		a.Weather = &WeatherConfig{}
		if cfg.AlertsOnly != nil {
			a.Weather.AlertsOnly = *cfg.AlertsOnly
		}
	case ActionTypeWordOfTheDay:
		a.WordOfTheDay = &WordOfTheDayConfig{}
		if cfg.LanguageCode != nil {
			a.WordOfTheDay.LanguageCode = *cfg.LanguageCode
		}
	}
	return a, nil
}
