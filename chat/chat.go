// Package chat connects the bot to Twitch IRC and renders recurring action events and
// trivia game lifecycle notifications into chat messages.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/trivia-tender/backend/config"
)

// Bot owns the IRC connection. It joins one channel per enabled user and keeps a
// channel-id to login mapping so id-keyed notifications can be routed to the right room.
type Bot struct {
	client *twitch.Client

	mu     sync.RWMutex
	logins map[string]string // twitch channel id -> channel login
}

// NewBot builds the IRC client from config. The oauth token is prefixed with "oauth:"
// if the caller didn't already do that, which the IRC server requires.
func NewBot(cfg *config.Config) (*Bot, error) {
	if err := cfg.ValidateChatReady(); err != nil {
		return nil, err
	}
	token := cfg.TwitchOAuthToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	b := &Bot{
		client: twitch.NewClient(cfg.TwitchBotUsername, token),
		logins: make(map[string]string),
	}
	b.client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("component", "chat"))
	})
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		slog.Debug("chat message",
			slog.String("channel", msg.Channel),
			slog.String("user", msg.User.Name),
			slog.String("component", "chat"))
	})
	return b, nil
}

// JoinChannel joins a channel and records its id for later id-keyed lookups.
func (b *Bot) JoinChannel(login, twitchChannelID string) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return
	}
	if twitchChannelID != "" {
		b.mu.Lock()
		b.logins[twitchChannelID] = login
		b.mu.Unlock()
	}
	b.client.Join(login)
}

// Say sends a message to a channel by login.
func (b *Bot) Say(channel, message string) {
	b.client.Say(channel, message)
}

// loginFor resolves a channel id to the login recorded at join time.
func (b *Bot) loginFor(twitchChannelID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	login, ok := b.logins[twitchChannelID]
	return login, ok
}

// Run connects and blocks until ctx is canceled or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := b.client.Disconnect(); err != nil {
			slog.Warn("twitch chat disconnect", slog.Any("err", err), slog.String("component", "chat"))
		}
		close(done)
	}()

	if err := b.client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}
