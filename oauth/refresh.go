// Package oauth schedules token refreshes for providers whose tokens live in the
// oauth_tokens table. Checks are jittered so multiple instances don't refresh in
// lockstep, and a token is only refreshed once its remaining lifetime falls inside
// the configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/trivia-tender/backend/db"
)

// RefreshFunc performs the provider-specific refresh call and returns the new
// access token, refresh token, expiry, and scope.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically checks the provider's token
// row and refreshes it when expiry is within the window. Reads and writes go through
// the encrypted token store, never the raw columns.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			_, refreshToken, expiry, scope, err := db.GetOAuthToken(ctx, dbx, provider)
			if err != nil {
				slog.Debug("token row unavailable", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			if refreshToken == "" {
				// No stored token (or no refresh grant); nothing to keep fresh.
				continue
			}
			// Still outside the refresh window, skip quickly.
			if time.Until(expiry) > window {
				continue
			}

			// Small pre-refresh jitter to avoid stampedes when many pods see the same expiry.
			//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
			pre := time.Duration(rand.Int63n(int64(5 * time.Second)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pre):
			}

			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			newAccess, newRefresh, newExpiry, newScope, err := fn(ctx2, refreshToken)
			cancel()
			if err != nil {
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			if newRefresh == "" {
				newRefresh = refreshToken
			}
			if newScope == "" {
				newScope = scope
			}
			if err := db.UpsertOAuthToken(ctx, dbx, provider, newAccess, newRefresh, newExpiry, strings.TrimSpace(newScope)); err != nil {
				slog.Warn("token persist failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			slog.Info("token refreshed", slog.String("provider", provider))
		}
	}()
}
