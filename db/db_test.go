package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/trivia-tender/backend/db"
	"github.com/onnwee/trivia-tender/backend/testutil"
)

func TestConnectRequiresDriverAndDsn(t *testing.T) {
	if _, err := db.Connect("", ""); err == nil {
		t.Fatal("expected error for empty driver and dsn")
	}
	if _, err := db.Connect("pgx", ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestConnectOpensSqlite(t *testing.T) {
	database, err := db.Connect("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer database.Close()
	if err := database.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	provider := "test_" + uuid.NewString()[:8]
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM oauth_tokens WHERE provider=$1`, provider) })

	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if err := db.UpsertOAuthToken(ctx, database, provider, "access-1", "refresh-1", expiry, "chat:read chat:edit"); err != nil {
		t.Fatal(err)
	}

	access, refresh, gotExpiry, scope, err := db.GetOAuthToken(ctx, database, provider)
	if err != nil {
		t.Fatal(err)
	}
	if access != "access-1" || refresh != "refresh-1" {
		t.Fatalf("got (%q, %q), want stored tokens back", access, refresh)
	}
	if !gotExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", gotExpiry, expiry)
	}
	if scope != "chat:read chat:edit" {
		t.Errorf("scope = %q", scope)
	}

	// Upsert replaces in place.
	if err := db.UpsertOAuthToken(ctx, database, provider, "access-2", "refresh-2", expiry, ""); err != nil {
		t.Fatal(err)
	}
	access, refresh, _, _, err = db.GetOAuthToken(ctx, database, provider)
	if err != nil {
		t.Fatal(err)
	}
	if access != "access-2" || refresh != "refresh-2" {
		t.Fatalf("after upsert got (%q, %q), want replaced tokens", access, refresh)
	}
}

func TestGetOAuthTokenMissingProvider(t *testing.T) {
	database := testutil.SetupTestDB(t)
	access, refresh, expiry, scope, err := db.GetOAuthToken(context.Background(), database, "missing_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatal(err)
	}
	if access != "" || refresh != "" || scope != "" || !expiry.IsZero() {
		t.Fatalf("expected zero values for missing provider, got (%q, %q, %v, %q)", access, refresh, expiry, scope)
	}
}

func TestHeartbeatUpserts(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	key := "job_test_" + uuid.NewString()[:8]
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM kv WHERE key=$1`, key) })

	db.Heartbeat(ctx, database, key)
	var first string
	if err := database.QueryRow(`SELECT value FROM kv WHERE key=$1`, key).Scan(&first); err != nil {
		t.Fatal(err)
	}
	if _, err := time.Parse(time.RFC3339, first); err != nil {
		t.Fatalf("heartbeat value %q is not RFC3339: %v", first, err)
	}

	db.Heartbeat(ctx, database, key)
	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM kv WHERE key=$1`, key).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("kv rows = %d, want a single upserted row", count)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	// SetupTestDB already migrated once; a second pass must be a no-op.
	if err := db.Migrate(context.Background(), database, "pgx"); err != nil {
		t.Fatal(err)
	}
}
