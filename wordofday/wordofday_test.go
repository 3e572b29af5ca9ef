package wordofday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFetchEmptyLanguage(t *testing.T) {
	c := &Client{}
	_, err := c.Fetch(context.Background(), "")
	if !errors.Is(err, ErrNoLanguage) {
		t.Fatalf("err = %v, want ErrNoLanguage", err)
	}
}

func TestFetchParsesEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ja.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"word": "猫", "wotd:transliteratedWord": "neko", "translation": "cat"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	got, err := c.Fetch(context.Background(), "ja")
	if err != nil {
		t.Fatal(err)
	}
	want := &Entry{LanguageCode: "ja", Word: "猫", Transliterate: "neko", Translation: "cat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchEmptyWordIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	if _, err := c.Fetch(context.Background(), "de"); err == nil {
		t.Fatal("expected error for empty word")
	}
}

func TestFetchUnknownLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	if _, err := c.Fetch(context.Background(), "xx"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}
