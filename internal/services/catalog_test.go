package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
)

func TestCatalogSearchTracks(t *testing.T) {
	t.Run("structured query", func(t *testing.T) {
		var gotQuery map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = map[string]string{
				"title":  r.URL.Query().Get("title"),
				"artist": r.URL.Query().Get("artist"),
				"limit":  r.URL.Query().Get("limit"),
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":"trk_1","title":"Yesterday","artist":"The Beatles","album":"Help!","duration_seconds":125}]`))
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		candidates, err := svc.SearchTracks(context.Background(), SearchQuery{Title: "Yesterday", Artist: "The Beatles", Limit: 10})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		if gotQuery["title"] != "Yesterday" || gotQuery["artist"] != "The Beatles" || gotQuery["limit"] != "10" {
			t.Errorf("unexpected query params: %v", gotQuery)
		}
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		if candidates[0].BackendID != "trk_1" || candidates[0].DurationSecs != 125 {
			t.Errorf("unexpected candidate: %+v", candidates[0])
		}
		if candidates[0].Provenance != models.ProvenanceSearch {
			t.Errorf("search results should carry search provenance, got %s", candidates[0].Provenance)
		}
	})

	t.Run("free text query", func(t *testing.T) {
		var gotText string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotText = r.URL.Query().Get("q")
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		candidates, err := svc.SearchTracks(context.Background(), SearchQuery{Text: "yesterday beatles"})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		if gotText != "yesterday beatles" {
			t.Errorf("expected q param, got %q", gotText)
		}
		if len(candidates) != 0 {
			t.Errorf("empty result should not be an error, got %d candidates", len(candidates))
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		_, err := svc.SearchTracks(context.Background(), SearchQuery{Title: "x"})
		if !errors.Is(err, shared.ErrTransientNetwork) {
			t.Errorf("expected ErrTransientNetwork for 502, got %v", err)
		}
		if !IsRetryable(err) {
			t.Error("502 should be retryable")
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		_, err := svc.SearchTracks(context.Background(), SearchQuery{Title: "x"})
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited for 429, got %v", err)
		}
	})

	t.Run("client error is not retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"bad search"}`))
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		_, err := svc.SearchTracks(context.Background(), SearchQuery{Title: "x"})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest for 400, got %v", err)
		}
		if IsRetryable(err) {
			t.Error("400 should not be retryable")
		}
	})

	t.Run("auth token header", func(t *testing.T) {
		var gotToken string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get("X-Auth-Token")
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL, AuthToken: "secret"})
		svc.SearchTracks(context.Background(), SearchQuery{Title: "x"})

		if gotToken != "secret" {
			t.Errorf("expected auth token header, got %q", gotToken)
		}
	})
}

func TestCatalogGetTrack(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/tracks/trk_1" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.Write([]byte(`{"id":"trk_1","title":"Yesterday","artist":"The Beatles"}`))
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		track, err := svc.GetTrack(context.Background(), "trk_1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if track.Provenance != models.ProvenanceLinked {
			t.Errorf("fetched tracks should carry linked provenance, got %s", track.Provenance)
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		svc := NewCatalogService(CatalogOpts{BaseURL: server.URL})
		_, err := svc.GetTrack(context.Background(), "missing")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})
}
