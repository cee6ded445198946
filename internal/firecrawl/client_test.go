package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_Markdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc", r.Header.Get("Authorization"))
		var req scrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"markdown"}, req.Formats)
		assert.Equal(t, "https://example.com/a", req.URL)

		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# Guide\n\n## Step one\ntext","metadata":{"title":"Guide","language":"EN"}}}`))
	}))
	defer srv.Close()

	p, err := New("fc", srv.URL+"/").Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Guide", p.Title)
	assert.Equal(t, "en", p.Language)
	assert.Equal(t, "firecrawl", p.Source)
	assert.Equal(t, []string{"H1: Guide", "H2: Step one"}, p.Headings)
}

func TestFetch_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"blocked"}`))
	}))
	defer srv.Close()

	_, err := New("fc", srv.URL).Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}
