package seranking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

func TestFetch_BatchesAndMapsRows(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Token key", r.Header.Get("Authorization"))
		assert.Equal(t, "de", r.URL.Query().Get("source"))
		require.NoError(t, r.ParseForm())

		var rows []map[string]any
		for _, kw := range r.PostForm["keywords[]"] {
			if kw == "unknown term" {
				continue
			}
			rows = append(rows, map[string]any{
				"keyword":    kw,
				"volume":     "1,200",
				"cpc":        0.8,
				"difficulty": 34,
			})
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	c := New("key", srv.URL, WithBatching(2, 0))
	got, err := c.Fetch(context.Background(), []string{"Kaffeemaschine", "espresso", "unknown term"}, "de")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	d, ok := Lookup(got, "kaffeemaschine")
	require.True(t, ok)
	assert.True(t, d.IsDataFound)
	assert.Equal(t, 1200, d.Volume)
	assert.Equal(t, 34, d.Difficulty)

	miss, ok := Lookup(got, "Unknown  Term")
	require.True(t, ok)
	assert.False(t, miss.IsDataFound)
}

func TestFetch_PartialBatchFailureDegrades(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[{"keyword":"b","volume":10}]`))
	}))
	defer srv.Close()

	c := New("key", srv.URL, WithBatching(1, 0))
	got, err := c.Fetch(context.Background(), []string{"a", "b"}, "us")
	require.NoError(t, err)
	_, ok := Lookup(got, "a")
	assert.False(t, ok)
	d, _ := Lookup(got, "b")
	assert.Equal(t, 10, d.Volume)
}

func TestFetch_AllBatchesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("key", srv.URL, WithBatching(5, 0), WithUpstream(upstream.WithRetries(1, time.Millisecond)))
	_, err := c.Fetch(context.Background(), []string{"a"}, "")
	require.Error(t, err)
	assert.True(t, upstream.IsStatus(err, http.StatusServiceUnavailable))
}

func TestFetch_WaitsBetweenBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New("key", srv.URL, WithBatching(1, time.Second))
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	_, err := c.Fetch(context.Background(), []string{"a", "b", "c"}, "us")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
}

func TestSourceForLanguage(t *testing.T) {
	assert.Equal(t, "us", SourceForLanguage("en"))
	assert.Equal(t, "jp", SourceForLanguage("JA"))
	assert.Equal(t, "us", SourceForLanguage(""))
}
