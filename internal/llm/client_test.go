package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func completionServer(t *testing.T, content string, gotAuth *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if gotAuth != nil {
			gotAuth.Store(r.Header.Get("Authorization"))
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, req.Model, content)
	}))
}

func TestComplete_UsesDefaultRoute(t *testing.T) {
	var auth atomic.Value
	srv := completionServer(t, "hello", &auth)
	defer srv.Close()

	c, err := NewClient(map[Provider]ProviderConfig{
		Provider302: {BaseURL: srv.URL, APIKey: "key-302"},
	}, Route{Provider: Provider302, Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := c.Complete(context.Background(), Route{}, []Message{User("hi")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
	if auth.Load() != "Bearer key-302" {
		t.Errorf("Authorization = %v", auth.Load())
	}
}

func TestComplete_RoutesToRequestedProvider(t *testing.T) {
	srv302 := completionServer(t, "from-302", nil)
	defer srv302.Close()
	srvTuzi := completionServer(t, "from-tuzi", nil)
	defer srvTuzi.Close()

	c, err := NewClient(map[Provider]ProviderConfig{
		Provider302:  {BaseURL: srv302.URL, APIKey: "a"},
		ProviderTuzi: {BaseURL: srvTuzi.URL, APIKey: "b"},
	}, Route{Provider: Provider302, Model: "m"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := c.Complete(context.Background(), Route{Provider: ProviderTuzi}, []Message{User("hi")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "from-tuzi" {
		t.Errorf("content = %q, want from-tuzi", got)
	}
}

func TestComplete_UnconfiguredProvider(t *testing.T) {
	srv := completionServer(t, "x", nil)
	defer srv.Close()

	c, err := NewClient(map[Provider]ProviderConfig{
		Provider302: {BaseURL: srv.URL, APIKey: "a"},
	}, Route{Provider: Provider302, Model: "m"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Complete(context.Background(), Route{Provider: ProviderTuzi}, []Message{User("hi")}); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestNewClient_RequiresDefaultProviderKey(t *testing.T) {
	_, err := NewClient(map[Provider]ProviderConfig{Provider302: {}}, Route{Provider: Provider302})
	if err == nil {
		t.Fatal("expected error when default provider has no key")
	}
}

func TestComplete_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("<html>slow down</html>"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(map[Provider]ProviderConfig{
		Provider302: {BaseURL: srv.URL, APIKey: "a"},
	}, Route{Provider: Provider302, Model: "m"}, WithBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := c.Complete(context.Background(), Route{}, []Message{User("hi")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" || calls.Load() != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls.Load())
	}
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(map[Provider]ProviderConfig{
		Provider302: {BaseURL: srv.URL, APIKey: "a"},
	}, Route{Provider: Provider302, Model: "m"}, WithBackoff(time.Millisecond))

	_, err := c.Complete(context.Background(), Route{}, []Message{User("hi")})
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Fatalf("err = %v, want HTTP 502", err)
	}
	if calls.Load() != maxRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries)
	}
}

func TestStream_CollectsDeltas(t *testing.T) {
	sse := "data: {\"id\":\"s\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"id\":\"s\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sse)
	}))
	defer srv.Close()

	c, _ := NewClient(map[Provider]ProviderConfig{
		Provider302: {BaseURL: srv.URL, APIKey: "a"},
	}, Route{Provider: Provider302, Model: "m"})

	var deltas []string
	full, err := c.Stream(context.Background(), Route{}, []Message{User("hi")}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if full != "Hello world" {
		t.Errorf("full = %q", full)
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestRouteFromHeaders(t *testing.T) {
	def := Route{Provider: Provider302, Model: "gemini-2.5-flash"}

	h := http.Header{}
	if got := RouteFromHeaders(h, def); got != def {
		t.Errorf("empty headers: got %+v, want default", got)
	}

	h.Set(HeaderProvider, "TUZI")
	h.Set(HeaderModel, "gemini-2.5-pro")
	got := RouteFromHeaders(h, def)
	if got.Provider != ProviderTuzi || got.Model != "gemini-2.5-pro" {
		t.Errorf("got %+v", got)
	}

	h.Set(HeaderProvider, "openrouter")
	if got := RouteFromHeaders(h, def); got.Provider != Provider302 {
		t.Errorf("unknown provider should fall back to default, got %q", got.Provider)
	}
}
