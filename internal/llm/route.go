package llm

import (
	"net/http"
	"strings"
)

// Provider names an OpenAI-compatible proxy in front of Gemini.
type Provider string

const (
	Provider302  Provider = "302"
	ProviderTuzi Provider = "tuzi"
)

// Default proxy endpoints.
var DefaultBaseURLs = map[Provider]string{
	Provider302:  "https://api.302.ai/v1",
	ProviderTuzi: "https://api.tu-zi.com/v1",
}

const (
	HeaderProvider = "X-Proxy-Provider"
	HeaderModel    = "X-Gemini-Model"
)

// Route selects the proxy and model for one request. It is a value: build it
// once per request and pass it down to every call.
type Route struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

// ParseProvider returns the provider named by s, if known.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case Provider302:
		return Provider302, true
	case ProviderTuzi:
		return ProviderTuzi, true
	}
	return "", false
}

// RouteFromHeaders reads X-Proxy-Provider and X-Gemini-Model, falling back to
// def for a missing or unknown value.
func RouteFromHeaders(h http.Header, def Route) Route {
	route := def
	if p, ok := ParseProvider(h.Get(HeaderProvider)); ok {
		route.Provider = p
	}
	if m := strings.TrimSpace(h.Get(HeaderModel)); m != "" {
		route.Model = m
	}
	return route
}

// Or fills empty fields of r from def.
func (r Route) Or(def Route) Route {
	if r.Provider == "" {
		r.Provider = def.Provider
	}
	if r.Model == "" {
		r.Model = def.Model
	}
	return r
}
