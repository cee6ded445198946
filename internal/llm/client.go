// Package llm talks to the Gemini proxies through their OpenAI-compatible
// chat completion endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultTimeout   = 60 * time.Second
	streamingTimeout = 300 * time.Second
	maxRetries       = 3
	initialBackoff   = 500 * time.Millisecond
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: openai.ChatMessageRoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: openai.ChatMessageRoleUser, Content: content} }

type callOptions struct {
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// CallOption tunes a single completion.
type CallOption func(*callOptions)

func Temperature(t float32) CallOption { return func(o *callOptions) { o.temperature = t } }
func MaxTokens(n int) CallOption       { return func(o *callOptions) { o.maxTokens = n } }
func Timeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// ProviderConfig is the endpoint and key for one proxy.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Observer receives one record per completion attempt.
type Observer interface {
	ObserveUpstream(upstream, outcome string, d time.Duration)
}

// StatusError is returned when a proxy answers 429 or 5xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm proxy returned HTTP %d: %s", e.Code, e.Body)
}

// Client routes completions to the configured proxies.
type Client struct {
	providers      map[Provider]*openai.Client
	def            Route
	observer       Observer
	initialBackoff time.Duration
}

type Option func(*Client)

func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

// WithBackoff overrides the first retry delay.
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.initialBackoff = d } }

// NewClient builds a client for every provider with an API key. def is used
// for any Route field left empty by the caller.
func NewClient(providers map[Provider]ProviderConfig, def Route, opts ...Option) (*Client, error) {
	c := &Client{
		providers:      make(map[Provider]*openai.Client),
		def:            def,
		initialBackoff: initialBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	for p, pc := range providers {
		if pc.APIKey == "" {
			continue
		}
		base := pc.BaseURL
		if base == "" {
			base = DefaultBaseURLs[p]
		}
		cfg := openai.DefaultConfig(pc.APIKey)
		cfg.BaseURL = strings.TrimRight(base, "/")
		cfg.HTTPClient = &statusDoer{client: &http.Client{}}
		c.providers[p] = openai.NewClientWithConfig(cfg)
	}
	if _, ok := c.providers[def.Provider]; !ok {
		return nil, fmt.Errorf("default provider %q has no API key configured", def.Provider)
	}
	return c, nil
}

// DefaultRoute returns the route used for empty Route fields.
func (c *Client) DefaultRoute() Route { return c.def }

func (c *Client) resolve(route Route) (*openai.Client, Route, error) {
	route = route.Or(c.def)
	oc, ok := c.providers[route.Provider]
	if !ok {
		return nil, route, fmt.Errorf("provider %q is not configured", route.Provider)
	}
	return oc, route, nil
}

// Complete sends a chat completion and returns the assistant text. 429 and
// 5xx responses are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, route Route, messages []Message, opts ...CallOption) (string, error) {
	oc, route, err := c.resolve(route)
	if err != nil {
		return "", err
	}
	o := callOptions{timeout: defaultTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	req := buildRequest(route, messages, o)

	var lastErr error
	for attempt := range maxRetries {
		text, err := c.complete(ctx, oc, route, req, o.timeout)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
		if err := c.wait(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("llm proxy failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) complete(ctx context.Context, oc *openai.Client, route Route, req openai.ChatCompletionRequest, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := oc.CreateChatCompletion(reqCtx, req)
	c.observe(route, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("chat completion (%s/%s): %w", route.Provider, route.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion (%s/%s): empty choices", route.Provider, route.Model)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends a streaming chat completion, calling onDelta for each content
// chunk, and returns the full text. Only opening the stream is retried.
func (c *Client) Stream(ctx context.Context, route Route, messages []Message, onDelta func(string) error, opts ...CallOption) (string, error) {
	oc, route, err := c.resolve(route)
	if err != nil {
		return "", err
	}
	o := callOptions{timeout: streamingTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	req := buildRequest(route, messages, o)
	req.Stream = true

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var stream *openai.ChatCompletionStream
	for attempt := range maxRetries {
		start := time.Now()
		stream, err = oc.CreateChatCompletionStream(reqCtx, req)
		c.observe(route, err, time.Since(start))
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == maxRetries-1 {
			return "", fmt.Errorf("opening stream (%s/%s): %w", route.Provider, route.Model, err)
		}
		if err := c.wait(reqCtx, attempt); err != nil {
			return "", err
		}
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), fmt.Errorf("reading stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	if attempt >= maxRetries-1 {
		return nil
	}
	backoff := time.Duration(float64(c.initialBackoff) * math.Pow(2, float64(attempt)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

func (c *Client) observe(route Route, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var se *StatusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
		outcome = "rate_limited"
	default:
		outcome = "error"
	}
	c.observer.ObserveUpstream("llm-"+string(route.Provider), outcome, d)
}

func buildRequest(route Route, messages []Message, o callOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       route.Model,
		Messages:    msgs,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

func isRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// statusDoer turns 429 and 5xx proxy responses into StatusError before the
// OpenAI client tries to decode them; proxies often answer those with HTML.
type statusDoer struct {
	client *http.Client
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
