// Package firecrawl scrapes pages to markdown through the Firecrawl API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/scrape"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

// Client implements scrape.Fetcher.
type Client struct {
	apiKey  string
	baseURL string
	up      *upstream.Client
}

func New(apiKey, baseURL string, opts ...upstream.Option) *Client {
	opts = append([]upstream.Option{upstream.WithTimeout(45 * time.Second)}, opts...)
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		up:      upstream.New("firecrawl", opts...),
	}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			Language  string `json:"language"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

func (c *Client) Fetch(ctx context.Context, url string) (scrape.Page, error) {
	payload, err := json.Marshal(scrapeRequest{URL: url, Formats: []string{"markdown"}, OnlyMainContent: true})
	if err != nil {
		return scrape.Page{}, err
	}
	body, err := c.up.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return scrape.Page{}, fmt.Errorf("firecrawl scrape %s: %w", url, err)
	}

	var resp scrapeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return scrape.Page{}, fmt.Errorf("decoding firecrawl response: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return scrape.Page{}, errors.New("firecrawl: " + msg)
	}

	md := resp.Data.Markdown
	return scrape.Page{
		URL:      url,
		Title:    resp.Data.Metadata.Title,
		Text:     md,
		Headings: scrape.HeadingsFromMarkdown(md),
		Language: strings.ToLower(resp.Data.Metadata.Language),
		Source:   "firecrawl",
	}, nil
}
