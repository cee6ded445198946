// Package seranking fetches keyword volume, CPC and difficulty from the
// SE-Ranking data API.
package seranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

const (
	defaultBatchSize  = 10
	defaultBatchDelay = time.Second
)

// Client exports keyword metrics in batches.
type Client struct {
	apiKey     string
	baseURL    string
	up         *upstream.Client
	batchSize  int
	batchDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

type Option func(*Client)

// WithBatching overrides the batch size and the delay between batches.
func WithBatching(size int, delay time.Duration) Option {
	return func(c *Client) {
		if size > 0 {
			c.batchSize = size
		}
		c.batchDelay = delay
	}
}

// WithUpstream passes options to the underlying upstream client.
func WithUpstream(opts ...upstream.Option) Option {
	return func(c *Client) { c.up = upstream.New("seranking", opts...) }
}

func New(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		up:         upstream.New("seranking"),
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SourceForLanguage maps a target language to the SE-Ranking regional
// database. Unknown languages use the US database.
func SourceForLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "de":
		return "de"
	case "fr":
		return "fr"
	case "es":
		return "es"
	case "it":
		return "it"
	case "ja":
		return "jp"
	case "ko":
		return "kr"
	case "pt":
		return "br"
	case "ru":
		return "ru"
	case "zh", "zh-cn":
		return "hk"
	case "nl":
		return "nl"
	default:
		return "us"
	}
}

type exportRow struct {
	Keyword      string         `json:"keyword"`
	Volume       seo.FlexInt    `json:"volume"`
	CPC          float64        `json:"cpc"`
	Competition  float64        `json:"competition"`
	Difficulty   seo.FlexInt    `json:"difficulty"`
	IsDataFound  *bool          `json:"is_data_found"`
	HistoryTrend map[string]int `json:"history_trend"`
}

// Fetch returns metrics keyed by lower-cased keyword. Keywords the API has
// no data for map to an entry with IsDataFound false. A failed batch is
// logged and skipped; Fetch only returns an error when every batch failed.
func (c *Client) Fetch(ctx context.Context, keywords []string, source string) (map[string]seo.SERankingData, error) {
	out := make(map[string]seo.SERankingData, len(keywords))
	if len(keywords) == 0 {
		return out, nil
	}
	if source == "" {
		source = "us"
	}

	var failed int
	var lastErr error
	batches := 0
	for start := 0; start < len(keywords); start += c.batchSize {
		if start > 0 {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				return out, err
			}
		}
		end := min(start+c.batchSize, len(keywords))
		batch := keywords[start:end]
		batches++

		rows, err := c.export(ctx, batch, source)
		if err != nil {
			failed++
			lastErr = err
			slog.Warn("seranking batch failed", "keywords", len(batch), "error", err)
			continue
		}
		found := make(map[string]bool, len(rows))
		for _, r := range rows {
			key := normalize(r.Keyword)
			isFound := r.IsDataFound == nil || *r.IsDataFound
			out[key] = seo.SERankingData{
				IsDataFound:  isFound,
				Volume:       int(r.Volume),
				CPC:          r.CPC,
				Competition:  r.Competition,
				Difficulty:   int(r.Difficulty),
				HistoryTrend: r.HistoryTrend,
			}
			found[key] = true
		}
		for _, kw := range batch {
			if !found[normalize(kw)] {
				out[normalize(kw)] = seo.SERankingData{IsDataFound: false}
			}
		}
	}
	if failed == batches {
		return out, fmt.Errorf("seranking: all %d batches failed: %w", batches, lastErr)
	}
	return out, nil
}

func (c *Client) export(ctx context.Context, batch []string, source string) ([]exportRow, error) {
	form := url.Values{}
	for _, kw := range batch {
		form.Add("keywords[]", kw)
	}
	form.Set("cols", "keyword,volume,cpc,competition,difficulty,history_trend")
	encoded := form.Encode()
	endpoint := c.baseURL + "/v1/keywords/export?source=" + url.QueryEscape(source)

	body, err := c.up.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.apiKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	var rows []exportRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding seranking export: %w", err)
	}
	return rows, nil
}

// Lookup returns the metrics for kw from a Fetch result.
func Lookup(data map[string]seo.SERankingData, kw string) (seo.SERankingData, bool) {
	d, ok := data[normalize(kw)]
	return d, ok
}

func normalize(kw string) string {
	return strings.ToLower(strings.Join(strings.Fields(kw), " "))
}
