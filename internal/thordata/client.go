// Package thordata is a client for the ThorData Google SERP API.
package thordata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

const defaultResultCount = 10

// Client searches Google through ThorData.
type Client struct {
	token   string
	baseURL string
	up      *upstream.Client
	now     func() time.Time
}

// New creates a client. baseURL is the full request endpoint.
func New(token, baseURL string, opts ...upstream.Option) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		up:      upstream.New("thordata", opts...),
		now:     time.Now,
	}
}

type serpResponse struct {
	Organic []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic"`
	SearchInformation struct {
		TotalResults json.Number `json:"total_results"`
	} `json:"search_information"`
}

// Search runs one Google search and returns its organic results.
func (c *Client) Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error) {
	if strings.TrimSpace(q.Keyword) == "" {
		return seo.SERPResult{}, fmt.Errorf("thordata: empty keyword")
	}
	if q.Num <= 0 {
		q.Num = defaultResultCount
	}

	form := url.Values{}
	form.Set("engine", "google")
	form.Set("q", q.Keyword)
	form.Set("num", strconv.Itoa(q.Num))
	form.Set("json", "1")
	if q.Language != "" {
		form.Set("hl", q.Language)
	}
	if q.Country != "" {
		form.Set("gl", q.Country)
	}
	encoded := form.Encode()

	body, err := c.up.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return seo.SERPResult{}, fmt.Errorf("thordata search %q: %w", q.Keyword, err)
	}

	var resp serpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return seo.SERPResult{}, fmt.Errorf("decoding thordata response: %w", err)
	}

	result := seo.SERPResult{
		Query:     q,
		Organic:   make([]seo.SERPSnippet, 0, len(resp.Organic)),
		FetchedAt: c.now().UTC(),
	}
	if n, err := resp.SearchInformation.TotalResults.Int64(); err == nil {
		result.TotalResults = n
		result.TotalKnown = true
	}
	for i, o := range resp.Organic {
		if o.Link == "" {
			continue
		}
		pos := o.Position
		if pos == 0 {
			pos = i + 1
		}
		result.Organic = append(result.Organic, seo.SERPSnippet{
			Position: pos,
			Title:    o.Title,
			URL:      o.Link,
			Snippet:  o.Snippet,
			Domain:   seo.RegistrableDomain(o.Link),
		})
	}
	return result, nil
}
