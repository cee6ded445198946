// Package dataforseo reads domain analytics from the DataForSEO Labs API.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

const statusOK = 20000

// Client calls the live Labs endpoints with basic auth.
type Client struct {
	login    string
	password string
	baseURL  string
	up       *upstream.Client
	now      func() time.Time
}

func New(login, password, baseURL string, opts ...upstream.Option) *Client {
	return &Client{
		login:    login,
		password: password,
		baseURL:  strings.TrimRight(baseURL, "/"),
		up:       upstream.New("dataforseo", opts...),
		now:      time.Now,
	}
}

// APIError is a non-OK status inside a 200 response envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dataforseo: status %d: %s", e.Code, e.Message)
}

type envelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		StatusCode    int               `json:"status_code"`
		StatusMessage string            `json:"status_message"`
		Result        []json.RawMessage `json:"result"`
	} `json:"tasks"`
}

type task struct {
	Target       string   `json:"target"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
	Limit        int      `json:"limit,omitempty"`
	OrderBy      []string `json:"order_by,omitempty"`
}

// post sends one task and decodes the first result into out. A task with
// no result leaves out untouched.
func (c *Client) post(ctx context.Context, path string, t task, out any) error {
	payload, err := json.Marshal([]task{t})
	if err != nil {
		return err
	}
	body, err := c.up.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.login, c.password)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("dataforseo %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decoding dataforseo response: %w", err)
	}
	if env.StatusCode != statusOK {
		return &APIError{Code: env.StatusCode, Message: env.StatusMessage}
	}
	if len(env.Tasks) == 0 {
		return nil
	}
	tk := env.Tasks[0]
	if tk.StatusCode != statusOK {
		return &APIError{Code: tk.StatusCode, Message: tk.StatusMessage}
	}
	if len(tk.Result) == 0 || string(tk.Result[0]) == "null" {
		return nil
	}
	if err := json.Unmarshal(tk.Result[0], out); err != nil {
		return fmt.Errorf("decoding dataforseo result: %w", err)
	}
	return nil
}

func newTask(domain string, loc seo.Location) task {
	if loc.Code == 0 {
		loc = seo.DefaultLocation
	}
	return task{Target: domain, LocationCode: loc.Code, LanguageCode: loc.Language}
}

type organicMetrics struct {
	Pos1        int     `json:"pos_1"`
	Pos2to3     int     `json:"pos_2_3"`
	Pos4to10    int     `json:"pos_4_10"`
	ETV         float64 `json:"etv"`
	Count       int     `json:"count"`
	TrafficCost float64 `json:"estimated_paid_traffic_cost"`
}

// Overview returns the organic summary for a domain. A domain without data
// yields a zero overview, not an error.
func (c *Client) Overview(ctx context.Context, domain string, loc seo.Location) (seo.DomainOverview, error) {
	var res struct {
		Items []struct {
			Metrics struct {
				Organic organicMetrics `json:"organic"`
			} `json:"metrics"`
		} `json:"items"`
	}
	if err := c.post(ctx, "/v3/dataforseo_labs/google/domain_rank_overview/live", newTask(domain, loc), &res); err != nil {
		return seo.DomainOverview{}, err
	}
	now := c.now().UTC()
	ov := seo.DomainOverview{
		Domain:   domain,
		DataDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	if len(res.Items) > 0 {
		m := res.Items[0].Metrics.Organic
		ov.OrganicTraffic = int64(m.ETV)
		ov.OrganicKeywords = m.Count
		ov.Top3Keywords = m.Pos1 + m.Pos2to3
		ov.Top10Keywords = m.Pos1 + m.Pos2to3 + m.Pos4to10
		ov.TrafficCost = m.TrafficCost
	}
	return ov, nil
}

// RankedKeywords returns up to limit keywords the domain ranks for, ordered
// by estimated traffic.
func (c *Client) RankedKeywords(ctx context.Context, domain string, loc seo.Location, limit int) ([]seo.RankedKeyword, error) {
	if limit <= 0 {
		limit = 100
	}
	t := newTask(domain, loc)
	t.Limit = limit
	t.OrderBy = []string{"ranked_serp_element.serp_item.etv,desc"}

	var res struct {
		Items []struct {
			KeywordData struct {
				Keyword     string `json:"keyword"`
				KeywordInfo struct {
					SearchVolume int `json:"search_volume"`
				} `json:"keyword_info"`
				KeywordProperties struct {
					KeywordDifficulty int `json:"keyword_difficulty"`
				} `json:"keyword_properties"`
			} `json:"keyword_data"`
			RankedSERPElement struct {
				SERPItem struct {
					RankAbsolute int     `json:"rank_absolute"`
					URL          string  `json:"url"`
					ETV          float64 `json:"etv"`
					RankChanges  struct {
						PreviousRankAbsolute int `json:"previous_rank_absolute"`
					} `json:"rank_changes"`
				} `json:"serp_item"`
			} `json:"ranked_serp_element"`
		} `json:"items"`
	}
	if err := c.post(ctx, "/v3/dataforseo_labs/google/ranked_keywords/live", t, &res); err != nil {
		return nil, err
	}
	out := make([]seo.RankedKeyword, 0, len(res.Items))
	for _, it := range res.Items {
		if it.KeywordData.Keyword == "" {
			continue
		}
		si := it.RankedSERPElement.SERPItem
		out = append(out, seo.RankedKeyword{
			Keyword:          it.KeywordData.Keyword,
			Position:         si.RankAbsolute,
			PreviousPosition: si.RankChanges.PreviousRankAbsolute,
			SearchVolume:     it.KeywordData.KeywordInfo.SearchVolume,
			ETV:              si.ETV,
			URL:              si.URL,
			Difficulty:       it.KeywordData.KeywordProperties.KeywordDifficulty,
		})
	}
	return out, nil
}

// Competitors returns domains competing for the same organic keywords. The
// domain itself is excluded.
func (c *Client) Competitors(ctx context.Context, domain string, loc seo.Location, limit int) ([]seo.DomainCompetitor, error) {
	if limit <= 0 {
		limit = 20
	}
	t := newTask(domain, loc)
	t.Limit = limit + 1

	var res struct {
		Items []struct {
			Domain            string  `json:"domain"`
			AvgPosition       float64 `json:"avg_position"`
			Intersections     int     `json:"intersections"`
			FullDomainMetrics struct {
				Organic organicMetrics `json:"organic"`
			} `json:"full_domain_metrics"`
		} `json:"items"`
	}
	if err := c.post(ctx, "/v3/dataforseo_labs/google/competitors_domain/live", t, &res); err != nil {
		return nil, err
	}
	out := make([]seo.DomainCompetitor, 0, len(res.Items))
	for _, it := range res.Items {
		if it.Domain == "" || strings.EqualFold(it.Domain, domain) {
			continue
		}
		out = append(out, seo.DomainCompetitor{
			Domain:          it.Domain,
			AvgPosition:     it.AvgPosition,
			Intersections:   it.Intersections,
			OrganicTraffic:  int64(it.FullDomainMetrics.Organic.ETV),
			OrganicKeywords: it.FullDomainMetrics.Organic.Count,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
