package seo

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Website is a domain registered by a user.
type Website struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
}

// Location selects the search market for domain analytics.
type Location struct {
	Code     int    `json:"locationCode"`
	Language string `json:"languageCode"`
}

// DefaultLocation is the United States, English.
var DefaultLocation = Location{Code: 2840, Language: "en"}

// DomainOverview is the organic summary of a domain.
type DomainOverview struct {
	WebsiteID       string    `json:"websiteId"`
	Domain          string    `json:"domain"`
	OrganicTraffic  int64     `json:"organicTraffic"`
	OrganicKeywords int       `json:"organicKeywords"`
	Top3Keywords    int       `json:"top3Keywords"`
	Top10Keywords   int       `json:"top10Keywords"`
	TrafficCost     float64   `json:"trafficCost"`
	DataDate        time.Time `json:"dataDate"`
	CachedAt        time.Time `json:"cachedAt"`
	ExpiresAt       time.Time `json:"cacheExpiresAt"`
}

// RankedKeyword is a keyword a domain ranks for.
type RankedKeyword struct {
	Keyword          string  `json:"keyword"`
	Position         int     `json:"position"`
	PreviousPosition int     `json:"previousPosition,omitempty"`
	SearchVolume     int     `json:"searchVolume"`
	ETV              float64 `json:"etv"`
	URL              string  `json:"url"`
	Difficulty       int     `json:"difficulty"`
}

// DomainCompetitor is a domain competing for the same keywords.
type DomainCompetitor struct {
	Domain          string  `json:"domain"`
	AvgPosition     float64 `json:"avgPosition"`
	Intersections   int     `json:"intersections"`
	OrganicTraffic  int64   `json:"organicTraffic"`
	OrganicKeywords int     `json:"organicKeywords"`
}

// KeywordRecommendation is a keyword the domain should target next.
type KeywordRecommendation struct {
	Keyword      string `json:"keyword"`
	Reason       string `json:"reason"`
	Priority     string `json:"priority"`
	SearchVolume int    `json:"searchVolume"`
	Difficulty   int    `json:"difficulty"`
}

// RegistrableDomain returns the eTLD+1 of a URL or host ("blog.example.co.uk"
// -> "example.co.uk"), or the bare host when it has no public suffix.
func RegistrableDomain(raw string) string {
	host := strings.TrimSpace(raw)
	if !strings.Contains(host, "://") {
		host = "//" + host
	}
	if u, err := url.Parse(host); err == nil {
		host = u.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
