// Package seo holds the value types shared by the agents, fetchers and storage.
package seo

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Intent is the search intent category of a keyword.
type Intent string

const (
	IntentInformational Intent = "Informational"
	IntentTransactional Intent = "Transactional"
	IntentLocal         Intent = "Local"
	IntentCommercial    Intent = "Commercial"
)

// Intents lists every valid intent.
var Intents = []Intent{IntentInformational, IntentTransactional, IntentLocal, IntentCommercial}

// NormalizeIntent maps free-form model output onto a valid Intent.
// Unknown values fall back to Informational.
func NormalizeIntent(s string) Intent {
	s = strings.TrimSpace(s)
	for _, in := range Intents {
		if strings.EqualFold(s, string(in)) {
			return in
		}
	}
	switch strings.ToLower(s) {
	case "navigational", "info":
		return IntentInformational
	case "commercial investigation", "commercial_investigation":
		return IntentCommercial
	case "transaction", "purchase":
		return IntentTransactional
	}
	return IntentInformational
}

// Probability is the estimated chance of ranking on page one.
type Probability string

const (
	ProbabilityHigh   Probability = "High"
	ProbabilityMedium Probability = "Medium"
	ProbabilityLow    Probability = "Low"
)

// NormalizeProbability maps model output onto a Probability, defaulting to Low.
func NormalizeProbability(s string) Probability {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ProbabilityHigh
	case "medium", "moderate":
		return ProbabilityMedium
	default:
		return ProbabilityLow
	}
}

// Rank orders probabilities for sorting; unanalysed keywords sort last.
func (p Probability) Rank() int {
	switch p {
	case ProbabilityHigh:
		return 0
	case ProbabilityMedium:
		return 1
	case ProbabilityLow:
		return 2
	default:
		return 3
	}
}

// KeywordData is a mined keyword, enriched in place by later stages.
type KeywordData struct {
	ID              string         `json:"id"`
	Keyword         string         `json:"keyword"`
	Translation     string         `json:"translation"`
	Intent          Intent         `json:"intent"`
	Volume          int            `json:"volume"`
	SERanking       *SERankingData `json:"serankingData,omitempty"`
	SERPResultCount *int           `json:"serpResultCount,omitempty"`
	TopDomainType   string         `json:"topDomainType,omitempty"`
	Probability     Probability    `json:"probability,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
	TopSERPSnippets []SERPSnippet  `json:"topSerpSnippets,omitempty"`
	SearchIntent    string         `json:"searchIntent,omitempty"`
	IntentAnalysis  string         `json:"intentAnalysis,omitempty"`
}

// SERankingData is keyword metrics from SE-Ranking.
type SERankingData struct {
	IsDataFound  bool           `json:"isDataFound"`
	Volume       int            `json:"volume"`
	CPC          float64        `json:"cpc"`
	Competition  float64        `json:"competition"`
	Difficulty   int            `json:"difficulty"`
	HistoryTrend map[string]int `json:"historyTrend,omitempty"`
}

// SERPQuery describes one search.
type SERPQuery struct {
	Keyword  string `json:"keyword"`
	Language string `json:"language"`
	Country  string `json:"country"`
	Num      int    `json:"num"`
}

// SERPSnippet is one organic search result.
type SERPSnippet struct {
	Position int    `json:"position,omitempty"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Domain   string `json:"domain,omitempty"`
}

// SERPResult is the organic part of a search results page.
type SERPResult struct {
	Query        SERPQuery     `json:"query"`
	TotalResults int64         `json:"totalResults"`
	TotalKnown   bool          `json:"totalKnown"` // the upstream reported TotalResults
	Organic      []SERPSnippet `json:"organic"`
	FetchedAt    time.Time     `json:"fetchedAt"`
}

// Competitor is a ranking page selected for deep-dive analysis.
type Competitor struct {
	Domain        string   `json:"domain"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Position      int      `json:"position"`
	Snippet       string   `json:"snippet,omitempty"`
	Headings      []string `json:"headings,omitempty"`
	WordCount     int      `json:"wordCount"`
	Language      string   `json:"language,omitempty"`
	Scraped       bool     `json:"scraped"`
	LanguageMatch bool     `json:"languageMatch"`
	Content       string   `json:"-"`
}

// ContentSection is one planned section of an article.
type ContentSection struct {
	Header      string `json:"header"`
	Description string `json:"description"`
}

// SEOStrategyReport is the deep-dive output consumed by the content writer.
type SEOStrategyReport struct {
	TargetKeyword        string           `json:"targetKeyword"`
	PageTitleH1          string           `json:"pageTitleH1"`
	MetaDescription      string           `json:"metaDescription"`
	URLSlug              string           `json:"urlSlug"`
	UserIntentSummary    string           `json:"userIntentSummary"`
	ContentStructure     []ContentSection `json:"contentStructure"`
	LongTailKeywords     []string         `json:"longTailKeywords"`
	RecommendedWordCount int              `json:"recommendedWordCount"`
	ContentGaps          []string         `json:"contentGaps,omitempty"`
	CompetitorInsights   []string         `json:"competitorInsights,omitempty"`
	GeneratedAt          time.Time        `json:"generatedAt"`
}

// FlexInt decodes a JSON number or a numeric string such as "1,200".
// Anything else decodes to zero.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if fl, err := n.Float64(); err == nil {
			*f = FlexInt(int(fl))
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.NewReplacer(",", "", " ", "", "_", "").Replace(s)
		if fl, err := strconv.ParseFloat(s, 64); err == nil {
			*f = FlexInt(int(fl))
			return nil
		}
	}
	*f = 0
	return nil
}
