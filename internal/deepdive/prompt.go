package deepdive

import (
	"fmt"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// competitorExcerpt is how much of each scraped page goes into the prompt.
const competitorExcerpt = 2500

const defaultSystemPrompt = `You are a senior SEO content strategist. Using the live search results and the content of the pages that currently rank, plan a page that can outrank them for the target keyword.

Output ONLY a JSON object with these fields:
- "targetKeyword": the keyword
- "pageTitleH1": the H1 title, in the target language
- "metaDescription": at most 160 characters
- "urlSlug": lowercase, hyphenated
- "userIntentSummary": what the searcher wants, in two or three sentences
- "contentStructure": ordered array of {"header": "...", "description": "..."} sections
- "longTailKeywords": array of related long-tail keywords to cover
- "recommendedWordCount": number
- "contentGaps": array of topics the competitors miss
- "competitorInsights": array of short observations about the ranking pages

Write every user-facing field in the target language.`

// BuildPrompt assembles the strategy request. Competitors whose language
// does not match the target are left out.
func BuildPrompt(req Request, serp *seo.SERPResult, competitors []seo.Competitor, metrics *seo.SERankingData) []llm.Message {
	system := defaultSystemPrompt
	if strings.TrimSpace(req.PromptOverride) != "" {
		system = req.PromptOverride
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Target keyword: %q\n", req.Keyword)
	fmt.Fprintf(&sb, "Target language: %s\n", req.TargetLanguage)
	if req.WebsiteDomain != "" {
		fmt.Fprintf(&sb, "Our website: %s\n", req.WebsiteDomain)
	}

	if metrics != nil && metrics.IsDataFound {
		fmt.Fprintf(&sb, "\n[Keyword metrics]\nMonthly volume: %d\nDifficulty: %d/100\nCPC: %.2f\n", metrics.Volume, metrics.Difficulty, metrics.CPC)
	}

	if serp != nil && len(serp.Organic) > 0 {
		sb.WriteString("\n[Top search results]\n")
		for _, s := range serp.Organic {
			fmt.Fprintf(&sb, "%d. %s - %s\n   %s\n", s.Position, s.Title, s.URL, s.Snippet)
		}
	}

	wrote := false
	for _, c := range competitors {
		if !c.Scraped || !c.LanguageMatch {
			continue
		}
		if !wrote {
			sb.WriteString("\n[Competitor pages]\n")
			wrote = true
		}
		fmt.Fprintf(&sb, "\n### #%d %s (%s, %d words)\n", c.Position, c.Title, c.Domain, c.WordCount)
		if len(c.Headings) > 0 {
			sb.WriteString("Outline:\n")
			for _, h := range c.Headings {
				fmt.Fprintf(&sb, "- %s\n", h)
			}
		}
		if c.Content != "" {
			fmt.Fprintf(&sb, "Excerpt:\n%s\n", excerpt(c.Content, competitorExcerpt))
		}
	}

	sb.WriteString("\nReturn the JSON object now.")
	return []llm.Message{llm.System(system), llm.User(sb.String())}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
