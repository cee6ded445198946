package ranking

import (
	"fmt"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const defaultSystemPrompt = `You are a Google SERP competition analyst. For one keyword, estimate how hard it is for a new, well-written page to reach the first page of results.

Consider the number of indexed results, the authority of the domains that currently rank (brand sites, marketplaces, forums, thin affiliate pages) and how well the ranking pages match the search intent.

Output ONLY a JSON object with these fields:
- "serpResultCount": estimated number of results Google shows for the exact query, as a number (-1 if unknown)
- "topDomainType": the dominant type of ranking page, e.g. "Big Brand", "Niche Site", "Forum/UGC", "Marketplace", "Weak Page"
- "probability": "High", "Medium" or "Low" chance of ranking on page one
- "reasoning": one or two sentences
- "searchIntent": what the searcher wants
- "intentAnalysis": whether the current results satisfy that intent`

// BuildPrompt constructs the analysis messages for one keyword. snippets may
// be empty when no SERP data was fetched.
func BuildPrompt(kw seo.KeywordData, targetLanguage, override string, serp *seo.SERPResult) []llm.Message {
	system := defaultSystemPrompt
	if strings.TrimSpace(override) != "" {
		system = override
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Keyword: %q\n", kw.Keyword)
	if kw.Translation != "" && kw.Translation != kw.Keyword {
		fmt.Fprintf(&sb, "English translation: %s\n", kw.Translation)
	}
	if targetLanguage != "" {
		fmt.Fprintf(&sb, "Market language: %s\n", targetLanguage)
	}
	if kw.Volume > 0 {
		fmt.Fprintf(&sb, "Monthly search volume: %d\n", kw.Volume)
	}
	if kw.SERanking != nil && kw.SERanking.IsDataFound {
		fmt.Fprintf(&sb, "Keyword difficulty (0-100): %d\n", kw.SERanking.Difficulty)
	}

	if serp != nil && len(serp.Organic) > 0 {
		if serp.TotalKnown {
			fmt.Fprintf(&sb, "\n[Live SERP, about %d results]\n", serp.TotalResults)
		} else {
			sb.WriteString("\n[Live SERP]\n")
		}
		for _, s := range serp.Organic {
			fmt.Fprintf(&sb, "%d. %s (%s)\n   %s\n", s.Position, s.Title, s.Domain, s.Snippet)
		}
	}

	sb.WriteString("\nReturn the JSON object now.")
	return []llm.Message{llm.System(system), llm.User(sb.String())}
}
