package writer

import (
	"fmt"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const defaultReferenceTokens = 6000

const defaultSystemPrompt = `You are an expert SEO content writer. Write a complete, original article in Markdown that follows the strategy brief exactly: use the given H1, cover every planned section in order as H2 headings, work the long-tail keywords in naturally, and aim for the recommended word count.

Rules:
- Start with the H1 as "# " heading.
- Write in the target language.
- Do not copy sentences from competitor pages.
- When reference documents are provided, prefer their facts over general knowledge.
- Output only the Markdown article, no commentary.`

// Composer assembles the writer prompt. Reference documents share a token
// budget; documents that do not fit are truncated, later ones dropped.
type Composer struct {
	MaxReferenceTokens int
}

// NewComposer creates a Composer. If maxReferenceTokens <= 0, the default
// (6000) is used.
func NewComposer(maxReferenceTokens int) *Composer {
	if maxReferenceTokens <= 0 {
		maxReferenceTokens = defaultReferenceTokens
	}
	return &Composer{MaxReferenceTokens: maxReferenceTokens}
}

// Compose builds the chat messages for one article.
func (c *Composer) Compose(req Request) []llm.Message {
	system := defaultSystemPrompt
	if strings.TrimSpace(req.PromptOverride) != "" {
		system = req.PromptOverride
	}

	var sb strings.Builder
	writeBrief(&sb, req)
	writeCompetitors(&sb, req.Competitors)
	sb.WriteString(c.buildReferences(req.References))
	sb.WriteString("\nWrite the article now.")

	return []llm.Message{llm.System(system), llm.User(sb.String())}
}

func writeBrief(sb *strings.Builder, req Request) {
	r := req.Report
	sb.WriteString("[Strategy brief]\n")
	fmt.Fprintf(sb, "Target keyword: %s\n", r.TargetKeyword)
	fmt.Fprintf(sb, "Target language: %s\n", req.TargetLanguage)
	if req.Tone != "" {
		fmt.Fprintf(sb, "Tone: %s\n", req.Tone)
	}
	fmt.Fprintf(sb, "H1: %s\n", r.PageTitleH1)
	if r.UserIntentSummary != "" {
		fmt.Fprintf(sb, "Search intent: %s\n", r.UserIntentSummary)
	}
	if r.RecommendedWordCount > 0 {
		fmt.Fprintf(sb, "Recommended word count: %d\n", r.RecommendedWordCount)
	}
	if len(r.ContentStructure) > 0 {
		sb.WriteString("Sections:\n")
		for i, s := range r.ContentStructure {
			fmt.Fprintf(sb, "%d. %s - %s\n", i+1, s.Header, s.Description)
		}
	}
	if len(r.LongTailKeywords) > 0 {
		fmt.Fprintf(sb, "Long-tail keywords: %s\n", strings.Join(r.LongTailKeywords, ", "))
	}
	if len(r.ContentGaps) > 0 {
		fmt.Fprintf(sb, "Gaps to fill: %s\n", strings.Join(r.ContentGaps, "; "))
	}
}

func writeCompetitors(sb *strings.Builder, comps []seo.Competitor) {
	wrote := false
	for _, c := range comps {
		if !c.Scraped || !c.LanguageMatch || len(c.Headings) == 0 {
			continue
		}
		if !wrote {
			sb.WriteString("\n[Competitor outlines]\n")
			wrote = true
		}
		fmt.Fprintf(sb, "%s (%d words):\n", c.Domain, c.WordCount)
		for _, h := range c.Headings {
			fmt.Fprintf(sb, "  - %s\n", h)
		}
	}
}

// buildReferences respects the token budget in document order.
func (c *Composer) buildReferences(refs []Reference) string {
	if len(refs) == 0 {
		return ""
	}
	header := "\n[Reference documents]\n"
	remaining := c.MaxReferenceTokens - EstimateTokens(header)

	var sb strings.Builder
	for _, ref := range refs {
		text := strings.TrimSpace(ref.Text)
		if text == "" {
			continue
		}
		entryHeader := fmt.Sprintf("--- %s ---\n", ref.Name)
		budget := remaining - EstimateTokens(entryHeader)
		if budget <= 0 {
			break
		}
		if EstimateTokens(text) > budget {
			text = truncateToTokens(text, budget)
		}
		sb.WriteString(entryHeader)
		sb.WriteString(text)
		sb.WriteString("\n")
		remaining -= EstimateTokens(entryHeader) + EstimateTokens(text) + 1
	}
	if sb.Len() == 0 {
		return ""
	}
	return header + sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateToTokens cuts text to about n tokens on a rune boundary.
func truncateToTokens(text string, n int) string {
	limit := n * 4
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !isRuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
