package keywords

import (
	"fmt"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
)

// maxExclusionHint is how many prior keywords are listed in the prompt.
const maxExclusionHint = 20

const defaultSystemPrompt = `You are an SEO keyword research expert. You find keywords real users type into Google, with realistic monthly search volume estimates.

Output ONLY a JSON array. Each element must be an object with these fields:
- "keyword": the keyword in the target language
- "translation": the keyword translated to English (repeat the keyword if it is already English)
- "intent": one of "Informational", "Transactional", "Local", "Commercial"
- "volume": estimated monthly search volume as a number

Do not include any prose, markdown or comments.`

// scamperBlock is the lateral-thinking instruction used from round two on.
const scamperBlock = `[Lateral expansion: SCAMPER]
The obvious keywords for this seed have already been found. Explore new territory by applying the SCAMPER method to the seed topic:
- Substitute: alternatives, replacements, competing products
- Combine: the topic paired with adjacent needs or audiences
- Adapt: use cases borrowed from other contexts
- Modify: size, price, quality, speed or style variations
- Put to other uses: unexpected applications
- Eliminate: problems, pain points, "without" and "no" queries
- Reverse: comparisons, "vs" queries, downsides, alternatives to
Avoid similarity: do not return keywords that are near-duplicates, plurals or reorderings of the ones listed below.`

// BuildPrompt constructs the chat messages for one generation round. Round 1
// asks for broad coverage of the seed; later rounds add the SCAMPER block and
// list the most recent exclusions. A non-empty override replaces the default
// system instruction.
func BuildPrompt(req Request) []llm.Message {
	system := defaultSystemPrompt
	if strings.TrimSpace(req.PromptOverride) != "" {
		system = req.PromptOverride
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Seed keyword: %q\n", req.Seed)
	fmt.Fprintf(&sb, "Target language: %s\n", languageName(req.TargetLanguage))
	if req.Strategy != "" {
		fmt.Fprintf(&sb, "Strategy focus: %s\n", req.Strategy)
	}
	sb.WriteString("\n")

	if req.Round <= 1 {
		fmt.Fprintf(&sb, "Generate %d broad keywords covering the main search demand around the seed: head terms, common questions, buying and comparison queries.\n", req.Count)
	} else {
		fmt.Fprintf(&sb, "This is round %d of keyword mining. Generate %d NEW keywords.\n\n", req.Round, req.Count)
		sb.WriteString(scamperBlock)
		sb.WriteString("\n")
		if recent := lastN(req.Exclude, maxExclusionHint); len(recent) > 0 {
			sb.WriteString("\nAlready found (do not repeat):\n")
			for _, kw := range recent {
				fmt.Fprintf(&sb, "- %s\n", kw)
			}
		}
	}

	sb.WriteString("\nReturn the JSON array now.")

	return []llm.Message{llm.System(system), llm.User(sb.String())}
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var languageNames = map[string]string{
	"en": "English", "de": "German", "fr": "French", "es": "Spanish", "it": "Italian",
	"pt": "Portuguese", "nl": "Dutch", "ru": "Russian", "ja": "Japanese", "ko": "Korean",
	"zh": "Chinese", "zh-cn": "Simplified Chinese", "zh-tw": "Traditional Chinese",
}

func languageName(code string) string {
	if code == "" {
		return "English"
	}
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return fmt.Sprintf("%s (%s)", name, code)
	}
	return code
}
