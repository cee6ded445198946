// Package creative plans the images for an article.
package creative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/extract"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
)

const (
	DefaultImages = 4
	MaxImages     = 8
)

var aspectRatios = map[string]bool{"16:9": true, "4:3": true, "1:1": true, "3:4": true, "9:16": true}

const defaultSystemPrompt = `You are an art director planning the images for a blog article. For each image, decide which section it illustrates and write a detailed prompt for an image generation model: subject, composition, lighting, style. No text inside images.

Output ONLY a JSON object: {"images": [{"section": "...", "prompt": "...", "altText": "...", "aspectRatio": "16:9"}]}
The first image is the hero image for the article. altText must be in the article language and include the target keyword where natural.`

type Chatter interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

type Request struct {
	Keyword        string
	Title          string
	Headings       []string
	Style          string
	TargetLanguage string
	Count          int
	PromptOverride string
}

// ImagePlan describes one image to generate.
type ImagePlan struct {
	Section     string `json:"section"`
	Prompt      string `json:"prompt"`
	AltText     string `json:"altText"`
	AspectRatio string `json:"aspectRatio"`
}

type Creative struct {
	client Chatter
}

func New(client Chatter) *Creative {
	return &Creative{client: client}
}

// Plan returns up to req.Count image plans. Output without a usable plan
// list is Degraded with an empty list.
func (c *Creative) Plan(ctx context.Context, route llm.Route, req Request) outcome.Result[[]ImagePlan] {
	if req.Count <= 0 {
		req.Count = DefaultImages
	}
	if req.Count > MaxImages {
		req.Count = MaxImages
	}

	raw, err := c.client.Complete(ctx, route, BuildPrompt(req), llm.Temperature(0.9))
	if err != nil {
		slog.Error("image planning failed", "keyword", req.Keyword, "error", err)
		return outcome.Failed[[]ImagePlan](fmt.Sprintf("image planning: %v", err))
	}

	var resp struct {
		Images []ImagePlan `json:"images"`
	}
	if err := extract.Decode(raw, extract.Object, &resp); err != nil || len(resp.Images) == 0 {
		// Some models answer with the bare array.
		if aerr := extract.Decode(raw, extract.Array, &resp.Images); aerr != nil || len(resp.Images) == 0 {
			slog.Warn("image plan unparseable", "keyword", req.Keyword, "response", extract.Truncate(raw, 500))
			return outcome.Degraded([]ImagePlan{}, "model output contained no image plans")
		}
	}

	plans := make([]ImagePlan, 0, req.Count)
	for _, p := range resp.Images {
		p.Prompt = strings.TrimSpace(p.Prompt)
		if p.Prompt == "" {
			continue
		}
		if !aspectRatios[p.AspectRatio] {
			p.AspectRatio = "16:9"
		}
		if p.AltText == "" {
			p.AltText = req.Keyword
		}
		plans = append(plans, p)
		if len(plans) == req.Count {
			break
		}
	}
	if len(plans) == 0 {
		return outcome.Degraded(plans, "model returned no usable image prompts")
	}
	return outcome.OK(plans)
}

func BuildPrompt(req Request) []llm.Message {
	system := defaultSystemPrompt
	if strings.TrimSpace(req.PromptOverride) != "" {
		system = req.PromptOverride
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target keyword: %s\n", req.Keyword)
	if req.Title != "" {
		fmt.Fprintf(&sb, "Article title: %s\n", req.Title)
	}
	if req.TargetLanguage != "" {
		fmt.Fprintf(&sb, "Article language: %s\n", req.TargetLanguage)
	}
	style := req.Style
	if style == "" {
		style = "clean editorial photography"
	}
	fmt.Fprintf(&sb, "Visual style: %s\n", style)
	if len(req.Headings) > 0 {
		sb.WriteString("Article outline:\n")
		for _, h := range req.Headings {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}
	fmt.Fprintf(&sb, "\nPlan exactly %d images. Return the JSON object now.", req.Count)
	return []llm.Message{llm.System(system), llm.User(sb.String())}
}
