// Package scrape fetches competitor pages and reduces them to text and an
// outline.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Page is the readable content of one fetched URL.
type Page struct {
	URL      string
	Title    string
	Text     string
	Headings []string
	Language string
	Source   string
}

// WordCount counts whitespace-separated words in the page text.
func (p Page) WordCount() int {
	return len(strings.Fields(p.Text))
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Chain tries each fetcher in order and returns the first page with text.
type Chain []Fetcher

var ErrEmptyPage = errors.New("scrape: page has no readable text")

func (c Chain) Fetch(ctx context.Context, url string) (Page, error) {
	var errs []error
	for _, f := range c {
		if f == nil {
			continue
		}
		p, err := f.Fetch(ctx, url)
		if err == nil && strings.TrimSpace(p.Text) == "" {
			err = ErrEmptyPage
		}
		if err == nil {
			if p.URL == "" {
				p.URL = url
			}
			return p, nil
		}
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		slog.Debug("scrape fetcher failed, trying next", "url", url, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Page{}, fmt.Errorf("scrape %s: no fetchers configured", url)
	}
	return Page{}, fmt.Errorf("scrape %s: %w", url, errors.Join(errs...))
}

var headingRe = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*\s*$`)

// HeadingsFromMarkdown returns H1-H3 headings prefixed by level ("H2: ...").
func HeadingsFromMarkdown(md string) []string {
	var out []string
	inFence := false
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		out = append(out, fmt.Sprintf("H%d: %s", len(m[1]), m[2]))
	}
	return out
}
