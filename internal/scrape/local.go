package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	maxPageSize = 5 << 20 // 5MB
	userAgent   = "Mozilla/5.0 (compatible; seoagent/1.0)"
)

// Local fetches the HTML directly and extracts the main content with
// readability, falling back to the whole body when readability fails.
type Local struct {
	client *http.Client
}

func NewLocal(client *http.Client) *Local {
	if client == nil {
		client = &http.Client{}
	}
	return &Local{client: client}
}

func (l *Local) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parsing url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
	html, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return Page{}, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return ParseHTML(u, html)
}

// ParseHTML extracts title, text and outline from an HTML document.
func ParseHTML(u *url.URL, html []byte) (Page, error) {
	page := Page{URL: u.String(), Source: "local"}

	content := string(html)
	parser := readability.NewParser()
	if article, err := parser.Parse(bytes.NewReader(html), u); err == nil && strings.TrimSpace(article.Content) != "" {
		page.Title = article.Title
		content = article.Content
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	doc.Find("script,style,noscript,nav,footer").Remove()

	doc.Find("h1,h2,h3").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		page.Headings = append(page.Headings, strings.ToUpper(goquery.NodeName(s))+": "+text)
	})

	var b strings.Builder
	doc.Find("h1,h2,h3,h4,p,li").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
	})
	page.Text = strings.TrimSpace(b.String())
	if page.Text == "" {
		page.Text = strings.Join(strings.Fields(doc.Text()), " ")
	}
	return page, nil
}
