package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, url string) (Page, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (Page, error) { return f(ctx, url) }

func TestChain_FallsBackOnErrorAndEmptyText(t *testing.T) {
	failing := fetchFunc(func(context.Context, string) (Page, error) { return Page{}, errors.New("quota") })
	empty := fetchFunc(func(context.Context, string) (Page, error) { return Page{Text: "  "}, nil })
	ok := fetchFunc(func(context.Context, string) (Page, error) { return Page{Text: "hello world", Source: "local"}, nil })

	p, err := Chain{failing, empty, ok}.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "local", p.Source)
	assert.Equal(t, "https://example.com", p.URL)
	assert.Equal(t, 2, p.WordCount())
}

func TestChain_AllFail(t *testing.T) {
	failing := fetchFunc(func(context.Context, string) (Page, error) { return Page{}, errors.New("boom") })
	_, err := Chain{failing, nil}.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = Chain{}.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
}

func TestHeadingsFromMarkdown(t *testing.T) {
	md := "# Best Coffee Machines\nintro\n## Drip vs Espresso ##\n```\n# not a heading\n```\n### Cleaning\n#### too deep"
	assert.Equal(t, []string{
		"H1: Best Coffee Machines",
		"H2: Drip vs Espresso",
		"H3: Cleaning",
	}, HeadingsFromMarkdown(md))
}

func TestParseHTML_ExtractsOutlineAndText(t *testing.T) {
	html := []byte(`<html><head><title>Coffee Guide</title></head><body>
<nav>Menu</nav>
<h1>Coffee Guide</h1>
<p>Choosing a coffee machine depends on how much coffee you drink every day.</p>
<h2>Espresso machines</h2>
<p>Espresso machines force hot water through finely ground coffee.</p>
<script>var x = 1;</script>
</body></html>`)
	u, _ := url.Parse("https://example.com/guide")
	p, err := ParseHTML(u, html)
	require.NoError(t, err)

	assert.Equal(t, "local", p.Source)
	assert.Contains(t, p.Text, "Espresso machines force hot water")
	assert.NotContains(t, p.Text, "var x")
	assert.Equal(t, "Coffee Guide", p.Title)
}

func TestLocal_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Title</h1><p>Some body text for the page.</p></body></html>`))
	}))
	defer srv.Close()

	l := NewLocal(srv.Client())
	p, err := l.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Contains(t, p.Text, "Some body text")

	_, err = l.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "", DetectLanguage("too short"))
	en := "The quick brown fox jumps over the lazy dog while the coffee machine brews a fresh cup every morning."
	assert.Equal(t, "en", DetectLanguage(en))
	de := "Die Kaffeemaschine ist das wichtigste Gerät in unserer Küche, weil wir jeden Morgen frischen Kaffee trinken."
	assert.Equal(t, "de", DetectLanguage(de))
}

func TestSameLanguage(t *testing.T) {
	assert.True(t, SameLanguage("en", "en"))
	assert.True(t, SameLanguage("zh", "zh-CN"))
	assert.True(t, SameLanguage("", "de"))
	assert.False(t, SameLanguage("de", "en"))
}
