package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is a discovered result.
type Link struct {
	Title string
	URL   string
}

// Strategy names reported for a page.
const (
	StrategyPrimary     = "primary"
	StrategyAlternative = "alternative"
	StrategyFallback    = "fallback"
	StrategyNone        = "empty"
)

type strategy struct {
	name    string
	anchors func(doc *goquery.Document) *goquery.Selection
}

// strategies are tried in order; the first one yielding a matching link wins.
var strategies = []strategy{
	{name: StrategyPrimary, anchors: resultBlockAnchors},
	{name: StrategyAlternative, anchors: func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("div.g, div.yuRUbf, div[data-hveid]").Find("a")
	}},
	{name: StrategyFallback, anchors: func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("a[href]")
	}},
}

// resultBlockAnchors prefers the title anchor (a.zReHs) of each result block
// and falls back to every anchor in blocks that lack one.
func resultBlockAnchors(doc *goquery.Document) *goquery.Selection {
	out := doc.Selection.Slice(0, 0)
	doc.Find("div.MjjYud").Each(func(_ int, block *goquery.Selection) {
		anchors := block.Find("a.zReHs")
		if anchors.Length() == 0 {
			anchors = block.Find("a")
		}
		out = out.AddSelection(anchors)
	})
	return out
}

// Extract returns the links in html whose target contains domain, and the
// name of the strategy that produced them. Duplicates within the page are
// kept; callers de-duplicate across pages.
func Extract(html, domain string) ([]Link, string, error) {
	if strings.TrimSpace(html) == "" {
		return nil, StrategyNone, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, StrategyNone, fmt.Errorf("parse result page: %w", err)
	}
	domain = strings.ToLower(domain)
	for _, s := range strategies {
		var links []Link
		s.anchors(doc).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			target := unwrapRedirect(strings.TrimSpace(href))
			if target == "" || !strings.Contains(strings.ToLower(target), domain) {
				return
			}
			links = append(links, Link{Title: anchorTitle(a), URL: target})
		})
		if len(links) > 0 {
			return links, s.name, nil
		}
	}
	return nil, StrategyNone, nil
}

func anchorTitle(a *goquery.Selection) string {
	if h3 := a.Find("h3").First(); h3.Length() > 0 {
		if title := strings.TrimSpace(h3.Text()); title != "" {
			return title
		}
	}
	return strings.Join(strings.Fields(a.Text()), " ")
}

// unwrapRedirect resolves Google's /url?q=<target> wrappers to the target.
// Other hrefs are returned unchanged.
func unwrapRedirect(href string) string {
	if !strings.HasPrefix(href, "/url?") && !strings.Contains(href, "google.com/url?") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	q := u.Query()
	for _, key := range []string{"q", "url"} {
		if target := q.Get(key); target != "" {
			return target
		}
	}
	return href
}
